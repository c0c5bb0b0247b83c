package core

import (
	"context"
	"fmt"
	"strings"
)

const metricPrefix = "integrations"

const (
	MetricTotal      = "total"
	MetricDurationMS = "duration_ms"
)

// operationTagKeys are the operation fields promoted to metric tags. They
// are all low cardinality; ids never become tags.
var operationTagKeys = []string{"vendor", "notification_kind", "resolution"}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// MetricName returns integrations.<operation>.<kind>.
func MetricName(operation string, kind string) string {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	return metricPrefix + "." + operation + "." + strings.TrimSpace(kind)
}

func operationTags(operation string, status string, fields map[string]any) map[string]string {
	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range operationTagKeys {
		value, ok := fields[key]
		if !ok || value == nil {
			continue
		}
		if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
			tags[key] = text
		}
	}
	return tags
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
