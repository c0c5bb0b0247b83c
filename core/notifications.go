package core

import (
	"context"
	"fmt"
	"strings"
)

// NotificationKind is the closed vocabulary of token lifecycle events an API
// client reports back to its Manager.
type NotificationKind string

const (
	NotificationTokenUpdate  NotificationKind = "TOKEN_UPDATE"
	NotificationDeauthorized NotificationKind = "TOKEN_DEAUTHORIZED"
	NotificationInvalidAuth  NotificationKind = "INVALID_AUTH"
)

const legacyDelegatePrefix = "DLGT_"

func NotificationKinds() []NotificationKind {
	return []NotificationKind{
		NotificationTokenUpdate,
		NotificationDeauthorized,
		NotificationInvalidAuth,
	}
}

func (k NotificationKind) Valid() bool {
	switch k {
	case NotificationTokenUpdate, NotificationDeauthorized, NotificationInvalidAuth:
		return true
	default:
		return false
	}
}

func (k NotificationKind) String() string {
	return string(k)
}

// ParseNotificationKind accepts canonical names and the DLGT_ prefixed
// delegate names older API clients emit.
func ParseNotificationKind(value string) (NotificationKind, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.TrimPrefix(normalized, legacyDelegatePrefix)
	kind := NotificationKind(normalized)
	if !kind.Valid() {
		return "", fmt.Errorf("core: invalid notification kind %q", value)
	}
	return kind, nil
}

type Notification struct {
	Kind    NotificationKind
	Payload map[string]any
}

func NewNotification(kind NotificationKind, payload map[string]any) Notification {
	return Notification{Kind: kind, Payload: copyAnyMap(payload)}
}

// NotificationHandler receives events from the API client that emitted them.
type NotificationHandler func(ctx context.Context, source APIClient, notification Notification) error

// Notifier is embedded by API clients to emit notifications to the handler
// registered at construction.
type Notifier struct {
	handler NotificationHandler
}

func NewNotifier(handler NotificationHandler) Notifier {
	return Notifier{handler: handler}
}

func (n Notifier) Enabled() bool {
	return n.handler != nil
}

// Notify rejects kinds outside the vocabulary and is a no-op when no handler
// was registered.
func (n Notifier) Notify(ctx context.Context, source APIClient, kind NotificationKind, payload map[string]any) error {
	if !kind.Valid() {
		return fmt.Errorf("core: invalid notification kind %q", kind)
	}
	if n.handler == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return n.handler(ctx, source, NewNotification(kind, payload))
}
