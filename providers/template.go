package providers

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Placeholders lists the attribute names referenced as {{name}} in template.
func Placeholders(template string) []string {
	seen := map[string]struct{}{}
	names := []string{}
	for _, match := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		name := strings.ToLower(match[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render replaces {{name}} placeholders with attribute values. Every
// placeholder must resolve to a non-empty value.
func Render(template string, attributes map[string]any) (string, error) {
	var missing []string
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := strings.ToLower(placeholderPattern.FindStringSubmatch(token)[1])
		value := ReadString(attributes[name])
		if value == "" {
			missing = append(missing, name)
			return token
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("providers: missing %s for url template %q", strings.Join(missing, ", "), template)
	}
	return strings.TrimSpace(rendered), nil
}

// ResolveURL renders base and joins path onto it. Absolute paths are
// rendered on their own.
func ResolveURL(base string, path string, attributes map[string]any) (string, error) {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return Render(path, attributes)
	}
	renderedBase, err := Render(strings.TrimSpace(base), attributes)
	if err != nil {
		return "", err
	}
	if renderedBase == "" {
		return "", fmt.Errorf("providers: base url is required to resolve %q", path)
	}
	if path == "" {
		return renderedBase, nil
	}
	return strings.TrimRight(renderedBase, "/") + "/" + strings.TrimLeft(path, "/"), nil
}

// NormalizeHost reduces user input such as "https://acme.zendesk.com/" to a
// bare host or subdomain value.
func NormalizeHost(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		if parsed, err := url.Parse(value); err == nil && parsed.Host != "" {
			value = parsed.Host
		}
	}
	return strings.ToLower(strings.Trim(value, "/ "))
}

// RequireAttributes reports the first attribute in names missing from the
// credential.
func RequireAttributes(credential core.Credential, names ...string) error {
	for _, name := range names {
		if credential.Attribute(name) == "" {
			return fmt.Errorf("providers: credential %s is missing attribute %q", credential.ID, name)
		}
	}
	return nil
}

func ReadString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func CloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}
