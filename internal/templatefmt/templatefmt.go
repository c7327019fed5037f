package templatefmt

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// FuncMap returns shared notification template helpers.
// Params: none.
// Returns: helper map used by config validation and runtime rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"json":    MarshalJSON,
		"ts":      FormatTimestamp,
		"money":   FormatAmount,
		"percent": FormatConfidence,
		"upper":   Upper,
	}
}

// ParseNotificationTemplate parses one notification template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseNotificationTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// FormatTimestamp renders an instant as RFC3339 UTC.
// Params: time.Time or *time.Time.
// Returns: formatted string, "-" for zero or unsupported values.
func FormatTimestamp(value any) string {
	var ts time.Time
	switch typed := value.(type) {
	case time.Time:
		ts = typed
	case *time.Time:
		if typed == nil {
			return "-"
		}
		ts = *typed
	default:
		return "-"
	}
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}

// FormatAmount renders a transaction amount with two decimals.
func FormatAmount(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

// FormatConfidence renders a 0..1 score as a percentage; larger values are taken as percent already.
func FormatConfidence(value float64) string {
	if value <= 1 {
		value *= 100
	}
	return fmt.Sprintf("%.1f%%", value)
}

// Upper upper-cases the printed form of value, so named string types work too.
func Upper(value any) string {
	return strings.ToUpper(fmt.Sprint(value))
}

// MarshalJSON renders value into JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
