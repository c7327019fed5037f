package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"alertdesk/internal/domain"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
}

// unixMillisThreshold separates unix seconds from unix milliseconds.
const unixMillisThreshold = 1e11

const (
	minTimestampYear = 1
	maxTimestampYear = 9999
	// maxUnixMillis is 9999-12-31T23:59:59.999Z.
	maxUnixMillis = 253402300799999
)

// lookup returns the first non-null value among aliases.
func lookup(payload Payload, aliases []string) (any, bool) {
	for _, key := range aliases {
		value, ok := payload[key]
		if ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

// stringField returns a trimmed, non-empty string rendering of the first alias present.
func stringField(payload Payload, aliases []string) (string, bool) {
	raw, ok := lookup(payload, aliases)
	if !ok {
		return "", false
	}
	var value string
	switch typed := raw.(type) {
	case string:
		value = typed
	case json.Number:
		value = typed.String()
	case float64:
		value = strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		value = strconv.FormatBool(typed)
	case map[string]any, []any:
		return "", false
	default:
		value = fmt.Sprint(typed)
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func stringOr(payload Payload, aliases []string, fallback string) string {
	if value, ok := stringField(payload, aliases); ok {
		return value
	}
	return fallback
}

// numberField coerces the first alias present into a finite float.
// Params: payload, aliases, and canonical field name for errors.
// Returns: value, presence flag, and ValidationError for non-numeric input.
func numberField(payload Payload, aliases []string, field string) (float64, bool, error) {
	raw, ok := lookup(payload, aliases)
	if !ok {
		return 0, false, nil
	}
	if text, isText := raw.(string); isText && strings.TrimSpace(text) == "" {
		return 0, false, nil
	}
	value, ok := coerceNumber(raw)
	if !ok {
		return 0, false, domain.NewValidationError(field, fmt.Sprintf("%s must be numeric", field))
	}
	return value, true, nil
}

func coerceNumber(raw any) (float64, bool) {
	var value float64
	switch typed := raw.(type) {
	case float64:
		value = typed
	case float32:
		value = float64(typed)
	case int:
		value = float64(typed)
	case int64:
		value = float64(typed)
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		value = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		value = parsed
	default:
		return 0, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func coerceBool(raw any) (bool, bool) {
	switch typed := raw.(type) {
	case bool:
		return typed, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err != nil {
			return false, false
		}
		return parsed, true
	default:
		if number, ok := coerceNumber(raw); ok {
			return number != 0, true
		}
		return false, false
	}
}

// parseTimestamp accepts RFC3339 variants, common layouts, and unix seconds/milliseconds.
// Returns: UTC instant and true, or false for missing/unparsable input.
func parseTimestamp(raw any) (time.Time, bool) {
	switch typed := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if typed.IsZero() {
			return time.Time{}, false
		}
		return representable(typed.UTC())
	case string:
		text := strings.TrimSpace(typed)
		if text == "" {
			return time.Time{}, false
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, text); err == nil {
				return representable(parsed.UTC())
			}
		}
		if number, err := strconv.ParseFloat(text, 64); err == nil {
			return fromUnix(number)
		}
		return time.Time{}, false
	default:
		number, ok := coerceNumber(raw)
		if !ok {
			return time.Time{}, false
		}
		return fromUnix(number)
	}
}

func fromUnix(number float64) (time.Time, bool) {
	if number <= 0 || math.IsNaN(number) || math.IsInf(number, 0) {
		return time.Time{}, false
	}
	if number >= unixMillisThreshold {
		if number > maxUnixMillis {
			return time.Time{}, false
		}
		return representable(time.UnixMilli(int64(number)).UTC())
	}
	seconds, fraction := math.Modf(number)
	return representable(time.Unix(int64(seconds), int64(fraction*1e9)).UTC())
}

// representable rejects instants that RFC 3339 cannot encode.
func representable(instant time.Time) (time.Time, bool) {
	if year := instant.Year(); year < minTimestampYear || year > maxTimestampYear {
		return time.Time{}, false
	}
	return instant, true
}
