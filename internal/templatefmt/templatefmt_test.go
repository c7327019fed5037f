package templatefmt

import (
	"strings"
	"testing"
	"time"
)

func TestNotificationTemplateHelpers(t *testing.T) {
	t.Parallel()

	tmpl, err := ParseNotificationTemplate("t", `{{ upper .Kind }} {{ money .Amount }} {{ percent .Score }} {{ ts .At }} {{ json .Tags }}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var out strings.Builder
	err = tmpl.Execute(&out, map[string]any{
		"Kind":   "fraud",
		"Amount": 12.5,
		"Score":  0.875,
		"At":     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"Tags":   []string{"a"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := `FRAUD 12.50 87.5% 2025-01-01T00:00:00Z ["a"]`
	if out.String() != want {
		t.Fatalf("unexpected render %q, want %q", out.String(), want)
	}
}

func TestMissingKeyIsError(t *testing.T) {
	t.Parallel()

	tmpl, err := ParseNotificationTemplate("t", `{{ .Missing }}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := tmpl.Execute(&strings.Builder{}, map[string]any{}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if FormatTimestamp(nil) != "-" || FormatConfidence(55) != "55.0%" {
		t.Fatalf("unexpected helper fallbacks")
	}
}
