package normalize

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"alertdesk/internal/clock"
	"alertdesk/internal/domain"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(clock.NewManual(fixedNow))
}

func TestGenericFraudDefaults(t *testing.T) {
	t.Parallel()

	alert, err := newTestNormalizer().Generic(GenericRequest{
		Type:    "fraud",
		Details: map[string]any{"amount": "42.50"},
	})
	if err != nil {
		t.Fatalf("generic: %v", err)
	}
	if alert.Type != domain.AlertTypeFraud || alert.Fraud == nil {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	if alert.Fraud.Amount != 42.5 {
		t.Fatalf("amount not coerced: %v", alert.Fraud.Amount)
	}
	if alert.Fraud.Merchant != "Unknown" || alert.Fraud.Status != "unknown" || alert.Fraud.CustomerName != "Unknown Customer" {
		t.Fatalf("defaults not applied: %+v", alert.Fraud)
	}
	if !alert.Timestamp.Equal(fixedNow) {
		t.Fatalf("expected clock timestamp, got %s", alert.Timestamp)
	}
	if alert.ID != "" {
		t.Fatalf("normalizer must not assign ids, got %q", alert.ID)
	}
}

func TestGenericDoSLenientDefaults(t *testing.T) {
	t.Parallel()

	alert, err := newTestNormalizer().Generic(GenericRequest{
		Type:     "dos",
		Details:  map[string]any{"protocol": "UDP"},
		Resolved: true,
	})
	if err != nil {
		t.Fatalf("generic: %v", err)
	}
	if alert.DoS.Source != "Unknown" || alert.DoS.Destination != "Unknown" {
		t.Fatalf("expected Unknown endpoints, got %+v", alert.DoS)
	}
	if alert.DoS.Status != "Detected" || !alert.Resolved {
		t.Fatalf("unexpected status/resolved: %+v resolved=%v", alert.DoS, alert.Resolved)
	}
}

func TestGenericRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		request GenericRequest
		field   string
	}{
		{name: "missing type", request: GenericRequest{Details: map[string]any{}}, field: "type"},
		{name: "unknown type", request: GenericRequest{Type: "phishing", Details: map[string]any{}}, field: "type"},
		{name: "missing details", request: GenericRequest{Type: "fraud"}, field: "details"},
		{name: "details not object", request: GenericRequest{Type: "fraud", Details: "nope"}, field: "details"},
		{name: "non numeric amount", request: GenericRequest{Type: "fraud", Details: map[string]any{"amount": "lots"}}, field: "amount"},
	}

	n := newTestNormalizer()
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := n.Generic(tc.request)
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var validation *domain.ValidationError
			if !errors.As(err, &validation) || validation.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}

func TestGenericTimestampFromRequestOrDetails(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	top, err := n.Generic(GenericRequest{
		Type:      "fraud",
		Details:   map[string]any{"timestamp": "2020-01-01T00:00:00Z"},
		Timestamp: "2024-01-15T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("generic: %v", err)
	}
	if want := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC); !top.Timestamp.Equal(want) {
		t.Fatalf("top-level timestamp should win, got %s", top.Timestamp)
	}

	nested, err := n.Generic(GenericRequest{
		Type:    "fraud",
		Details: map[string]any{"timestamp": "2020-01-01T00:00:00Z"},
	})
	if err != nil {
		t.Fatalf("generic: %v", err)
	}
	if want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC); !nested.Timestamp.Equal(want) {
		t.Fatalf("details timestamp expected, got %s", nested.Timestamp)
	}
}

func TestDoSPacketMapsCaptureFields(t *testing.T) {
	t.Parallel()

	alert, err := newTestNormalizer().DoSPacket(Payload{
		"Source":      "10.0.0.5",
		"Destination": "192.168.1.1",
		"Protocol":    "TCP",
		"Length":      1500,
		"Time":        "2024-01-15T10:30:00Z",
	})
	if err != nil {
		t.Fatalf("dos packet: %v", err)
	}
	if alert.Type != domain.AlertTypeDoS {
		t.Fatalf("expected dos, got %s", alert.Type)
	}
	details := alert.DoS
	if details.Source != "10.0.0.5" || details.Destination != "192.168.1.1" || details.Protocol != "TCP" || details.Length != 1500 {
		t.Fatalf("unexpected details: %+v", details)
	}
	if want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC); !alert.Timestamp.Equal(want) {
		t.Fatalf("timestamp mismatch: %s", alert.Timestamp)
	}
}

func TestDoSPacketRequiresEndpoints(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	if _, err := n.DoSPacket(Payload{"Destination": "192.168.1.1"}); !domain.IsValidation(err) {
		t.Fatalf("missing source should be validation error, got %v", err)
	}
	if _, err := n.DoSPacket(Payload{"Source": "10.0.0.5"}); !domain.IsValidation(err) {
		t.Fatalf("missing destination should be validation error, got %v", err)
	}
	if _, err := n.DoSPacket(Payload{"Source": "a", "Destination": "b", "Length": -1}); !domain.IsValidation(err) {
		t.Fatalf("negative length should be validation error, got %v", err)
	}
}

func TestDoSPacketLengthMustBeWholeAndInRange(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	cases := map[string]any{
		"fractional":      json.Number("1.5"),
		"fractional text": "60000.25",
		"beyond int64":    json.Number("9.3e18"),
		"infinite":        math.Inf(1),
		"not a number":    "NaN",
	}
	for name, length := range cases {
		_, err := n.DoSPacket(Payload{"Source": "a", "Destination": "b", "Length": length})
		var validation *domain.ValidationError
		if !errors.As(err, &validation) || validation.Field != "length" {
			t.Fatalf("%s: expected length validation error, got %v", name, err)
		}
	}

	alert, err := n.DoSPacket(Payload{"Source": "a", "Destination": "b", "Length": json.Number("60000.0")})
	if err != nil || alert.DoS.Length != 60000 {
		t.Fatalf("whole float length should be accepted, got %+v err=%v", alert.DoS, err)
	}
}

func TestDoSPacketBlockedFlag(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	blocked, err := n.DoSPacket(Payload{"Source": "a", "Destination": "b", "blocked": "true"})
	if err != nil {
		t.Fatalf("dos packet: %v", err)
	}
	if blocked.DoS.Status != "Blocked" {
		t.Fatalf("expected Blocked, got %q", blocked.DoS.Status)
	}
	explicit, err := n.DoSPacket(Payload{"Source": "a", "Destination": "b", "status": "Mitigated"})
	if err != nil {
		t.Fatalf("dos packet: %v", err)
	}
	if explicit.DoS.Status != "Mitigated" {
		t.Fatalf("expected explicit status, got %q", explicit.DoS.Status)
	}
}

func TestFraudDetectionAliasesAndCustomer(t *testing.T) {
	t.Parallel()

	alert, err := newTestNormalizer().FraudDetection(Payload{
		"trans_num":   "tx-9",
		"amt":         json.Number("199.99"),
		"merchant":    "fraud_Kirlin and Sons",
		"probability": 0.93,
		"first":       "Jane",
		"last":        "Doe",
		"unix_time":   1700000000,
	})
	if err != nil {
		t.Fatalf("fraud detection: %v", err)
	}
	details := alert.Fraud
	if details.TransactionID != "tx-9" || details.Amount != 199.99 || details.Confidence != 0.93 {
		t.Fatalf("unexpected details: %+v", details)
	}
	if details.CustomerName != "Jane Doe" {
		t.Fatalf("expected joined customer name, got %q", details.CustomerName)
	}
}

func TestFraudDetectionIsStrict(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	if _, err := n.FraudDetection(Payload{"amount": 10}); !domain.IsValidation(err) {
		t.Fatalf("missing transaction id should be rejected, got %v", err)
	}
	if _, err := n.FraudDetection(Payload{"transactionId": "tx-1"}); !domain.IsValidation(err) {
		t.Fatalf("missing amount should be rejected, got %v", err)
	}
}

func TestDetectionExplicitAndInferredType(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	explicit, err := n.Detection(Payload{"type": "dos", "src": "1.1.1.1", "dst": "2.2.2.2"})
	if err != nil {
		t.Fatalf("explicit detection: %v", err)
	}
	if explicit.Type != domain.AlertTypeDoS {
		t.Fatalf("expected dos, got %s", explicit.Type)
	}

	inferred, err := n.Detection(Payload{"transaction_id": "tx-2", "amount": 5, "timestamp": 1700000000000})
	if err != nil {
		t.Fatalf("inferred detection: %v", err)
	}
	if inferred.Type != domain.AlertTypeFraud {
		t.Fatalf("expected fraud, got %s", inferred.Type)
	}
	if want := time.UnixMilli(1700000000000).UTC(); !inferred.Timestamp.Equal(want) {
		t.Fatalf("expected unix millis timestamp, got %s", inferred.Timestamp)
	}
}

func TestInferType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload Payload
		want    domain.AlertType
		wantErr bool
	}{
		{name: "fraud by amount", payload: Payload{"amt": 1}, want: domain.AlertTypeFraud},
		{name: "dos by endpoints", payload: Payload{"Source": "a", "Destination": "b"}, want: domain.AlertTypeDoS},
		{name: "dos by protocol", payload: Payload{"source": "a", "protocol": "TCP"}, want: domain.AlertTypeDoS},
		{name: "source alone", payload: Payload{"source": "a"}, wantErr: true},
		{name: "ambiguous", payload: Payload{"amount": 1, "source": "a", "destination": "b"}, wantErr: true},
		{name: "empty", payload: Payload{}, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := InferType(tc.payload)
			if tc.wantErr {
				if !domain.IsValidation(err) {
					t.Fatalf("expected validation error, got %v / %s", err, got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("expected %s, got %s (%v)", tc.want, got, err)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  any
		want time.Time
		ok   bool
	}{
		{name: "rfc3339", raw: "2024-01-15T10:30:00Z", want: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), ok: true},
		{name: "offset", raw: "2024-01-15T12:30:00+02:00", want: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), ok: true},
		{name: "space layout", raw: "2024-01-15 10:30:00", want: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), ok: true},
		{name: "unix seconds", raw: float64(1700000000), want: time.Unix(1700000000, 0).UTC(), ok: true},
		{name: "unix seconds string", raw: "1700000000", want: time.Unix(1700000000, 0).UTC(), ok: true},
		{name: "garbage", raw: "yesterday", ok: false},
		{name: "empty", raw: "  ", ok: false},
		{name: "negative", raw: -5, ok: false},
		{name: "millis past year 9999", raw: 1e15, ok: false},
		{name: "millis past year 9999 string", raw: "1e15", ok: false},
		{name: "json number past year 9999", raw: json.Number("1e15"), ok: false},
		{name: "last representable millis", raw: float64(253402300799999), want: time.UnixMilli(253402300799999).UTC(), ok: true},
		{name: "infinite", raw: math.Inf(1), ok: false},
		{name: "year zero time", raw: time.Date(0, 6, 1, 0, 0, 0, 0, time.UTC), ok: false},
		{name: "nil", raw: nil, ok: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseTimestamp(tc.raw)
			if ok != tc.ok {
				t.Fatalf("ok=%v, want %v", ok, tc.ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestUnparsableTimestampFallsBackToClock(t *testing.T) {
	t.Parallel()

	manual := clock.NewManual(fixedNow)
	n := New(manual)
	manual.Advance(time.Minute)

	alert, err := n.DoSPacket(Payload{"Source": "a", "Destination": "b", "Time": "not-a-time"})
	if err != nil {
		t.Fatalf("dos packet: %v", err)
	}
	if want := fixedNow.Add(time.Minute); !alert.Timestamp.Equal(want) {
		t.Fatalf("expected %s, got %s", want, alert.Timestamp)
	}
}

func TestOutOfRangeTimestampFallsBackToClock(t *testing.T) {
	t.Parallel()

	n := New(clock.NewManual(fixedNow))
	for _, raw := range []any{json.Number("1e15"), "1e15"} {
		alert, err := n.DoSPacket(Payload{"Source": "10.0.0.5", "Destination": "10.0.0.1", "Protocol": "UDP", "Length": json.Number("60000"), "Time": raw})
		if err != nil {
			t.Fatalf("dos packet with Time=%v: %v", raw, err)
		}
		if !alert.Timestamp.Equal(fixedNow) {
			t.Fatalf("Time=%v: expected clock timestamp, got %s", raw, alert.Timestamp)
		}
		if _, err := json.Marshal(alert); err != nil {
			t.Fatalf("Time=%v: alert must encode: %v", raw, err)
		}
	}
}
