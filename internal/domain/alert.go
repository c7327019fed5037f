package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// AlertType tags which detector produced an alert.
// Params: fraud/dos constants.
// Returns: discriminator for the details variant.
type AlertType string

const (
	// AlertTypeFraud marks fraudulent-transaction alerts.
	AlertTypeFraud AlertType = "fraud"
	// AlertTypeDoS marks denial-of-service alerts.
	AlertTypeDoS AlertType = "dos"
)

// AlertTypes returns every supported type in display order.
func AlertTypes() []AlertType {
	return []AlertType{AlertTypeFraud, AlertTypeDoS}
}

// ParseAlertType converts raw user input into a known alert type.
// Params: raw type string, case-insensitive.
// Returns: alert type or ValidationError.
func ParseAlertType(raw string) (AlertType, error) {
	switch AlertType(strings.ToLower(strings.TrimSpace(raw))) {
	case AlertTypeFraud:
		return AlertTypeFraud, nil
	case AlertTypeDoS:
		return AlertTypeDoS, nil
	case "":
		return "", NewValidationError("type", "type is required")
	default:
		return "", NewValidationError("type", fmt.Sprintf("unsupported alert type %q", raw))
	}
}

// FraudDetails describes one flagged transaction.
type FraudDetails struct {
	TransactionID string  `json:"transactionId"`
	Amount        float64 `json:"amount"`
	Merchant      string  `json:"merchant"`
	Confidence    float64 `json:"confidence"`
	Status        string  `json:"status"`
	CustomerName  string  `json:"customerName"`
}

// DoSDetails describes one denial-of-service detection.
type DoSDetails struct {
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Protocol    string  `json:"protocol"`
	Length      int64   `json:"length" validate:"gte=0"`
	Severity    string  `json:"severity"`
	AttackType  string  `json:"attackType"`
	Confidence  float64 `json:"confidence"`
	Status      string  `json:"status"`
}

// Alert is the canonical persisted detection record.
// Params: store-assigned id, type tag, event time, one details variant, and resolution flag.
// Returns: normalized alert for storage and read models.
type Alert struct {
	ID        string
	Type      AlertType     `validate:"required,oneof=fraud dos"`
	Timestamp time.Time     `validate:"required"`
	Fraud     *FraudDetails `validate:"required_if=Type fraud,excluded_if=Type dos"`
	DoS       *DoSDetails   `validate:"required_if=Type dos,excluded_if=Type fraud"`
	Resolved  bool
}

var alertValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that type, timestamp, and details variant agree.
// Params: alert produced by normalizer or decoded from storage.
// Returns: ValidationError describing the first violated invariant.
func (a Alert) Validate() error {
	if err := alertValidator.Struct(a); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return NewValidationError(strings.ToLower(first.Field()), fmt.Sprintf("failed %q rule", first.Tag()))
		}
		return NewValidationError("alert", err.Error())
	}
	if year := a.Timestamp.Year(); year < 1 || year > 9999 {
		return NewValidationError("timestamp", "timestamp year must be within 1..9999")
	}
	return nil
}

// alertWire is the JSON document shape shared by API responses and stores.
type alertWire struct {
	ID        string          `json:"id"`
	Type      AlertType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Details   json.RawMessage `json:"details"`
	Resolved  bool            `json:"resolved"`
}

// MarshalJSON renders the alert with the details variant selected by type.
func (a Alert) MarshalJSON() ([]byte, error) {
	var (
		details []byte
		err     error
	)
	switch a.Type {
	case AlertTypeFraud:
		details, err = json.Marshal(a.Fraud)
	case AlertTypeDoS:
		details, err = json.Marshal(a.DoS)
	default:
		details = []byte("null")
	}
	if err != nil {
		return nil, fmt.Errorf("encode alert details: %w", err)
	}
	return json.Marshal(alertWire{
		ID:        a.ID,
		Type:      a.Type,
		Timestamp: a.Timestamp.UTC(),
		Details:   details,
		Resolved:  a.Resolved,
	})
}

// UnmarshalJSON decodes details into the variant matching the type tag.
func (a *Alert) UnmarshalJSON(raw []byte) error {
	var wire alertWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return fmt.Errorf("decode alert: %w", err)
	}
	decoded := Alert{
		ID:        wire.ID,
		Type:      wire.Type,
		Timestamp: wire.Timestamp.UTC(),
		Resolved:  wire.Resolved,
	}
	switch wire.Type {
	case AlertTypeFraud:
		decoded.Fraud = &FraudDetails{}
		if err := json.Unmarshal(wire.Details, decoded.Fraud); err != nil {
			return fmt.Errorf("decode fraud details: %w", err)
		}
	case AlertTypeDoS:
		decoded.DoS = &DoSDetails{}
		if err := json.Unmarshal(wire.Details, decoded.DoS); err != nil {
			return fmt.Errorf("decode dos details: %w", err)
		}
	default:
		return fmt.Errorf("decode alert: unsupported type %q", wire.Type)
	}
	*a = decoded
	return nil
}

// DetailsJSON renders only the details variant, as stored in document columns.
func (a Alert) DetailsJSON() ([]byte, error) {
	switch a.Type {
	case AlertTypeFraud:
		return json.Marshal(a.Fraud)
	case AlertTypeDoS:
		return json.Marshal(a.DoS)
	default:
		return nil, fmt.Errorf("unsupported alert type %q", a.Type)
	}
}

// Less reports whether a sorts before b in retrieval order (newest first, then id desc).
func Less(a, b Alert) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}
