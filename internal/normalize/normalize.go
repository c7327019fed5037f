// Package normalize turns weakly typed detector payloads into canonical alerts.
package normalize

import (
	"fmt"
	"math"
	"strings"
	"time"

	"alertdesk/internal/clock"
	"alertdesk/internal/domain"
)

const (
	defaultUnknown  = "Unknown"
	defaultStatus   = "unknown"
	defaultCustomer = "Unknown Customer"
	statusBlocked   = "Blocked"
	statusDetected  = "Detected"
)

// Field alias sets, checked in order; first present key wins.
var (
	aliasType          = []string{"type", "alert_type", "alertType", "kind"}
	aliasTimestamp     = []string{"timestamp", "Time", "time", "ts", "event_time", "Timestamp"}
	aliasTransactionID = []string{"transactionId", "transaction_id", "trans_num", "TransactionID", "transactionID"}
	aliasAmount        = []string{"amount", "amt", "Amount"}
	aliasMerchant      = []string{"merchant", "Merchant", "merchant_name"}
	aliasConfidence    = []string{"confidence", "Confidence", "probability", "fraud_probability", "score"}
	aliasStatus        = []string{"status", "Status"}
	aliasCustomerName  = []string{"customerName", "customer_name", "CustomerName"}
	aliasFirstName     = []string{"first", "first_name", "firstName"}
	aliasLastName      = []string{"last", "last_name", "lastName"}
	aliasSource        = []string{"source", "Source", "src", "src_ip", "source_ip"}
	aliasDestination   = []string{"destination", "Destination", "dst", "dst_ip", "destination_ip"}
	aliasProtocol      = []string{"protocol", "Protocol", "proto"}
	aliasLength        = []string{"length", "Length", "packets", "packet_count", "count"}
	aliasSeverity      = []string{"severity", "Severity"}
	aliasAttackType    = []string{"attackType", "attack_type", "AttackType", "label", "prediction"}
	aliasBlocked       = []string{"blocked", "Blocked", "is_blocked"}
)

// Payload is an untyped detector or operator payload.
type Payload map[string]any

// GenericRequest is the body of a manually posted alert.
type GenericRequest struct {
	Type      string `json:"type"`
	Details   any    `json:"details"`
	Resolved  bool   `json:"resolved"`
	Timestamp any    `json:"timestamp"`
}

// Normalizer maps payloads into validated alerts.
// Params: clock supplying the ingestion instant for missing or unparsable timestamps.
// Returns: pure mapping functions without side effects.
type Normalizer struct {
	clock clock.Clock
}

// New creates a normalizer; nil clock uses the system clock.
func New(clk clock.Clock) *Normalizer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Normalizer{clock: clk}
}

// strictness selects which variant fields are hard-required.
type strictness bool

const (
	lenient strictness = false
	strict  strictness = true
)

// Generic normalizes a manually posted alert.
// Params: request with type, details object, optional resolved flag and timestamp.
// Returns: validated alert or ValidationError when type or details are missing/invalid.
func (n *Normalizer) Generic(request GenericRequest) (domain.Alert, error) {
	alertType, err := domain.ParseAlertType(request.Type)
	if err != nil {
		return domain.Alert{}, err
	}
	if request.Details == nil {
		return domain.Alert{}, domain.NewValidationError("details", "details is required")
	}
	details, ok := request.Details.(map[string]any)
	if !ok {
		return domain.Alert{}, domain.NewValidationError("details", "details must be an object")
	}

	rawTimestamp := request.Timestamp
	if rawTimestamp == nil {
		rawTimestamp, _ = lookup(details, aliasTimestamp)
	}
	alert, err := n.build(alertType, Payload(details), rawTimestamp, lenient)
	if err != nil {
		return domain.Alert{}, err
	}
	alert.Resolved = request.Resolved
	return finish(alert)
}

// DoSPacket normalizes a packet-capture style DoS report
// ({Source, Destination, Protocol, Length, Time}).
// Params: raw payload.
// Returns: validated dos alert or ValidationError without source/destination.
func (n *Normalizer) DoSPacket(payload Payload) (domain.Alert, error) {
	rawTimestamp, _ := lookup(payload, aliasTimestamp)
	alert, err := n.build(domain.AlertTypeDoS, payload, rawTimestamp, strict)
	if err != nil {
		return domain.Alert{}, err
	}
	return finish(alert)
}

// FraudDetection normalizes a fraud classifier result.
// Params: raw payload.
// Returns: validated fraud alert or ValidationError without transaction id or amount.
func (n *Normalizer) FraudDetection(payload Payload) (domain.Alert, error) {
	rawTimestamp, _ := lookup(payload, aliasTimestamp)
	alert, err := n.build(domain.AlertTypeFraud, payload, rawTimestamp, strict)
	if err != nil {
		return domain.Alert{}, err
	}
	return finish(alert)
}

// Detection normalizes a broker or upstream event whose type is explicit or inferred.
// Params: raw payload, optionally carrying type.
// Returns: validated alert with strict required fields.
func (n *Normalizer) Detection(payload Payload) (domain.Alert, error) {
	var (
		alertType domain.AlertType
		err       error
	)
	if raw, ok := lookup(payload, aliasType); ok {
		alertType, err = domain.ParseAlertType(fmt.Sprint(raw))
	} else {
		alertType, err = InferType(payload)
	}
	if err != nil {
		return domain.Alert{}, err
	}
	rawTimestamp, _ := lookup(payload, aliasTimestamp)
	alert, err := n.build(alertType, payload, rawTimestamp, strict)
	if err != nil {
		return domain.Alert{}, err
	}
	return finish(alert)
}

// InferType guesses the alert type from field markers.
// Params: raw payload without explicit type.
// Returns: fraud for transaction markers, dos for network markers, ValidationError when ambiguous or unknown.
func InferType(payload Payload) (domain.AlertType, error) {
	_, hasTx := lookup(payload, aliasTransactionID)
	_, hasAmount := lookup(payload, aliasAmount)
	_, hasSource := lookup(payload, aliasSource)
	_, hasDestination := lookup(payload, aliasDestination)
	_, hasProtocol := lookup(payload, aliasProtocol)

	fraud := hasTx || hasAmount
	dos := hasSource && (hasDestination || hasProtocol)
	switch {
	case fraud && !dos:
		return domain.AlertTypeFraud, nil
	case dos && !fraud:
		return domain.AlertTypeDoS, nil
	case fraud && dos:
		return "", domain.NewValidationError("type", "payload carries both fraud and dos markers")
	default:
		return "", domain.NewValidationError("type", "type is required and could not be inferred")
	}
}

func (n *Normalizer) build(alertType domain.AlertType, payload Payload, rawTimestamp any, mode strictness) (domain.Alert, error) {
	alert := domain.Alert{
		Type:      alertType,
		Timestamp: n.timestamp(rawTimestamp),
	}
	var err error
	switch alertType {
	case domain.AlertTypeFraud:
		alert.Fraud, err = fraudDetails(payload, mode)
	case domain.AlertTypeDoS:
		alert.DoS, err = dosDetails(payload, mode)
	default:
		err = domain.NewValidationError("type", fmt.Sprintf("unsupported alert type %q", alertType))
	}
	if err != nil {
		return domain.Alert{}, err
	}
	return alert, nil
}

func finish(alert domain.Alert) (domain.Alert, error) {
	if err := alert.Validate(); err != nil {
		return domain.Alert{}, err
	}
	return alert, nil
}

func fraudDetails(payload Payload, mode strictness) (*domain.FraudDetails, error) {
	transactionID, hasTx := stringField(payload, aliasTransactionID)
	if !hasTx && mode == strict {
		return nil, domain.NewValidationError("transactionId", "transaction id is required")
	}

	amount, hasAmount, err := numberField(payload, aliasAmount, "amount")
	if err != nil {
		return nil, err
	}
	if !hasAmount && mode == strict {
		return nil, domain.NewValidationError("amount", "amount is required")
	}
	confidence, _, err := numberField(payload, aliasConfidence, "confidence")
	if err != nil {
		return nil, err
	}

	return &domain.FraudDetails{
		TransactionID: transactionID,
		Amount:        amount,
		Merchant:      stringOr(payload, aliasMerchant, defaultUnknown),
		Confidence:    confidence,
		Status:        stringOr(payload, aliasStatus, defaultStatus),
		CustomerName:  customerName(payload),
	}, nil
}

// customerName joins first/last names, then falls back to an explicit name.
func customerName(payload Payload) string {
	first, _ := stringField(payload, aliasFirstName)
	last, _ := stringField(payload, aliasLastName)
	if joined := strings.TrimSpace(first + " " + last); joined != "" {
		return joined
	}
	return stringOr(payload, aliasCustomerName, defaultCustomer)
}

func dosDetails(payload Payload, mode strictness) (*domain.DoSDetails, error) {
	source, hasSource := stringField(payload, aliasSource)
	destination, hasDestination := stringField(payload, aliasDestination)
	if mode == strict {
		if !hasSource {
			return nil, domain.NewValidationError("source", "source is required")
		}
		if !hasDestination {
			return nil, domain.NewValidationError("destination", "destination is required")
		}
	}
	if !hasSource {
		source = defaultUnknown
	}
	if !hasDestination {
		destination = defaultUnknown
	}

	length, _, err := numberField(payload, aliasLength, "length")
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, domain.NewValidationError("length", "length must be >= 0")
	}
	if length != math.Trunc(length) {
		return nil, domain.NewValidationError("length", "length must be a whole number of bytes")
	}
	if length >= math.MaxInt64 {
		return nil, domain.NewValidationError("length", "length is out of range")
	}
	confidence, _, err := numberField(payload, aliasConfidence, "confidence")
	if err != nil {
		return nil, err
	}

	return &domain.DoSDetails{
		Source:      source,
		Destination: destination,
		Protocol:    stringOr(payload, aliasProtocol, defaultUnknown),
		Length:      int64(length),
		Severity:    stringOr(payload, aliasSeverity, defaultUnknown),
		AttackType:  stringOr(payload, aliasAttackType, defaultUnknown),
		Confidence:  confidence,
		Status:      dosStatus(payload),
	}, nil
}

// dosStatus prefers the blocked flag, then an explicit status, then Detected.
func dosStatus(payload Payload) string {
	if raw, ok := lookup(payload, aliasBlocked); ok {
		if blocked, ok := coerceBool(raw); ok {
			if blocked {
				return statusBlocked
			}
			return statusDetected
		}
	}
	return stringOr(payload, aliasStatus, statusDetected)
}

func (n *Normalizer) timestamp(raw any) time.Time {
	if parsed, ok := parseTimestamp(raw); ok {
		return parsed
	}
	return n.clock.Now().UTC()
}
