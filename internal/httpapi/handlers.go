package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"alertdesk/internal/domain"
	"alertdesk/internal/normalize"
	"alertdesk/internal/store"
)

func (a *API) health(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ok"))
}

// ready reports lifecycle readiness and store reachability.
func (a *API) ready(writer http.ResponseWriter, request *http.Request) {
	if !a.deps.Ready() {
		writer.WriteHeader(http.StatusServiceUnavailable)
		_, _ = writer.Write([]byte("not-ready"))
		return
	}
	if err := a.deps.Alerts.Ping(request.Context()); err != nil {
		a.deps.Logger.Warn("readiness store ping failed", "err", err)
		writer.WriteHeader(http.StatusServiceUnavailable)
		_, _ = writer.Write([]byte("store-unavailable"))
		return
	}
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ready"))
}

// listAlerts serves GET /alerts?type=&limit=.
func (a *API) listAlerts(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	var alertType domain.AlertType
	if raw := query.Get("type"); raw != "" {
		parsed, err := domain.ParseAlertType(raw)
		if err != nil {
			writeError(writer, http.StatusBadRequest, err.Error())
			return
		}
		alertType = parsed
	}
	limit, err := a.parseLimit(query.Get("limit"))
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	a.respondList(writer, request, store.Filter{Type: alertType, Limit: limit})
}

// typedFeed serves the protected per-type listings.
func (a *API) typedFeed(alertType domain.AlertType) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		limit, err := a.parseLimit(request.URL.Query().Get("limit"))
		if err != nil {
			writeError(writer, http.StatusBadRequest, err.Error())
			return
		}
		a.respondList(writer, request, store.Filter{Type: alertType, Limit: limit})
	}
}

func (a *API) respondList(writer http.ResponseWriter, request *http.Request, filter store.Filter) {
	alerts, err := a.deps.Alerts.List(request.Context(), filter)
	if err != nil {
		a.deps.Logger.Error("list alerts failed", "type", filter.Type, "err", err)
		writeError(writer, http.StatusInternalServerError, "failed to fetch alerts")
		return
	}
	writeJSON(writer, http.StatusOK, alerts)
}

// parseLimit applies the default for empty input and clamps to the maximum.
func (a *API) parseLimit(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return a.cfg.ListLimitDefault, nil
	}
	limit, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if a.cfg.ListLimitMax > 0 && limit > a.cfg.ListLimitMax {
		limit = a.cfg.ListLimitMax
	}
	return limit, nil
}

// createAlert serves POST /alerts with {type, details, resolved?, timestamp?}.
func (a *API) createAlert(writer http.ResponseWriter, request *http.Request) {
	var body normalize.GenericRequest
	if err := a.decodeBody(writer, request, &body); err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := a.deps.Ingestor.IngestGeneric(request.Context(), body)
	a.respondCreated(writer, alert, err)
}

// createDoSAlert serves POST /dos-alert with packet-capture fields.
func (a *API) createDoSAlert(writer http.ResponseWriter, request *http.Request) {
	var payload normalize.Payload
	if err := a.decodeBody(writer, request, &payload); err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := a.deps.Ingestor.IngestDoSPacket(request.Context(), payload)
	a.respondCreated(writer, alert, err)
}

// createFraudAlert serves POST /fraud-alert with classifier output.
func (a *API) createFraudAlert(writer http.ResponseWriter, request *http.Request) {
	var payload normalize.Payload
	if err := a.decodeBody(writer, request, &payload); err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := a.deps.Ingestor.IngestFraudDetection(request.Context(), payload)
	a.respondCreated(writer, alert, err)
}

func (a *API) respondCreated(writer http.ResponseWriter, alert domain.Alert, err error) {
	switch {
	case err == nil:
		writeJSON(writer, http.StatusCreated, alert)
	case domain.IsValidation(err):
		writeError(writer, http.StatusBadRequest, err.Error())
	default:
		a.deps.Logger.Error("create alert failed", "err", err)
		writeError(writer, http.StatusInternalServerError, "failed to create alert")
	}
}

func (a *API) dashboard(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, http.StatusOK, a.deps.Dashboard.BuildDashboard(request.Context()))
}

// decodeBody reads a bounded JSON object body; numbers keep their literal form.
func (a *API) decodeBody(writer http.ResponseWriter, request *http.Request, target any) error {
	request.Body = http.MaxBytesReader(writer, request.Body, a.cfg.MaxBodyBytes)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("request body is required")
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(body)
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writeJSON(writer, status, map[string]string{"error": message})
}
