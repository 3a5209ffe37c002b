package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"seatbook/internal/domain"
	"seatbook/internal/logging"

	"github.com/rs/zerolog"
)

var kindStatus = map[string]int{
	domain.KindInvalidInput:      http.StatusBadRequest,
	domain.KindNotFound:          http.StatusNotFound,
	domain.KindInvalidState:      http.StatusUnprocessableEntity,
	domain.KindConflict:          http.StatusConflict,
	domain.KindInsufficientFunds: http.StatusPaymentRequired,
	domain.KindOutOfWindow:       http.StatusConflict,
	domain.KindAlreadyActive:     http.StatusConflict,
	domain.KindAlreadyCompleted:  http.StatusConflict,
	domain.KindNoActiveSession:   http.StatusConflict,
	domain.KindNoBooking:         http.StatusNotFound,
	domain.KindForbidden:         http.StatusForbidden,
	domain.KindInternal:          http.StatusInternalServerError,
}

type errorBody struct {
	Error     string   `json:"error"`
	Kind      string   `json:"kind,omitempty"`
	Dates     []string `json:"dates,omitempty"`
	Required  string   `json:"required,omitempty"`
	Available string   `json:"available,omitempty"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorBody{Error: message})
}

// writeServiceError maps a service error onto its HTTP status. Internal
// errors are logged in full and only described to the client outside
// production.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := errorBody{Error: err.Error(), Kind: kind}
	if kind == domain.KindInternal {
		logging.FromContext(r.Context(), h.logger).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		if h.production {
			body.Error = "internal error"
		}
		writeJSON(w, status, body)
		return
	}

	var conflict *domain.ConflictError
	var funds *domain.InsufficientFundsError
	var window *domain.OutOfWindowError
	switch {
	case errors.As(err, &conflict):
		for _, d := range conflict.Dates {
			body.Dates = append(body.Dates, d.Format("2006-01-02"))
		}
	case errors.As(err, &funds):
		body.Required = funds.Required.StringFixed(2)
		body.Available = funds.Available.StringFixed(2)
	case errors.As(err, &window):
		body.From = window.From.Format(timeLayout)
		body.To = window.To.Format(timeLayout)
	}

	logEvent(logging.FromContext(r.Context(), h.logger), status).Str("kind", kind).Err(err).Msg("request rejected")
	writeJSON(w, status, body)
}

func logEvent(l *zerolog.Logger, status int) *zerolog.Event {
	if status >= http.StatusInternalServerError {
		return l.Error()
	}
	return l.Debug()
}
