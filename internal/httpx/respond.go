package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/shopcore/fulfillment/internal/fault"
)

type errBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	msg := err.Error()
	switch kind {
	case fault.KindUnavailable, fault.KindUnknown:
		// opaque fault: never leak infrastructure detail
		msg = "service unavailable"
	}
	writeJSON(w, statusFor(kind), errBody{Error: msg, Kind: kind.String()})
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindForbidden:
		return http.StatusForbidden
	case fault.KindInsufficientStock, fault.KindInvalidTransition, fault.KindConflict:
		return http.StatusConflict
	case fault.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
