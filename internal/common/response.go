package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the object under "error" in every failure response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

var internalErrorBody = []byte(`{"error":{"code":"INTERNAL","message":"internal error"}}` + "\n")

// JSON writes v as the response body. The value is marshalled before the
// status goes out, so one that cannot be encoded turns into a 500 instead of a
// 2xx with a truncated body.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status, body = http.StatusInternalServerError, internalErrorBody
	} else {
		body = append(body, '\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// JSONError writes {"error":{"code","message","details"}}.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, errorEnvelope{Error: ErrorBody{Code: code, Message: message, Details: details}})
}

// HeaderPartialWrite marks a PARTIAL_FAILURE response. The status is 5xx but
// rows were committed, so Idem keeps the response for replay and the audit
// recorder records it.
const HeaderPartialWrite = "Partial-Write"

// WritePartialFailure writes 502 PARTIAL_FAILURE for a multi-step write that
// stopped after entityID was stored. step names the step that failed; extra
// is merged into details.
func WritePartialFailure(w http.ResponseWriter, message, entityID, step string, extra map[string]any) {
	details := map[string]any{"id": entityID, "step": step}
	for k, v := range extra {
		details[k] = v
	}
	w.Header().Set(HeaderPartialWrite, "true")
	JSONError(w, http.StatusBadGateway, "PARTIAL_FAILURE", message, details)
}

// IsPartialWrite reports whether h belongs to a PARTIAL_FAILURE response.
func IsPartialWrite(h http.Header) bool {
	return h.Get(HeaderPartialWrite) == "true"
}
