package server

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorKind is the closed set of error kinds in the error envelope.
type ErrorKind string

const (
	KindBadRequest          ErrorKind = "BadRequest"
	KindUnauthenticated     ErrorKind = "Unauthenticated"
	KindForbidden           ErrorKind = "Forbidden"
	KindNotFound            ErrorKind = "NotFound"
	KindConflict            ErrorKind = "Conflict"
	KindUnprocessableEntity ErrorKind = "UnprocessableEntity"
	KindPayloadTooLarge     ErrorKind = "PayloadTooLarge"
	KindInternal            ErrorKind = "Internal"
	KindAmbiguousRevision   ErrorKind = "AmbiguousRevision"
)

var kindStatus = map[ErrorKind]int{
	KindBadRequest:          http.StatusBadRequest,
	KindUnauthenticated:     http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindNotFound:            http.StatusNotFound,
	KindConflict:            http.StatusConflict,
	KindUnprocessableEntity: http.StatusUnprocessableEntity,
	KindPayloadTooLarge:     http.StatusRequestEntityTooLarge,
	KindInternal:            http.StatusInternalServerError,
	KindAmbiguousRevision:   http.StatusUnprocessableEntity,
}

// ErrorBody is the error half of the response envelope. A response
// carries either data or an error, never both.
type ErrorBody struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// JSON writes a success envelope with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dataEnvelope{Data: data})
}

// JSONError writes an error envelope; the HTTP status follows from
// the kind.
func JSONError(w http.ResponseWriter, kind ErrorKind, message string) {
	JSONErrorDetails(w, kind, message, nil)
}

// JSONErrorDetails writes an error envelope with a details object.
func JSONErrorDetails(w http.ResponseWriter, kind ErrorKind, message string, details map[string]any) {
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{Error: ErrorBody{
		Kind:    kind,
		Message: message,
		Details: details,
	}})
}

// decodeJSON decodes a request body into v, surfacing oversized bodies
// as PayloadTooLarge and anything else malformed as BadRequest. The
// bool reports whether decoding succeeded; an error response has
// already been written when it is false.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			JSONError(w, KindPayloadTooLarge, "request body too large")
			return false
		}
		JSONError(w, KindBadRequest, "malformed JSON body")
		return false
	}
	return true
}
