package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/cognicore/grounding/pkg/grounding/internalerr"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// apiError is an error destined to be an HTTP response
type apiError struct {
	status  int
	message string
}

func newError(status int, format string, args ...interface{}) *apiError {
	return &apiError{status: status, message: fmt.Sprintf(format, args...)}
}

func (e *apiError) Error() string { return e.message }

func (e *apiError) writeTo(w http.ResponseWriter) {
	writeJSON(w, e.status, map[string]string{"error": e.message})
}

// statusOf maps domain errors to HTTP status codes
func statusOf(err error) int {
	var ae *apiError
	switch {
	case errors.As(err, &ae):
		return ae.status
	case errors.Is(err, internalerr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, internalerr.ErrUnknownNamespace), errors.Is(err, internalerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, internalerr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, internalerr.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// write sends the first non-nil value: errors become an error response,
// anything else is encoded as JSON.
func write(w http.ResponseWriter, r *http.Request, vals ...interface{}) {
	for _, val := range vals {
		if val == nil {
			continue
		}
		if err, ok := val.(error); ok {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, val)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Warn("Request failed")
	}
	var ae *apiError
	if !errors.As(err, &ae) {
		ae = &apiError{status: status, message: err.Error()}
	}
	ae.writeTo(w)
}

func writeJSON(w http.ResponseWriter, status int, val interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(val); err != nil {
		log.WithError(err).Debug("Unable to write response")
	}
}

// decode reads a JSON request body into dst. An empty body leaves dst
// untouched.
func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return newError(http.StatusBadRequest, "invalid request body: %v", err)
	}
	return nil
}
