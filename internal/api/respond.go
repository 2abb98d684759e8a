package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/jjcapestany/space-trace/internal/analysis"
	"github.com/jjcapestany/space-trace/internal/flight"
	"github.com/jjcapestany/space-trace/internal/orbit"
	"github.com/jjcapestany/space-trace/internal/registry"
	"github.com/jjcapestany/space-trace/internal/trajectory"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps domain errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	var verr *registry.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid flight registration",
			"fields": verr.Fields,
		})
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, analysis.ErrUnknownObject):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, trajectory.ErrSampleCount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, flight.ErrInvalidGeometry), errors.Is(err, orbit.ErrPropagation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, analysis.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, analysis.ErrNoDataset):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "analysis timed out")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a single JSON value from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid flight id %q", r.PathValue("id"))
	}
	return id, nil
}
