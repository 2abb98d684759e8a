package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jjcapestany/space-trace/internal/flight"
	"github.com/jjcapestany/space-trace/internal/geo"
	"github.com/jjcapestany/space-trace/internal/httputil"
	"github.com/jjcapestany/space-trace/internal/tle"
	"github.com/jjcapestany/space-trace/internal/trajectory"
)

// Trajectory sample bounds. A path needs both endpoints; the upper bound
// caps the work one request can ask for.
const (
	minTrajectorySamples = 2
	maxTrajectorySamples = 10000
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

type tleMetadataResponse struct {
	Source       string    `json:"source"`
	FetchedAt    time.Time `json:"fetched_at"`
	AgeSeconds   int       `json:"age_seconds"`
	Stale        bool      `json:"stale"`
	Count        int       `json:"count"`
	EpochMin     time.Time `json:"epoch_min"`
	EpochMax     time.Time `json:"epoch_max"`
	FetchEnabled bool      `json:"fetch_enabled"`
}

func (h *handlers) metadataFor(ds *tle.TLEDataset) tleMetadataResponse {
	age := time.Since(ds.FetchedAt)
	return tleMetadataResponse{
		Source:       ds.Source,
		FetchedAt:    ds.FetchedAt.UTC(),
		AgeSeconds:   int(age.Seconds()),
		Stale:        h.deps.TLE.MaxAge > 0 && age > h.deps.TLE.MaxAge,
		Count:        len(ds.Satellites),
		EpochMin:     ds.EpochRange.Min.UTC(),
		EpochMax:     ds.EpochRange.Max.UTC(),
		FetchEnabled: h.deps.TLE.EnableFetch,
	}
}

// GET /api/v1/tle/metadata
func (h *handlers) tleMetadata(w http.ResponseWriter, r *http.Request) {
	ds := h.deps.TLEs.Get()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "no TLE dataset loaded")
		return
	}
	writeJSON(w, http.StatusOK, h.metadataFor(ds))
}

// POST /api/v1/tle/fetch
func (h *handlers) tleFetch(w http.ResponseWriter, r *http.Request) {
	if !h.deps.TLE.EnableFetch || h.deps.Loader == nil {
		writeError(w, http.StatusForbidden, tle.ErrFetchDisabled.Error())
		return
	}
	ds, err := h.deps.Loader.Refresh(r.Context())
	if err != nil {
		h.logger.Warn("manual TLE fetch failed", "error", err, "request_id", httputil.RequestID(r.Context()))
		writeError(w, http.StatusBadGateway, "TLE fetch failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.metadataFor(ds))
}

type propagateResponse struct {
	NORADID  int          `json:"norad_id"`
	Name     string       `json:"name"`
	Time     time.Time    `json:"time"`
	Position geo.Position `json:"position"`
}

// GET /api/v1/propagate/{norad_id}?at=RFC3339
func (h *handlers) propagate(w http.ResponseWriter, r *http.Request) {
	noradID, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || noradID < 1 {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}

	at := time.Now().UTC()
	if v := r.URL.Query().Get("at"); v != "" {
		at, err = time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at parameter, must be RFC 3339")
			return
		}
	}
	at = at.UTC()

	obj, pos, err := h.deps.Analysis.Propagate(noradID, at)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, propagateResponse{NORADID: obj.NORADID, Name: obj.Name, Time: at, Position: pos})
}

// POST /api/register-flight
func (h *handlers) registerFlight(w http.ResponseWriter, r *http.Request) {
	var p flight.Plan
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reg, err := h.deps.Flights.Create(r.Context(), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.logger.Info("flight registered", "flight_id", reg.ID, "flight_name", reg.Name)
	h.flightChanged(r, reg.ID)
	writeJSON(w, http.StatusCreated, reg)
}

// GET /api/register-flight
func (h *handlers) listFlights(w http.ResponseWriter, r *http.Request) {
	regs, err := h.deps.Flights.List(r.Context())
	if err != nil {
		h.logger.Error("list flights failed", "error", err)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

// GET /api/register-flight/{id}
func (h *handlers) getFlight(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reg, err := h.deps.Flights.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// PUT /api/register-flight/{id}
func (h *handlers) updateFlight(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var p flight.Plan
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reg, err := h.deps.Flights.Update(r.Context(), id, p)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.logger.Info("flight updated", "flight_id", id)
	h.flightChanged(r, id)
	writeJSON(w, http.StatusOK, reg)
}

// DELETE /api/register-flight/{id}
func (h *handlers) deleteFlight(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deps.Flights.Delete(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	h.logger.Info("flight deleted", "flight_id", id)
	h.flightChanged(r, id)
	w.WriteHeader(http.StatusNoContent)
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

// PUT /api/register-flight/{id}/visibility
func (h *handlers) setVisibility(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Visible == nil {
		writeError(w, http.StatusBadRequest, "visible is required")
		return
	}
	reg, err := h.deps.Flights.SetVisible(r.Context(), id, *req.Visible)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.flightChanged(r, id)
	writeJSON(w, http.StatusOK, reg)
}

// flightChanged rescans conflicts after a registry write. A failed rescan
// is logged; the write itself already succeeded.
func (h *handlers) flightChanged(r *http.Request, id int64) {
	if err := h.deps.Analysis.FlightChanged(r.Context(), id); err != nil {
		h.logger.Warn("conflict rescan failed",
			"flight_id", id,
			"error", err,
			"request_id", httputil.RequestID(r.Context()),
		)
	}
}

type trajectoryResponse struct {
	FlightID int64              `json:"flightId"`
	Samples  []trajectory.Point `json:"samples"`
}

// GET /api/v1/flights/{id}/trajectory?samples=N
func (h *handlers) trajectory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n := trajectory.DefaultSamples
	if v := r.URL.Query().Get("samples"); v != "" {
		n, err = strconv.Atoi(v)
		if err != nil || n < minTrajectorySamples || n > maxTrajectorySamples {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid samples parameter, must be %d-%d",
				minTrajectorySamples, maxTrajectorySamples))
			return
		}
	}
	samples, err := h.deps.Analysis.Trajectory(r.Context(), id, n)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trajectoryResponse{FlightID: id, Samples: samples})
}

// POST /api/v1/flights/{id}/safety
func (h *handlers) runSafety(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.deps.Analysis.Analyze(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /api/v1/flights/{id}/safety
func (h *handlers) latestSafety(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, ok := h.deps.Analysis.Report(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no safety report for this flight")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /api/v1/conflicts
func (h *handlers) conflicts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Analysis.Conflicts())
}
