// Package stream implements Server-Sent Events (SSE) for the conflict feed.
// Clients connect via GET /api/v1/stream/conflicts and receive the current
// conflict snapshot followed by a new one each time it changes.
//
// SSE message format:
//
//	data: {"type":"conflicts","version":3,"computed_at":"...","conflicts":[...]}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","dataset_epoch":"...","tle_age_seconds":1800,"conflict_version":3}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Reconnecting clients pass ?since=<version> to skip a snapshot they already hold.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/jjcapestany/space-trace/internal/analysis"
	"github.com/jjcapestany/space-trace/internal/conflict"
	"github.com/jjcapestany/space-trace/internal/httputil"
	"github.com/jjcapestany/space-trace/internal/metrics"
	"github.com/jjcapestany/space-trace/internal/tle"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	PollInterval       time.Duration // Conflict version check interval (default: 2s).
	TrustProxy         bool          // Take the client IP from proxy headers.
}

// ConflictSource supplies conflict snapshots.
type ConflictSource interface {
	Conflicts() analysis.ConflictSnapshot
}

// Handler manages SSE streaming connections.
type Handler struct {
	source  ConflictSource
	store   *tle.Store
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(source ConflictSource, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	return &Handler{
		source:  source,
		store:   store,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger,
	}
}

// HandleConflicts serves the SSE conflict stream.
// GET /api/v1/stream/conflicts?since=3
func (h *Handler) HandleConflicts(w http.ResponseWriter, r *http.Request) {
	var (
		since    uint64
		hasSince bool
	)
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid since parameter, must be a conflict version"})
			return
		}
		since, hasSince = n, true
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
			"active_total", h.limiter.active(),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"since", since,
	)

	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Long-lived stream: clear the server's WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}
	defer func() {
		h.logger.Debug("stream totals",
			"remote_ip", ip,
			"messages_sent", c.messagesSent,
			"bytes_sent", c.bytesSent,
		)
	}()

	// Jittered retry (3-7s) spreads reconnects after a restart.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	snap := h.source.Conflicts()
	if err := c.sendJSON(h.metadata(snap.Version)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	last := snap.Version
	if !hasSince || since != snap.Version {
		if err := c.sendJSON(buildConflictsMessage(snap)); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return
		}
	}

	poll := time.NewTicker(h.config.PollInterval)
	defer poll.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-poll.C:
			snap := h.source.Conflicts()
			if snap.Version == last {
				continue
			}
			if err := c.sendJSON(buildConflictsMessage(snap)); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			last = snap.Version
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func (h *Handler) metadata(version uint64) metadataMessage {
	meta := metadataMessage{Type: "metadata", ConflictVersion: version, TLEAge: -1}
	if ds := h.store.Get(); ds != nil {
		meta.DatasetEpoch = ds.FetchedAt.UTC().Format(time.RFC3339)
		meta.TLEAge = int(time.Since(ds.FetchedAt).Seconds())
	}
	return meta
}

func buildConflictsMessage(snap analysis.ConflictSnapshot) conflictsMessage {
	conflicts := snap.Conflicts
	if conflicts == nil {
		conflicts = []conflict.Conflict{}
	}
	msg := conflictsMessage{
		Type:      "conflicts",
		Version:   snap.Version,
		Conflicts: conflicts,
	}
	if !snap.ComputedAt.IsZero() {
		msg.ComputedAt = snap.ComputedAt.UTC().Format(time.RFC3339)
	}
	return msg
}

// SSE message payload types.

type metadataMessage struct {
	Type            string `json:"type"`
	DatasetEpoch    string `json:"dataset_epoch,omitempty"`
	TLEAge          int    `json:"tle_age_seconds"`
	ConflictVersion uint64 `json:"conflict_version"`
}

type conflictsMessage struct {
	Type       string              `json:"type"`
	Version    uint64              `json:"version"`
	ComputedAt string              `json:"computed_at,omitempty"`
	Conflicts  []conflict.Conflict `json:"conflicts"`
}
