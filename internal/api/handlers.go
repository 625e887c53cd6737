package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kitsudo/anime-dashboard/internal/analytics"
	"github.com/kitsudo/anime-dashboard/internal/domain"
)

// Handlers holds the analytics endpoints' dependencies.
type Handlers struct {
	svc *analytics.Service
	db  *sql.DB
	rdb *redis.Client
	log zerolog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(svc *analytics.Service, db *sql.DB, rdb *redis.Client, log zerolog.Logger) *Handlers {
	return &Handlers{
		svc: svc,
		db:  db,
		rdb: rdb,
		log: log.With().Str("component", "handlers").Logger(),
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("encoding response failed")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// Health reports component status. The service is healthy as long as the
// database answers; a missing cache only degrades it.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	components := map[string]string{"database": "up", "cache": "up"}

	if err := h.db.PingContext(ctx); err != nil {
		components["database"] = "down"
		status = "unhealthy"
	}
	if h.rdb == nil {
		components["cache"] = "disabled"
		if status == "healthy" {
			status = "degraded"
		}
	} else if err := h.rdb.Ping(ctx).Err(); err != nil {
		components["cache"] = "down"
		if status == "healthy" {
			status = "degraded"
		}
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// Overview serves GET /api/analytics/stats/overview.
func (h *Handlers) Overview(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Overview(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("overview query failed")
		h.writeError(w, http.StatusInternalServerError, "failed to compute overview stats")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// TopRated serves GET /api/analytics/anime/top-rated.
// Query params: type (snapshot category, default "top"), limit (default 25).
func (h *Handlers) TopRated(w http.ResponseWriter, r *http.Request) {
	snapshotType := domain.SnapshotType(r.URL.Query().Get("type"))
	if snapshotType == "" {
		snapshotType = domain.SnapshotTop
	}
	if !snapshotType.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown snapshot type")
		return
	}

	limit := 25
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
			return
		}
		limit = n
	}

	entries, err := h.svc.TopRated(r.Context(), snapshotType, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("top rated query failed")
		h.writeError(w, http.StatusInternalServerError, "failed to query top rated anime")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot_type": snapshotType,
		"count":         len(entries),
		"data":          entries,
	})
}

// GenreDistribution serves GET /api/analytics/anime/genre-distribution.
func (h *Handlers) GenreDistribution(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.GenreDistribution(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("genre distribution query failed")
		h.writeError(w, http.StatusInternalServerError, "failed to query genre distribution")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(counts),
		"data":  counts,
	})
}

// SeasonalTrends serves GET /api/analytics/trends/seasonal.
func (h *Handlers) SeasonalTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.svc.SeasonalTrends(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("seasonal trends query failed")
		h.writeError(w, http.StatusInternalServerError, "failed to query seasonal trends")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(trends),
		"data":  trends,
	})
}
