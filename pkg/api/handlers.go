package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/tokenwatch/transferscan/internal/logger"
	"github.com/tokenwatch/transferscan/pkg/store"
)

// Handler serves read-only queries over the store.
type Handler struct {
	querier store.Querier
	log     *logger.Logger
}

// NewHandler creates an API handler.
func NewHandler(querier store.Querier, log *logger.Logger) *Handler {
	return &Handler{
		querier: querier,
		log:     log,
	}
}

// Health reports liveness and the current indexing progress.
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	}

	if stats, err := h.querier.Stats(r.Context()); err == nil {
		resp.LastProcessedBlock = stats.LastProcessed
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetEvents returns transfer events matching the query parameters.
// @Summary Query transfer events
// @Tags Events
// @Produce json
// @Param address query string false "Match events where the address is sender or recipient"
// @Param from_block query integer false "Lowest block number, inclusive"
// @Param to_block query integer false "Highest block number, inclusive"
// @Param limit query integer false "Maximum number of events" default(100)
// @Success 200 {object} EventsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /events [get]
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseQueryFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.querier.QueryEvents(r.Context(), filter)
	if err != nil {
		h.log.Errorf("event query failed: %v", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}

	respondJSON(w, http.StatusOK, EventsResponse{
		Events: events,
		Count:  len(events),
	})
}

// GetStats returns aggregate statistics for the indexed data set.
// @Summary Aggregate statistics
// @Tags Stats
// @Produce json
// @Success 200 {object} store.Stats
// @Failure 500 {object} ErrorResponse
// @Router /stats [get]
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.querier.Stats(r.Context())
	if err != nil {
		h.log.Errorf("stats query failed: %v", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func parseQueryFilter(r *http.Request) (store.QueryFilter, error) {
	var filter store.QueryFilter
	q := r.URL.Query()

	if v := q.Get("address"); v != "" {
		if !ethcommon.IsHexAddress(v) {
			return filter, errInvalidParam("address", v)
		}
		addr := ethcommon.HexToAddress(v)
		filter.Address = &addr
	}

	if v := q.Get("from_block"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return filter, errInvalidParam("from_block", v)
		}
		filter.FromBlock = &n
	}

	if v := q.Get("to_block"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return filter, errInvalidParam("to_block", v)
		}
		filter.ToBlock = &n
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errInvalidParam("limit", v)
		}
		filter.Limit = n
	}

	return filter, nil
}

type paramError struct {
	name, value string
}

func (e paramError) Error() string {
	return "invalid " + e.name + ": " + e.value
}

func errInvalidParam(name, value string) error {
	return paramError{name: name, value: value}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, ErrorResponse{Error: msg, Code: status})
}
