package api

import (
	"time"

	"github.com/tokenwatch/transferscan/pkg/store"
)

// EventsResponse wraps a page of transfer events.
type EventsResponse struct {
	Events []*store.TransferEvent `json:"events"`
	Count  int                    `json:"count"`
}

// ErrorResponse is the body of any non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// HealthResponse reports service liveness and indexing progress.
type HealthResponse struct {
	Status             string    `json:"status"`
	Timestamp          time.Time `json:"timestamp"`
	LastProcessedBlock *uint64   `json:"last_processed_block,omitempty"`
}
