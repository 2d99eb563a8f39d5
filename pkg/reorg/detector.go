// Package reorg defines the reorg detection contract consumed by the
// scanner.
package reorg

import (
	"context"
	"errors"
)

// ErrDetectionAborted is returned when a transient RPC failure prevented the
// detector from reaching a verdict. The caller should skip the reorg check
// for this cycle and try again later.
var ErrDetectionAborted = errors.New("reorg detection aborted")

// Detector reconciles stored block hashes against the live chain.
type Detector interface {
	// Detect compares the most recent `window` stored blocks against the
	// chain. It returns the lowest block number whose stored hash no longer
	// matches, or nil when all stored blocks agree. A divergence is a
	// control-flow signal, not an error; Detect only errors when it cannot
	// reach a verdict.
	Detect(ctx context.Context, window uint64) (*uint64, error)
}
