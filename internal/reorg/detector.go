package reorg

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tokenwatch/transferscan/internal/logger"
	"github.com/tokenwatch/transferscan/internal/rpc"
	"github.com/tokenwatch/transferscan/pkg/chain"
	pkgreorg "github.com/tokenwatch/transferscan/pkg/reorg"
	pkgstore "github.com/tokenwatch/transferscan/pkg/store"
)

// Compile-time check to ensure Detector implements pkgreorg.Detector.
var _ pkgreorg.Detector = (*Detector)(nil)

// Detector reconciles stored block hashes against the live chain over a
// trailing window.
type Detector struct {
	store pkgstore.Store
	rpc   chain.Client
	log   *logger.Logger
}

// NewDetector creates a new reorg detector. It shares the chain client
// handle with the scanner.
func NewDetector(store pkgstore.Store, rpc chain.Client, log *logger.Logger) *Detector {
	return &Detector{
		store: store,
		rpc:   rpc,
		log:   log.WithComponent("reorg-detector"),
	}
}

// Detect compares the most recent `window` stored blocks against the chain,
// probing in ascending order so the returned block is the lowest divergence.
// A missing block on the chain (pruned past the stored height) counts as
// divergence at that height. A transient probe failure aborts the check with
// pkgreorg.ErrDetectionAborted and the scanner skips the reorg check this
// cycle; a fatal RPC failure propagates so the scanner halts.
func (d *Detector) Detect(ctx context.Context, window uint64) (*uint64, error) {
	stored, err := d.store.RecentBlockHashes(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored block hashes: %w", err)
	}

	if len(stored) == 0 {
		return nil, nil
	}

	// RecentBlockHashes returns newest first; probe oldest first.
	sort.Slice(stored, func(i, j int) bool {
		return stored[i].BlockNumber < stored[j].BlockNumber
	})

	checksRun.Inc()

	for _, block := range stored {
		header, err := d.rpc.BlockHeader(ctx, block.BlockNumber)
		if err != nil {
			if errors.Is(err, chain.ErrBlockNotFound) {
				// The chain shrank past this height: divergence.
				d.log.Warnf("stored block missing on chain: block=%d stored_hash=%s",
					block.BlockNumber, block.BlockHash.Hex())
				d.recordReorg(stored, block.BlockNumber)
				n := block.BlockNumber
				return &n, nil
			}

			// Only transient (or malformed-response) probe failures may
			// abort the check; a fatal condition must reach the scanner
			// and halt it.
			if rpc.Classify(err) == rpc.KindFatal {
				return nil, fmt.Errorf("failed to probe block %d: %w", block.BlockNumber, err)
			}

			d.log.Debugf("reorg check aborted: block=%d err=%v", block.BlockNumber, err)
			checksAborted.Inc()
			return nil, fmt.Errorf("%w: probing block %d: %v",
				pkgreorg.ErrDetectionAborted, block.BlockNumber, err)
		}

		if currentHash := header.Hash(); currentHash != block.BlockHash {
			d.log.Warnf("reorg detected: block=%d stored_hash=%s current_hash=%s",
				block.BlockNumber, block.BlockHash.Hex(), currentHash.Hex())
			d.recordReorg(stored, block.BlockNumber)
			n := block.BlockNumber
			return &n, nil
		}
	}

	return nil, nil
}

func (d *Detector) recordReorg(stored []pkgstore.BlockHash, reorgPoint uint64) {
	depth := stored[len(stored)-1].BlockNumber - reorgPoint + 1
	reorgDetectedLog(depth, reorgPoint)
}
