package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/tokenwatch/transferscan/internal/logger"
	"github.com/tokenwatch/transferscan/internal/rpc"
	"github.com/tokenwatch/transferscan/pkg/chain"
	"github.com/tokenwatch/transferscan/pkg/config"
	pkgreorg "github.com/tokenwatch/transferscan/pkg/reorg"
	pkgstore "github.com/tokenwatch/transferscan/pkg/store"
)

// State is the scanner's position in its control-loop state machine.
type State string

const (
	StateIdle          State = "idle"
	StateFetching      State = "fetching"
	StateCommitting    State = "committing"
	StateBackoff       State = "backoff"
	StateReorgRecovery State = "reorg-recovery"
	StateHalted        State = "halted"
)

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// Scanner drives forward progress of the index in bounded batches. It is
// the single writer of the store; query surfaces read concurrently.
type Scanner struct {
	cfg      config.ScannerConfig
	token    common.Address
	chain    chain.Client
	store    pkgstore.Store
	detector pkgreorg.Detector
	log      *logger.Logger

	state          State
	nextBlock      uint64
	lastReorgCheck time.Time
	backoff        time.Duration
}

// New creates a scanner. The chain client handle is shared with the reorg
// detector.
func New(
	cfg config.ScannerConfig,
	token common.Address,
	chainClient chain.Client,
	st pkgstore.Store,
	detector pkgreorg.Detector,
	log *logger.Logger,
) *Scanner {
	return &Scanner{
		cfg:      cfg,
		token:    token,
		chain:    chainClient,
		store:    st,
		detector: detector,
		log:      log.WithComponent("scanner"),
		state:    StateIdle,
	}
}

// State returns the scanner's current state.
func (s *Scanner) State() State {
	return s.state
}

// NextBlock returns the lowest block not yet committed.
func (s *Scanner) NextBlock() uint64 {
	return s.nextBlock
}

// Run initializes the cursor and drives ticks until the context is
// cancelled or a fatal error halts the scanner. Cancellation aborts the
// in-flight tick's RPC and store calls; commits are atomic, so shutdown never
// leaves a partial batch behind.
func (s *Scanner) Run(ctx context.Context, startBlock *uint64) error {
	if err := s.initCursor(ctx, startBlock); err != nil {
		return err
	}

	s.log.Infof("starting scanner: next_block=%d batch_size=%d finality_blocks=%d",
		s.nextBlock, s.cfg.BatchSize, s.cfg.FinalityBlocks)

	for {
		if ctx.Err() != nil {
			s.log.Info("scanner stopped")
			return nil
		}

		advanced, err := s.Tick(ctx)
		switch {
		case err == nil:
			s.backoff = 0
			if !advanced {
				if !s.sleep(ctx, s.cfg.PollInterval.Duration) {
					s.log.Info("scanner stopped")
					return nil
				}
			}

		case errors.Is(err, context.Canceled) || ctx.Err() != nil:
			s.log.Info("scanner stopped")
			return nil

		case rpc.Classify(err) == rpc.KindFatal:
			s.setState(StateHalted)
			s.log.Errorf("scanner halted: %v", err)
			return fmt.Errorf("scanner halted: %w", err)

		default:
			s.setState(StateBackoff)
			wait := s.nextBackoff()
			s.log.Warnf("tick failed, backing off: wait=%s err=%v", wait, err)
			if !s.sleep(ctx, wait) {
				s.log.Info("scanner stopped")
				return nil
			}
			s.setState(StateIdle)
		}
	}
}

// initCursor picks the first block to scan: an explicit start block wins,
// then resume from the store, then a bounded backfill from the head.
func (s *Scanner) initCursor(ctx context.Context, startBlock *uint64) error {
	if startBlock != nil {
		s.nextBlock = *startBlock
		s.log.Infof("starting from explicit block %d", s.nextBlock)
		return nil
	}

	last, ok, err := s.store.LastProcessedBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last processed block: %w", err)
	}
	if ok {
		s.nextBlock = last + 1
		s.log.Infof("resuming from block %d", s.nextBlock)
		return nil
	}

	head, err := s.chain.HeadBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get head block: %w", err)
	}

	if head > s.cfg.Backfill {
		s.nextBlock = head - s.cfg.Backfill
	}
	s.log.Infof("empty store, backfilling from block %d (head %d)", s.nextBlock, head)
	return nil
}

// Tick runs one scanner iteration. It returns true when the cursor advanced
// (or a reorg rewound it) and false when the scanner has caught up with the
// safe head.
func (s *Scanner) Tick(ctx context.Context) (bool, error) {
	if time.Since(s.lastReorgCheck) >= s.cfg.ReorgInterval.Duration {
		if rewound, err := s.checkReorg(ctx); err != nil {
			return false, err
		} else if rewound {
			return true, nil
		}
	}

	head, err := s.chain.HeadBlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get head block: %w", err)
	}

	if head < s.cfg.FinalityBlocks {
		return false, nil
	}
	safeHead := head - s.cfg.FinalityBlocks
	headBlock.Set(float64(head))

	if s.nextBlock > safeHead {
		s.setState(StateIdle)
		return false, nil
	}

	batchEnd := min(s.nextBlock+s.cfg.BatchSize-1, safeHead)

	s.setState(StateFetching)

	logs, err := s.chain.FilterLogs(ctx, s.nextBlock, batchEnd, s.token, TransferTopic)
	if err != nil {
		return false, fmt.Errorf("failed to fetch logs [%d, %d]: %w", s.nextBlock, batchEnd, err)
	}

	// Headers for every block in the window: processed_blocks stays
	// contiguous, and events resolve their hash and timestamp locally.
	blockNums := make([]uint64, 0, batchEnd-s.nextBlock+1)
	for n := s.nextBlock; n <= batchEnd; n++ {
		blockNums = append(blockNums, n)
	}

	headers, err := s.chain.BatchBlockHeaders(ctx, blockNums)
	if err != nil {
		return false, fmt.Errorf("failed to fetch headers [%d, %d]: %w", s.nextBlock, batchEnd, err)
	}

	events, blocks, err := s.buildBatch(logs, headers)
	if err != nil {
		return false, err
	}

	s.setState(StateCommitting)

	if err := s.store.CommitBatch(ctx, events, blocks); err != nil {
		return false, fmt.Errorf("failed to commit batch [%d, %d]: %w", s.nextBlock, batchEnd, err)
	}

	s.log.Infof("indexed blocks %d to %d: events=%d", s.nextBlock, batchEnd, len(events))
	tickLog(uint64(len(blocks)), uint64(len(events)), batchEnd)

	s.nextBlock = batchEnd + 1
	s.setState(StateIdle)

	return true, nil
}

// buildBatch decodes fetched logs against their block headers and prepares
// the processed-block rows for the full window. A log that does not decode
// as a Transfer is counted and skipped; a log whose block hash disagrees
// with the fetched header means the chain moved between the two RPC calls,
// and the whole tick is retried.
func (s *Scanner) buildBatch(
	logs []ethtypes.Log,
	headers []*ethtypes.Header,
) ([]*pkgstore.TransferEvent, []*pkgstore.ProcessedBlock, error) {
	headerByNum := make(map[uint64]*ethtypes.Header, len(headers))
	blocks := make([]*pkgstore.ProcessedBlock, 0, len(headers))
	now := time.Now().UTC()

	for _, h := range headers {
		n := h.Number.Uint64()
		headerByNum[n] = h
		blocks = append(blocks, &pkgstore.ProcessedBlock{
			BlockNumber: n,
			BlockHash:   h.Hash(),
			Timestamp:   time.Unix(int64(h.Time), 0).UTC(),
			ProcessedAt: now,
		})
	}

	events := make([]*pkgstore.TransferEvent, 0, len(logs))

	for i := range logs {
		lg := &logs[i]

		header, ok := headerByNum[lg.BlockNumber]
		if !ok {
			return nil, nil, fmt.Errorf("log %s/%d references block %d outside the batch window",
				lg.TxHash.Hex(), lg.Index, lg.BlockNumber)
		}

		if lg.BlockHash != header.Hash() {
			return nil, nil, fmt.Errorf("block %d hash changed between log and header fetch: log=%s header=%s",
				lg.BlockNumber, lg.BlockHash.Hex(), header.Hash().Hex())
		}

		event, err := decodeTransfer(lg, header)
		if err != nil {
			s.log.Warnf("skipping malformed transfer log: tx=%s log_index=%d err=%v",
				lg.TxHash.Hex(), lg.Index, err)
			malformedLogs.Inc()
			continue
		}

		events = append(events, event)
	}

	return events, blocks, nil
}

// checkReorg runs the detector and, on divergence, rolls the store back and
// rewinds the cursor. An aborted detection only skips this cycle.
func (s *Scanner) checkReorg(ctx context.Context) (bool, error) {
	point, err := s.detector.Detect(ctx, s.cfg.ReorgWindow)
	if err != nil {
		if errors.Is(err, pkgreorg.ErrDetectionAborted) {
			s.log.Debugf("skipping reorg check this cycle: %v", err)
			s.lastReorgCheck = time.Now()
			return false, nil
		}
		return false, err
	}

	s.lastReorgCheck = time.Now()

	if point == nil {
		return false, nil
	}

	s.setState(StateReorgRecovery)
	s.log.Warnf("recovering from reorg: rolling back to block %d", *point)

	if err := s.store.RollbackFrom(ctx, *point); err != nil {
		return false, fmt.Errorf("failed to roll back from block %d: %w", *point, err)
	}

	s.nextBlock = *point
	s.setState(StateIdle)

	return true, nil
}

// nextBackoff doubles the wait up to the cap, with +/-25% jitter.
func (s *Scanner) nextBackoff() time.Duration {
	if s.backoff == 0 {
		s.backoff = backoffBase
	} else {
		s.backoff *= 2
		if s.backoff > backoffMax {
			s.backoff = backoffMax
		}
	}

	jitterRange := float64(s.backoff) * 0.25
	jitter := (rand.Float64() * 2 * jitterRange) - jitterRange

	return s.backoff + time.Duration(jitter)
}

// sleep waits for d or until the context is cancelled. Returns false on
// cancellation.
func (s *Scanner) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scanner) setState(state State) {
	s.state = state
	stateGauge.WithLabelValues(string(state)).Set(1)
	for _, other := range []State{
		StateIdle, StateFetching, StateCommitting,
		StateBackoff, StateReorgRecovery, StateHalted,
	} {
		if other != state {
			stateGauge.WithLabelValues(string(other)).Set(0)
		}
	}
}
