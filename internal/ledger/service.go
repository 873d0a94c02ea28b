// Package ledger maintains one per-state append-only chain of blocks. Index
// assignment is a strict total order within a state; different states' chains
// are fully independent.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"voterchain/internal/ledger/models"
	"voterchain/internal/platform/metrics"
	"voterchain/pkg/platform/feed"
	"voterchain/pkg/platform/sentinel"
)

// ErrChainWrite marks an append that failed at the storage layer. Appends
// never fail on logical grounds; logical validation happens in the lifecycle
// orchestrator before the ledger is touched.
var ErrChainWrite = errors.New("chain write failed")

// Store persists the chain. Implementations must keep blocks ordered by
// index and return sentinel.ErrNotFound for empty-chain and unknown-voter
// lookups.
type Store interface {
	AppendBlock(ctx context.Context, b models.Block) error
	Blocks(ctx context.Context, offset, limit int) ([]models.Block, error)
	Count(ctx context.Context) (int64, error)
	All(ctx context.Context) ([]models.Block, error)
	Tail(ctx context.Context) (models.Block, error)
	LatestFor(ctx context.Context, voterID string) (models.Block, error)
}

// FaultKind distinguishes the two chain-integrity failure modes.
type FaultKind string

const (
	// FaultLinkage means a block's prev_hash does not match its
	// predecessor's recomputed hash, or the index sequence is broken.
	FaultLinkage FaultKind = "linkage"
	// FaultHash means a block's stored hash does not recompute from its own
	// fields.
	FaultHash FaultKind = "hash"
)

// Fault reports one failed verification at a chain position.
type Fault struct {
	Index  int64     `json:"index"`
	Kind   FaultKind `json:"kind"`
	Detail string    `json:"detail"`
}

// Service owns block creation and linkage for one state's chain.
type Service struct {
	state   string
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	events  chan<- feed.Event

	// mu serializes appends so index assignment is a strict total order.
	mu      sync.Mutex
	tail    models.Block
	count   int64
	hasTail bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEventSink mirrors every committed block onto the oversight feed
// channel. Sends never block; a full buffer drops the event and counts it.
func WithEventSink(events chan<- feed.Event) Option {
	return func(s *Service) { s.events = events }
}

// New loads the current chain tail and returns a ledger for one state.
func New(ctx context.Context, state string, store Store, opts ...Option) (*Service, error) {
	if state == "" {
		return nil, fmt.Errorf("state is required")
	}
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}

	s := &Service{
		state:  state,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	count, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chain length: %w", err)
	}
	s.count = count

	tail, err := store.Tail(ctx)
	switch {
	case err == nil:
		s.tail = tail
		s.hasTail = true
	case errors.Is(err, sentinel.ErrNotFound):
		// empty chain
	default:
		return nil, fmt.Errorf("load chain tail: %w", err)
	}
	return s, nil
}

// State returns the state this chain belongs to.
func (s *Service) State() string { return s.state }

// Append commits one lifecycle event. It computes the payload digest, links
// the new block to the current tail (zero hash for an empty chain), assigns
// the next index, and persists. The append is the durability point: once a
// block is stored it is never rolled back.
func (s *Service) Append(ctx context.Context, eventType models.EventType, voterID string, snapshot models.PayloadSnapshot) (models.Block, error) {
	if !eventType.Valid() {
		return models.Block{}, fmt.Errorf("invalid event type %q", eventType)
	}
	if voterID == "" {
		return models.Block{}, fmt.Errorf("voter id is required")
	}

	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	prevHash := models.ZeroHash
	if s.hasTail {
		prevHash = s.tail.Hash
	}

	block := models.Block{
		Index:         s.count,
		Timestamp:     time.Now().Unix(),
		EventType:     eventType,
		VoterID:       voterID,
		OwnerState:    s.state,
		PayloadDigest: models.ComputePayloadDigest(snapshot),
		PrevHash:      prevHash,
	}
	block.Hash = models.ComputeBlockHash(block)

	if err := s.store.AppendBlock(ctx, block); err != nil {
		s.logger.ErrorContext(ctx, "block append failed",
			"state", s.state,
			"index", block.Index,
			"event_type", eventType,
			"error", err,
		)
		return models.Block{}, fmt.Errorf("%w: %v", ErrChainWrite, err)
	}

	s.tail = block
	s.count++
	s.hasTail = true

	if s.metrics != nil {
		s.metrics.BlocksAppendedTotal.WithLabelValues(s.state, string(eventType)).Inc()
		s.metrics.AppendDuration.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}
	s.emit(block)

	return block, nil
}

func (s *Service) emit(block models.Block) {
	if s.events == nil {
		return
	}
	event := feed.Event{
		State:      s.state,
		BlockIndex: block.Index,
		EventType:  string(block.EventType),
		VoterID:    block.VoterID,
		BlockHash:  block.Hash,
		Timestamp:  block.Timestamp,
	}
	select {
	case s.events <- event:
	default:
		if s.metrics != nil {
			s.metrics.FeedDroppedTotal.Inc()
		}
	}
}

// Chain returns one ascending page of blocks plus the total chain length.
func (s *Service) Chain(ctx context.Context, offset, limit int) ([]models.Block, int64, error) {
	if offset < 0 || limit <= 0 {
		return nil, 0, fmt.Errorf("offset must be >= 0 and limit > 0")
	}
	blocks, err := s.store.Blocks(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("read chain page: %w", err)
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("read chain length: %w", err)
	}
	return blocks, total, nil
}

// VerifyChain walks the whole chain once and reports every position where
// linkage or hash recomputation fails. Operational tooling only; not on the
// hot path.
func (s *Service) VerifyChain(ctx context.Context) ([]Fault, error) {
	blocks, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}

	var faults []Fault
	prevHash := models.ZeroHash
	for i, b := range blocks {
		if b.Index != int64(i) {
			faults = append(faults, Fault{Index: b.Index, Kind: FaultLinkage, Detail: fmt.Sprintf("expected index %d", i)})
		}
		if b.PrevHash != prevHash {
			faults = append(faults, Fault{Index: b.Index, Kind: FaultLinkage, Detail: "prev_hash does not match predecessor"})
		}
		recomputed := models.ComputeBlockHash(b)
		if recomputed != b.Hash {
			faults = append(faults, Fault{Index: b.Index, Kind: FaultHash, Detail: "stored hash does not recompute"})
		}
		// Linkage for the next block is judged against the recomputed hash,
		// not the stored one, so a single corrupted block produces both a
		// hash fault here and a linkage fault downstream.
		prevHash = recomputed
	}
	return faults, nil
}

// LatestBlockFor returns the most recent block committed for a voter in this
// state's chain, or sentinel.ErrNotFound.
func (s *Service) LatestBlockFor(ctx context.Context, voterID string) (models.Block, error) {
	block, err := s.store.LatestFor(ctx, voterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Block{}, err
		}
		return models.Block{}, fmt.Errorf("latest block for %s: %w", voterID, err)
	}
	return block, nil
}
