package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	ledgermodels "voterchain/internal/ledger/models"
	"voterchain/internal/registry"
	"voterchain/internal/voter/models"
	dErrors "voterchain/pkg/domain-errors"
	"voterchain/pkg/platform/sentinel"
)

// IntentStage records how far a transfer has progressed past its commit
// point. Everything up to and including the ownership flip is covered by
// rollback; everything after is driven forward to completion.
type IntentStage string

const (
	StageOwnershipFlipped IntentStage = "OWNERSHIP_FLIPPED"
	StageOutAppended      IntentStage = "OUT_APPENDED"
	StageInAppended       IntentStage = "IN_APPENDED"
	StageRecordMoved      IntentStage = "RECORD_MOVED"
)

// TransferIntent is the durable marker for an in-flight transfer. It carries
// everything needed to finish the handoff without the original request.
type TransferIntent struct {
	ID        string      `json:"id"`
	VoterID   string      `json:"voter_id"`
	FromState string      `json:"from_state"`
	ToState   string      `json:"to_state"`
	Stage     IntentStage `json:"stage"`

	NewAddressLine1 string `json:"new_address_line1"`
	NewAddressLine2 string `json:"new_address_line2,omitempty"`
	NewCity         string `json:"new_city"`
	NewPincode      string `json:"new_pincode"`

	CreatedAt time.Time `json:"created_at"`
}

// IntentStore persists transfer intents. Save overwrites by intent ID.
type IntentStore interface {
	Save(ctx context.Context, intent TransferIntent) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]TransferIntent, error)
}

// MemoryIntentStore is the single-process intent store.
type MemoryIntentStore struct {
	mu      sync.Mutex
	intents map[string]TransferIntent
}

func NewMemoryIntentStore() *MemoryIntentStore {
	return &MemoryIntentStore{intents: make(map[string]TransferIntent)}
}

func (m *MemoryIntentStore) Save(_ context.Context, intent TransferIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[intent.ID] = intent
	return nil
}

func (m *MemoryIntentStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.intents, id)
	return nil
}

func (m *MemoryIntentStore) List(_ context.Context) ([]TransferIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TransferIntent, 0, len(m.intents))
	for _, intent := range m.intents {
		out = append(out, intent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// TransferInput moves a voter's registration to another state.
type TransferInput struct {
	VoterID      string `json:"voter_id"`
	FromState    string `json:"from_state"`
	ToState      string `json:"to_state"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	Pincode      string `json:"pincode"`
}

func (in TransferInput) validate() error {
	switch {
	case in.VoterID == "":
		return dErrors.New(dErrors.CodeValidation, "voter_id is required")
	case in.FromState == "":
		return dErrors.New(dErrors.CodeValidation, "from_state is required")
	case in.ToState == "":
		return dErrors.New(dErrors.CodeValidation, "to_state is required")
	case in.FromState == in.ToState:
		return dErrors.New(dErrors.CodeValidation, "from_state and to_state must differ")
	case in.AddressLine1 == "":
		return dErrors.New(dErrors.CodeValidation, "address_line1 is required")
	case in.City == "":
		return dErrors.New(dErrors.CodeValidation, "city is required")
	case in.Pincode == "":
		return dErrors.New(dErrors.CodeValidation, "pincode is required")
	}
	return nil
}

// TransferResult reports the committed handoff. TransactionID is the hash of
// the destination chain's TRANSFER_IN block.
type TransferResult struct {
	TransactionID string `json:"blockchain_transaction_id"`
}

// Transfer moves a voter between states. The registry ownership flip is the
// commit point: before it, any failure aborts cleanly; after it, a durable
// intent guarantees the handoff is driven to completion, at startup if
// necessary. The source record turns TRANSFERRED before the destination copy
// becomes ACTIVE, so the voter is never live in two stores at once.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Transfer",
		trace.WithAttributes(
			attribute.String("voter.id", in.VoterID),
			attribute.String("transfer.from", in.FromState),
			attribute.String("transfer.to", in.ToState)))
	defer span.End()

	if err := in.validate(); err != nil {
		return TransferResult{}, err
	}
	source, err := s.cluster.Backend(in.FromState)
	if err != nil {
		return TransferResult{}, dErrors.Newf(dErrors.CodeNotFound, "unknown state %q", in.FromState)
	}
	if _, err := s.cluster.Backend(in.ToState); err != nil {
		return TransferResult{}, dErrors.Newf(dErrors.CodeNotFound, "unknown state %q", in.ToState)
	}

	record, err := source.Voters.Get(ctx, in.VoterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return TransferResult{}, dErrors.New(dErrors.CodeNotFound, "voter not found")
		}
		return TransferResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "voter record read failed")
	}
	switch {
	case record.HasVoted || record.Status == models.StatusVoted:
		return TransferResult{}, dErrors.New(dErrors.CodeConflict, "voter has already voted")
	case record.Status != models.StatusActive:
		return TransferResult{}, dErrors.Newf(dErrors.CodeConflict, "voter status is %s", record.Status)
	case record.CurrentState != in.FromState:
		return TransferResult{}, dErrors.New(dErrors.CodeConflict, "voter is not registered in the source state")
	}

	// Commit point. After this succeeds the destination owns the voter.
	if err := s.registry.TransferOwnership(ctx, in.VoterID, in.FromState, in.ToState); err != nil {
		switch {
		case errors.Is(err, registry.ErrNotOwner):
			return TransferResult{}, dErrors.New(dErrors.CodeConflict, "source state does not own this voter")
		case errors.Is(err, registry.ErrAlreadyTransferring):
			return TransferResult{}, dErrors.New(dErrors.CodeConflict, "a transfer for this voter is already in flight")
		case errors.Is(err, sentinel.ErrNotFound):
			return TransferResult{}, dErrors.New(dErrors.CodeNotFound, "voter not found in registry")
		}
		return TransferResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "ownership transfer failed")
	}

	intent := TransferIntent{
		ID:              uuid.NewString(),
		VoterID:         in.VoterID,
		FromState:       in.FromState,
		ToState:         in.ToState,
		Stage:           StageOwnershipFlipped,
		NewAddressLine1: in.AddressLine1,
		NewAddressLine2: in.AddressLine2,
		NewCity:         in.City,
		NewPincode:      in.Pincode,
		CreatedAt:       time.Now(),
	}
	if err := s.intents.Save(ctx, intent); err != nil {
		// No durable marker yet, so roll the flip back instead of risking a
		// half-done transfer nobody will ever finish.
		s.abortFlip(ctx, in.VoterID, in.FromState, in.ToState)
		return TransferResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "transfer intent write failed")
	}

	result, err := s.driveTransfer(ctx, intent)
	if err != nil {
		s.logger.ErrorContext(ctx, "transfer incomplete, intent retained for resume",
			"voter_id", in.VoterID, "from", in.FromState, "to", in.ToState,
			"stage", intent.Stage, "error", err)
		return TransferResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "transfer incomplete; it will be resumed")
	}
	return result, nil
}

func (s *Service) abortFlip(ctx context.Context, voterID, from, to string) {
	if err := s.registry.AbortTransfer(ctx, voterID, from, to); err != nil {
		s.logger.ErrorContext(ctx, "ownership rollback failed",
			"voter_id", voterID, "from", from, "to", to, "error", err)
	}
}

// driveTransfer runs the post-commit stages. The intent's stage is advanced
// after each durable step so a crashed transfer resumes where it stopped.
func (s *Service) driveTransfer(ctx context.Context, intent TransferIntent) (TransferResult, error) {
	source, err := s.cluster.Backend(intent.FromState)
	if err != nil {
		return TransferResult{}, fmt.Errorf("source state %q not hosted: %w", intent.FromState, err)
	}
	dest, err := s.cluster.Backend(intent.ToState)
	if err != nil {
		return TransferResult{}, fmt.Errorf("destination state %q not hosted: %w", intent.ToState, err)
	}

	record, err := source.Voters.Get(ctx, intent.VoterID)
	if err != nil {
		return TransferResult{}, fmt.Errorf("read source record: %w", err)
	}

	moved := record.Clone()
	moved.AddressLine1 = intent.NewAddressLine1
	moved.AddressLine2 = intent.NewAddressLine2
	moved.City = intent.NewCity
	moved.Pincode = intent.NewPincode
	moved.CurrentState = intent.ToState
	moved.Status = models.StatusActive
	snapshot := moved.Snapshot()

	if intent.Stage == StageOwnershipFlipped {
		if _, err := source.Ledger.Append(ctx, ledgermodels.EventTransferOut, intent.VoterID, snapshot); err != nil {
			return TransferResult{}, fmt.Errorf("append TRANSFER_OUT: %w", err)
		}
		intent.Stage = StageOutAppended
		if err := s.intents.Save(ctx, intent); err != nil {
			return TransferResult{}, fmt.Errorf("advance intent: %w", err)
		}
	}

	var inBlock ledgermodels.Block
	if intent.Stage == StageOutAppended {
		inBlock, err = dest.Ledger.Append(ctx, ledgermodels.EventTransferIn, intent.VoterID, snapshot)
		if err != nil {
			return TransferResult{}, fmt.Errorf("append TRANSFER_IN: %w", err)
		}
		intent.Stage = StageInAppended
		if err := s.intents.Save(ctx, intent); err != nil {
			return TransferResult{}, fmt.Errorf("advance intent: %w", err)
		}
	} else if intent.Stage == StageInAppended || intent.Stage == StageRecordMoved {
		// Resumed past the destination append; recover its block.
		inBlock, err = dest.Ledger.LatestBlockFor(ctx, intent.VoterID)
		if err != nil {
			return TransferResult{}, fmt.Errorf("recover TRANSFER_IN block: %w", err)
		}
	}

	if intent.Stage == StageInAppended {
		// Source goes dark before the destination copy goes live.
		if _, err := source.Voters.Mutate(ctx, intent.VoterID, func(r *models.VoterRecord) error {
			r.Status = models.StatusTransferred
			return nil
		}); err != nil {
			return TransferResult{}, fmt.Errorf("retire source record: %w", err)
		}
		moved.LastBlockIndex = inBlock.Index
		moved.UpdatedAt = time.Now()
		if err := dest.Voters.Put(ctx, moved); err != nil {
			return TransferResult{}, fmt.Errorf("write destination record: %w", err)
		}
		intent.Stage = StageRecordMoved
		if err := s.intents.Save(ctx, intent); err != nil {
			return TransferResult{}, fmt.Errorf("advance intent: %w", err)
		}
	}

	if err := s.registry.CompleteTransfer(ctx, intent.VoterID); err != nil {
		return TransferResult{}, fmt.Errorf("complete transfer: %w", err)
	}
	if err := s.intents.Delete(ctx, intent.ID); err != nil {
		s.logger.WarnContext(ctx, "transfer intent cleanup failed",
			"intent_id", intent.ID, "voter_id", intent.VoterID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.TransfersTotal.WithLabelValues(intent.ToState).Inc()
	}
	s.logger.InfoContext(ctx, "voter transferred",
		"voter_id", intent.VoterID, "from", intent.FromState, "to", intent.ToState,
		"block_index", inBlock.Index)

	return TransferResult{TransactionID: inBlock.Hash}, nil
}

// ResumeTransfers replays every retained transfer intent to completion. Run
// once at startup, before traffic is admitted.
func (s *Service) ResumeTransfers(ctx context.Context) error {
	intents, err := s.intents.List(ctx)
	if err != nil {
		return fmt.Errorf("list transfer intents: %w", err)
	}
	for _, intent := range intents {
		if _, err := s.driveTransfer(ctx, intent); err != nil {
			s.logger.ErrorContext(ctx, "transfer resume failed",
				"intent_id", intent.ID, "voter_id", intent.VoterID,
				"stage", intent.Stage, "error", err)
			continue
		}
		s.logger.InfoContext(ctx, "transfer resumed to completion",
			"intent_id", intent.ID, "voter_id", intent.VoterID)
	}
	return nil
}
