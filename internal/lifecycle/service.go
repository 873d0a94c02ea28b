// Package lifecycle drives the voter state machine: register, transfer, vote.
// It is the only writer to the ledgers and voter stores; everything else in
// the system reads. Global uniqueness decisions are delegated to the
// cross-state registry, durability to the per-state ledgers.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	ledgermodels "voterchain/internal/ledger/models"
	"voterchain/internal/platform/metrics"
	"voterchain/internal/registry"
	"voterchain/internal/state"
	"voterchain/internal/voter/models"
	dErrors "voterchain/pkg/domain-errors"
	"voterchain/pkg/platform/sentinel"
)

// Service orchestrates voter lifecycle transitions across the hosted state
// backends.
type Service struct {
	cluster   *state.Cluster
	registry  registry.Registry
	dedup     DuplicateDetector
	biometric BiometricMatcher
	intents   IntentStore
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithIntentStore(store IntentStore) Option {
	return func(s *Service) { s.intents = store }
}

func New(cluster *state.Cluster, reg registry.Registry, dedup DuplicateDetector, biometric BiometricMatcher, opts ...Option) *Service {
	s := &Service{
		cluster:   cluster,
		registry:  reg,
		dedup:     dedup,
		biometric: biometric,
		intents:   NewMemoryIntentStore(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:    otel.Tracer("voterchain/lifecycle"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput carries everything needed to enroll a new voter.
type RegisterInput struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	DateOfBirth  string `json:"date_of_birth"`
	Gender       string `json:"gender"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	Pincode      string `json:"pincode"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	Email        string `json:"email,omitempty"`
	PhotoRef     string `json:"photo_ref"`
	State        string `json:"state"`
}

func (in RegisterInput) validate() error {
	switch {
	case in.FirstName == "":
		return dErrors.New(dErrors.CodeValidation, "first_name is required")
	case in.LastName == "":
		return dErrors.New(dErrors.CodeValidation, "last_name is required")
	case in.DateOfBirth == "":
		return dErrors.New(dErrors.CodeValidation, "date_of_birth is required")
	case in.AddressLine1 == "":
		return dErrors.New(dErrors.CodeValidation, "address_line1 is required")
	case in.City == "":
		return dErrors.New(dErrors.CodeValidation, "city is required")
	case in.Pincode == "":
		return dErrors.New(dErrors.CodeValidation, "pincode is required")
	case in.PhotoRef == "":
		return dErrors.New(dErrors.CodeValidation, "photo_ref is required")
	case in.State == "":
		return dErrors.New(dErrors.CodeValidation, "state is required")
	}
	return nil
}

// RegisterResult reports the committed registration. TransactionID is the
// hash of the REGISTRATION block.
type RegisterResult struct {
	VoterID       string        `json:"voter_id"`
	Status        models.Status `json:"status"`
	TransactionID string        `json:"blockchain_transaction_id"`
}

// Register enrolls a voter in the target state. The registry claim is the
// uniqueness gate; any later failure releases the claim so the whole
// operation is all-or-nothing.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Register",
		trace.WithAttributes(attribute.String("voter.state", in.State)))
	defer span.End()

	if err := in.validate(); err != nil {
		return RegisterResult{}, err
	}
	backend, err := s.cluster.Backend(in.State)
	if err != nil {
		return RegisterResult{}, dErrors.Newf(dErrors.CodeNotFound, "unknown state %q", in.State)
	}

	match, err := s.dedup.CheckDuplicate(ctx, IdentityProbe{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		DateOfBirth: in.DateOfBirth,
		PhotoRef:    in.PhotoRef,
	})
	if err != nil {
		return RegisterResult{}, dErrors.Wrap(err, dErrors.CodeServiceFailed, "duplicate detection unavailable")
	}
	if match {
		return RegisterResult{}, dErrors.New(dErrors.CodeConflict, "identity matches an existing voter")
	}

	voterID := uuid.NewString()
	span.SetAttributes(attribute.String("voter.id", voterID))

	if err := s.registry.ClaimRegistration(ctx, voterID, in.State); err != nil {
		if errors.Is(err, registry.ErrAlreadyRegistered) {
			return RegisterResult{}, dErrors.New(dErrors.CodeConflict, "voter already registered")
		}
		return RegisterResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "registry claim failed")
	}

	now := time.Now()
	record := &models.VoterRecord{
		VoterID:      voterID,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		DateOfBirth:  in.DateOfBirth,
		Gender:       in.Gender,
		AddressLine1: in.AddressLine1,
		AddressLine2: in.AddressLine2,
		City:         in.City,
		Pincode:      in.Pincode,
		PhoneNumber:  in.PhoneNumber,
		Email:        in.Email,
		PhotoRef:     in.PhotoRef,
		CurrentState: in.State,
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The block is appended before the record is stored: if the append
	// fails, nothing is visible anywhere and the claim is released.
	block, err := backend.Ledger.Append(ctx, ledgermodels.EventRegistration, voterID, record.Snapshot())
	if err != nil {
		s.rollbackClaim(ctx, voterID, in.State)
		return RegisterResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "registration block append failed")
	}
	record.LastBlockIndex = block.Index

	if err := backend.Voters.Put(ctx, record); err != nil {
		s.rollbackClaim(ctx, voterID, in.State)
		s.logger.ErrorContext(ctx, "voter record write failed after block append",
			"voter_id", voterID, "state", in.State, "block_index", block.Index, "error", err)
		return RegisterResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "voter record write failed")
	}

	if s.metrics != nil {
		s.metrics.RegistrationsTotal.WithLabelValues(in.State).Inc()
	}
	s.logger.InfoContext(ctx, "voter registered",
		"voter_id", voterID, "state", in.State, "block_index", block.Index)

	return RegisterResult{VoterID: voterID, Status: record.Status, TransactionID: block.Hash}, nil
}

func (s *Service) rollbackClaim(ctx context.Context, voterID, stateName string) {
	if err := s.registry.ReleaseRegistration(ctx, voterID, stateName); err != nil {
		s.logger.ErrorContext(ctx, "registry claim rollback failed",
			"voter_id", voterID, "state", stateName, "error", err)
	}
}

// VoteInput identifies the voter and the polling context.
type VoteInput struct {
	VoterID      string `json:"voter_id"`
	State        string `json:"state"`
	BoothID      string `json:"booth_id"`
	LivePhotoRef string `json:"live_photo_ref"`
}

// VoteResult reports the committed vote. TransactionID is the hash of the
// VOTE_CAST block.
type VoteResult struct {
	TransactionID string `json:"blockchain_transaction_id"`
}

// Vote casts the voter's single nationwide vote. LockVote is the
// linearization point and happens strictly before any mutation; a lock that
// was taken is never released, even if a later step fails.
func (s *Service) Vote(ctx context.Context, in VoteInput) (VoteResult, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Vote",
		trace.WithAttributes(
			attribute.String("voter.id", in.VoterID),
			attribute.String("voter.state", in.State)))
	defer span.End()

	if in.VoterID == "" {
		return VoteResult{}, dErrors.New(dErrors.CodeValidation, "voter_id is required")
	}
	if in.State == "" {
		return VoteResult{}, dErrors.New(dErrors.CodeValidation, "state is required")
	}
	backend, err := s.cluster.Backend(in.State)
	if err != nil {
		return VoteResult{}, dErrors.Newf(dErrors.CodeNotFound, "unknown state %q", in.State)
	}

	record, err := backend.Voters.Get(ctx, in.VoterID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// No local record does not mean no voter: they may be registered,
		// or have already voted, in another state. The registry knows who
		// owns them, so the nationwide answer comes from there.
		record, _, err = s.findRecord(ctx, in.VoterID)
		if err != nil {
			return VoteResult{}, err
		}
	case err != nil:
		return VoteResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "voter record read failed")
	}
	if reason, ok := votingBarrier(record, in.State); !ok {
		return VoteResult{}, dErrors.New(dErrors.CodeConflict, reason)
	}

	match, err := s.biometric.Match(ctx, record.PhotoRef, in.LivePhotoRef)
	if err != nil {
		return VoteResult{}, dErrors.Wrap(err, dErrors.CodeServiceFailed, "biometric verification unavailable")
	}
	if !match {
		return VoteResult{}, dErrors.New(dErrors.CodeUnauthorized, "biometric verification failed")
	}

	if err := s.registry.LockVote(ctx, in.VoterID); err != nil {
		if errors.Is(err, registry.ErrAlreadyVoted) {
			if s.metrics != nil {
				s.metrics.VoteConflictsTotal.Inc()
			}
			return VoteResult{}, dErrors.New(dErrors.CodeConflict, "voter has already voted")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return VoteResult{}, dErrors.New(dErrors.CodeNotFound, "voter not found in registry")
		}
		return VoteResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "vote lock failed")
	}

	// Past this point the vote lock is consumed. Failures below leave the
	// lock in place for manual review rather than risk a second vote.
	updated, err := backend.Voters.Mutate(ctx, in.VoterID, func(r *models.VoterRecord) error {
		r.HasVoted = true
		r.Status = models.StatusVoted
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "vote record mutation failed after lock",
			"voter_id", in.VoterID, "state", in.State, "error", err)
		return VoteResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "vote could not be recorded")
	}

	block, err := backend.Ledger.Append(ctx, ledgermodels.EventVoteCast, in.VoterID, updated.Snapshot())
	if err != nil {
		s.logger.ErrorContext(ctx, "vote block append failed after lock",
			"voter_id", in.VoterID, "state", in.State, "error", err)
		return VoteResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "vote could not be committed")
	}

	if _, err := backend.Voters.Mutate(ctx, in.VoterID, func(r *models.VoterRecord) error {
		r.LastBlockIndex = block.Index
		return nil
	}); err != nil {
		// The vote itself is durable; only the index pointer is stale.
		s.logger.WarnContext(ctx, "last block index update failed",
			"voter_id", in.VoterID, "block_index", block.Index, "error", err)
	}

	if s.metrics != nil {
		s.metrics.VotesCastTotal.WithLabelValues(in.State).Inc()
	}
	s.logger.InfoContext(ctx, "vote cast",
		"voter_id", in.VoterID, "state", in.State, "booth_id", in.BoothID, "block_index", block.Index)

	return VoteResult{TransactionID: block.Hash}, nil
}

func votingBarrier(record *models.VoterRecord, pollState string) (string, bool) {
	switch {
	case record.HasVoted || record.Status == models.StatusVoted:
		return "voter has already voted", false
	case record.Status == models.StatusTransferred:
		return "voter has transferred out of this state", false
	case record.Status != models.StatusActive:
		return fmt.Sprintf("voter status is %s", record.Status), false
	case record.CurrentState != pollState:
		return "voter is not registered in this state", false
	}
	return "", true
}

// EligibilityResult is the pure-read answer to "may this voter vote here".
type EligibilityResult struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// Eligibility reports whether the voter could currently vote in their owning
// state. It never mutates anything.
func (s *Service) Eligibility(ctx context.Context, voterID string) (EligibilityResult, error) {
	record, _, err := s.findRecord(ctx, voterID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			return EligibilityResult{Eligible: false, Reason: "voter not registered"}, nil
		}
		return EligibilityResult{}, err
	}
	if reason, ok := votingBarrier(record, record.CurrentState); !ok {
		return EligibilityResult{Eligible: false, Reason: reason}, nil
	}
	return EligibilityResult{Eligible: true}, nil
}

// Status returns the voter's current record, located via the registry.
func (s *Service) Status(ctx context.Context, voterID string) (*models.VoterRecord, error) {
	record, _, err := s.findRecord(ctx, voterID)
	return record, err
}

// findRecord resolves the owning state through the registry, then reads the
// record from that state's store.
func (s *Service) findRecord(ctx context.Context, voterID string) (*models.VoterRecord, *state.Backend, error) {
	if voterID == "" {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "voter_id is required")
	}
	owner, err := s.registry.Owner(ctx, voterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "voter not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "registry lookup failed")
	}
	backend, err := s.cluster.Backend(owner)
	if err != nil {
		return nil, nil, dErrors.Newf(dErrors.CodeNotFound, "owning state %q not hosted here", owner)
	}
	record, err := backend.Voters.Get(ctx, voterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "voter not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "voter record read failed")
	}
	return record, backend, nil
}
