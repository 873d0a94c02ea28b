package models

import (
	"maps"
	"time"

	ledgermodels "voterchain/internal/ledger/models"
)

// Status is the voter lifecycle state within one state's record store.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusActive      Status = "ACTIVE"
	StatusTransferred Status = "TRANSFERRED"
	StatusVoted       Status = "VOTED"
)

// VoterRecord is the mutable operational record for one voter. Identity
// fields are immutable after registration; records are never deleted, only
// status-transitioned. The canonical digest of its mutable fields is what
// the ledger commits to and the integrity auditor recomputes.
type VoterRecord struct {
	VoterID string `json:"voter_id"`

	// Identity, fixed at registration.
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`

	// Address and contact, mutated on transfer.
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	Pincode      string `json:"pincode"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	Email        string `json:"email,omitempty"`

	// PhotoRef is an opaque reference into the excluded photo storage.
	PhotoRef string `json:"photo_ref,omitempty"`

	CurrentState   string `json:"current_state"`
	Status         Status `json:"status"`
	HasVoted       bool   `json:"has_voted"`
	LastBlockIndex int64  `json:"last_block_index"`

	// Metadata carries out-of-band annotations, e.g. the tamper-simulation
	// marker. Never part of the canonical digest.
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot extracts the canonical mutable-field subset the ledger digests.
func (r *VoterRecord) Snapshot() ledgermodels.PayloadSnapshot {
	return ledgermodels.PayloadSnapshot{
		AddressLine1: r.AddressLine1,
		AddressLine2: r.AddressLine2,
		City:         r.City,
		Pincode:      r.Pincode,
		Status:       string(r.Status),
		HasVoted:     r.HasVoted,
	}
}

// Clone returns a deep copy so callers can hand records across goroutines
// without sharing the metadata map.
func (r *VoterRecord) Clone() *VoterRecord {
	out := *r
	if r.Metadata != nil {
		out.Metadata = maps.Clone(r.Metadata)
	}
	return &out
}
