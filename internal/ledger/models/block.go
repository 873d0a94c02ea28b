// Package models defines the block structure and the deterministic hashing
// rules used for chain linkage and content digests. The serialization here is
// a wire contract: changing field order or encoding breaks verification of
// every historical block, so both digest functions marshal fixed-order
// structs and nothing else.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// EventType labels the voter lifecycle event a block commits.
type EventType string

const (
	EventRegistration EventType = "REGISTRATION"
	EventTransferOut  EventType = "TRANSFER_OUT"
	EventTransferIn   EventType = "TRANSFER_IN"
	EventVoteCast     EventType = "VOTE_CAST"
)

// Valid reports whether the event type is one of the four lifecycle events.
func (e EventType) Valid() bool {
	switch e {
	case EventRegistration, EventTransferOut, EventTransferIn, EventVoteCast:
		return true
	}
	return false
}

// ZeroHash is the prev-hash of each chain's first block.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Block is one immutable, hash-linked record of a single voter lifecycle
// event. Hash is never trusted as stored; verification always recomputes it
// from the other fields.
type Block struct {
	Index         int64     `json:"index"`
	Timestamp     int64     `json:"timestamp"`
	EventType     EventType `json:"event_type"`
	VoterID       string    `json:"voter_id"`
	OwnerState    string    `json:"owner_state"`
	PayloadDigest string    `json:"payload_digest"`
	PrevHash      string    `json:"prev_hash"`
	Hash          string    `json:"block_hash"`
}

// PayloadSnapshot is the canonical ordered subset of mutable voter-record
// fields committed by a block. The field list and order are part of the wire
// contract shared with the integrity auditor.
type PayloadSnapshot struct {
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	Pincode      string `json:"pincode"`
	Status       string `json:"status"`
	HasVoted     bool   `json:"has_voted"`
}

// blockHeader is the exact byte layout hashed for chain linkage. It excludes
// the hash itself.
type blockHeader struct {
	Index         int64     `json:"index"`
	Timestamp     int64     `json:"timestamp"`
	EventType     EventType `json:"event_type"`
	VoterID       string    `json:"voter_id"`
	OwnerState    string    `json:"owner_state"`
	PayloadDigest string    `json:"payload_digest"`
	PrevHash      string    `json:"prev_hash"`
}

// ComputeBlockHash returns the SHA-256 digest of the block's header fields.
// Pure and deterministic: identical input yields identical output across
// calls, processes, and languages implementing the same layout.
func ComputeBlockHash(b Block) string {
	header := blockHeader{
		Index:         b.Index,
		Timestamp:     b.Timestamp,
		EventType:     b.EventType,
		VoterID:       b.VoterID,
		OwnerState:    b.OwnerState,
		PayloadDigest: b.PayloadDigest,
		PrevHash:      b.PrevHash,
	}
	return sha256Hex(header)
}

// ComputePayloadDigest returns the SHA-256 digest of the canonical snapshot.
func ComputePayloadDigest(s PayloadSnapshot) string {
	return sha256Hex(s)
}

func sha256Hex(v any) string {
	// Marshaling a fixed struct never fails and emits fields in declaration
	// order, which is what makes the digest deterministic.
	data, _ := json.Marshal(v)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
