// Package feed streams committed blocks to the national oversight topic.
// Every block a state ledger appends is mirrored onto the feed so election
// observers can follow chain growth without polling each state's explorer.
// The feed is observational only: the ledger is the durability point and
// never waits on feed delivery.
package feed

import "context"

// Event mirrors one committed block.
type Event struct {
	State      string `json:"state"`
	BlockIndex int64  `json:"block_index"`
	EventType  string `json:"event_type"`
	VoterID    string `json:"voter_id"`
	BlockHash  string `json:"block_hash"`
	Timestamp  int64  `json:"timestamp"`
}

// Publisher delivers feed events to the oversight transport.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}
