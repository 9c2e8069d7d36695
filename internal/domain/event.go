// Package domain defines the core types and interfaces shared across the
// veilcast ledger: prediction events, confidential submissions, decryption
// request correlations, and the collaborator interfaces (confidential
// arithmetic, archives, caches, signal bus) the ledger is wired with.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AssetClass identifies the underlying instrument a prediction concerns.
type AssetClass string

const (
	AssetClassBTC AssetClass = "btc"
	AssetClassETH AssetClass = "eth"
)

// Valid reports whether the asset class is one of the supported instruments.
func (a AssetClass) Valid() bool {
	return a == AssetClassBTC || a == AssetClassETH
}

// EventState is the derived lifecycle stage of a prediction event. States
// only ever move forward: Active -> Ended -> PriceSet -> Finalized.
type EventState string

const (
	EventStateActive    EventState = "active"
	EventStateEnded     EventState = "ended"
	EventStatePriceSet  EventState = "price_set"
	EventStateFinalized EventState = "finalized"
)

// PredictionEvent is a single prediction round. Participants submit
// confidential price forecasts while the event is active; after the event
// ends, the admin triggers decryption of the accumulated sum and only the
// average is ever revealed.
type PredictionEvent struct {
	ID         uint64
	Title      string
	AssetClass AssetClass

	// TargetTime is the moment the forecast concerns. EndTime is the
	// submission deadline; it always lies strictly after CreatedAt.
	TargetTime time.Time
	EndTime    time.Time
	CreatedAt  time.Time

	// Active and Finalized are the authoritative lifecycle booleans. Active
	// stays true past EndTime until EndEvent is explicitly called.
	Active    bool
	Finalized bool

	// Admin is the creator; sole authority for price-setting and
	// finalization. Ending is open to anyone.
	Admin common.Address

	// SubmissionCount is the divisor used when averaging.
	SubmissionCount uint32

	// ReferencePrice is the admin-supplied ground truth in cents. Zero means
	// unset; it is not required for finalization.
	ReferencePrice uint32

	// RevealedAverage is populated only once the event is finalized.
	RevealedAverage uint32

	// Sum is the running confidential accumulation of all submissions. It is
	// nil until the first submission arrives.
	Sum ConfidentialValue

	// PendingRequestID is the outstanding decryption request, if any. Empty
	// before finalization is triggered and after it completes.
	PendingRequestID string
}

// State derives the lifecycle stage from the event booleans.
func (e *PredictionEvent) State() EventState {
	switch {
	case e.Finalized:
		return EventStateFinalized
	case e.Active:
		return EventStateActive
	case e.ReferencePrice > 0:
		return EventStatePriceSet
	default:
		return EventStateEnded
	}
}

// Ended reports whether the event has been explicitly closed for submissions
// but not yet finalized.
func (e *PredictionEvent) Ended() bool {
	return !e.Active && !e.Finalized
}

// EventStats summarises the registry for the read-only query surface.
type EventStats struct {
	TotalEvents      uint64
	ActiveEvents     uint64
	FinalizedEvents  uint64
	TotalSubmissions uint64
}
