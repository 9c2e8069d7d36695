package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Submission records a participant's confidential forecast for one event.
// Submissions are immutable once made: at most one exists per
// (event, participant) pair, and it is never updated or deleted.
type Submission struct {
	EventID     uint64
	Participant common.Address
	Value       ConfidentialValue
	SubmittedAt time.Time
}

// SubmissionReceipt is the archival view of a submission: who and when, but
// never the value. Ciphertext handles stay inside the process.
type SubmissionReceipt struct {
	EventID     uint64
	Participant common.Address
	SubmittedAt time.Time
}

// BatchItem is one entry of an all-or-nothing batch submission.
type BatchItem struct {
	EventID uint64
	Value   ConfidentialValue
}

// MaxBatchSize caps the number of items accepted by a single batch
// submission.
const MaxBatchSize = 10

// DecryptionRequest correlates an outstanding oracle request with the event
// that issued it. Entries are written once at finalization trigger and
// consumed once by the matching callback.
type DecryptionRequest struct {
	RequestID   string
	EventID     uint64
	RequestedAt time.Time
}

// ParticipantRecord is one entry of a participant's submission history.
type ParticipantRecord struct {
	EventID     uint64
	Title       string
	AssetClass  AssetClass
	State       EventState
	SubmittedAt time.Time
}
