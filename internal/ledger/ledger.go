// Package ledger implements the event lifecycle state machine and
// encrypted-aggregate ledger: event creation and registry, guarded
// confidential submissions with a running homomorphic sum, the
// end/price-set/finalize transition chain, and the reconciliation of
// asynchronous decryption callbacks with the events that requested them.
package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/domain"
)

// Config bundles the collaborators a Ledger is wired with. Arithmetic is
// required; everything else has a working default or is optional.
type Config struct {
	Arithmetic domain.ConfidentialArithmetic

	// Clock supplies "now" for all deadline-window checks. Defaults to the
	// wall clock; tests inject a mock.
	Clock clock.Clock

	// Sink receives fire-and-forget notifications. Optional.
	Sink domain.EventSink

	// Archives mirror committed mutations into durable storage. All
	// optional; archive failures are logged and never unwind a mutation.
	Events        domain.EventArchive
	Submissions   domain.SubmissionArchive
	Finalizations domain.FinalizationArchive

	Logger *slog.Logger
}

// Ledger owns the full ledger state: the append-only event registry, the
// sparse (event, participant) submission table, and the decryption-request
// correlation table. A single mutex serializes every operation, mirroring
// the transactional execution model the ledger semantics assume; each
// mutating call validates completely before writing anything, so a failed
// call leaves state untouched.
type Ledger struct {
	mu           sync.Mutex
	events       []*domain.PredictionEvent
	submissions  map[uint64]map[common.Address]*domain.Submission
	correlations map[string]uint64 // request id -> event id

	arith         domain.ConfidentialArithmetic
	clock         clock.Clock
	sink          domain.EventSink
	eventArchive  domain.EventArchive
	subArchive    domain.SubmissionArchive
	finalArchive  domain.FinalizationArchive
	logger        *slog.Logger
}

// New creates an empty Ledger from cfg.
func New(cfg Config) *Ledger {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{
		submissions:  make(map[uint64]map[common.Address]*domain.Submission),
		correlations: make(map[string]uint64),
		arith:        cfg.Arithmetic,
		clock:        clk,
		sink:         cfg.Sink,
		eventArchive: cfg.Events,
		subArchive:   cfg.Submissions,
		finalArchive: cfg.Finalizations,
		logger:       logger.With(slog.String("component", "ledger")),
	}
}

// emit forwards a notification to the sink, if one is wired. Sinks must not
// block; the ledger calls them with its mutex held.
func (l *Ledger) emit(ctx context.Context, n domain.Notification) {
	if l.sink != nil {
		l.sink.Emit(ctx, n)
	}
}

// archiveEvent mirrors an event snapshot. Best-effort: failures are logged.
func (l *Ledger) archiveEvent(ctx context.Context, e *domain.PredictionEvent) {
	if l.eventArchive == nil {
		return
	}
	if err := l.eventArchive.Upsert(ctx, *e); err != nil {
		l.logger.WarnContext(ctx, "event archive write failed",
			slog.Uint64("event_id", e.ID),
			slog.String("error", err.Error()),
		)
	}
}

// archiveReceipt mirrors a submission receipt. Best-effort.
func (l *Ledger) archiveReceipt(ctx context.Context, r domain.SubmissionReceipt) {
	if l.subArchive == nil {
		return
	}
	if err := l.subArchive.Insert(ctx, r); err != nil {
		l.logger.WarnContext(ctx, "submission archive write failed",
			slog.Uint64("event_id", r.EventID),
			slog.String("participant", r.Participant.Hex()),
			slog.String("error", err.Error()),
		)
	}
}
