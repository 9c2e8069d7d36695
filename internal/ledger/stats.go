package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/domain"
)

// Stats summarises the registry by linear scan. Bounded by the total event
// count and read-only, so no index is maintained for it.
func (l *Ledger) Stats() domain.EventStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := domain.EventStats{TotalEvents: uint64(len(l.events))}
	for _, e := range l.events {
		switch {
		case e.Finalized:
			s.FinalizedEvents++
		case e.Active:
			s.ActiveEvents++
		}
		s.TotalSubmissions += uint64(e.SubmissionCount)
	}
	return s
}

// ParticipantHistory returns every event the participant has submitted to,
// oldest first.
func (l *Ledger) ParticipantHistory(participant common.Address) []domain.ParticipantRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.ParticipantRecord
	for _, e := range l.events {
		sub, ok := l.submissions[e.ID][participant]
		if !ok {
			continue
		}
		out = append(out, domain.ParticipantRecord{
			EventID:     e.ID,
			Title:       e.Title,
			AssetClass:  e.AssetClass,
			State:       e.State(),
			SubmittedAt: sub.SubmittedAt,
		})
	}
	return out
}
