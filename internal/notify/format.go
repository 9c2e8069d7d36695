package notify

import (
	"fmt"

	"github.com/veilcast/veilcast/internal/domain"
)

// Format renders a ledger notification as a title and message body suitable
// for the chat senders. Unknown types fall back to a generic rendering so new
// event types still produce a readable alert.
func Format(n domain.Notification) (title, message string) {
	switch n.Type {
	case domain.NotificationEventCreated:
		return fmt.Sprintf("Event #%d created", n.EventID),
			fmt.Sprintf("%s (%s), predictions close %s", n.Title, n.AssetClass, n.EndTime.Format("2006-01-02 15:04 MST"))
	case domain.NotificationSubmissionRecorded:
		return fmt.Sprintf("Prediction recorded for event #%d", n.EventID),
			fmt.Sprintf("Submissions: %d", n.SubmissionCount)
	case domain.NotificationEventEnded:
		return fmt.Sprintf("Event #%d ended", n.EventID),
			fmt.Sprintf("%s closed with %d submissions", n.Title, n.SubmissionCount)
	case domain.NotificationReferencePriceSet:
		return fmt.Sprintf("Reference price set for event #%d", n.EventID),
			fmt.Sprintf("%s settled at %d cents", n.Title, n.ReferencePrice)
	case domain.NotificationFinalizationRequested:
		return fmt.Sprintf("Finalization requested for event #%d", n.EventID),
			fmt.Sprintf("Awaiting decryption of %d submissions", n.SubmissionCount)
	case domain.NotificationFinalizationCompleted:
		return fmt.Sprintf("Event #%d finalized", n.EventID),
			fmt.Sprintf("%s: revealed average %d cents vs reference %d cents", n.Title, n.RevealedAverage, n.ReferencePrice)
	default:
		return fmt.Sprintf("Event #%d: %s", n.EventID, n.Type), n.Title
	}
}
