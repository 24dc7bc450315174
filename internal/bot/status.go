package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/receiptbot/internal/journal"
)

// statusReport is what /status shows to the admin.
type statusReport struct {
	Flows      []string
	InFlight   int
	SendErrors uint64
	Recent     []journal.Entry
	JournalErr error
}

func (s statusReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Flows: %d (%s)\n", len(s.Flows), strings.Join(s.Flows, ", "))
	fmt.Fprintf(&b, "Renders in flight: %d\n", s.InFlight)
	fmt.Fprintf(&b, "Send failures: %d\n", s.SendErrors)
	switch {
	case s.JournalErr != nil:
		fmt.Fprintf(&b, "Journal unavailable: %v", s.JournalErr)
	case len(s.Recent) == 0:
		b.WriteString("No recent renders.")
	default:
		b.WriteString("Recent renders:")
		for _, e := range s.Recent {
			fmt.Fprintf(&b, "\n%s %s %s %s",
				e.CreatedAt().UTC().Format(time.DateTime),
				e.FlowID,
				e.Outcome,
				e.Duration().Round(10*time.Millisecond),
			)
		}
	}
	return b.String()
}
