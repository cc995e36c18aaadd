package display

import (
	"fmt"
	"io"

	"github.com/daviddao/autodraft/internal/types"
)

// Reporter prints the per-message progress lines of the polling loop to
// standard output. Quiet suppresses everything except draft failures.
type Reporter struct {
	Out   io.Writer
	Quiet bool
}

// NoNewMessages reports a cycle that listed nothing.
func (r *Reporter) NoNewMessages() {
	if r.Quiet {
		return
	}
	fmt.Fprintln(r.Out, Dim.Render("No new emails."))
}

// DraftCreated reports the id of a stored draft.
func (r *Reporter) DraftCreated(messageID, draftID string) {
	if r.Quiet {
		return
	}
	fmt.Fprintf(r.Out, "%s Draft id: %s\n", Success.Render("✓"), draftID)
}

// DraftFailed reports a draft the mail service refused.
func (r *Reporter) DraftFailed(messageID string, err error) {
	fmt.Fprintf(r.Out, "%s An error occurred: %v\n", ErrStyle.Render("✗"), err)
}

// Processed reports a message that was marked read.
func (r *Reporter) Processed(o types.Outcome) {
	if r.Quiet || !o.MarkedRead {
		return
	}
	fmt.Fprintf(r.Out, "Email %s processed and marked as read.\n", o.MessageID)
}
