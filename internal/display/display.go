// Package display provides terminal formatting for autodraft output.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/daviddao/autodraft/internal/types"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

// OutcomeDot returns a colored dot for a processing outcome.
func OutcomeDot(o types.Outcome) string {
	switch {
	case o.Status == types.OutcomeDrafted:
		return Success.Render("●")
	case o.MarkedRead:
		return Warn.Render("○")
	default:
		return ErrStyle.Render("○")
	}
}

// OutcomeLabel returns a styled, fixed-width outcome label.
func OutcomeLabel(status string) string {
	label := fmt.Sprintf("%-12s", strings.ToUpper(status))
	switch status {
	case types.OutcomeDrafted:
		return Success.Render(label)
	case types.OutcomeDraftFailed:
		return ErrStyle.Render(label)
	default:
		return label
	}
}

// TimeAgo formats an ISO date string as a relative time.
func TimeAgo(isoDate string) string {
	if isoDate == "" {
		return ""
	}

	var t time.Time
	var err error
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", time.RFC3339Nano} {
		t, err = time.Parse(layout, isoDate)
		if err == nil {
			break
		}
	}
	if err != nil {
		return isoDate[:min(10, len(isoDate))]
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens a string to maxLen runes, adding ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(Success.Render("✓") + " " + msg)
}

// ErrorMsg prints a red X + message to stderr.
func ErrorMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, ErrStyle.Render("✗")+" "+msg)
}

// Header prints a section header to w.
func Header(w io.Writer, title string) {
	fmt.Fprintln(w, Bold.Render(title))
}

// OutcomeLine renders one processed message for history listings.
func OutcomeLine(o types.Outcome, when string) string {
	line := fmt.Sprintf("%s %s %s  %s", OutcomeDot(o), OutcomeLabel(o.Status),
		Truncate(o.Subject, 50), Dim.Render(o.MessageID))
	if when != "" {
		line += Dim.Render("  ·  " + TimeAgo(when))
	}
	if o.Error != "" {
		line += "\n    " + Muted.Render(Truncate(o.Error, 100))
	}
	return line
}
