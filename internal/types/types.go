// Package types defines core data structures for autodraft.
package types

// MessageRef identifies an unread message returned by the mailbox listing.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id,omitempty"`
}

// Message is the subject and plain-text body of a fetched message.
type Message struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Draft is a composed reply ready to be stored as a mailbox draft.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// DefaultSubject is used when a message carries no Subject header.
const DefaultSubject = "No Subject"

// ReplyPrefix is prepended to the original subject of a drafted reply.
const ReplyPrefix = "Re: "

// Reply builds the draft for a message from the generated text.
func Reply(msg Message, text string) Draft {
	return Draft{
		Subject: ReplyPrefix + msg.Subject,
		Body:    text,
	}
}

// Outcome constants record what happened to a single message in a cycle.
const (
	OutcomeDrafted     = "drafted"
	OutcomeDraftFailed = "draft_failed"
)

// Outcome is the result of processing one message.
type Outcome struct {
	MessageID  string `json:"message_id" db:"message_id"`
	Subject    string `json:"subject" db:"subject"`
	DraftID    string `json:"draft_id,omitempty" db:"draft_id"`
	Status     string `json:"outcome" db:"outcome"`
	MarkedRead bool   `json:"marked_read" db:"marked_read"`
	Error      string `json:"error,omitempty" db:"error"`
}

// CycleSummary holds the result of one polling cycle.
type CycleSummary struct {
	ID         string    `json:"id"`
	StartedAt  string    `json:"started_at"`
	FinishedAt string    `json:"finished_at,omitempty"`
	Listed     int       `json:"listed"`
	Drafted    int       `json:"drafted"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes,omitempty"`
	Error      string    `json:"error,omitempty"`
}
