// Package loop polls the mailbox and drafts a reply for every unread message.
//
// Each cycle lists unread messages and, one at a time, reads the message,
// asks the generator for a reply, stores it as a draft and marks the source
// message read. Between cycles the controller waits a fixed interval,
// regardless of how long the cycle took, until its context is cancelled.
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/daviddao/autodraft/internal/draft"
	"github.com/daviddao/autodraft/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultInterval is the pause between two cycles.
const DefaultInterval = 300 * time.Second

// Mailbox is the mail service as seen by the controller.
type Mailbox interface {
	ListUnread(ctx context.Context) ([]types.MessageRef, error)
	Read(ctx context.Context, ref types.MessageRef) (types.Message, error)
	CreateDraft(ctx context.Context, d types.Draft) (string, error)
	MarkRead(ctx context.Context, messageID string) error
}

// Generator produces the reply text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Recorder persists finished cycles. Recording failures never stop the loop.
type Recorder interface {
	RecordCycle(ctx context.Context, c types.CycleSummary) error
}

// Reporter receives human-facing progress events.
type Reporter interface {
	NoNewMessages()
	DraftCreated(messageID, draftID string)
	DraftFailed(messageID string, err error)
	Processed(o types.Outcome)
}

// Policy decides how per-message draft failures are handled.
type Policy struct {
	// MarkReadOnDraftFailure marks a message read even when its draft could
	// not be stored. When false the message stays unread and is picked up
	// again by the next cycle.
	MarkReadOnDraftFailure bool

	// Recoverable reports whether a draft error is a per-message failure.
	// Any other draft error is fatal. Nil treats every draft error as fatal.
	Recoverable func(error) bool
}

// Stage names the step a fatal error came from.
type Stage string

const (
	StageList     Stage = "list"
	StageRead     Stage = "read"
	StageGenerate Stage = "generate"
	StageDraft    Stage = "draft"
	StageMarkRead Stage = "mark_read"
)

// FatalError ends the loop. MessageID is empty for listing failures.
type FatalError struct {
	Stage     Stage
	MessageID string
	Err       error
}

func (e *FatalError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.MessageID, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Controller owns the polling loop. Mailbox and Generator are required.
type Controller struct {
	Mailbox   Mailbox
	Generator Generator
	Recorder  Recorder
	Reporter  Reporter
	Policy    Policy
	Interval  time.Duration
	Log       zerolog.Logger

	// Sleep waits between cycles; it returns ctx.Err() when cancelled.
	// Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run cycles until ctx is cancelled or a fatal error occurs. Cancellation is
// a clean shutdown and returns nil.
func (c *Controller) Run(ctx context.Context) error {
	interval := c.interval()
	for {
		if _, err := c.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				c.Log.Info().Msg("shutdown requested during cycle")
				return nil
			}
			return err
		}

		c.Log.Debug().Dur("interval", interval).Msg("idle")
		if err := c.sleep(ctx, interval); err != nil {
			c.Log.Info().Msg("shutdown requested")
			return nil
		}
	}
}

// RunCycle performs one listing and processes every message it returned.
// The summary is recorded even when the cycle ends with a fatal error.
func (c *Controller) RunCycle(ctx context.Context) (types.CycleSummary, error) {
	summary := types.CycleSummary{
		ID:        uuid.NewString(),
		StartedAt: now(),
	}
	log := c.Log.With().Str("cycle", summary.ID).Logger()

	err := c.cycle(ctx, log, &summary)
	summary.FinishedAt = now()
	if err != nil {
		summary.Error = err.Error()
		log.Error().Err(err).Msg("cycle aborted")
	} else {
		log.Info().Int("listed", summary.Listed).Int("drafted", summary.Drafted).
			Int("failed", summary.Failed).Msg("cycle finished")
	}

	if c.Recorder != nil {
		// Record even when the cycle ended because of shutdown.
		if recErr := c.Recorder.RecordCycle(context.WithoutCancel(ctx), summary); recErr != nil {
			log.Warn().Err(recErr).Msg("record cycle")
		}
	}
	return summary, err
}

func (c *Controller) cycle(ctx context.Context, log zerolog.Logger, summary *types.CycleSummary) error {
	refs, err := c.Mailbox.ListUnread(ctx)
	if err != nil {
		return &FatalError{Stage: StageList, Err: err}
	}
	summary.Listed = len(refs)

	if len(refs) == 0 {
		log.Info().Msg("no new emails")
		if c.Reporter != nil {
			c.Reporter.NoNewMessages()
		}
		return nil
	}

	for _, ref := range refs {
		o, err := c.process(ctx, log.With().Str("message_id", ref.ID).Logger(), ref)
		if err != nil {
			return err
		}
		summary.Outcomes = append(summary.Outcomes, o)
		switch o.Status {
		case types.OutcomeDrafted:
			summary.Drafted++
		case types.OutcomeDraftFailed:
			summary.Failed++
		}
		if c.Reporter != nil {
			c.Reporter.Processed(o)
		}
	}
	return nil
}

// process drafts a reply for one message. A returned error is fatal; a
// recoverable draft failure is reported in the outcome instead.
func (c *Controller) process(ctx context.Context, log zerolog.Logger, ref types.MessageRef) (types.Outcome, error) {
	msg, err := c.Mailbox.Read(ctx, ref)
	if err != nil {
		return types.Outcome{}, &FatalError{Stage: StageRead, MessageID: ref.ID, Err: err}
	}
	o := types.Outcome{MessageID: ref.ID, Subject: msg.Subject}

	text, err := c.Generator.Generate(ctx, draft.Prompt(msg))
	if err != nil {
		return o, &FatalError{Stage: StageGenerate, MessageID: ref.ID, Err: err}
	}

	reply := types.Reply(msg, text)
	draftID, err := c.Mailbox.CreateDraft(ctx, reply)
	switch {
	case err == nil:
		o.Status = types.OutcomeDrafted
		o.DraftID = draftID
		log.Info().Str("draft_id", draftID).Msg("draft created")
		if c.Reporter != nil {
			c.Reporter.DraftCreated(ref.ID, draftID)
		}
	case c.Policy.Recoverable != nil && c.Policy.Recoverable(err):
		o.Status = types.OutcomeDraftFailed
		o.Error = err.Error()
		log.Warn().Err(err).Msg("draft failed")
		if c.Reporter != nil {
			c.Reporter.DraftFailed(ref.ID, err)
		}
		if !c.Policy.MarkReadOnDraftFailure {
			return o, nil
		}
	default:
		return o, &FatalError{Stage: StageDraft, MessageID: ref.ID, Err: err}
	}

	if err := c.Mailbox.MarkRead(ctx, ref.ID); err != nil {
		return o, &FatalError{Stage: StageMarkRead, MessageID: ref.ID, Err: err}
	}
	o.MarkedRead = true
	log.Info().Msg("marked read")
	return o, nil
}

func (c *Controller) interval() time.Duration {
	if c.Interval <= 0 {
		return DefaultInterval
	}
	return c.Interval
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
