// Package gmail wraps the Gmail API calls autodraft needs: listing unread
// messages, reading a message's subject and plain-text body, storing a reply
// as a draft and clearing the UNREAD label.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/daviddao/autodraft/internal/types"
	"github.com/emersion/go-message/mail"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

const (
	// DefaultQuery selects unread messages.
	DefaultQuery = "is:unread"

	me          = "me"
	plainText   = "text/plain"
	unreadLabel = "UNREAD"
)

// Client performs mailbox operations for the authenticated user.
type Client struct {
	svc   *gm.Service
	query string
}

// New returns a Client over an authenticated Gmail service. An empty query
// falls back to DefaultQuery.
func New(svc *gm.Service, query string) *Client {
	if query == "" {
		query = DefaultQuery
	}
	return &Client{svc: svc, query: query}
}

// ListUnread returns references to the messages matching the client query,
// in the order the provider returns them.
func (c *Client) ListUnread(ctx context.Context) ([]types.MessageRef, error) {
	resp, err := c.svc.Users.Messages.List(me).Q(c.query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	refs := make([]types.MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, types.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return refs, nil
}

// Read fetches a message and extracts its subject and plain-text body.
func (c *Client) Read(ctx context.Context, ref types.MessageRef) (types.Message, error) {
	msg, err := c.svc.Users.Messages.Get(me, ref.ID).Format("full").Context(ctx).Do()
	if err != nil {
		return types.Message{}, fmt.Errorf("get message %s: %w", ref.ID, err)
	}
	return Parse(msg)
}

// Parse extracts the subject and plain-text body of a full-format message.
func Parse(msg *gm.Message) (types.Message, error) {
	out := types.Message{ID: msg.Id, Subject: types.DefaultSubject}
	if msg.Payload == nil {
		return out, nil
	}

	out.Subject = subject(msg.Payload.Headers)
	body, err := plainBody(msg.Payload)
	if err != nil {
		return types.Message{}, fmt.Errorf("decode body of %s: %w", msg.Id, err)
	}
	out.Body = body
	return out, nil
}

// subject returns the first header named "subject" in any letter case.
func subject(headers []*gm.MessagePartHeader) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, "subject") {
			return h.Value
		}
	}
	return types.DefaultSubject
}

// plainBody returns the first top-level text/plain part of a multipart
// payload, or the payload itself when it is text/plain. Nested multiparts and
// HTML are not inspected.
func plainBody(payload *gm.MessagePart) (string, error) {
	if len(payload.Parts) > 0 {
		for _, part := range payload.Parts {
			if part.MimeType == plainText {
				return decodePart(part)
			}
		}
		return "", nil
	}
	if payload.MimeType == plainText {
		return decodePart(payload)
	}
	return "", nil
}

func decodePart(part *gm.MessagePart) (string, error) {
	if part.Body == nil {
		return "", nil
	}
	return DecodeBase64URL(part.Body.Data)
}

// DecodeBase64URL decodes Gmail's URL-safe base64 content, with or without
// padding. Invalid UTF-8 sequences are replaced.
func DecodeBase64URL(data string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(decoded), "�"), nil
}

// ComposeMIME renders a draft as a single-part text/plain message.
func ComposeMIME(d types.Draft) ([]byte, error) {
	var h mail.Header
	h.SetSubject(d.Subject)
	h.SetContentType(plainText, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mime writer: %w", err)
	}
	if _, err := io.WriteString(w, d.Body); err != nil {
		return nil, fmt.Errorf("write mime body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close mime writer: %w", err)
	}
	return buf.Bytes(), nil
}

// CreateDraft stores the reply as a draft and returns the draft ID.
func (c *Client) CreateDraft(ctx context.Context, d types.Draft) (string, error) {
	raw, err := ComposeMIME(d)
	if err != nil {
		return "", err
	}

	draft := &gm.Draft{
		Message: &gm.Message{Raw: base64.URLEncoding.EncodeToString(raw)},
	}
	created, err := c.svc.Users.Drafts.Create(me, draft).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}
	return created.Id, nil
}

// MarkRead removes the UNREAD label from a message.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	req := &gm.ModifyMessageRequest{RemoveLabelIds: []string{unreadLabel}}
	if _, err := c.svc.Users.Messages.Modify(me, messageID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("mark %s read: %w", messageID, err)
	}
	return nil
}

// IsServiceError reports whether err carries an HTTP error response from the
// Gmail API, as opposed to a transport or encoding failure.
func IsServiceError(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr)
}
