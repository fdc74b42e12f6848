// Package messaging stands in for consensus messages, operator accounts
// and ledger side effects during a dry run.
//
// Everything it writes is a virtual record of the run: messages, virtual
// users and their keys, transactions and files. None of it leaves the
// virtual store, and all of it follows savepoints and clears.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
	"github.com/hashgraph/guardian-sub011/internal/router"
)

// Clock provides record timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Payload field names.
const (
	FieldCreateDate = "createDate"
	FieldDocument   = "document"
	FieldTopicID    = "topicId"
	FieldMessageID  = "messageId"
	FieldHash       = "hash"
)

// Emulator records virtual messages, users, transactions and files.
type Emulator struct {
	router *router.Router
	clock  Clock
	logger *slog.Logger
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithClock sets the timestamp source.
func WithClock(c Clock) Option {
	return func(e *Emulator) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Emulator) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Emulator writing through r.
func New(r *router.Router, opts ...Option) *Emulator {
	e := &Emulator{router: r, clock: systemClock{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emulator) session(run dryrun.Run) (*router.Session, error) {
	if !run.Active() {
		return nil, &dryrun.Error{
			Code:    dryrun.CodeConfiguration,
			Message: "virtual messaging requires an active run",
		}
	}
	return e.router.Session(run), nil
}

func (e *Emulator) now() doc.String {
	return doc.String(e.clock.Now().UTC().Format(time.RFC3339))
}

// Message is a virtual consensus message.
type Message struct {
	ID         string     `json:"id"`
	TopicID    string     `json:"topicId"`
	MessageID  string     `json:"messageId"`
	Hash       string     `json:"hash"`
	CreateDate string     `json:"createDate"`
	Document   doc.Object `json:"document"`
}

func messageFrom(obj doc.Object) Message {
	m := Message{
		ID:         obj.GetString(queryir.FieldID),
		TopicID:    obj.GetString(FieldTopicID),
		MessageID:  obj.GetString(FieldMessageID),
		Hash:       obj.GetString(FieldHash),
		CreateDate: obj.GetString(FieldCreateDate),
	}
	if d, ok := obj[FieldDocument].(doc.Object); ok {
		m.Document = d
	}
	return m
}

// RecordMessage stores a message in place of submitting it to topicID.
// Messages are never system records.
func (e *Emulator) RecordMessage(ctx context.Context, run dryrun.Run, topicID, messageID string, document doc.Object) (Message, error) {
	sess, err := e.session(run.WithSystemMode(false))
	if err != nil {
		return Message{}, err
	}
	if document == nil {
		document = doc.Object{}
	}
	hash, err := doc.MessageDigest(document)
	if err != nil {
		return Message{}, fmt.Errorf("record message %s: %w", messageID, err)
	}

	item, err := sess.Create(dryrun.VirtualMessage, doc.NewObject(
		doc.O(FieldDocument, document.Clone()),
		doc.O(FieldTopicID, doc.String(topicID)),
		doc.O(FieldMessageID, doc.String(messageID)),
		doc.O(FieldHash, doc.String(hash)),
		doc.O(FieldCreateDate, e.now()),
	))
	if err != nil {
		return Message{}, err
	}
	saved, err := sess.Save(ctx, dryrun.VirtualMessage, item)
	if err != nil {
		return Message{}, fmt.Errorf("record message %s: %w", messageID, err)
	}
	e.logger.Debug("recorded virtual message",
		"run_id", run.ID(), "topic_id", topicID, "message_id", messageID)
	return messageFrom(saved), nil
}

// ListMessages returns the messages recorded for topicID, oldest first.
func (e *Emulator) ListMessages(ctx context.Context, run dryrun.Run, topicID string) ([]Message, error) {
	sess, err := e.session(run)
	if err != nil {
		return nil, err
	}
	found, err := sess.Find(ctx, dryrun.VirtualMessage,
		queryir.Eq(FieldTopicID, doc.String(topicID)), queryir.Options{})
	if err != nil {
		return nil, err
	}
	out := make([]Message, len(found))
	for i, obj := range found {
		out[i] = messageFrom(obj)
	}
	return out, nil
}

// GetMessage returns the message with messageID.
func (e *Emulator) GetMessage(ctx context.Context, run dryrun.Run, messageID string) (Message, bool, error) {
	sess, err := e.session(run)
	if err != nil {
		return Message{}, false, err
	}
	found, ok, err := sess.FindOne(ctx, dryrun.VirtualMessage,
		queryir.Eq(FieldMessageID, doc.String(messageID)))
	if err != nil || !ok {
		return Message{}, false, err
	}
	return messageFrom(found), true, nil
}
