package query

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-channels/core"
)

type stubConversationReader struct {
	conversation core.Conversation
	err          error
	lastID       string
}

func (s *stubConversationReader) Get(_ context.Context, id string) (core.Conversation, error) {
	s.lastID = id
	return s.conversation, s.err
}

type stubMessageReader struct {
	messages   []core.Message
	lastLimit  int
	lastOffset int
}

func (s *stubMessageReader) ListByConversation(_ context.Context, _ string, limit int, offset int) ([]core.Message, error) {
	s.lastLimit = limit
	s.lastOffset = offset
	return s.messages, nil
}

type stubThreadControlReader struct {
	entries []core.ThreadControlEntry
}

func (s *stubThreadControlReader) List(_ context.Context, _ string, _ int, _ int) ([]core.ThreadControlEntry, error) {
	return s.entries, nil
}

func TestGetConversationQuery_DelegatesToReader(t *testing.T) {
	reader := &stubConversationReader{
		conversation: core.Conversation{ID: "conv-1", ThreadOwner: core.ThreadOwnerApp},
	}
	q := NewGetConversationQuery(reader)

	conversation, err := q.Query(context.Background(), GetConversationMessage{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("query conversation: %v", err)
	}
	if reader.lastID != "conv-1" {
		t.Fatalf("expected reader called with conv-1, got %q", reader.lastID)
	}
	if conversation.ID != "conv-1" {
		t.Fatalf("unexpected conversation: %#v", conversation)
	}
}

func TestListMessagesQuery_PassesPagination(t *testing.T) {
	reader := &stubMessageReader{
		messages: []core.Message{{ID: "msg-1"}, {ID: "msg-2"}},
	}
	q := NewListMessagesQuery(reader)

	messages, err := q.Query(context.Background(), ListMessagesMessage{
		ConversationID: "conv-1",
		Limit:          25,
		Offset:         50,
	})
	if err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if reader.lastLimit != 25 || reader.lastOffset != 50 {
		t.Fatalf("expected pagination passthrough, got limit=%d offset=%d", reader.lastLimit, reader.lastOffset)
	}
}

func TestListThreadControlLogQuery_DelegatesToReader(t *testing.T) {
	reader := &stubThreadControlReader{
		entries: []core.ThreadControlEntry{{ID: "tc-1", Action: core.ThreadControlActionPass}},
	}
	q := NewListThreadControlLogQuery(reader)

	entries, err := q.Query(context.Background(), ListThreadControlLogMessage{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("query thread control log: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != core.ThreadControlActionPass {
		t.Fatalf("unexpected entries: %#v", entries)
	}
}

func TestMessages_Validate(t *testing.T) {
	if err := (GetConversationMessage{}).Validate(); err == nil {
		t.Fatalf("expected missing conversation id error")
	}
	if err := (ListMessagesMessage{ConversationID: "conv-1", Limit: -1}).Validate(); err == nil {
		t.Fatalf("expected negative limit error")
	}
	if err := (ListThreadControlLogMessage{ConversationID: "conv-1", Offset: -1}).Validate(); err == nil {
		t.Fatalf("expected negative offset error")
	}
	if err := (ListMessagesMessage{ConversationID: "conv-1", Limit: 10}).Validate(); err != nil {
		t.Fatalf("expected valid list message, got %v", err)
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var q *GetConversationQuery
	_, err := q.Query(context.Background(), GetConversationMessage{ConversationID: "conv-1"})
	if err == nil {
		t.Fatalf("expected dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.ChannelsErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.ChannelsErrorInternal, rich.TextCode)
	}
}
