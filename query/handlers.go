package query

import (
	"context"

	"github.com/goliatone/go-channels/core"
)

type ConversationReader interface {
	Get(ctx context.Context, id string) (core.Conversation, error)
}

type MessageReader interface {
	ListByConversation(ctx context.Context, conversationID string, limit int, offset int) ([]core.Message, error)
}

type ThreadControlReader interface {
	List(ctx context.Context, conversationID string, limit int, offset int) ([]core.ThreadControlEntry, error)
}

type GetConversationQuery struct {
	reader ConversationReader
}

func NewGetConversationQuery(reader ConversationReader) *GetConversationQuery {
	return &GetConversationQuery{reader: reader}
}

func (q *GetConversationQuery) Query(ctx context.Context, msg GetConversationMessage) (core.Conversation, error) {
	if q == nil || q.reader == nil {
		return core.Conversation{}, queryDependencyError("query: conversation reader is required")
	}
	return q.reader.Get(ctx, msg.ConversationID)
}

type ListMessagesQuery struct {
	reader MessageReader
}

func NewListMessagesQuery(reader MessageReader) *ListMessagesQuery {
	return &ListMessagesQuery{reader: reader}
}

func (q *ListMessagesQuery) Query(ctx context.Context, msg ListMessagesMessage) ([]core.Message, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: message reader is required")
	}
	return q.reader.ListByConversation(ctx, msg.ConversationID, msg.Limit, msg.Offset)
}

type ListThreadControlLogQuery struct {
	reader ThreadControlReader
}

func NewListThreadControlLogQuery(reader ThreadControlReader) *ListThreadControlLogQuery {
	return &ListThreadControlLogQuery{reader: reader}
}

func (q *ListThreadControlLogQuery) Query(ctx context.Context, msg ListThreadControlLogMessage) ([]core.ThreadControlEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: thread control reader is required")
	}
	return q.reader.List(ctx, msg.ConversationID, msg.Limit, msg.Offset)
}
