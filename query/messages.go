package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetConversation      = "channels.query.conversation.get"
	TypeListMessages         = "channels.query.messages.list"
	TypeListThreadControlLog = "channels.query.thread_control.list"
)

type GetConversationMessage struct {
	ConversationID string
}

func (GetConversationMessage) Type() string { return TypeGetConversation }

func (m GetConversationMessage) Validate() error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return fmt.Errorf("query: conversation id is required")
	}
	return nil
}

type ListMessagesMessage struct {
	ConversationID string
	Limit          int
	Offset         int
}

func (ListMessagesMessage) Type() string { return TypeListMessages }

func (m ListMessagesMessage) Validate() error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return fmt.Errorf("query: conversation id is required")
	}
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	if m.Offset < 0 {
		return fmt.Errorf("query: offset must be >= 0")
	}
	return nil
}

type ListThreadControlLogMessage struct {
	ConversationID string
	Limit          int
	Offset         int
}

func (ListThreadControlLogMessage) Type() string { return TypeListThreadControlLog }

func (m ListThreadControlLogMessage) Validate() error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return fmt.Errorf("query: conversation id is required")
	}
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	if m.Offset < 0 {
		return fmt.Errorf("query: offset must be >= 0")
	}
	return nil
}
