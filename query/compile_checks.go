package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-channels/core"
)

var (
	_ gocmd.Querier[GetConversationMessage, core.Conversation]              = (*GetConversationQuery)(nil)
	_ gocmd.Querier[ListMessagesMessage, []core.Message]                    = (*ListMessagesQuery)(nil)
	_ gocmd.Querier[ListThreadControlLogMessage, []core.ThreadControlEntry] = (*ListThreadControlLogQuery)(nil)
)
