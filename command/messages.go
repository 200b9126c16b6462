package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-channels/core"
	"github.com/goliatone/go-channels/webhooks"
)

const (
	TypeProcessWebhook       = "channels.command.webhook.process"
	TypeSendMessage          = "channels.command.message.send"
	TypePassThreadControl    = "channels.command.thread.pass"
	TypeTakeThreadControl    = "channels.command.thread.take"
	TypeRequestThreadControl = "channels.command.thread.request"
	TypeSubscribeWebhooks    = "channels.command.webhooks.subscribe"
)

type ProcessWebhookMessage struct {
	Request webhooks.InboundRequest
}

func (ProcessWebhookMessage) Type() string { return TypeProcessWebhook }

func (m ProcessWebhookMessage) Validate() error {
	if _, err := core.ParsePlatform(m.Request.Platform); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	if len(m.Request.Body) == 0 {
		return fmt.Errorf("command: webhook body is required")
	}
	return nil
}

type SendMessageMessage struct {
	ConnectionID   string
	ConversationID string
	Message        core.OutboundMessage
}

func (SendMessageMessage) Type() string { return TypeSendMessage }

func (m SendMessageMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	if strings.TrimSpace(m.ConversationID) == "" {
		return fmt.Errorf("command: conversation id is required")
	}
	if strings.TrimSpace(m.Message.Text) == "" && strings.TrimSpace(m.Message.MediaURL) == "" && len(m.Message.Payload) == 0 {
		return fmt.Errorf("command: message content is required")
	}
	return nil
}

type PassThreadControlMessage struct {
	ConnectionID   string
	ConversationID string
	TargetAppID    string
	Metadata       string
}

func (PassThreadControlMessage) Type() string { return TypePassThreadControl }

func (m PassThreadControlMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	if strings.TrimSpace(m.ConversationID) == "" {
		return fmt.Errorf("command: conversation id is required")
	}
	if strings.TrimSpace(m.TargetAppID) == "" {
		return fmt.Errorf("command: target app id is required")
	}
	return nil
}

type TakeThreadControlMessage struct {
	ConnectionID   string
	ConversationID string
	Metadata       string
}

func (TakeThreadControlMessage) Type() string { return TypeTakeThreadControl }

func (m TakeThreadControlMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	if strings.TrimSpace(m.ConversationID) == "" {
		return fmt.Errorf("command: conversation id is required")
	}
	return nil
}

type RequestThreadControlMessage struct {
	ConnectionID   string
	ConversationID string
	Metadata       string
}

func (RequestThreadControlMessage) Type() string { return TypeRequestThreadControl }

func (m RequestThreadControlMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	if strings.TrimSpace(m.ConversationID) == "" {
		return fmt.Errorf("command: conversation id is required")
	}
	return nil
}

type SubscribeWebhooksMessage struct {
	ConnectionID string
}

func (SubscribeWebhooksMessage) Type() string { return TypeSubscribeWebhooks }

func (m SubscribeWebhooksMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	return nil
}
