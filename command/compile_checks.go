package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ProcessWebhookMessage]       = (*ProcessWebhookCommand)(nil)
	_ gocmd.Commander[SendMessageMessage]          = (*SendMessageCommand)(nil)
	_ gocmd.Commander[PassThreadControlMessage]    = (*PassThreadControlCommand)(nil)
	_ gocmd.Commander[TakeThreadControlMessage]    = (*TakeThreadControlCommand)(nil)
	_ gocmd.Commander[RequestThreadControlMessage] = (*RequestThreadControlCommand)(nil)
	_ gocmd.Commander[SubscribeWebhooksMessage]    = (*SubscribeWebhooksCommand)(nil)
)
