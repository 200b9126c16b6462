package channels

import (
	"github.com/goliatone/go-channels/core"
	"github.com/goliatone/go-channels/ingest"
	"github.com/goliatone/go-channels/webhooks"
)

type Config = core.Config

type PlatformCredentials = core.PlatformCredentials

type RateLimitConfig = core.RateLimitConfig

type Platform = core.Platform

type Connection = core.Connection
type Conversation = core.Conversation
type Message = core.Message
type OutboundMessage = core.OutboundMessage
type ThreadControlEntry = core.ThreadControlEntry
type ThreadOwner = core.ThreadOwner

type StoreProvider = core.StoreProvider

type InboundRequest = webhooks.InboundRequest

type IngestResult = ingest.Result

const (
	PlatformMessenger = core.PlatformMessenger
	PlatformInstagram = core.PlatformInstagram
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}
