package webhooks

import (
	"strings"

	"github.com/goliatone/go-channels/core"
)

// PlatformWebhookTemplate bundles the boundary pieces one platform needs: its
// signature verifier and subscription challenge responder.
type PlatformWebhookTemplate struct {
	Platform   core.Platform
	Verifier   Verifier
	Challenger ChallengeResponder
}

func NewMessengerWebhookTemplate(creds core.PlatformCredentials) PlatformWebhookTemplate {
	return PlatformWebhookTemplate{
		Platform:   core.PlatformMessenger,
		Verifier:   SignatureVerifier{Secret: strings.TrimSpace(creds.AppSecret)},
		Challenger: ChallengeResponder{VerifyToken: strings.TrimSpace(creds.VerifyToken)},
	}
}

func NewInstagramWebhookTemplate(creds core.PlatformCredentials) PlatformWebhookTemplate {
	return PlatformWebhookTemplate{
		Platform:   core.PlatformInstagram,
		Verifier:   SignatureVerifier{Secret: strings.TrimSpace(creds.AppSecret)},
		Challenger: ChallengeResponder{VerifyToken: strings.TrimSpace(creds.VerifyToken)},
	}
}
