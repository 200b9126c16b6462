package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// SignatureHeader carries the hex HMAC digest of the raw request body.
	SignatureHeader = "X-Hub-Signature-256"
	// SignaturePrefix precedes the hex digest in the signature header.
	SignaturePrefix = "sha256="

	// ChallengeModeSubscribe is the hub.mode value of the GET handshake.
	ChallengeModeSubscribe = "subscribe"
)

var (
	ErrSignatureInvalid    = errors.New("webhooks: signature verification failed")
	ErrChallengeRejected   = errors.New("webhooks: challenge verification failed")
	ErrSecretNotConfigured = errors.New("webhooks: signature secret is required")
)

// InboundRequest is the boundary view of one webhook HTTP call: the raw body
// exactly as received plus the headers needed for verification.
type InboundRequest struct {
	Platform string
	Headers  map[string]string
	Body     []byte
}

type Verifier interface {
	Verify(ctx context.Context, req InboundRequest) error
}

// SignatureVerifier checks the X-Hub-Signature-256 HMAC over the raw,
// unparsed body. It fails closed: a missing secret, missing header, or
// malformed digest all reject the request.
type SignatureVerifier struct {
	Secret string
}

func (v SignatureVerifier) Verify(_ context.Context, req InboundRequest) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return ErrSecretNotConfigured
	}
	header := strings.TrimSpace(headerValue(req.Headers, SignatureHeader))
	if header == "" {
		return fmt.Errorf("%w: %s header is required", ErrSignatureInvalid, SignatureHeader)
	}
	if !strings.HasPrefix(header, SignaturePrefix) {
		return fmt.Errorf("%w: unexpected digest format", ErrSignatureInvalid)
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, SignaturePrefix))
	if signature == "" {
		return fmt.Errorf("%w: empty digest", ErrSignatureInvalid)
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: decode hex digest: %v", ErrSignatureInvalid, err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}

// VerifySignature is the standalone form of SignatureVerifier for callers
// holding only the raw parts. It never panics and reports false on any error.
func VerifySignature(rawBody []byte, headerValue string, appSecret string) bool {
	verifier := SignatureVerifier{Secret: appSecret}
	err := verifier.Verify(context.Background(), InboundRequest{
		Headers: map[string]string{SignatureHeader: headerValue},
		Body:    rawBody,
	})
	return err == nil
}

// ChallengeResponder answers the GET subscription handshake. The challenge is
// echoed back only when the mode is "subscribe" and the verify token matches;
// any other combination must be answered with a not-found/forbidden status by
// the HTTP layer.
type ChallengeResponder struct {
	VerifyToken string
}

func (r ChallengeResponder) Respond(mode string, token string, challenge string) (string, error) {
	expected := strings.TrimSpace(r.VerifyToken)
	if expected == "" {
		return "", fmt.Errorf("%w: verify token is not configured", ErrChallengeRejected)
	}
	if strings.TrimSpace(strings.ToLower(mode)) != ChallengeModeSubscribe {
		return "", fmt.Errorf("%w: unsupported mode %q", ErrChallengeRejected, mode)
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(expected)) != 1 {
		return "", fmt.Errorf("%w: token mismatch", ErrChallengeRejected)
	}
	return challenge, nil
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
