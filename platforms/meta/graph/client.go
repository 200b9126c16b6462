// Package graph implements the Meta Graph API client used for outbound
// sends, webhook subscription management, and Handover Protocol calls.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-channels/core"
)

const (
	DefaultBaseURL = "https://graph.facebook.com/v23.0"

	defaultRequestTimeout = 30 * time.Second
	maxResponseBodyBytes  = 1 << 20
)

var ErrGraphRequestFailed = errors.New("graph: request failed")

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenProvider resolves the page or account access token for a connection.
// Token storage lives outside this module.
type TokenProvider interface {
	AccessToken(ctx context.Context, conn core.Connection) (string, error)
}

type StaticTokenProvider map[string]string

func (p StaticTokenProvider) AccessToken(_ context.Context, conn core.Connection) (string, error) {
	token, ok := p[conn.ID]
	if !ok || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("graph: no access token for connection %s", conn.ID)
	}
	return token, nil
}

type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	HTTPClient     HTTPDoer
	Tokens         TokenProvider
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient HTTPDoer
	tokens     TokenProvider
}

var (
	_ core.PlatformClient = (*Client)(nil)
	_ core.ProfileFetcher = (*Client)(nil)
)

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("graph: token provider is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: httpClient,
		tokens:     cfg.Tokens,
	}, nil
}

// GraphError is the decoded Graph API error envelope.
type GraphError struct {
	StatusCode int
	Code       int
	Subcode    int
	Type       string
	Message    string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph: %s (type=%s code=%d subcode=%d status=%d)",
		e.Message, e.Type, e.Code, e.Subcode, e.StatusCode)
}

func (e *GraphError) Unwrap() error {
	return ErrGraphRequestFailed
}

func (c *Client) SendMessage(ctx context.Context, conn core.Connection, recipientID string, msg core.OutboundMessage) (core.SendResult, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return core.SendResult{}, fmt.Errorf("graph: recipient id is required")
	}
	body, err := buildMessagePayload(recipientID, msg)
	if err != nil {
		return core.SendResult{}, err
	}

	var response struct {
		RecipientID string `json:"recipient_id"`
		MessageID   string `json:"message_id"`
	}
	if err := c.post(ctx, conn, "me/messages", body, &response); err != nil {
		return core.SendResult{}, err
	}
	if strings.TrimSpace(response.MessageID) == "" {
		return core.SendResult{}, fmt.Errorf("graph: send response missing message id")
	}
	return core.SendResult{
		RecipientID: response.RecipientID,
		MessageID:   response.MessageID,
	}, nil
}

func (c *Client) SubscribeWebhooks(ctx context.Context, conn core.Connection) error {
	fields := subscribedFields(conn.Platform)
	body := map[string]any{"subscribed_fields": strings.Join(fields, ",")}
	path := url.PathEscape(strings.TrimSpace(conn.ExternalAccountID)) + "/subscribed_apps"
	return c.post(ctx, conn, path, body, nil)
}

func (c *Client) PassThreadControl(ctx context.Context, conn core.Connection, recipientID string, targetAppID string, metadata string) error {
	body := map[string]any{
		"recipient":     map[string]string{"id": strings.TrimSpace(recipientID)},
		"target_app_id": strings.TrimSpace(targetAppID),
		"metadata":      metadata,
	}
	return c.post(ctx, conn, "me/pass_thread_control", body, nil)
}

func (c *Client) TakeThreadControl(ctx context.Context, conn core.Connection, recipientID string, metadata string) error {
	body := map[string]any{
		"recipient": map[string]string{"id": strings.TrimSpace(recipientID)},
		"metadata":  metadata,
	}
	return c.post(ctx, conn, "me/take_thread_control", body, nil)
}

func (c *Client) RequestThreadControl(ctx context.Context, conn core.Connection, recipientID string, metadata string) error {
	body := map[string]any{
		"recipient": map[string]string{"id": strings.TrimSpace(recipientID)},
		"metadata":  metadata,
	}
	return c.post(ctx, conn, "me/request_thread_control", body, nil)
}

func (c *Client) FetchProfile(ctx context.Context, conn core.Connection, participantID string) (core.Profile, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return core.Profile{}, fmt.Errorf("graph: participant id is required")
	}
	var response struct {
		Name       string `json:"name"`
		Username   string `json:"username"`
		ProfilePic string `json:"profile_pic"`
	}
	path := url.PathEscape(participantID) + "?fields=name,profile_pic"
	if conn.Platform == core.PlatformInstagram {
		path = url.PathEscape(participantID) + "?fields=name,username,profile_pic"
	}
	if err := c.get(ctx, conn, path, &response); err != nil {
		return core.Profile{}, err
	}
	name := strings.TrimSpace(response.Name)
	if name == "" {
		name = strings.TrimSpace(response.Username)
	}
	return core.Profile{Name: name, AvatarURL: response.ProfilePic}, nil
}

func buildMessagePayload(recipientID string, msg core.OutboundMessage) (map[string]any, error) {
	message := map[string]any{}
	switch msg.Kind {
	case core.MessageKindText, "":
		if strings.TrimSpace(msg.Text) == "" {
			return nil, fmt.Errorf("graph: text message requires text")
		}
		message["text"] = msg.Text
	case core.MessageKindImage, core.MessageKindVideo, core.MessageKindAudio, core.MessageKindFile:
		if strings.TrimSpace(msg.MediaURL) == "" {
			return nil, fmt.Errorf("graph: %s message requires a media url", msg.Kind)
		}
		message["attachment"] = map[string]any{
			"type":    string(msg.Kind),
			"payload": map[string]any{"url": msg.MediaURL, "is_reusable": true},
		}
	case core.MessageKindTemplate:
		if len(msg.Payload) == 0 {
			return nil, fmt.Errorf("graph: template message requires a payload")
		}
		message["attachment"] = map[string]any{
			"type":    "template",
			"payload": msg.Payload,
		}
	default:
		return nil, fmt.Errorf("graph: unsupported outbound message kind %q", msg.Kind)
	}
	return map[string]any{
		"recipient": map[string]string{"id": recipientID},
		"message":   message,
	}, nil
}

func subscribedFields(platform core.Platform) []string {
	switch platform {
	case core.PlatformInstagram:
		return []string{"messages", "message_reactions", "messaging_postbacks", "comments"}
	default:
		return []string{
			"messages", "message_deliveries", "message_reads", "message_echoes",
			"messaging_postbacks", "messaging_referrals", "messaging_handovers", "standby",
		}
	}
}

func (c *Client) post(ctx context.Context, conn core.Connection, path string, body map[string]any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("graph: encode request body: %w", err)
	}
	return c.do(ctx, conn, http.MethodPost, path, bytes.NewReader(encoded), out)
}

func (c *Client) get(ctx context.Context, conn core.Connection, path string, out any) error {
	return c.do(ctx, conn, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, conn core.Connection, method string, path string, body io.Reader, out any) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("graph: client is not configured")
	}
	token, err := c.tokens.AccessToken(ctx, conn)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint, err := c.buildURL(path, token)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("graph: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return fmt.Errorf("graph: read response: %w", readErr)
	}
	if int64(len(raw)) > maxResponseBodyBytes {
		return fmt.Errorf("graph: response exceeds %d bytes", maxResponseBodyBytes)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return decodeGraphError(response.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("graph: decode response: %w", err)
	}
	return nil
}

func (c *Client) buildURL(path string, token string) (string, error) {
	endpoint, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("graph: build url: %w", err)
	}
	query := endpoint.Query()
	query.Set("access_token", token)
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

func decodeGraphError(status int, raw []byte) error {
	var envelope struct {
		Error struct {
			Message      string `json:"message"`
			Type         string `json:"type"`
			Code         int    `json:"code"`
			ErrorSubcode int    `json:"error_subcode"`
		} `json:"error"`
	}
	graphErr := &GraphError{StatusCode: status, Message: "graph request failed"}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err == nil && strings.TrimSpace(envelope.Error.Message) != "" {
			graphErr.Message = envelope.Error.Message
			graphErr.Type = envelope.Error.Type
			graphErr.Code = envelope.Error.Code
			graphErr.Subcode = envelope.Error.ErrorSubcode
		}
	}
	return graphErr
}
