package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/goliatone/go-channels/core"
)

type stubDoer struct {
	lastRequest *http.Request
	lastBody    []byte
	status      int
	response    string
	err         error
}

func (d *stubDoer) Do(req *http.Request) (*http.Response, error) {
	d.lastRequest = req
	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		d.lastBody = body
	}
	if d.err != nil {
		return nil, d.err
	}
	status := d.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(d.response))),
	}, nil
}

func newTestClient(t *testing.T, doer *stubDoer) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:    "https://graph.test/v23.0",
		HTTPClient: doer,
		Tokens:     StaticTokenProvider{"conn-1": "token-1"},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func testConnection() core.Connection {
	return core.Connection{
		ID:                "conn-1",
		OrgID:             "org-1",
		Platform:          core.PlatformMessenger,
		ExternalAccountID: "page-1",
	}
}

func TestSendMessageText(t *testing.T) {
	doer := &stubDoer{response: `{"recipient_id": "user-1", "message_id": "mid.out.1"}`}
	client := newTestClient(t, doer)

	result, err := client.SendMessage(context.Background(), testConnection(), "user-1", core.OutboundMessage{
		Kind: core.MessageKindText,
		Text: "hello there",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.MessageID != "mid.out.1" {
		t.Fatalf("unexpected message id %s", result.MessageID)
	}
	if doer.lastRequest.Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", doer.lastRequest.Method)
	}
	if doer.lastRequest.URL.Path != "/v23.0/me/messages" {
		t.Fatalf("unexpected path %s", doer.lastRequest.URL.Path)
	}
	if doer.lastRequest.URL.Query().Get("access_token") != "token-1" {
		t.Fatal("expected access token query param")
	}

	var payload map[string]any
	if err := json.Unmarshal(doer.lastBody, &payload); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	message, _ := payload["message"].(map[string]any)
	if message["text"] != "hello there" {
		t.Fatalf("unexpected request body %s", doer.lastBody)
	}
}

func TestSendMessageRequiresContent(t *testing.T) {
	client := newTestClient(t, &stubDoer{})
	_, err := client.SendMessage(context.Background(), testConnection(), "user-1", core.OutboundMessage{Kind: core.MessageKindText})
	if err == nil {
		t.Fatal("expected error for empty text message")
	}
	_, err = client.SendMessage(context.Background(), testConnection(), "user-1", core.OutboundMessage{Kind: core.MessageKindImage})
	if err == nil {
		t.Fatal("expected error for image message without media url")
	}
}

func TestGraphErrorEnvelope(t *testing.T) {
	doer := &stubDoer{
		status:   http.StatusBadRequest,
		response: `{"error": {"message": "Invalid OAuth access token", "type": "OAuthException", "code": 190, "error_subcode": 463}}`,
	}
	client := newTestClient(t, doer)

	_, err := client.SendMessage(context.Background(), testConnection(), "user-1", core.OutboundMessage{Kind: core.MessageKindText, Text: "x"})
	if err == nil {
		t.Fatal("expected graph error")
	}
	var graphErr *GraphError
	if !errors.As(err, &graphErr) {
		t.Fatalf("expected *GraphError, got %T", err)
	}
	if graphErr.Code != 190 || graphErr.Subcode != 463 {
		t.Fatalf("unexpected error codes %+v", graphErr)
	}
	if !errors.Is(err, ErrGraphRequestFailed) {
		t.Fatal("expected ErrGraphRequestFailed sentinel")
	}
}

func TestPassThreadControlRequest(t *testing.T) {
	doer := &stubDoer{response: `{"success": true}`}
	client := newTestClient(t, doer)

	if err := client.PassThreadControl(context.Background(), testConnection(), "user-1", "263902037430900", "route to inbox"); err != nil {
		t.Fatalf("pass thread control: %v", err)
	}
	if doer.lastRequest.URL.Path != "/v23.0/me/pass_thread_control" {
		t.Fatalf("unexpected path %s", doer.lastRequest.URL.Path)
	}
	var payload map[string]any
	if err := json.Unmarshal(doer.lastBody, &payload); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	if payload["target_app_id"] != "263902037430900" {
		t.Fatalf("unexpected body %s", doer.lastBody)
	}
}

func TestSubscribeWebhooksFieldsPerPlatform(t *testing.T) {
	doer := &stubDoer{response: `{"success": true}`}
	client := newTestClient(t, doer)

	if err := client.SubscribeWebhooks(context.Background(), testConnection()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if doer.lastRequest.URL.Path != "/v23.0/page-1/subscribed_apps" {
		t.Fatalf("unexpected path %s", doer.lastRequest.URL.Path)
	}
	var payload map[string]any
	if err := json.Unmarshal(doer.lastBody, &payload); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	fields, _ := payload["subscribed_fields"].(string)
	if fields == "" || !bytes.Contains([]byte(fields), []byte("messaging_handovers")) {
		t.Fatalf("expected handover subscription, got %q", fields)
	}
}

func TestFetchProfile(t *testing.T) {
	doer := &stubDoer{response: `{"name": "Ada Lovelace", "profile_pic": "https://cdn/pic.jpg"}`}
	client := newTestClient(t, doer)

	profile, err := client.FetchProfile(context.Background(), testConnection(), "user-1")
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if profile.Name != "Ada Lovelace" || profile.AvatarURL != "https://cdn/pic.jpg" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if doer.lastRequest.Method != http.MethodGet {
		t.Fatalf("expected GET, got %s", doer.lastRequest.Method)
	}
}

func TestMissingTokenFails(t *testing.T) {
	client, err := NewClient(ClientConfig{HTTPClient: &stubDoer{}, Tokens: StaticTokenProvider{}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.SubscribeWebhooks(context.Background(), testConnection()); err == nil {
		t.Fatal("expected missing token error")
	}
}
