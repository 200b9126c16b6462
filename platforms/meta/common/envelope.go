package common

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-channels/core"
)

// Envelope is the top-level webhook payload shared by the Messenger and
// Instagram graph surfaces.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
	Standby   []MessagingEvent `json:"standby"`
	Changes   []Change         `json:"changes"`
}

type Party struct {
	ID string `json:"id"`
}

type MessagingEvent struct {
	Sender               Party                 `json:"sender"`
	Recipient            Party                 `json:"recipient"`
	Timestamp            int64                 `json:"timestamp"`
	Message              *RawMessage           `json:"message"`
	Delivery             *Delivery             `json:"delivery"`
	Read                 *Read                 `json:"read"`
	Postback             *Postback             `json:"postback"`
	Referral             map[string]any        `json:"referral"`
	PassThreadControl    *PassThreadControl    `json:"pass_thread_control"`
	TakeThreadControl    *TakeThreadControl    `json:"take_thread_control"`
	RequestThreadControl *RequestThreadControl `json:"request_thread_control"`
}

type RawMessage struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text"`
	IsEcho      bool         `json:"is_echo"`
	IsDeleted   bool         `json:"is_deleted"`
	Attachments []Attachment `json:"attachments"`
}

type Attachment struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type AttachmentPayload struct {
	URL         string       `json:"url"`
	Title       string       `json:"title"`
	StickerID   int64        `json:"sticker_id"`
	Coordinates *Coordinates `json:"coordinates"`
}

type Coordinates struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

type Delivery struct {
	MIDs      []string `json:"mids"`
	Watermark int64    `json:"watermark"`
}

type Read struct {
	Watermark int64 `json:"watermark"`
}

type Postback struct {
	Title    string         `json:"title"`
	Payload  string         `json:"payload"`
	Referral map[string]any `json:"referral"`
}

// AppID tolerates the two encodings the graph uses for app identifiers:
// JSON numbers and strings.
type AppID string

func (a *AppID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*a = ""
		return nil
	}
	if trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*a = AppID(strings.TrimSpace(value))
		return nil
	}
	var value json.Number
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*a = AppID(value.String())
	return nil
}

func (a AppID) String() string {
	return string(a)
}

type PassThreadControl struct {
	NewOwnerAppID AppID  `json:"new_owner_app_id"`
	Metadata      string `json:"metadata"`
}

type TakeThreadControl struct {
	PreviousOwnerAppID AppID  `json:"previous_owner_app_id"`
	Metadata           string `json:"metadata"`
}

type RequestThreadControl struct {
	RequestedOwnerAppID AppID  `json:"requested_owner_app_id"`
	Metadata            string `json:"metadata"`
}

type Change struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// CommentValue is the changes payload for Instagram comment notifications.
type CommentValue struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	ParentID string `json:"parent_id"`
	From     struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
}

func ParseEnvelope(payload []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("platforms/meta: parse webhook payload: %w", err)
	}
	envelope.Object = strings.TrimSpace(strings.ToLower(envelope.Object))
	if envelope.Object == "" {
		return Envelope{}, fmt.Errorf("platforms/meta: webhook object is required")
	}
	return envelope, nil
}

// ComposeEventID builds the deterministic identity for events that have no
// stable native id: receipts and handover notifications.
func ComposeEventID(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		cleaned = append(cleaned, strings.TrimSpace(part))
	}
	return strings.Join(cleaned, ":")
}

func FormatInt(value int64) string {
	return strconv.FormatInt(value, 10)
}

// NormalizeMessagingEvent maps one graph messaging event to the canonical
// shape. Exactly one of the event's payload fields is expected to be present.
// Shapes the pipeline does not consume (reactions, opt-ins, message edits)
// report ok=false so callers can drop the event while its siblings still
// process; errors are reserved for events that match a known shape but are
// too malformed to normalize.
func NormalizeMessagingEvent(event MessagingEvent, standby bool) (core.CanonicalEvent, bool, error) {
	canonical := core.CanonicalEvent{
		SenderID:    strings.TrimSpace(event.Sender.ID),
		RecipientID: strings.TrimSpace(event.Recipient.ID),
		TimestampMs: event.Timestamp,
		Standby:     standby,
	}
	switch {
	case event.Message != nil:
		normalized, err := normalizeMessage(canonical, *event.Message)
		if err != nil {
			return core.CanonicalEvent{}, false, err
		}
		return normalized, true, nil
	case event.Delivery != nil:
		canonical.Kind = core.EventKindDelivery
		canonical.EventID = ComposeEventID(canonical.SenderID, FormatInt(event.Delivery.Watermark), string(core.EventKindDelivery))
		canonical.Delivery = &core.DeliveryReceipt{
			MessageIDs:  append([]string(nil), event.Delivery.MIDs...),
			WatermarkMs: event.Delivery.Watermark,
		}
		return canonical, true, nil
	case event.Read != nil:
		canonical.Kind = core.EventKindRead
		canonical.EventID = ComposeEventID(canonical.SenderID, FormatInt(event.Read.Watermark), string(core.EventKindRead))
		canonical.Read = &core.ReadReceipt{WatermarkMs: event.Read.Watermark}
		return canonical, true, nil
	case event.Postback != nil:
		canonical.Kind = core.EventKindPostback
		canonical.EventID = ComposeEventID(canonical.SenderID, FormatInt(event.Timestamp), string(core.EventKindPostback))
		canonical.Postback = &core.PostbackPayload{
			Title:    event.Postback.Title,
			Payload:  event.Postback.Payload,
			Referral: event.Postback.Referral,
		}
		return canonical, true, nil
	case event.Referral != nil:
		canonical.Kind = core.EventKindReferral
		canonical.EventID = ComposeEventID(canonical.SenderID, FormatInt(event.Timestamp), string(core.EventKindReferral))
		canonical.Postback = &core.PostbackPayload{Referral: event.Referral}
		return canonical, true, nil
	case event.PassThreadControl != nil:
		canonical.Kind = core.EventKindPassThreadControl
		canonical.EventID = ComposeEventID(canonical.SenderID, FormatInt(event.Timestamp), string(core.EventKindPassThreadControl))
		canonical.Handover = &core.HandoverPayload{
			TargetAppID: event.PassThreadControl.NewOwnerAppID.String(),
			Metadata:    event.PassThreadControl.Metadata,
		}
		return canonical, true, nil
	case event.TakeThreadControl != nil:
		canonical.Kind = core.EventKindTakeThreadControl
		canonical.EventID = ComposeEventID(canonical.SenderID, FormatInt(event.Timestamp), string(core.EventKindTakeThreadControl))
		canonical.Handover = &core.HandoverPayload{
			PreviousOwnerAppID: event.TakeThreadControl.PreviousOwnerAppID.String(),
			Metadata:           event.TakeThreadControl.Metadata,
		}
		return canonical, true, nil
	case event.RequestThreadControl != nil:
		canonical.Kind = core.EventKindRequestThreadControl
		canonical.EventID = ComposeEventID(canonical.SenderID, FormatInt(event.Timestamp), string(core.EventKindRequestThreadControl))
		canonical.Handover = &core.HandoverPayload{
			RequestedByAppID: event.RequestThreadControl.RequestedOwnerAppID.String(),
			Metadata:         event.RequestThreadControl.Metadata,
		}
		return canonical, true, nil
	default:
		return core.CanonicalEvent{}, false, nil
	}
}

func normalizeMessage(canonical core.CanonicalEvent, raw RawMessage) (core.CanonicalEvent, error) {
	mid := strings.TrimSpace(raw.MID)
	if mid == "" {
		return core.CanonicalEvent{}, fmt.Errorf("platforms/meta: message id is required")
	}
	canonical.EventID = mid
	message := core.CanonicalMessage{
		NativeID: mid,
		Kind:     core.MessageKindText,
		Text:     raw.Text,
	}
	switch {
	case raw.IsDeleted:
		canonical.Kind = core.EventKindMessageDeleted
	case raw.IsEcho:
		canonical.Kind = core.EventKindEcho
	default:
		canonical.Kind = core.EventKindMessage
	}
	if len(raw.Attachments) > 0 {
		if err := applyAttachment(&message, raw.Attachments[0]); err != nil {
			return core.CanonicalEvent{}, err
		}
	}
	canonical.Message = &message
	return canonical, nil
}

func applyAttachment(message *core.CanonicalMessage, attachment Attachment) error {
	kind := strings.TrimSpace(strings.ToLower(attachment.Type))
	var payload AttachmentPayload
	if len(attachment.Payload) > 0 {
		if err := json.Unmarshal(attachment.Payload, &payload); err != nil {
			return fmt.Errorf("platforms/meta: parse %s attachment payload: %w", kind, err)
		}
	}

	switch kind {
	case "image", "video", "audio", "file":
		message.Kind = core.MessageKind(kind)
		message.MediaURL = payload.URL
		if payload.StickerID != 0 {
			message.Kind = core.MessageKindSticker
		}
	case "sticker":
		message.Kind = core.MessageKindSticker
		message.MediaURL = payload.URL
	case "location":
		message.Kind = core.MessageKindLocation
		if payload.Coordinates != nil {
			message.Text = fmt.Sprintf("Location: %.6f, %.6f", payload.Coordinates.Lat, payload.Coordinates.Long)
		}
	case "template":
		message.Kind = core.MessageKindTemplate
		message.Payload = opaquePayload(attachment.Payload)
	case "story_mention":
		message.Kind = core.MessageKindStoryMention
		message.URL = payload.URL
		message.Title = payload.Title
	case "share":
		message.Kind = core.MessageKindShare
		message.URL = payload.URL
		message.Title = payload.Title
	default:
		message.Kind = core.MessageKindFallback
		message.MediaURL = payload.URL
		message.Title = payload.Title
	}
	return nil
}

// opaquePayload keeps nested template payloads intact without interpreting
// them.
func opaquePayload(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return payload
}
