// Package meta implements the Graph API messaging format shared by the
// Instagram and Messenger channels.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"salesbot_backend/internal/channel"
	"salesbot_backend/internal/conversation"
	"salesbot_backend/platform/apperr"
	"salesbot_backend/platform/config"
	"salesbot_backend/platform/logger"
)

const signatureHeader = "X-Hub-Signature-256"

// Options describes one Graph API channel.
type Options struct {
	Channel          string
	Object           string
	DefaultBaseURL   string
	Settings         config.ChannelSettings
	VerifySignatures bool
	HTTPClient       *http.Client
}

// Adapter is a channel.Adapter over the Graph API.
type Adapter struct {
	name             string
	object           string
	baseURL          string
	token            string
	appSecret        string
	verifyToken      string
	scopeID          string
	verifySignatures bool
	http             *http.Client
	log              *logger.Logger
	now              func() time.Time
}

var (
	_ channel.Adapter       = (*Adapter)(nil)
	_ channel.Handshaker    = (*Adapter)(nil)
	_ channel.MediaResolver = (*Adapter)(nil)
)

// New creates an Adapter.
func New(opts Options, log *logger.Logger) *Adapter {
	base := opts.Settings.APIBaseURL
	if base == "" {
		base = opts.DefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{
		name:             opts.Channel,
		object:           opts.Object,
		baseURL:          strings.TrimRight(base, "/"),
		token:            opts.Settings.AccessToken,
		appSecret:        opts.Settings.AppSecret,
		verifyToken:      opts.Settings.VerifyToken,
		scopeID:          opts.Settings.ScopeID,
		verifySignatures: opts.VerifySignatures,
		http:             client,
		log:              log,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Verify(header http.Header, body []byte) error {
	if !a.verifySignatures {
		return nil
	}
	return channel.VerifyHMACSHA256(a.appSecret, header.Get(signatureHeader), body)
}

// Handshake answers the hub.challenge subscription check.
func (a *Adapter) Handshake(query url.Values) (string, error) {
	if query.Get("hub.mode") != "subscribe" {
		return "", apperr.BadRequest("unsupported hub.mode")
	}
	if a.verifyToken == "" || query.Get("hub.verify_token") != a.verifyToken {
		return "", apperr.Forbidden("verify token mismatch")
	}
	return query.Get("hub.challenge"), nil
}

type webhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []messagingEvent `json:"messaging"`
}

type participant struct {
	ID string `json:"id"`
}

type messagingEvent struct {
	Sender    participant `json:"sender"`
	Recipient participant `json:"recipient"`
	Timestamp int64       `json:"timestamp"`
	Message   *message    `json:"message"`
}

type message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text"`
	IsEcho      bool         `json:"is_echo"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

func (a *Adapter) Normalize(body []byte) ([]channel.Inbound, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "decode "+a.name+" payload", err)
	}
	if a.object != "" && payload.Object != "" && payload.Object != a.object {
		return nil, nil
	}

	var out []channel.Inbound
	for _, e := range payload.Entry {
		scope := e.ID
		if scope == "" {
			scope = a.scopeID
		}
		for _, ev := range e.Messaging {
			if ev.Message == nil {
				continue
			}
			echo := ev.Message.IsEcho || (scope != "" && ev.Sender.ID == scope)
			user := ev.Sender.ID
			if echo {
				user = ev.Recipient.ID
			}
			in := channel.Inbound{
				Key:        conversation.NewKey(a.name, scope, user),
				MessageID:  ev.Message.MID,
				SenderID:   ev.Sender.ID,
				Text:       ev.Message.Text,
				IsEcho:     echo,
				ReceivedAt: a.eventTime(ev.Timestamp),
			}
			for _, att := range ev.Message.Attachments {
				if att.Payload.URL == "" {
					continue
				}
				in.Media = append(in.Media, conversation.MediaRef{Kind: mediaKind(att.Type), URL: att.Payload.URL})
			}
			out = append(out, in)
		}
	}
	return out, nil
}

type sendRequest struct {
	Recipient     participant `json:"recipient"`
	MessagingType string      `json:"messaging_type"`
	Message       struct {
		Text string `json:"text"`
	} `json:"message"`
}

type graphError struct {
	Error struct {
		Message     string `json:"message"`
		Type        string `json:"type"`
		Code        int    `json:"code"`
		Subcode     int    `json:"error_subcode"`
		IsTransient bool   `json:"is_transient"`
	} `json:"error"`
}

// temporaryCodes are Graph API error codes documented as retryable.
var temporaryCodes = map[int]bool{1: true, 2: true, 4: true, 17: true, 32: true, 613: true}

func (a *Adapter) Send(ctx context.Context, key conversation.Key, text string) error {
	payload := sendRequest{Recipient: participant{ID: key.ExternalID}, MessagingType: "RESPONSE"}
	payload.Message.Text = text

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", a.name, err)
	}

	endpoint := a.baseURL + "/me/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.http.Do(req)
	if err != nil {
		return apperr.Transient(a.name+" request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ge graphError
	_ = json.Unmarshal(data, &ge)
	cause := fmt.Errorf("%s returned %d: %s", a.name, resp.StatusCode, strings.TrimSpace(string(data)))
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests ||
		ge.Error.IsTransient || temporaryCodes[ge.Error.Code] {
		return apperr.Transient(a.name+" send failed", cause)
	}
	return apperr.Rejected(a.name+" send rejected", cause)
}

// OpenMedia downloads an attachment by its CDN URL.
func (a *Adapter) OpenMedia(ctx context.Context, ref conversation.MediaRef) (io.ReadCloser, string, error) {
	if ref.URL == "" {
		return nil, "", apperr.BadRequest("media reference has no url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s media: %w", a.name, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_ = resp.Body.Close()
		return nil, "", fmt.Errorf("fetch %s media: status %d", a.name, resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (a *Adapter) eventTime(ms int64) time.Time {
	if ms <= 0 {
		return a.now()
	}
	return time.UnixMilli(ms).UTC()
}

func mediaKind(t string) conversation.MediaKind {
	switch strings.ToLower(t) {
	case "image":
		return conversation.MediaImage
	case "audio":
		return conversation.MediaVoice
	case "video":
		return conversation.MediaVideo
	default:
		return conversation.MediaFile
	}
}
