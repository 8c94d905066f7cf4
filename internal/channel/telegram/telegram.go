// Package telegram implements the Telegram Bot API channel.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"salesbot_backend/internal/channel"
	"salesbot_backend/internal/conversation"
	"salesbot_backend/platform/apperr"
	"salesbot_backend/platform/config"
	"salesbot_backend/platform/logger"
)

// Name is the channel identifier used in routes and conversation keys.
const Name = "telegram"

const (
	defaultBaseURL = "https://api.telegram.org"
	secretHeader   = "X-Telegram-Bot-Api-Secret-Token"
)

// Adapter is the Telegram channel.Adapter.
type Adapter struct {
	baseURL          string
	token            string
	secretToken      string
	botID            string
	verifySignatures bool
	http             *http.Client
	log              *logger.Logger
	now              func() time.Time
}

var (
	_ channel.Adapter       = (*Adapter)(nil)
	_ channel.MediaResolver = (*Adapter)(nil)
)

// BotID is the conversation scope of a bot: the configured scope id, or the
// numeric prefix of the bot token.
func BotID(settings config.ChannelSettings) string {
	if settings.ScopeID != "" {
		return settings.ScopeID
	}
	if i := strings.IndexByte(settings.AccessToken, ':'); i > 0 {
		return settings.AccessToken[:i]
	}
	return ""
}

// New creates the Telegram adapter. settings.AppSecret is the webhook secret
// token registered with setWebhook.
func New(settings config.ChannelSettings, verifySignatures bool, log *logger.Logger) *Adapter {
	base := settings.APIBaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Adapter{
		baseURL:          strings.TrimRight(base, "/"),
		token:            settings.AccessToken,
		secretToken:      settings.AppSecret,
		botID:            BotID(settings),
		verifySignatures: verifySignatures,
		http:             &http.Client{Timeout: 10 * time.Second},
		log:              log,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Verify(header http.Header, _ []byte) error {
	if !a.verifySignatures {
		return nil
	}
	return channel.VerifySecretToken(a.secretToken, header.Get(secretHeader))
}

type update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *message `json:"message"`
	EditedMessage *message `json:"edited_message"`
}

type user struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	LanguageCode string `json:"language_code"`
}

type chat struct {
	ID int64 `json:"id"`
}

type file struct {
	FileID string `json:"file_id"`
}

type message struct {
	MessageID int64  `json:"message_id"`
	From      *user  `json:"from"`
	Chat      chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
	Photo     []file `json:"photo"`
	Voice     *file  `json:"voice"`
	Audio     *file  `json:"audio"`
	Video     *file  `json:"video"`
	Document  *file  `json:"document"`
}

func (a *Adapter) Normalize(body []byte) ([]channel.Inbound, error) {
	var u update
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "decode telegram update", err)
	}
	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil || msg.Chat.ID == 0 {
		return nil, nil
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	in := channel.Inbound{
		Key:        conversation.NewKey(Name, a.botID, chatID),
		MessageID:  chatID + ":" + strconv.FormatInt(msg.MessageID, 10),
		SenderID:   chatID,
		Text:       msg.Text,
		ReceivedAt: a.now(),
	}
	if msg.Date > 0 {
		in.ReceivedAt = time.Unix(msg.Date, 0).UTC()
	}
	if in.Text == "" {
		in.Text = msg.Caption
	}
	if msg.From != nil {
		in.SenderID = strconv.FormatInt(msg.From.ID, 10)
		in.IsEcho = msg.From.IsBot
		in.LanguageHint = msg.From.LanguageCode
	}

	if n := len(msg.Photo); n > 0 {
		in.Media = append(in.Media, conversation.MediaRef{Kind: conversation.MediaImage, ProviderID: msg.Photo[n-1].FileID})
	}
	attachments := []struct {
		kind conversation.MediaKind
		f    *file
	}{
		{conversation.MediaVoice, firstFile(msg.Voice, msg.Audio)},
		{conversation.MediaVideo, msg.Video},
		{conversation.MediaFile, msg.Document},
	}
	for _, att := range attachments {
		if att.f != nil && att.f.FileID != "" {
			in.Media = append(in.Media, conversation.MediaRef{Kind: att.kind, ProviderID: att.f.FileID})
		}
	}
	return []channel.Inbound{in}, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (a *Adapter) Send(ctx context.Context, key conversation.Key, text string) error {
	chatID, err := strconv.ParseInt(key.ExternalID, 10, 64)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "telegram chat id must be numeric", err)
	}
	payload, err := json.Marshal(map[string]any{"chat_id": chatID, "text": text})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}
	_, err = a.call(ctx, "sendMessage", payload)
	return err
}

// OpenMedia resolves a file_id through getFile and opens the download.
func (a *Adapter) OpenMedia(ctx context.Context, ref conversation.MediaRef) (io.ReadCloser, string, error) {
	if ref.ProviderID == "" {
		return nil, "", apperr.BadRequest("media reference has no file id")
	}
	payload, _ := json.Marshal(map[string]string{"file_id": ref.ProviderID})
	raw, err := a.call(ctx, "getFile", payload)
	if err != nil {
		return nil, "", err
	}
	var f struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(raw, &f); err != nil || f.FilePath == "" {
		return nil, "", fmt.Errorf("telegram getFile returned no path")
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", a.baseURL, a.token, url.PathEscape(f.FilePath))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download telegram file: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_ = resp.Body.Close()
		return nil, "", fmt.Errorf("download telegram file: status %d", resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (a *Adapter) call(ctx context.Context, method string, payload []byte) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", a.baseURL, a.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, apperr.Transient("telegram request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out apiResponse
	_ = json.Unmarshal(data, &out)
	if resp.StatusCode < http.StatusBadRequest && out.OK {
		return out.Result, nil
	}

	cause := fmt.Errorf("telegram %s returned %d: %s", method, resp.StatusCode, strings.TrimSpace(out.Description))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, apperr.Transient("telegram "+method+" failed", cause)
	}
	return nil, apperr.Rejected("telegram "+method+" rejected", cause)
}

func firstFile(files ...*file) *file {
	for _, f := range files {
		if f != nil && f.FileID != "" {
			return f
		}
	}
	return nil
}
