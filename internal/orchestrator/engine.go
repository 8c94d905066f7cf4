// Package orchestrator runs one inbound turn end to end: dedup, state, stage,
// model call, guard, delivery, persistence and lead capture.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"salesbot_backend/internal/channel"
	"salesbot_backend/internal/contact"
	"salesbot_backend/internal/conversation"
	"salesbot_backend/internal/funnel"
	"salesbot_backend/internal/guard"
	"salesbot_backend/internal/leads"
	"salesbot_backend/platform/logger"
	"salesbot_backend/platform/metrics"
	"salesbot_backend/platform/sanitize"
)

const (
	defaultMediaFreshness = 90 * time.Second
	defaultModelTimeout   = 20 * time.Second
	defaultAskLookback    = 3
	snapshotTurns         = 5
)

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeEcho          Outcome = "echo"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeMediaAcked    Outcome = "media_acked"
	OutcomeMediaBuffered Outcome = "media_buffered"
	OutcomeReplied       Outcome = "replied"
	OutcomeSendFailed    Outcome = "send_failed"
)

// Sender delivers one outbound text with the channel's retry policy.
type Sender interface {
	Deliver(ctx context.Context, key conversation.Key, text string) error
}

// LeadCapturer stores leads.
type LeadCapturer interface {
	Capture(ctx context.Context, req leads.CaptureRequest) (leads.CaptureResult, error)
}

// MediaArchiver copies inbound media somewhere durable and returns the
// reference to keep in state.
type MediaArchiver interface {
	Archive(ctx context.Context, key conversation.Key, ref conversation.MediaRef) (conversation.MediaRef, error)
}

// Transcriber turns a voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, key conversation.Key, ref conversation.MediaRef) (string, error)
}

// Config holds the turn tunables.
type Config struct {
	MediaFreshness time.Duration
	ModelTimeout   time.Duration
	Region         string
	Policy         funnel.Policy
	Reopen         funnel.ReopenPredicate
	// ContactAskLookback is how many recent outbound messages are checked for
	// a contact request before the turn ceiling may force one.
	ContactAskLookback int
}

// Deps are the collaborators of the engine. Archiver, Transcriber, Tracker
// and Leads are optional.
type Deps struct {
	Store       *conversation.Store
	Sender      Sender
	Replier     Replier
	Guard       *guard.Pipeline
	Leads       LeadCapturer
	Tracker     DeliveryTracker
	Archiver    MediaArchiver
	Transcriber Transcriber
	Log         *logger.Logger
}

// Engine is the per-turn state machine.
type Engine struct {
	store       *conversation.Store
	sender      Sender
	replier     Replier
	guard       *guard.Pipeline
	leads       LeadCapturer
	tracker     DeliveryTracker
	archiver    MediaArchiver
	transcriber Transcriber
	locks       *KeyedMutex
	cfg         Config
	log         *logger.Logger
	now         func() time.Time
}

func New(deps Deps, cfg Config) *Engine {
	if cfg.MediaFreshness <= 0 {
		cfg.MediaFreshness = defaultMediaFreshness
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = defaultModelTimeout
	}
	if cfg.ContactAskLookback <= 0 {
		cfg.ContactAskLookback = defaultAskLookback
	}
	if cfg.Policy.EntryReadiness == nil {
		cfg.Policy = funnel.DefaultPolicy()
	}
	if cfg.Reopen == nil {
		cfg.Reopen = funnel.DefaultReopenPredicate
	}
	if deps.Guard == nil {
		deps.Guard = guard.NewPipeline(nil)
	}
	if deps.Tracker == nil {
		deps.Tracker = NewMemoryTracker(DefaultDeliveryTTL, 0)
	}
	return &Engine{
		store:       deps.Store,
		sender:      deps.Sender,
		replier:     deps.Replier,
		guard:       deps.Guard,
		leads:       deps.Leads,
		tracker:     deps.Tracker,
		archiver:    deps.Archiver,
		transcriber: deps.Transcriber,
		locks:       NewKeyedMutex(),
		cfg:         cfg,
		log:         deps.Log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Locks exposes the per-key lock so other writers (the follow-up scheduler)
// can serialize with inbound turns in the same process.
func (e *Engine) Locks() *KeyedMutex { return e.locks }

// HandleInbound processes one normalized event. Every event that reaches the
// reply step produces exactly one send attempt. The returned error is the
// delivery error, if any; it is informational and already logged.
func (e *Engine) HandleInbound(ctx context.Context, in channel.Inbound) (Outcome, error) {
	name := in.Key.Channel
	if in.IsEcho {
		metrics.RecordSkipped(name, string(OutcomeEcho))
		e.log.PayloadSkipped(name, string(OutcomeEcho))
		return OutcomeEcho, nil
	}
	if !in.Key.Valid() || in.Empty() {
		metrics.RecordSkipped(name, "empty")
		e.log.PayloadSkipped(name, "empty")
		return OutcomeSkipped, nil
	}
	if in.MessageID != "" {
		first, err := e.tracker.FirstDelivery(ctx, name+":"+in.MessageID)
		if err != nil {
			e.log.Warn("delivery tracker degraded", "channel", name, "error", err)
		}
		if !first {
			metrics.RecordSkipped(name, string(OutcomeDuplicate))
			e.log.PayloadSkipped(name, string(OutcomeDuplicate))
			return OutcomeDuplicate, nil
		}
	}

	unlock := e.locks.Lock(in.Key.String())
	defer unlock()

	log := e.log.WithConversation(in.Key.String()).WithChannel(name)
	conv := e.store.Get(ctx, in.Key)
	now := e.now()

	text, media := e.collect(ctx, in, log)
	if text == "" {
		return e.bufferMedia(ctx, conv, in, media, now, log)
	}

	pending := media
	if conv.MediaFresh(now, e.cfg.MediaFreshness) {
		pending = append(append([]conversation.MediaRef(nil), conv.PendingMedia...), media...)
	}
	return e.reply(ctx, conv, in, text, pending, now, log)
}

// collect returns the turn text, including voice transcripts, and the media
// left to buffer.
func (e *Engine) collect(ctx context.Context, in channel.Inbound, log *logger.Logger) (string, []conversation.MediaRef) {
	parts := make([]string, 0, 1+len(in.Media))
	if text := sanitize.Text(in.Text); text != "" {
		parts = append(parts, text)
	}

	var media []conversation.MediaRef
	for _, ref := range in.Media {
		if ref.Kind == conversation.MediaVoice && e.transcriber != nil {
			transcript, err := e.transcriber.Transcribe(ctx, in.Key, ref)
			if err != nil {
				log.Warn("voice transcription failed", "error", err)
			} else if transcript = sanitize.Text(transcript); transcript != "" {
				parts = append(parts, transcript)
				continue
			}
		}
		media = append(media, e.archive(ctx, in.Key, ref, log))
	}
	return strings.Join(parts, "\n"), media
}

func (e *Engine) archive(ctx context.Context, key conversation.Key, ref conversation.MediaRef, log *logger.Logger) conversation.MediaRef {
	if e.archiver == nil {
		return ref
	}
	archived, err := e.archiver.Archive(ctx, key, ref)
	if err != nil {
		log.Warn("media archive failed", "kind", string(ref.Kind), "error", err)
		return ref
	}
	return archived
}

// bufferMedia handles a media-only event: the media waits for the next text
// turn and the sender gets one acknowledgment per freshness window. The ack
// is claimed inside the store update so concurrent bursts cannot both send.
func (e *Engine) bufferMedia(ctx context.Context, conv *conversation.Conversation, in channel.Inbound, media []conversation.MediaRef, now time.Time, log *logger.Logger) (Outcome, error) {
	window := e.cfg.MediaFreshness
	claimed := false
	updated, err := e.store.Update(ctx, in.Key, func(c *conversation.Conversation) error {
		claimed = false
		if !c.MediaFresh(now, window) {
			c.PendingMedia = nil
		}
		c.PendingMedia = append(c.PendingMedia, media...)
		if now.After(c.LastMediaAt) {
			c.LastMediaAt = now
		}
		if now.After(c.LastInboundAt) {
			c.LastInboundAt = now
		}
		if c.MediaAckAt.IsZero() || now.Sub(c.MediaAckAt) > window {
			c.MediaAckAt = now
			claimed = true
		}
		c.UpdatedAt = now
		return nil
	})
	if err != nil && updated == nil {
		updated = conv
	}
	if !claimed {
		return OutcomeMediaBuffered, nil
	}

	lang := e.language(updated, in, "")
	ack := e.guard.Copy().MediaAck(lang)
	if sendErr := e.sender.Deliver(ctx, in.Key, ack); sendErr != nil {
		return OutcomeSendFailed, sendErr
	}

	sentAt := e.now()
	patch := conversation.Patch{
		Append:         []conversation.Message{{Role: conversation.RoleOutbound, Text: ack, At: sentAt}},
		LastOutboundAt: &sentAt,
	}
	// Without text only an explicit hint says anything about the language.
	if in.LanguageHint != "" {
		patch.Language = &lang
	}
	if _, err := e.store.Merge(ctx, in.Key, patch); err != nil {
		log.Debug("media ack persisted locally only", "error", err)
	}
	return OutcomeMediaAcked, nil
}

func (e *Engine) reply(ctx context.Context, conv *conversation.Conversation, in channel.Inbound, text string, media []conversation.MediaRef, now time.Time, log *logger.Logger) (Outcome, error) {
	name := in.Key.Channel
	lang := e.language(conv, in, text)
	turns := conv.InboundTurns + 1

	found, hasFound := contact.Extract(text, e.cfg.Region)

	current := conv.Stage
	leadCaptured := !conv.LeadCapturedAt.IsZero()
	draft := conv.ContactDraft
	stage, reopened := funnel.Reopen(current, text, e.cfg.Reopen)
	if reopened {
		current = stage
		leadCaptured = false
		draft = ""
	}
	hasContact := hasFound || draft != ""

	recent := conv.RecentOutbound(e.cfg.ContactAskLookback)
	recentAsk := false
	for _, msg := range recent {
		if guard.AsksForContact(msg) {
			recentAsk = true
			break
		}
	}

	result := funnel.Evaluate(funnel.Input{
		Text:             text,
		InboundTurns:     turns,
		Current:          current,
		HasContact:       hasContact,
		LeadCaptured:     leadCaptured,
		RecentContactAsk: recentAsk,
	}, e.cfg.Policy)

	facts := funnel.ExtractFacts(text)
	knownFacts := make(map[string]string, len(conv.Facts)+len(facts))
	for k, v := range facts {
		knownFacts[k] = v
	}
	for k, v := range conv.Facts {
		knownFacts[k] = v
	}

	intent := guard.ClassifyIntent(text)
	var outbound string
	if intent == guard.IntentSales && !hasFound && e.asksToResend(text, current, recentAsk) {
		outbound = e.guard.Copy().ResendContact(lang)
	} else {
		prompt := BuildPrompt(PromptInput{
			Channel:    name,
			Stage:      result.Stage,
			Readiness:  result.Readiness,
			Signals:    result.Signals,
			Language:   lang,
			Facts:      knownFacts,
			HasContact: hasContact,
			History:    conv.History,
			Text:       text,
			Media:      media,
		}, e.guard.Copy())
		raw := e.complete(ctx, prompt, name, log)

		guarded := e.guard.Run(guard.Input{
			Text:           raw,
			Stage:          result.Stage,
			Readiness:      result.Readiness,
			Intent:         intent,
			Channel:        name,
			Language:       lang,
			HasContact:     hasContact,
			PricingAsked:   hasSignal(result.Signals, funnel.SignalPricing),
			RecentOutbound: conv.RecentOutbound(5),
			Facts:          knownFacts,
		})
		if len(guarded.Flags) > 0 {
			log.QualityFlags(name, string(result.Stage), guarded.Flags)
			metrics.RecordQualityFlags(name, guarded.Flags)
		}
		outbound = guarded.Text
	}

	sendErr := e.sender.Deliver(ctx, in.Key, outbound)
	sentAt := e.now()

	history := []conversation.Message{{Role: conversation.RoleInbound, Text: text, At: now}}
	patch := conversation.Patch{
		Language:          &lang,
		PendingMedia:      &[]conversation.MediaRef{},
		Stage:             &result.Stage,
		ForceStage:        reopened,
		Readiness:         &result.Readiness,
		InboundTurns:      1,
		Facts:             facts,
		LastInboundAt:     &now,
		ClearLeadCaptured: reopened,
		ClearContact:      reopened && !hasFound,
	}
	if hasFound {
		kind := string(found.Kind)
		patch.ContactDraft = &found.Value
		patch.ContactKind = &kind
	}
	if sendErr == nil {
		history = append(history, conversation.Message{Role: conversation.RoleOutbound, Text: outbound, At: sentAt})
		patch.LastOutboundAt = &sentAt
	}
	patch.Append = history

	merged, err := e.store.Merge(ctx, in.Key, patch)
	if err != nil {
		log.Debug("turn persisted locally only", "error", err)
	}

	e.captureLead(ctx, conv, merged, found, hasFound, lang, log)

	if sendErr != nil {
		return OutcomeSendFailed, sendErr
	}
	return OutcomeReplied, nil
}

// complete calls the replier with a hard deadline. Any failure resolves to an
// empty string, which the guard turns into the fallback line.
func (e *Engine) complete(ctx context.Context, prompt Prompt, name string, log *logger.Logger) string {
	if e.replier == nil {
		metrics.ModelFallbacks.WithLabelValues(name, "unconfigured").Inc()
		return ""
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	defer cancel()

	type completion struct {
		text string
		err  error
	}
	done := make(chan completion, 1)
	start := time.Now()
	go func() {
		text, err := e.replier.Reply(callCtx, prompt)
		done <- completion{text: text, err: err}
	}()

	var res completion
	select {
	case res = <-done:
	case <-callCtx.Done():
		res.err = callCtx.Err()
	}
	metrics.ModelLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(res.err, context.DeadlineExceeded):
		metrics.ModelFallbacks.WithLabelValues(name, "timeout").Inc()
		log.Warn("model call timed out", "timeout", e.cfg.ModelTimeout.String())
		return ""
	case res.err != nil:
		metrics.ModelFallbacks.WithLabelValues(name, "error").Inc()
		log.Warn("model call failed", "error", res.err)
		return ""
	case strings.TrimSpace(res.text) == "":
		metrics.ModelFallbacks.WithLabelValues(name, "empty").Inc()
		return ""
	}
	return res.text
}

// asksToResend reports a malformed contact at a point where one is expected.
func (e *Engine) asksToResend(text string, stage funnel.Stage, recentAsk bool) bool {
	if !contact.LooksMalformed(text) {
		return false
	}
	return recentAsk || !stage.Before(funnel.StageAskContact) || strings.Contains(text, "@")
}

// captureLead hands a contact to the lead service when one was just found and
// differs from what was captured, or when the funnel reached the contact
// stage with a stored draft that was never captured.
func (e *Engine) captureLead(ctx context.Context, before, merged *conversation.Conversation, found contact.Contact, hasFound bool, lang string, log *logger.Logger) {
	if e.leads == nil || merged == nil {
		return
	}

	var candidate contact.Contact
	switch {
	case hasFound && (merged.LeadCapturedAt.IsZero() || found.Value != before.ContactDraft):
		candidate = found
	case !hasFound && merged.ContactDraft != "" && merged.LeadCapturedAt.IsZero() && !merged.Stage.Before(funnel.StageAskContact):
		candidate = contact.Contact{Value: merged.ContactDraft, Kind: contact.Kind(merged.ContactKind)}
	default:
		return
	}

	if _, err := e.leads.Capture(ctx, leads.CaptureRequest{
		Key:      merged.Key,
		Contact:  candidate,
		Language: lang,
		Snapshot: snapshot(merged.History, snapshotTurns),
		Facts:    merged.Facts,
	}); err != nil {
		log.Error("lead capture failed", "error", err)
	}
}

// language keeps an inferred language once set; an explicit channel hint
// always wins. Languages without copy fall back to the copy default.
func (e *Engine) language(conv *conversation.Conversation, in channel.Inbound, text string) string {
	lang := conv.Language
	if in.LanguageHint != "" || lang == "" {
		lang = guard.DetectLanguage(text, in.LanguageHint)
	}
	c := e.guard.Copy()
	if _, ok := c.Languages[lang]; !ok {
		return c.DefaultLanguage
	}
	return lang
}

func hasSignal(signals []string, want string) bool {
	for _, s := range signals {
		if s == want {
			return true
		}
	}
	return false
}

// snapshot joins the last n inbound texts, oldest first.
func snapshot(history []conversation.Message, n int) string {
	var picked []string
	for i := len(history) - 1; i >= 0 && len(picked) < n; i-- {
		if history[i].Role == conversation.RoleInbound {
			picked = append(picked, history[i].Text)
		}
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return strings.Join(picked, " | ")
}
