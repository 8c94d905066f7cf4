package funnel

import (
	"regexp"
	"strings"
)

// Policy holds the thresholds of the stage engine.
type Policy struct {
	// MinTurnsFloor is the inbound turn count required before any advance.
	MinTurnsFloor int
	// TurnCeiling forces ASK_CONTACT once exceeded without a known contact.
	TurnCeiling int
	// EntryReadiness is the readiness needed to enter each readiness-driven stage.
	EntryReadiness map[Stage]int
}

// DefaultPolicy returns the thresholds used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinTurnsFloor: 1,
		TurnCeiling:   8,
		EntryReadiness: map[Stage]int{
			StageQualify:    1,
			StageOffer:      2,
			StageAskContact: 3,
		},
	}
}

// Input is one turn as seen by the engine.
type Input struct {
	Text             string
	InboundTurns     int
	Current          Stage
	HasContact       bool
	LeadCaptured     bool
	RecentContactAsk bool
}

// Result is the engine's decision for one turn.
type Result struct {
	Stage     Stage
	Readiness int
	Signals   []string
	Forced    bool
}

// Evaluate computes the next stage. The result never ranks below in.Current.
func Evaluate(in Input, p Policy) Result {
	current := in.Current
	if !current.Valid() {
		current = StageNew
	}

	readiness, signals := Score(in.Text, in.InboundTurns)
	res := Result{Stage: current, Readiness: readiness, Signals: signals}

	switch {
	case in.HasContact && current.Before(StageCollected):
		res.Stage = StageCollected
	case current == StageCollected && in.LeadCaptured:
		res.Stage = StageDone
	case current.Before(StageAskContact):
		next := current.Next()
		required, ok := p.EntryReadiness[next]
		if ok && readiness >= required && in.InboundTurns >= p.MinTurnsFloor {
			res.Stage = next
		}
		if p.TurnCeiling > 0 && in.InboundTurns > p.TurnCeiling && !in.HasContact && !in.RecentContactAsk && res.Stage.Before(StageAskContact) {
			res.Stage = StageAskContact
			res.Forced = true
		}
	}

	res.Stage = Max(current, res.Stage)
	return res
}

// ReopenPredicate decides whether a turn asks to redo contact collection.
type ReopenPredicate func(text string) bool

var reopenPattern = regexp.MustCompile(`(?i)\b(new|another|different|wrong|updated?|correct(ed)?)\s+(number|phone|email|e-mail|contact)\b|\b(resend|re-send|change (my )?(number|email|contact))\b|нов(ый|ая|ую)\s+(номер|почт|контакт)|другой\s+(номер|контакт)|неправильн`)

// DefaultReopenPredicate matches phrases like "wrong number" or "new email".
func DefaultReopenPredicate(text string) bool {
	return reopenPattern.MatchString(strings.ToLower(text))
}

// Reopen applies the explicit override: a conversation at COLLECTED or later
// returns to ASK_CONTACT when pred matches. It reports whether it fired.
func Reopen(current Stage, text string, pred ReopenPredicate) (Stage, bool) {
	if pred == nil || current.Before(StageCollected) {
		return current, false
	}
	if !pred(text) {
		return current, false
	}
	return StageAskContact, true
}
