package funnel

import (
	"regexp"
	"strings"
)

// Signal names reported alongside a readiness score.
const (
	SignalUrgency    = "urgency"
	SignalPricing    = "pricing"
	SignalBuying     = "buying_intent"
	SignalEngaged    = "engaged"
	SignalLongThread = "long_thread"
)

var (
	urgencyPattern = regexp.MustCompile(`(?i)\b(asap|urgent(ly)?|today|tomorrow|this week|right now|quickly|deadline)\b|срочно|сегодня|завтра|быстро|на этой неделе`)
	pricingPattern = regexp.MustCompile(`(?i)\b(price|prices|pricing|cost|costs|how much|package|packages|plan|plans|tariff|rate|budget|quote)\b|цен|стоимост|сколько|пакет|тариф|бюджет`)
	buyingPattern  = regexp.MustCompile(`(?i)\b(let'?s (do|start|go)|sign (me )?up|i('m| am) ready|ready to (start|buy|go)|how (do|can) i (pay|start|order)|i('ll| will) take|book (a )?call)\b|готов|давайте начн|хочу заказать|как оплатить|беру`)
)

// Score returns a readiness ordinal for one turn plus the signals that fired.
// Each signal family counts once per turn.
func Score(text string, inboundTurns int) (int, []string) {
	score := 0
	signals := make([]string, 0, 4)
	lowered := strings.ToLower(text)

	if urgencyPattern.MatchString(lowered) {
		score++
		signals = append(signals, SignalUrgency)
	}
	if pricingPattern.MatchString(lowered) {
		score += 2
		signals = append(signals, SignalPricing)
	}
	if buyingPattern.MatchString(lowered) {
		score += 2
		signals = append(signals, SignalBuying)
	}
	if inboundTurns >= 3 {
		score++
		signals = append(signals, SignalEngaged)
	}
	if inboundTurns >= 5 {
		score++
		signals = append(signals, SignalLongThread)
	}
	return score, signals
}
