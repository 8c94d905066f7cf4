// Package funnel computes the sales-funnel stage and readiness of a conversation.
// Everything here is deterministic and free of side effects.
package funnel

import (
	"fmt"
	"strings"
)

// Stage is the canonical, totally ordered funnel tag.
type Stage string

const (
	StageNew        Stage = "NEW"
	StageQualify    Stage = "QUALIFY"
	StageOffer      Stage = "OFFER"
	StageAskContact Stage = "ASK_CONTACT"
	StageCollected  Stage = "COLLECTED"
	StageDone       Stage = "DONE"
)

var stageOrder = []Stage{StageNew, StageQualify, StageOffer, StageAskContact, StageCollected, StageDone}

// channelAliases maps channel-specific intake labels onto the canonical enum.
var channelAliases = map[string]Stage{
	"qualification": StageQualify,
	"urgency":       StageQualify,
	"offer":         StageOffer,
	"commitment":    StageAskContact,
	"contact":       StageAskContact,
	"conversion":    StageCollected,
	"closed":        StageDone,
}

// Stages returns the canonical stages in funnel order.
func Stages() []Stage {
	return append([]Stage(nil), stageOrder...)
}

// Rank returns the position of s in the funnel; unknown stages rank as NEW.
func (s Stage) Rank() int {
	for i, candidate := range stageOrder {
		if candidate == s {
			return i
		}
	}
	return 0
}

// Valid reports whether s is a canonical stage.
func (s Stage) Valid() bool {
	for _, candidate := range stageOrder {
		if candidate == s {
			return true
		}
	}
	return false
}

// Next returns the following stage; DONE is terminal.
func (s Stage) Next() Stage {
	rank := s.Rank()
	if rank >= len(stageOrder)-1 {
		return StageDone
	}
	return stageOrder[rank+1]
}

// Before reports whether s comes strictly before other.
func (s Stage) Before(other Stage) bool {
	return s.Rank() < other.Rank()
}

// Max returns the later of the two stages.
func Max(a, b Stage) Stage {
	if a.Before(b) {
		return b
	}
	return a
}

// ParseStage accepts canonical names (any case) and known channel aliases.
func ParseStage(raw string) (Stage, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		return StageNew, nil
	}
	candidate := Stage(strings.ToUpper(normalized))
	if candidate.Valid() {
		return candidate, nil
	}
	if alias, ok := channelAliases[strings.ToLower(normalized)]; ok {
		return alias, nil
	}
	return StageNew, fmt.Errorf("unknown funnel stage %q", raw)
}
