// Package guard post-processes model completions into replies that are safe
// to send: no repeated intro, no banned phrasing, a catalog that matches the
// real packages, one call-to-action and a channel-appropriate length.
package guard

import (
	"sort"
	"strings"

	"salesbot_backend/internal/funnel"
	"salesbot_backend/platform/sanitize"
)

// Quality flags reported by FlagQuality.
const (
	FlagEmptyCompletion  = "empty_completion"
	FlagFallback         = "fallback"
	FlagBannedPhrase     = "banned_phrase"
	FlagCatalogCorrected = "catalog_corrected"
	FlagOverlength       = "overlength"
	FlagNoCTA            = "no_cta"
	FlagMissingFacts     = "missing_facts"
)

// Input is everything the guard needs for one reply.
type Input struct {
	Text           string
	Stage          funnel.Stage
	Readiness      int
	Intent         Intent
	Channel        string
	Language       string
	HasContact     bool
	PricingAsked   bool
	RecentOutbound []string
	Facts          map[string]string
}

// Result is the guarded reply.
type Result struct {
	Text         string
	Flags        []string
	Changed      []string
	UsedFallback bool
}

// Step is one ordered transform.
type Step struct {
	Name  string
	Apply func(text string, in Input) string
}

// Pipeline runs the guard steps against a Copy.
type Pipeline struct {
	copy *Copy
}

// NewPipeline creates a pipeline; a nil copy uses DefaultCopy.
func NewPipeline(c *Copy) *Pipeline {
	if c == nil {
		c = DefaultCopy()
	}
	return &Pipeline{copy: c}
}

// Copy exposes the business copy the pipeline was built with.
func (p *Pipeline) Copy() *Copy { return p.copy }

// Steps returns the transforms in execution order.
func (p *Pipeline) Steps() []Step {
	return []Step{
		{Name: "StripDuplicateIntro", Apply: p.StripDuplicateIntro},
		{Name: "StripBanned", Apply: p.StripBanned},
		{Name: "EnforceCatalog", Apply: p.EnforceCatalog},
		{Name: "FixIncompleteDetails", Apply: p.FixIncompleteDetails},
		{Name: "EnsureCTA", Apply: p.EnsureCTA},
		{Name: "EnforceLength", Apply: p.EnforceLength},
	}
}

// Run guards in.Text. The result is never empty. Support requests only get
// the length constraint.
func (p *Pipeline) Run(in Input) Result {
	lang := p.language(in.Language)
	in.Language = lang

	res := Result{}
	text := normalize(in.Text)
	if text == "" {
		text = normalize(p.copy.Fallback(lang))
		res.UsedFallback = true
	}

	if in.Intent == IntentSupport {
		text = p.EnforceLength(text, in)
		res.Text = text
		res.Flags = p.FlagQuality(in, res)
		return res
	}

	for _, step := range p.Steps() {
		next := step.Apply(text, in)
		if next == "" {
			next = normalize(p.copy.Fallback(lang))
			res.UsedFallback = true
		}
		if next != text {
			res.Changed = append(res.Changed, step.Name)
		}
		text = next
	}
	res.Text = text
	res.Flags = p.FlagQuality(in, res)
	return res
}

// StripDuplicateIntro removes self-introductions once one has been sent.
func (p *Pipeline) StripDuplicateIntro(text string, in Input) string {
	markers := p.introMarkers()
	introduced := false
	for _, prev := range in.RecentOutbound {
		if containsAny(strings.ToLower(prev), markers) {
			introduced = true
			break
		}
	}
	if !introduced {
		return text
	}
	return filterSentences(text, func(s string) bool {
		return !containsAny(strings.ToLower(s), markers)
	})
}

// StripBanned removes sentences carrying templated phrasing.
func (p *Pipeline) StripBanned(text string, _ Input) string {
	banned := p.bannedPhrases()
	return filterSentences(text, func(s string) bool {
		return !containsAny(strings.ToLower(s), banned)
	})
}

// EnforceCatalog keeps quoted prices consistent with the canonical packages.
// Sentences quoting a price for an unknown offering, or the wrong price for a
// known one, are dropped; every package not correctly quoted is appended.
// It only runs when the reply quotes a price or the user asked for one.
func (p *Pipeline) EnforceCatalog(text string, in Input) string {
	if !catalogApplies(text, in) {
		return text
	}
	text, present := p.quotedPackages(text)
	return joinBlocks(text, p.catalogBlock(in.Language, present))
}

func catalogApplies(text string, in Input) bool {
	return len(priceAmounts(text)) > 0 || in.PricingAsked
}

// quotedPackages drops price sentences that disagree with the catalog and
// reports which packages the rest quotes correctly.
func (p *Pipeline) quotedPackages(text string) (string, map[string]bool) {
	present := map[string]bool{}
	text = filterSentences(text, func(s string) bool {
		amounts := priceAmounts(s)
		if len(amounts) == 0 {
			return true
		}
		mentioned := p.mentionedPackages(s)
		if len(mentioned) == 0 {
			return false
		}
		for _, pkg := range mentioned {
			if !amounts[priceAmount(pkg.Price)] {
				return false
			}
		}
		for _, pkg := range mentioned {
			present[pkg.Name] = true
		}
		return true
	})
	return text, present
}

// catalogBlock renders canonical lines for every package not in present. The
// header is only used when nothing was quoted.
func (p *Pipeline) catalogBlock(lang string, present map[string]bool) string {
	lang = p.language(lang)
	var lines []string
	for _, pkg := range p.copy.Packages {
		if !present[pkg.Name] {
			lines = append(lines, p.copy.CatalogLine(lang, pkg))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	if len(present) == 0 {
		if header := p.copy.Lang(lang).CatalogHeader; header != "" {
			lines = append([]string{header}, lines...)
		}
	}
	return strings.Join(lines, "\n")
}

// isCatalogLine reports whether line is the header or a canonical package line.
func (p *Pipeline) isCatalogLine(lang, line string) bool {
	lang = p.language(lang)
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if line == p.copy.Lang(lang).CatalogHeader {
		return true
	}
	for _, pkg := range p.copy.Packages {
		if line == normalize(p.copy.CatalogLine(lang, pkg)) {
			return true
		}
	}
	return false
}

// FixIncompleteDetails drops placeholder sentences and repairs a dangling
// ending left by a cut-off completion.
func (p *Pipeline) FixIncompleteDetails(text string, _ Input) string {
	text = filterSentences(text, func(s string) bool {
		return !placeholderPattern.MatchString(s)
	})

	lines := strings.Split(text, "\n")
	for len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if last == "" || strings.HasSuffix(last, ":") {
			lines = lines[:len(lines)-1]
			continue
		}
		break
	}
	if len(lines) == 0 {
		return ""
	}

	last := lines[len(lines)-1]
	switch {
	case strings.HasSuffix(last, "...") || strings.HasSuffix(last, "…"):
		last = strings.TrimRight(last, " .…") + "."
	case strings.ContainsAny(last[len(last)-1:], ",;-"), strings.HasSuffix(last, "–"), strings.HasSuffix(last, "—"):
		last = strings.TrimRight(last, " ,;-–—") + "."
	}
	if r := []rune(last); len(r) > 0 && isWordRune(r[len(r)-1]) {
		last += "."
	}
	lines[len(lines)-1] = last
	return normalize(strings.Join(lines, "\n"))
}

// EnsureCTA leaves exactly one stage-appropriate call-to-action at the end.
// A closing question from the model counts, except when the stage calls for
// a contact and the question does not ask for one.
func (p *Pipeline) EnsureCTA(text string, in Input) string {
	cta := p.ctaFor(in)
	if cta == "" {
		return text
	}
	known := p.copy.allCTAs()
	text = filterSentences(text, func(s string) bool {
		for _, c := range known {
			if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(c)) {
				return false
			}
		}
		return true
	})

	if last := lastSentence(text); strings.HasSuffix(last, "?") {
		if p.ctaStage(in) != funnel.StageAskContact || AsksForContact(last) {
			return text
		}
	}
	if text == "" {
		return cta
	}
	return text + "\n\n" + cta
}

// EnforceLength applies the channel format and trims whole sentences from the
// end of the body until it fits. A trailing CTA and the package catalog are
// never trimmed; body text goes first.
func (p *Pipeline) EnforceLength(text string, in Input) string {
	limits := p.copy.Limits(in.Channel)
	if limits.StripMarkdown {
		text = normalize(stripMarkdown(text))
	}
	if runeLen(text) <= limits.MaxRunes {
		return text
	}

	tail := ""
	body := text
	if cta := p.ctaFor(in); cta != "" && in.Intent != IntentSupport && strings.HasSuffix(text, cta) {
		tail = cta
		body = strings.TrimSpace(strings.TrimSuffix(text, cta))
	}

	priced := in.Intent != IntentSupport && catalogApplies(body, in)
	reserve := 0
	if tail != "" {
		reserve += runeLen(tail) + 2
	}
	if priced {
		body = p.withoutCatalogLines(body, in.Language)
		reserve += runeLen(p.catalogBlock(in.Language, nil)) + 2
	}
	budget := limits.MaxRunes - reserve

	if !priced {
		if budget <= 0 {
			return sanitize.Truncate(tail, limits.MaxRunes)
		}
		trimmed := trimToBudget(body, budget)
		if trimmed == "" {
			trimmed = sanitize.Truncate(body, budget)
		}
		return joinBlocks(trimmed, tail)
	}

	trimmed := ""
	if budget > 0 {
		trimmed = trimToBudget(body, budget)
	}
	trimmed, present := p.quotedPackages(trimmed)
	out := joinBlocks(joinBlocks(trimmed, p.catalogBlock(in.Language, present)), tail)
	if runeLen(out) > limits.MaxRunes {
		out = p.catalogBlock(in.Language, nil)
		if runeLen(out) > limits.MaxRunes {
			out = sanitize.Truncate(out, limits.MaxRunes)
		}
	}
	return out
}

func (p *Pipeline) withoutCatalogLines(text, lang string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if !p.isCatalogLine(lang, line) {
			out = append(out, line)
		}
	}
	return normalize(strings.Join(out, "\n"))
}

// trimToBudget keeps leading whole sentences while the text fits in budget.
func trimToBudget(body string, budget int) string {
	var kept []string
	fits := func(lines []string, cur string) bool {
		all := append(append([]string(nil), lines...), cur)
		return runeLen(normalize(strings.Join(all, "\n"))) <= budget
	}
	for _, line := range strings.Split(body, "\n") {
		current := ""
		done := false
		for _, s := range splitSentences(line) {
			candidate := s
			if current != "" {
				candidate = current + " " + s
			}
			if !fits(kept, candidate) {
				done = true
				break
			}
			current = candidate
		}
		kept = append(kept, current)
		if done {
			break
		}
	}
	return normalize(strings.Join(kept, "\n"))
}

func joinBlocks(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}

// FlagQuality reports non-blocking findings about a guarded reply.
func (p *Pipeline) FlagQuality(in Input, res Result) []string {
	var flags []string
	if strings.TrimSpace(in.Text) == "" {
		flags = append(flags, FlagEmptyCompletion)
	}
	if res.UsedFallback {
		flags = append(flags, FlagFallback)
	}
	for _, name := range res.Changed {
		switch name {
		case "StripBanned":
			flags = append(flags, FlagBannedPhrase)
		case "EnforceCatalog":
			flags = append(flags, FlagCatalogCorrected)
		}
	}
	if runeLen(normalize(in.Text)) > p.copy.Limits(in.Channel).MaxRunes {
		flags = append(flags, FlagOverlength)
	}
	if in.Intent != IntentSupport {
		cta := p.ctaFor(in)
		if !strings.HasSuffix(res.Text, cta) && !strings.HasSuffix(lastSentence(res.Text), "?") {
			flags = append(flags, FlagNoCTA)
		}
		if !in.Stage.Before(funnel.StageOffer) && in.Facts[funnel.FactBusinessType] == "" {
			flags = append(flags, FlagMissingFacts)
		}
	}
	sort.Strings(flags)
	return flags
}

func (p *Pipeline) ctaStage(in Input) funnel.Stage {
	stage := in.Stage
	if !stage.Valid() {
		stage = funnel.StageNew
	}
	if in.HasContact && stage.Before(funnel.StageCollected) {
		return funnel.StageCollected
	}
	return stage
}

func (p *Pipeline) ctaFor(in Input) string {
	return p.copy.CTA(p.language(in.Language), p.ctaStage(in))
}

func (p *Pipeline) language(lang string) string {
	if _, ok := p.copy.Languages[lang]; ok {
		return lang
	}
	return p.copy.DefaultLanguage
}

func (p *Pipeline) mentionedPackages(sentence string) []Package {
	var out []Package
	for _, pkg := range p.copy.Packages {
		names := append([]string{pkg.Name}, pkg.Aliases...)
		for _, name := range names {
			if containsWord(sentence, name) {
				out = append(out, pkg)
				break
			}
		}
	}
	return out
}

func (p *Pipeline) introMarkers() []string {
	var out []string
	for _, lc := range p.copy.Languages {
		out = append(out, lc.IntroMarkers...)
	}
	return out
}

func (p *Pipeline) bannedPhrases() []string {
	var out []string
	for _, lc := range p.copy.Languages {
		out = append(out, lc.Banned...)
	}
	return out
}
