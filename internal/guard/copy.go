package guard

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"salesbot_backend/internal/funnel"
)

//go:embed default_copy.yaml
var defaultCopyYAML []byte

// Package is one canonical catalog entry.
type Package struct {
	Name    string            `yaml:"name"`
	Price   string            `yaml:"price"`
	Aliases []string          `yaml:"aliases"`
	Summary map[string]string `yaml:"summary"`
}

// ChannelLimits bounds outbound text for one channel.
type ChannelLimits struct {
	MaxRunes      int  `yaml:"max_runes"`
	StripMarkdown bool `yaml:"strip_markdown"`
}

// LanguageCopy is the per-language wording used by the guard and by the
// follow-up and notification paths.
type LanguageCopy struct {
	CatalogHeader string            `yaml:"catalog_header"`
	CatalogLine   string            `yaml:"catalog_line"`
	IntroMarkers  []string          `yaml:"intro_markers"`
	Banned        []string          `yaml:"banned"`
	CTA           map[string]string `yaml:"cta"`
	Fallback      string            `yaml:"fallback"`
	MediaAck      string            `yaml:"media_ack"`
	FollowUp      string            `yaml:"follow_up"`
	ResendContact string            `yaml:"resend_contact"`
	OwnerSummary  string            `yaml:"owner_summary"`
}

// Copy is the full business copy.
type Copy struct {
	DefaultLanguage string                   `yaml:"default_language"`
	Packages        []Package                `yaml:"packages"`
	Channels        map[string]ChannelLimits `yaml:"channels"`
	Languages       map[string]LanguageCopy  `yaml:"languages"`
}

// DefaultCopy returns the built-in copy.
func DefaultCopy() *Copy {
	c, err := ParseCopy(defaultCopyYAML)
	if err != nil {
		panic(fmt.Sprintf("guard: invalid built-in copy: %v", err))
	}
	return c
}

// LoadCopy reads copy from path. An empty path yields DefaultCopy.
func LoadCopy(path string) (*Copy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCopy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guard copy: %w", err)
	}
	return ParseCopy(raw)
}

// ParseCopy decodes and validates YAML copy.
func ParseCopy(raw []byte) (*Copy, error) {
	var c Copy
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode guard copy: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Copy) validate() error {
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "en"
	}
	if _, ok := c.Languages[c.DefaultLanguage]; !ok {
		return fmt.Errorf("guard copy: default language %q has no copy", c.DefaultLanguage)
	}
	if len(c.Packages) == 0 {
		return fmt.Errorf("guard copy: catalog is empty")
	}
	for _, p := range c.Packages {
		if p.Name == "" || priceAmount(p.Price) == "" {
			return fmt.Errorf("guard copy: package %q needs a name and a price", p.Name)
		}
	}
	for lang, lc := range c.Languages {
		if strings.TrimSpace(lc.Fallback) == "" {
			return fmt.Errorf("guard copy: language %q has no fallback", lang)
		}
		for _, stage := range funnel.Stages() {
			if strings.TrimSpace(lc.CTA[string(stage)]) == "" {
				return fmt.Errorf("guard copy: language %q has no CTA for %s", lang, stage)
			}
		}
	}
	if c.Channels == nil {
		c.Channels = map[string]ChannelLimits{}
	}
	return nil
}

// Lang returns the copy for lang, falling back to the default language.
func (c *Copy) Lang(lang string) LanguageCopy {
	if lc, ok := c.Languages[lang]; ok {
		return lc
	}
	return c.Languages[c.DefaultLanguage]
}

// Limits returns the limits for channel, falling back to "default".
func (c *Copy) Limits(channel string) ChannelLimits {
	if l, ok := c.Channels[channel]; ok && l.MaxRunes > 0 {
		return l
	}
	if l, ok := c.Channels["default"]; ok && l.MaxRunes > 0 {
		return l
	}
	return ChannelLimits{MaxRunes: 1000}
}

// Fallback is the graceful reply used when the model fails or times out.
func (c *Copy) Fallback(lang string) string { return c.Lang(lang).Fallback }

// MediaAck is the short acknowledgment for a media burst without text.
func (c *Copy) MediaAck(lang string) string { return c.Lang(lang).MediaAck }

// ResendContact asks the user to resend a contact that failed to parse.
func (c *Copy) ResendContact(lang string) string { return c.Lang(lang).ResendContact }

// FollowUp renders the re-engagement template around the last human utterance.
func (c *Copy) FollowUp(lang, last string) string {
	return strings.ReplaceAll(c.Lang(lang).FollowUp, "{last}", last)
}

// OwnerSummary renders the owner notification line.
func (c *Copy) OwnerSummary(lang string, fields map[string]string) string {
	out := c.Lang(lang).OwnerSummary
	for k, v := range fields {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// CTA returns the call-to-action for stage.
func (c *Copy) CTA(lang string, stage funnel.Stage) string {
	return c.Lang(lang).CTA[string(stage)]
}

// CatalogLine renders the canonical line for p.
func (c *Copy) CatalogLine(lang string, p Package) string {
	lc := c.Lang(lang)
	summary := p.Summary[lang]
	if summary == "" {
		summary = p.Summary[c.DefaultLanguage]
	}
	return strings.NewReplacer("{name}", p.Name, "{price}", p.Price, "{summary}", summary).Replace(lc.CatalogLine)
}

func (c *Copy) allCTAs() []string {
	var out []string
	for _, lc := range c.Languages {
		for _, cta := range lc.CTA {
			out = append(out, cta)
		}
	}
	return out
}
