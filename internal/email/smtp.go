// Package email sends the owner's lead summary by SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"salesbot_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// LeadSummary is the content of one owner email.
type LeadSummary struct {
	Updated         bool
	ContactValue    string
	ContactKind     string
	Channel         string
	Language        string
	ConversationKey string
	Snapshot        string
	Facts           map[string]string
}

type Sender interface {
	SendLeadSummary(ctx context.Context, toEmail string, lead LeadSummary) error
}

type NoopSender struct{}

func (NoopSender) SendLeadSummary(context.Context, string, LeadSummary) error { return nil }

// SMTPSender implements Sender using a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

// NewSMTPSenderFromConfig returns NoopSender when SMTP is not configured.
func NewSMTPSenderFromConfig(cfg config.SMTPConfig) Sender {
	if !cfg.IsSMTPEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
		cfg.GetSMTPFromAddress(), cfg.GetSMTPFromName())
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendLeadSummary(ctx context.Context, toEmail string, lead LeadSummary) error {
	subject, content, err := renderLeadSummary(lead)
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

func renderLeadSummary(lead LeadSummary) (string, string, error) {
	subjectFmt, heading := subjectLeadNewFmt, "New lead"
	if lead.Updated {
		subjectFmt, heading = subjectLeadUpdatedFmt, "Lead updated"
	}
	subject := fmt.Sprintf(subjectFmt, lead.Channel, lead.ContactValue)

	content, err := renderEmailTemplate("lead_summary.html", leadSummaryEmailData{
		baseEmailData: baseEmailData{
			Title:      subject,
			Heading:    heading,
			Subheading: fmt.Sprintf("Captured from a %s conversation", lead.Channel),
		},
		ContactValue:    lead.ContactValue,
		ContactKind:     lead.ContactKind,
		Channel:         lead.Channel,
		Language:        lead.Language,
		ConversationKey: lead.ConversationKey,
		Snapshot:        lead.Snapshot,
		Facts:           factRows(lead.Facts),
	})
	if err != nil {
		return "", "", err
	}
	return subject, content, nil
}
