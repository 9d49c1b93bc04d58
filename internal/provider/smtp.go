package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/contactsapp/message-dispatch/internal/config"
	"github.com/contactsapp/message-dispatch/internal/domain"
	"github.com/google/uuid"
)

// SMTPGateway delivers mail over a plain SMTP session with STARTTLS.
type SMTPGateway struct {
	server      string
	port        int
	username    string
	password    string
	senderEmail string
	senderName  string
}

func NewSMTPGateway(cfg config.EmailConfig) *SMTPGateway {
	return &SMTPGateway{
		server:      cfg.SMTPServer,
		port:        cfg.SMTPPort,
		username:    cfg.SMTPUsername,
		password:    cfg.SMTPPassword,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
	}
}

func (g *SMTPGateway) Name() string { return "smtp" }

// Deliver sends the message through the configured SMTP server. Missing
// credentials fail before any network attempt.
func (g *SMTPGateway) Deliver(ctx context.Context, out Outbound) (Result, error) {
	if g.username == "" || g.password == "" {
		return Result{}, &domain.ProviderError{
			Provider: g.Name(),
			Kind:     domain.KindConfigurationMissing,
			Err:      errors.New("SMTP credentials not configured"),
		}
	}

	addr := fmt.Sprintf("%s:%d", g.server, g.port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{}, g.connErr(err)
	}
	defer conn.Close()

	// The context deadline bounds the whole session, not just the dial.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, g.server)
	if err != nil {
		return Result{}, g.connErr(err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: g.server}); err != nil {
			return Result{}, g.connErr(err)
		}
	}

	auth := smtp.PlainAuth("", g.username, g.password, g.server)
	if err := c.Auth(auth); err != nil {
		return Result{}, &domain.ProviderError{
			Provider: g.Name(),
			Kind:     domain.KindAuthenticationFailed,
			Err:      err,
		}
	}

	if err := c.Mail(g.senderEmail); err != nil {
		return Result{}, g.rejectErr(err)
	}
	if err := c.Rcpt(out.Recipient); err != nil {
		return Result{}, g.rejectErr(err)
	}

	w, err := c.Data()
	if err != nil {
		return Result{}, g.rejectErr(err)
	}
	if _, err := w.Write([]byte(g.compose(out))); err != nil {
		return Result{}, g.connErr(err)
	}
	if err := w.Close(); err != nil {
		return Result{}, g.rejectErr(err)
	}

	_ = c.Quit()

	// SMTP has no server-assigned id to hand back; mint one so the
	// metadata contract holds across providers.
	return Result{ProviderMessageID: uuid.NewString()}, nil
}

func (g *SMTPGateway) compose(out Outbound) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", g.senderName, g.senderEmail)
	fmt.Fprintf(&b, "To: %s\r\n", out.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", out.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(out.Body)
	b.WriteString("\r\n")
	return b.String()
}

func (g *SMTPGateway) connErr(err error) error {
	return &domain.ProviderError{
		Provider: g.Name(),
		Kind:     domain.KindConnectionFailed,
		Err:      err,
	}
}

func (g *SMTPGateway) rejectErr(err error) error {
	return &domain.ProviderError{
		Provider: g.Name(),
		Kind:     domain.KindRejected,
		Err:      err,
	}
}
