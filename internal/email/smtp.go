package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/DukeRupert/mailprobe/internal/domain"
)

// =============================================================================
// SMTP Transport Implementation
// =============================================================================

// ImplicitTLSPort is the SMTPS port; connections there start with TLS instead
// of upgrading with STARTTLS.
const ImplicitTLSPort = 465

// SMTPOptions tunes the SMTP transport.
type SMTPOptions struct {
	// Timeout bounds one delivery (dial through QUIT). Zero uses DefaultTimeout.
	Timeout time.Duration

	// RequireTLS fails delivery when the server does not offer STARTTLS.
	// Disable only for local capture servers such as Mailhog.
	RequireTLS bool

	// HelloName is sent in EHLO. Empty uses "localhost".
	HelloName string
}

// SMTPTransport submits mail over SMTP using the relay credentials from the
// active configuration snapshot.
//
// This implementation works with:
// - SES SMTP endpoints (STARTTLS on 587/2587, implicit TLS on 465)
// - Mailhog and similar capture servers in development (RequireTLS=false)
// - Any standard submission server
type SMTPTransport struct {
	opts SMTPOptions
}

// NewSMTPTransport creates a new SMTP transport.
func NewSMTPTransport(opts SMTPOptions) *SMTPTransport {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HelloName == "" {
		opts.HelloName = "localhost"
	}
	return &SMTPTransport{opts: opts}
}

// Name implements Transport.
func (t *SMTPTransport) Name() string {
	return "smtp"
}

// Deliver implements Transport.
func (t *SMTPTransport) Deliver(ctx context.Context, cfg domain.SMTPConfig, msg Message) (string, error) {
	messageID := NewMessageID(cfg.FromDomain())
	raw, err := BuildMIME(cfg, msg, messageID, time.Now())
	if err != nil {
		return "", fmt.Errorf("build message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	client, err := t.connect(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer client.Close()

	if err := client.Mail(cfg.FromEmail); err != nil {
		return "", fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return "", fmt.Errorf("RCPT TO rejected: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("message rejected: %w", err)
	}

	// The message is accepted once DATA completes; a failed QUIT does not undo it.
	_ = client.Quit()

	return messageID, nil
}

// Probe implements Prober. It connects, negotiates TLS, authenticates, and
// quits without sending anything.
func (t *SMTPTransport) Probe(ctx context.Context, cfg domain.SMTPConfig) error {
	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	client, err := t.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Quit()
}

// connect dials the relay, upgrades to TLS, and authenticates. The returned
// client is bound to ctx's deadline.
func (t *SMTPTransport) connect(ctx context.Context, cfg domain.SMTPConfig) (*smtp.Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is not configured")
	}

	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	var conn net.Conn
	var err error
	if cfg.Port == ImplicitTLSPort {
		dialer := &tls.Dialer{Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", cfg.Addr())
	} else {
		dialer := &net.Dialer{}
		conn, err = dialer.DialContext(ctx, "tcp", cfg.Addr())
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Addr(), err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}

	if err := client.Hello(t.opts.HelloName); err != nil {
		client.Close()
		return nil, fmt.Errorf("EHLO rejected: %w", err)
	}

	if cfg.Port != ImplicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("STARTTLS failed: %w", err)
			}
		} else if t.opts.RequireTLS {
			client.Close()
			return nil, fmt.Errorf("server %s does not support STARTTLS", cfg.Host)
		}
	}

	if cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			client.Close()
			return nil, fmt.Errorf("server %s does not support AUTH", cfg.Host)
		}
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
	}

	return client, nil
}

// =============================================================================
// MIME Construction
// =============================================================================

// BuildMIME renders the full RFC 5322 message. HTML messages are sent as
// multipart/alternative with the plain-text part first.
func BuildMIME(cfg domain.SMTPConfig, msg Message, messageID string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", encodeAddress(cfg.FromName, cfg.FromEmail))
	writeHeader(&buf, "To", msg.To)
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", now.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", messageID)
	writeHeader(&buf, "MIME-Version", "1.0")

	if !msg.IsHTML() {
		writeHeader(&buf, "Content-Type", "text/plain; charset=utf-8")
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQuotedPrintable(&buf, msg.TextBody); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", msg.TextBody},
		{"text/html; charset=utf-8", msg.HTMLBody},
	}
	for _, p := range parts {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		if err := writeQuotedPrintable(pw, p.content); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	// Header injection guard: values never contain line breaks.
	value = strings.NewReplacer("\r", "", "\n", "").Replace(value)
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}

func encodeAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), addr)
}

func writeQuotedPrintable(w io.Writer, s string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(s)); err != nil {
		return err
	}
	return qp.Close()
}

// =============================================================================
// Compile-time interface check
// =============================================================================

var (
	_ Transport = (*SMTPTransport)(nil)
	_ Prober    = (*SMTPTransport)(nil)
)
