package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SMTPMailer submits messages through a fixed relay (host:port), with
// opportunistic STARTTLS and optional AUTH PLAIN.
type SMTPMailer struct {
	addr       string
	hostname   string
	username   string
	password   string
	from       string
	fromName   string
	timeout    time.Duration
	disableTLS bool
	logger     *zap.Logger
}

type SMTPOpts struct {
	Addr       string // relay host:port
	Hostname   string // HELO name
	Username   string
	Password   string
	From       string
	FromName   string
	Timeout    time.Duration
	DisableTLS bool
}

func NewSMTPMailer(opts SMTPOpts, logger *zap.Logger) *SMTPMailer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &SMTPMailer{
		addr:       opts.Addr,
		hostname:   opts.Hostname,
		username:   opts.Username,
		password:   opts.Password,
		from:       opts.From,
		fromName:   opts.FromName,
		timeout:    opts.Timeout,
		disableTLS: opts.DisableTLS,
		logger:     logger,
	}
}

var _ Mailer = (*SMTPMailer)(nil)

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	dialer := &net.Dialer{Timeout: m.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return &DeliveryError{Temporary: true, Message: fmt.Sprintf("connection failed to %s: %v", m.addr, err)}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.timeout))
	}

	host, _, err := net.SplitHostPort(m.addr)
	if err != nil {
		host = m.addr
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return &DeliveryError{Temporary: true, Message: fmt.Sprintf("SMTP client creation failed: %v", err)}
	}
	defer client.Close()

	if err := client.Hello(m.hostname); err != nil {
		return categorizeError(err, "HELO")
	}

	if !m.disableTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{
				ServerName: host,
				MinVersion: tls.VersionTLS12,
			}
			if err := client.StartTLS(tlsConfig); err != nil {
				return categorizeError(err, "STARTTLS")
			}
		}
	}

	if m.username != "" {
		auth := smtp.PlainAuth("", m.username, m.password, host)
		if err := client.Auth(auth); err != nil {
			return categorizeError(err, "AUTH")
		}
	}

	if err := client.Mail(m.from); err != nil {
		return categorizeError(err, "MAIL FROM")
	}
	if err := client.Rcpt(e.To); err != nil {
		return categorizeError(err, fmt.Sprintf("RCPT TO %s", e.To))
	}

	wc, err := client.Data()
	if err != nil {
		return categorizeError(err, "DATA")
	}

	data := buildMessage(m.from, m.fromName, e, time.Now())
	if _, err := bytes.NewReader(data).WriteTo(wc); err != nil {
		wc.Close()
		return &DeliveryError{Temporary: true, Message: fmt.Sprintf("failed to write message data: %v", err)}
	}
	if err := wc.Close(); err != nil {
		return categorizeError(err, "DATA close")
	}

	_ = client.Quit()

	m.logger.Debug("message submitted", zap.String("relay", m.addr), zap.String("to", e.To))
	return nil
}

// smtpCodePattern matches SMTP response codes at word boundaries
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError determines if an SMTP error is temporary or permanent.
func categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	matches := smtpCodePattern.FindStringSubmatch(err.Error())
	if len(matches) > 1 {
		code := matches[1]
		if strings.HasPrefix(code, "5") {
			return &DeliveryError{Temporary: false, Message: msg}
		}
		if strings.HasPrefix(code, "4") {
			return &DeliveryError{Temporary: true, Message: msg}
		}
	}

	return &DeliveryError{Temporary: true, Message: msg}
}
