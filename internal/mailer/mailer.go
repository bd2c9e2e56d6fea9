// Package mailer delivers a single HTML email to a single address through a
// configured SMTP submission relay.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"time"
)

// Email is one outbound message. Subject and HTML come verbatim from the
// campaign.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends one email to one recipient.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// DeliveryError carries whether the failure is worth retrying.
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string { return e.Message }

// IsTemporaryError reports whether the error is temporary.
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true // assume temporary if unknown
}

// buildMessage renders the RFC 5322 message bytes for an HTML email.
func buildMessage(from, fromName string, e Email, now time.Time) []byte {
	var b bytes.Buffer

	sender := from
	if fromName != "" {
		sender = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), from)
	}

	fmt.Fprintf(&b, "From: %s\r\n", sender)
	fmt.Fprintf(&b, "To: %s\r\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", e.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(e.HTML)
	b.WriteString("\r\n")

	return b.Bytes()
}
