package mailer

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBuildMessageHeaders(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC)
	msg := string(buildMessage("no-reply@bsocio.org", "BSocio", Email{
		To:      "ana@example.org",
		Subject: "Hello",
		HTML:    "<p>Hi Ana</p>",
	}, now))

	header, body, ok := strings.Cut(msg, "\r\n\r\n")
	if !ok {
		t.Fatal("message has no header/body separator")
	}

	for _, want := range []string{
		"From: BSocio <no-reply@bsocio.org>",
		"To: ana@example.org",
		"Subject: Hello",
		"Date: Thu, 05 Mar 2026 10:30:00 +0000",
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	} {
		if !strings.Contains(header, want) {
			t.Errorf("header missing %q\n%s", want, header)
		}
	}
	if !strings.Contains(body, "<p>Hi Ana</p>") {
		t.Errorf("body = %q", body)
	}
}

func TestBuildMessageNoFromName(t *testing.T) {
	msg := string(buildMessage("no-reply@bsocio.org", "", Email{To: "a@b.c"}, time.Now()))
	if !strings.Contains(msg, "From: no-reply@bsocio.org\r\n") {
		t.Errorf("bare from address expected:\n%s", msg)
	}
}

func TestBuildMessageEncodesSubject(t *testing.T) {
	msg := string(buildMessage("no-reply@bsocio.org", "", Email{
		To:      "a@b.c",
		Subject: "Doação confirmada",
	}, time.Now()))
	if !strings.Contains(msg, "=?utf-8?q?") {
		t.Errorf("non-ASCII subject must be Q-encoded:\n%s", msg)
	}
}

func TestCategorizeErrorPermanent(t *testing.T) {
	err := categorizeError(errors.New("550 5.1.1 user unknown"), "rcpt")
	if err.Temporary {
		t.Error("5xx must be permanent")
	}
}

func TestCategorizeErrorTemporary(t *testing.T) {
	err := categorizeError(errors.New("421 service not available"), "mail")
	if !err.Temporary {
		t.Error("4xx must be temporary")
	}
}

func TestCategorizeErrorUnknownDefaultsTemporary(t *testing.T) {
	err := categorizeError(errors.New("connection reset by peer"), "dial")
	if !err.Temporary {
		t.Error("uncoded errors default to temporary")
	}
}

func TestIsTemporaryError(t *testing.T) {
	if IsTemporaryError(&DeliveryError{Temporary: false}) {
		t.Error("permanent DeliveryError reported temporary")
	}
	if !IsTemporaryError(errors.New("plain")) {
		t.Error("unknown errors should be assumed temporary")
	}
}
