package mailer

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"luxuryestates/pkg/circuitbreaker"
	"luxuryestates/pkg/config"
)

func TestBuildMessageHeadersAndBody(t *testing.T) {
	html := `<p>New Villa listed: <a href="https://example.com/properties/1">view</a></p>` + strings.Repeat("x", 120)
	raw, err := buildMessage(
		FormatAddress("Luxury Estates", "alerts@example.com"),
		Message{To: "a@x.com", ReplyTo: "buyer@y.com", Subject: "New Villa Property Added", HTML: html},
		time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)

	assert.Equal(t, `"Luxury Estates" <alerts@example.com>`, parsed.Header.Get("From"))
	assert.Equal(t, "a@x.com", parsed.Header.Get("To"))
	assert.Equal(t, "buyer@y.com", parsed.Header.Get("Reply-To"))
	assert.Contains(t, parsed.Header.Get("Message-ID"), "@example.com>")
	assert.Contains(t, parsed.Header.Get("Content-Type"), "text/html")

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "New Villa Property Added", subject)

	body, err := io.ReadAll(quotedprintable.NewReader(parsed.Body))
	require.NoError(t, err)
	assert.Equal(t, html, string(body))
}

func TestBuildMessageRequiresRecipient(t *testing.T) {
	_, err := buildMessage("alerts@example.com", Message{Subject: "x"}, time.Now())
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestBuildMessageOmitsEmptyReplyTo(t *testing.T) {
	raw, err := buildMessage("alerts@example.com", Message{To: "a@x.com", Subject: "s", HTML: "<p/>"}, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Reply-To")
}

type stubSender struct {
	calls int
	err   error
}

func (s *stubSender) Send(context.Context, Message) error {
	s.calls++
	return s.err
}

func TestBreakerSenderShortCircuits(t *testing.T) {
	stub := &stubSender{err: errors.New("535 authentication failed")}
	b := NewBreakerSender(stub, circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Hour,
		HalfOpenMaxRequests: 1,
	}, zaptest.NewLogger(t))

	ctx := context.Background()
	assert.Error(t, b.Send(ctx, Message{To: "a@x.com"}))
	assert.Error(t, b.Send(ctx, Message{To: "b@x.com"}))
	err := b.Send(ctx, Message{To: "c@x.com"})

	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.Equal(t, 2, stub.calls)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())
}

func TestBreakerSenderIgnoresRejectedRecipients(t *testing.T) {
	stub := &stubSender{err: &RecipientError{Recipient: "gone@x.com", Err: &textproto.Error{Code: 550, Msg: "no such user"}}}
	b := NewBreakerSender(stub, circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Hour,
		HalfOpenMaxRequests: 1,
	}, zaptest.NewLogger(t))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.True(t, IsRecipientError(b.Send(ctx, Message{To: "gone@x.com"})))
	}
	assert.Equal(t, 5, stub.calls)
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestRcptErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		recipient bool
	}{
		{"permanent rejection", &textproto.Error{Code: 550, Msg: "mailbox unavailable"}, true},
		{"relay denied", &textproto.Error{Code: 554, Msg: "relay access denied"}, true},
		{"temporary failure", &textproto.Error{Code: 451, Msg: "try again later"}, false},
		{"connection dropped", io.ErrUnexpectedEOF, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rcptError("a@x.com", tt.err)
			assert.Equal(t, tt.recipient, IsRecipientError(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.True(t, IsRecipientError(ErrNoRecipient))
}

func TestNewSMTPSenderDefaults(t *testing.T) {
	s := NewSMTPSender(config.MailConfig{
		Host:     "smtp.example.com",
		Username: "alerts@example.com",
		FromName: "Luxury Estates",
	})
	assert.Equal(t, 587, s.port)
	assert.Equal(t, 15*time.Second, s.timeout)
	assert.Equal(t, `"Luxury Estates" <alerts@example.com>`, s.from)
}
