package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message 是一封待发送的 HTML 邮件
type Message struct {
	From    string // 为空时使用发信账号
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

// Sender 是邮件传输的抽象；一次调用就是一次投递尝试，不做重试
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipient = errors.New("mailer: message has no recipient")

// RecipientError 表示只和这个收件人有关的失败（地址被拒等），传输本身是好的
type RecipientError struct {
	Recipient string
	Err       error
}

func (e *RecipientError) Error() string {
	return fmt.Sprintf("recipient %s rejected: %v", e.Recipient, e.Err)
}

func (e *RecipientError) Unwrap() error { return e.Err }

// IsRecipientError 收件人级别的错误不应影响其他收件人，也不计入熔断
func IsRecipientError(err error) bool {
	var rerr *RecipientError
	return errors.As(err, &rerr) || errors.Is(err, ErrNoRecipient)
}

// buildMessage 生成 RFC 5322 报文，正文使用 quoted-printable 编码
func buildMessage(from string, msg Message, now time.Time) ([]byte, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, ErrNoRecipient
	}

	domain := "localhost"
	if addr, err := mail.ParseAddress(from); err == nil {
		if at := strings.LastIndex(addr.Address, "@"); at >= 0 {
			domain = addr.Address[at+1:]
		}
	}

	var buf bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	header("From", from)
	header("To", msg.To)
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domain))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatAddress 返回 "Name <addr>" 形式的地址
func FormatAddress(name, address string) string {
	if name == "" {
		return address
	}
	return (&mail.Address{Name: name, Address: address}).String()
}
