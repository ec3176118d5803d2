package contact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"luxuryestates/internal/model"
	"luxuryestates/pkg/logger"
	"luxuryestates/pkg/mailer"
)

var ErrNoInbox = errors.New("agent inbox is not configured")

var inquiryTemplate = template.Must(template.New("inquiry").Parse(`<h3>Agent: {{.AgentName}}</h3>
<p><strong>User Email:</strong> {{.UserEmail}}</p>
<p><strong>Message:</strong> {{.Message}}</p>
`))

type Input struct {
	AgentName string `json:"agentName" validate:"required,max=100"`
	Message   string `json:"message" validate:"required,max=5000"`
}

// Service 把用户的咨询转发给经纪人邮箱，回复地址是用户本人
type Service struct {
	sender mailer.Sender
	inbox  string
	logger *zap.Logger
}

func NewService(sender mailer.Sender, inbox string, logger *zap.Logger) *Service {
	return &Service{sender: sender, inbox: inbox, logger: logger}
}

func (s *Service) Send(ctx context.Context, userEmail string, in Input) error {
	in.AgentName = strings.TrimSpace(in.AgentName)
	in.Message = strings.TrimSpace(in.Message)
	if err := model.Validate(in); err != nil {
		return err
	}
	if err := model.ValidateEmail(userEmail); err != nil {
		return err
	}
	if s.inbox == "" {
		return ErrNoInbox
	}

	var body bytes.Buffer
	err := inquiryTemplate.Execute(&body, map[string]string{
		"AgentName": in.AgentName,
		"UserEmail": userEmail,
		"Message":   in.Message,
	})
	if err != nil {
		return fmt.Errorf("render inquiry: %w", err)
	}

	err = s.sender.Send(ctx, mailer.Message{
		To:      s.inbox,
		ReplyTo: userEmail,
		Subject: fmt.Sprintf("Message from %s regarding %s", userEmail, in.AgentName),
		HTML:    body.String(),
	})
	log := logger.WithTrace(ctx, s.logger).With(zap.String("agent", in.AgentName))
	if err != nil {
		log.Error("Failed to forward agent inquiry", zap.Error(err))
		return fmt.Errorf("send inquiry: %w", err)
	}
	log.Info("Agent inquiry forwarded")
	return nil
}
