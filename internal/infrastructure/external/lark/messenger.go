package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/application/port"
)

// Messenger delivers workflow notifications over Lark IM.
// SendText pushes to a user's chat by open id; SendMail posts a titled
// rich-text message addressed by email.
type Messenger struct {
	api    *MessageAPI
	logger *zap.Logger
}

// NewMessenger creates a new Lark notification adapter
func NewMessenger(api *MessageAPI, logger *zap.Logger) *Messenger {
	return &Messenger{
		api:    api,
		logger: logger,
	}
}

type textContent struct {
	Text string `json:"text"`
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

type postContent struct {
	ZhCN postBody `json:"zh_cn"`
}

// SendText sends a plain text message to a user
func (m *Messenger) SendText(ctx context.Context, openID string, content string) error {
	if openID == "" {
		return fmt.Errorf("openID cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	body, err := json.Marshal(textContent{Text: content})
	if err != nil {
		return fmt.Errorf("failed to marshal text content: %w", err)
	}

	if _, err := m.api.SendMessage(ctx, ReceiveIDOpenID, openID, MsgTypeText, string(body)); err != nil {
		return fmt.Errorf("failed to send text message: %w", err)
	}
	return nil
}

// SendMail sends an email-style post message, one paragraph per line of body
func (m *Messenger) SendMail(ctx context.Context, email, subject, body string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	post := postContent{ZhCN: postBody{Title: subject}}
	for _, line := range strings.Split(body, "\n") {
		post.ZhCN.Content = append(post.ZhCN.Content, []postElement{{Tag: "text", Text: line}})
	}

	content, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("failed to marshal post content: %w", err)
	}

	if _, err := m.api.SendMessage(ctx, ReceiveIDEmail, email, MsgTypePost, string(content)); err != nil {
		return fmt.Errorf("failed to send mail message: %w", err)
	}

	m.logger.Debug("Mail message sent", zap.String("email", email), zap.String("subject", subject))
	return nil
}

var (
	_ port.MessageSender = (*Messenger)(nil)
	_ port.MailSender    = (*Messenger)(nil)
)
