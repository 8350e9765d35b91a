package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"stockbot/internal/config"
	"stockbot/internal/service"
)

// SMTPNotifier delivers run summaries through a plain SMTP relay.
type SMTPNotifier struct {
	cfg    config.SMTPConfig
	from   string
	to     []string
	logger *zap.Logger
}

func NewSMTPNotifier(cfg config.SMTPConfig, from string, to []string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, from: from, to: to, logger: logger}
}

func (n *SMTPNotifier) SendSummary(ctx context.Context, summary *service.TradeSummary) error {
	if n == nil || summary == nil {
		return nil
	}
	return n.send(summarySubject(summary), formatSummaryText(summary))
}

func (n *SMTPNotifier) SendError(ctx context.Context, portfolio string, cause error) error {
	if n == nil {
		return nil
	}
	return n.send("Rebalancing Error: "+portfolio, formatErrorText(portfolio, cause))
}

func (n *SMTPNotifier) send(subject, body string) error {
	if len(n.to) == 0 {
		return nil
	}
	msg := strings.Join([]string{
		"From: " + n.from,
		"To: " + strings.Join(n.to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, n.from, n.to, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	if n.logger != nil {
		n.logger.Info("notification sent", zap.String("subject", subject))
	}
	return nil
}
