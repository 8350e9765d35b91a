package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"stockbot/internal/config"
	"stockbot/internal/service"
)

// SendGridNotifier delivers run summaries through the SendGrid v3 mail API.
type SendGridNotifier struct {
	cfg        config.SendGridConfig
	from       string
	to         []string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSendGridNotifier(cfg config.SendGridConfig, from string, to []string, logger *zap.Logger) *SendGridNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SendGridNotifier{
		cfg:        cfg,
		from:       from,
		to:         to,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

func (n *SendGridNotifier) SendSummary(ctx context.Context, summary *service.TradeSummary) error {
	if n == nil || summary == nil {
		return nil
	}
	return n.send(ctx, summarySubject(summary), formatSummaryText(summary))
}

func (n *SendGridNotifier) SendError(ctx context.Context, portfolio string, cause error) error {
	if n == nil {
		return nil
	}
	return n.send(ctx, "Rebalancing Error: "+portfolio, formatErrorText(portfolio, cause))
}

func (n *SendGridNotifier) send(ctx context.Context, subject, body string) error {
	if len(n.to) == 0 {
		return nil
	}
	to := make([]sgAddress, 0, len(n.to))
	for _, addr := range n.to {
		to = append(to, sgAddress{Email: addr})
	}
	payload, err := json.Marshal(sgMail{
		Personalizations: []sgPersonalization{{To: to}},
		From:             sgAddress{Email: n.from},
		Subject:          subject,
		Content:          []sgContent{{Type: "text/plain", Value: body}},
	})
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}

	url := strings.TrimRight(n.cfg.BaseURL, "/") + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, string(raw))
	}
	if n.logger != nil {
		n.logger.Info("notification sent",
			zap.String("subject", subject),
			zap.Int("status", resp.StatusCode))
	}
	return nil
}
