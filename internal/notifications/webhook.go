package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/evm-agent/internal/httputil"
	"github.com/kjannette/evm-agent/internal/logging"
)

// Sender posts short messages to a Slack or Discord incoming webhook. With
// no URL configured messages are only logged.
type Sender struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	logger     zerolog.Logger
}

func NewSender(webhookURL, botName string) *Sender {
	if botName == "" {
		botName = "EVMAgent"
	}
	return &Sender{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
		logger: logging.Component("notify"),
	}
}

// OrderPosted describes an order that reached the order book.
type OrderPosted struct {
	ChainID       int64
	UID           string
	Link          string
	SellToken     string
	BuyToken      string
	SellAmount    string
	NeedsApproval bool
}

func (o OrderPosted) Message() string {
	msg := fmt.Sprintf("order posted on chain %d: sell %s of %s for %s, uid %s",
		o.ChainID, o.SellAmount, o.SellToken, o.BuyToken, o.UID)
	if o.NeedsApproval {
		msg += " (approval pending)"
	}
	if o.Link != "" {
		msg += " " + o.Link
	}
	return msg
}

func (s *Sender) NotifyOrder(o OrderPosted) {
	s.Send(o.Message())
}

// Send delivers msg synchronously. Failures are logged, never returned.
func (s *Sender) Send(msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.botName, msg)
	s.logger.Info().Str("bot", s.botName).Msg(msg)

	if s.webhookURL == "" {
		return
	}

	payload := s.formatPayload(formatted)
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("webhook delivery failed")
		return
	}
	resp.Body.Close()
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}
