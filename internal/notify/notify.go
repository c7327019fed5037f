package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"alertdesk/internal/config"
	"alertdesk/internal/domain"
	"alertdesk/internal/metrics"
	"alertdesk/internal/templatefmt"

	tgbot "github.com/go-telegram/bot"
)

// DefaultTemplate renders a one-line summary for either alert type.
const DefaultTemplate = `{{if .Fraud}}[FRAUD] tx {{.Fraud.TransactionID}} {{money .Fraud.Amount}} at {{.Fraud.Merchant}}, customer {{.Fraud.CustomerName}}, confidence {{percent .Fraud.Confidence}}{{else}}[DOS] {{.DoS.Source}} -> {{.DoS.Destination}} {{upper .DoS.Protocol}} len={{.DoS.Length}} severity={{.DoS.Severity}} status={{.DoS.Status}}{{end}} @ {{ts .Timestamp}}`

// Notification is the outbound view of one stored alert.
type Notification struct {
	AlertID   string               `json:"alertId"`
	Type      domain.AlertType     `json:"type"`
	Timestamp time.Time            `json:"timestamp"`
	Fraud     *domain.FraudDetails `json:"fraud,omitempty"`
	DoS       *domain.DoSDetails   `json:"dos,omitempty"`
	Resolved  bool                 `json:"resolved"`
	Channel   string               `json:"channel"`
	Message   string               `json:"message"`
}

// FromAlert builds a notification for a persisted alert.
func FromAlert(alert domain.Alert) Notification {
	return Notification{
		AlertID:   alert.ID,
		Type:      alert.Type,
		Timestamp: alert.Timestamp,
		Fraud:     alert.Fraud,
		DoS:       alert.DoS,
		Resolved:  alert.Resolved,
	}
}

// SendResult returns channel-specific metadata after successful delivery.
type SendResult struct {
	MessageID int
}

// ChannelSender sends one outbound notification to one channel.
// Params: context and notification payload.
// Returns: channel send metadata and transport error when send fails.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, notification Notification) (SendResult, error)
}

// Dispatcher delivers notifications with configured retries/backoff.
// Params: sender list, retry policy, and message templates per channel.
// Returns: fan-out helper for the ingestion pipeline.
type Dispatcher struct {
	senders      map[string]ChannelSender
	channels     []string
	retries      map[string]config.NotifyRetry
	templates    map[string]*template.Template
	templateErrs map[string]error
	logger       *slog.Logger
}

// NewDispatcher builds notification dispatcher from enabled channels.
// Params: notify config and optional logger.
// Returns: configured dispatcher; zero channels makes NotifyAlert a no-op.
func NewDispatcher(cfg config.NotifyConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	dispatcher := &Dispatcher{
		senders:      make(map[string]ChannelSender),
		retries:      make(map[string]config.NotifyRetry),
		templates:    make(map[string]*template.Template),
		templateErrs: make(map[string]error),
		logger:       logger,
	}
	for _, channel := range config.NotifyChannelNames() {
		if !config.NotifyChannelEnabled(cfg, channel) {
			continue
		}
		sender := newSenderForChannel(channel, cfg)
		if sender == nil {
			continue
		}
		dispatcher.register(sender, config.NotifyChannelRetry(cfg, channel), config.NotifyChannelTemplate(cfg, channel))
	}
	return dispatcher
}

// register adds one sender with its retry policy and template body.
func (d *Dispatcher) register(sender ChannelSender, retry config.NotifyRetry, body string) {
	channel := sender.Channel()
	d.senders[channel] = sender
	d.retries[channel] = retry
	if strings.TrimSpace(body) == "" {
		body = DefaultTemplate
	}
	compiled, err := templatefmt.ParseNotificationTemplate("notify."+channel+".template", body)
	if err != nil {
		d.templateErrs[channel] = err
	} else {
		d.templates[channel] = compiled
	}
	d.channels = append(d.channels, channel)
	sort.Strings(d.channels)
}

func newSenderForChannel(channel string, cfg config.NotifyConfig) ChannelSender {
	switch channel {
	case config.NotifyChannelTelegram:
		return NewTelegramSender(cfg.Telegram)
	case config.NotifyChannelWebhook:
		return NewWebhookSender(cfg.Webhook)
	default:
		return nil
	}
}

// Channels returns configured channel list.
func (d *Dispatcher) Channels() []string {
	return d.channels
}

// NotifyAlert sends one alert to every configured channel in parallel.
// Params: context bounding all attempts and the stored alert.
// Returns: joined per-channel errors; nil when every channel delivered.
func (d *Dispatcher) NotifyAlert(ctx context.Context, alert domain.Alert) error {
	if len(d.channels) == 0 {
		return nil
	}
	notification := FromAlert(alert)
	errs := make([]error, len(d.channels))
	var wg sync.WaitGroup
	for i, channel := range d.channels {
		wg.Add(1)
		go func(i int, channel string) {
			defer wg.Done()
			_, err := d.Send(ctx, channel, notification)
			metrics.NotificationsTotal.WithLabelValues(channel, metrics.Outcome(err)).Inc()
			if err != nil {
				d.logger.Warn("alert notification failed", "channel", channel, "alert_id", alert.ID, "err", err)
				errs[i] = err
			}
		}(i, channel)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Send renders and sends one notification to channel with retry policy.
// Params: destination channel and notification payload.
// Returns: channel metadata and final error after retries.
func (d *Dispatcher) Send(ctx context.Context, channel string, notification Notification) (SendResult, error) {
	sender, ok := d.senders[channel]
	if !ok {
		return SendResult{}, fmt.Errorf("notify channel %q is not configured", channel)
	}
	if err := d.templateErrs[channel]; err != nil {
		return SendResult{}, fmt.Errorf("notify template for channel %q is invalid: %w", channel, err)
	}

	rendered := notification
	rendered.Channel = channel
	var message strings.Builder
	if err := d.templates[channel].Execute(&message, rendered); err != nil {
		return SendResult{}, fmt.Errorf("render notify template for channel %q: %w", channel, err)
	}
	rendered.Message = message.String()

	return d.sendWithRetry(ctx, sender, rendered, d.retries[channel])
}

// sendWithRetry sends one notification with channel-specific retry policy.
// Params: sender, payload, and retry policy for the sender channel.
// Returns: channel metadata and final error after retries.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, notification Notification, retry config.NotifyRetry) (SendResult, error) {
	if !retry.Enabled {
		return sender.Send(ctx, notification)
	}

	attempt := 0
	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	defer stopTimer(timer)

	for {
		attempt++
		result, err := sender.Send(ctx, notification)
		if err == nil {
			if retry.LogEachAttempt && attempt > 1 {
				d.logger.Info("notify send recovered after retries", "channel", sender.Channel(), "attempt", attempt)
			}
			return result, nil
		}
		if retry.LogEachAttempt {
			d.logger.Warn("notify send attempt failed", "channel", sender.Channel(), "attempt", attempt, "err", err)
		}
		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			return SendResult{}, fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		timer.Reset(backoff)
		select {
		case <-ctx.Done():
			return SendResult{}, ctx.Err()
		case <-timer.C:
		}

		if strings.EqualFold(retry.Backoff, "exponential") {
			backoff *= 2
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// stopTimer stops timer and drains a pending tick.
func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

// TelegramSender sends notifications to Telegram Bot API.
// Params: bot token, chat id, and base URL.
// Returns: Telegram channel sender.
type TelegramSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSender creates Telegram sender with bot client.
// Params: Telegram notifier config.
// Returns: initialized sender; configuration problems surface on Send.
func NewTelegramSender(cfg config.TelegramNotifier) *TelegramSender {
	sender := &TelegramSender{
		chatID: normalizeChatID(cfg.ChatID),
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = errors.New("telegram bot token is required")
		return sender
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		sender.initErr = errors.New("telegram chat_id is required")
		return sender
	}

	botClient, err := tgbot.New(cfg.BotToken,
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")),
	)
	if err != nil {
		sender.initErr = fmt.Errorf("init telegram bot: %w", err)
		return sender
	}
	sender.client = botClient
	return sender
}

// Channel returns sender channel name.
func (s *TelegramSender) Channel() string {
	return config.NotifyChannelTelegram
}

// Send posts one plain-text message to the Telegram chat.
// Alert fields are detector-controlled, so no parse mode is set.
func (s *TelegramSender) Send(ctx context.Context, notification Notification) (SendResult, error) {
	if s.initErr != nil {
		return SendResult{}, s.initErr
	}
	if s.client == nil {
		return SendResult{}, errors.New("telegram client is not initialized")
	}

	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: s.chatID,
		Text:   notification.Message,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return SendResult{}, errors.New("telegram send returned empty message id")
	}
	return SendResult{MessageID: sent.ID}, nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric IDs as string.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}

// WebhookSender posts the notification JSON to a configured HTTP endpoint.
type WebhookSender struct {
	cfg    config.WebhookNotifier
	client *http.Client
}

// NewWebhookSender creates generic HTTP sender.
// Params: webhook notifier config.
// Returns: initialized sender.
func NewWebhookSender(cfg config.WebhookNotifier) *WebhookSender {
	return &WebhookSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
	}
}

// Channel returns sender channel name.
func (s *WebhookSender) Channel() string {
	return config.NotifyChannelWebhook
}

// Send delivers JSON payload to configured HTTP endpoint.
// Params: context and notification payload.
// Returns: transport or non-2xx HTTP error.
func (s *WebhookSender) Send(ctx context.Context, notification Notification) (SendResult, error) {
	body, err := json.Marshal(notification)
	if err != nil {
		return SendResult{}, fmt.Errorf("encode webhook payload: %w", err)
	}

	method := strings.ToUpper(strings.TrimSpace(s.cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	request, err := http.NewRequestWithContext(ctx, method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("build webhook request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return SendResult{}, fmt.Errorf("webhook send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return SendResult{}, unexpectedHTTPStatusError("webhook", response)
	}
	return SendResult{}, nil
}

// unexpectedHTTPStatusError formats non-2xx HTTP response with optional body.
// Params: sender prefix label and HTTP response pointer.
// Returns: status-only or status+body error.
func unexpectedHTTPStatusError(prefix string, response *http.Response) error {
	if response == nil {
		return fmt.Errorf("%s status=0", prefix)
	}
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, 4<<10))
	if readErr != nil {
		return fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	}
	trimmedBody := strings.TrimSpace(string(rawBody))
	if trimmedBody == "" {
		return fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	}
	return fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmedBody)
}
