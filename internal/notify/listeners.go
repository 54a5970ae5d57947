package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const contentType = "application/json"

// LogListener writes every notification to the logger.
type LogListener struct {
	logger *zap.Logger
}

func NewLogListener(log *zap.Logger) *LogListener {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogListener{logger: log}
}

func (l *LogListener) Name() string { return "log" }

func (l *LogListener) Handle(_ context.Context, e Event) error {
	for _, n := range e.Notifications() {
		l.logger.Info("notification",
			zap.String("kind", n.Kind),
			zap.String("recipient", n.Recipient),
			zap.String("title", n.Title),
			zap.String("description", n.Description),
		)
	}
	return nil
}

// envelope is the wire format used by the Redis and webhook listeners.
type envelope struct {
	Kind          string         `json:"kind"`
	At            time.Time      `json:"at"`
	Notifications []Notification `json:"notifications"`
}

func encode(e Event) ([]byte, error) {
	return json.Marshal(envelope{Kind: e.Kind(), At: e.OccurredAt(), Notifications: e.Notifications()})
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes events to a Redis pub/sub channel.
type RedisPublisher struct {
	client  publisher
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if strings.TrimSpace(channel) == "" {
		channel = "joblink:notifications"
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Handle(ctx context.Context, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.channel, err)
	}
	return nil
}

// Webhook posts events to an external endpoint, such as an email relay.
type Webhook struct {
	URL        string
	Token      string
	UserAgent  string
	HTTPClient *http.Client
	logger     *zap.Logger
}

func NewWebhook(url, token string, log *zap.Logger) *Webhook {
	if log == nil {
		log = zap.NewNop()
	}
	return &Webhook{
		URL:        url,
		Token:      token,
		UserAgent:  "joblink-notifier",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Handle(ctx context.Context, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req = w.setHeaders(req)

	w.logger.Debug("make request", zap.String("url", req.URL.String()), zap.String("kind", e.Kind()))
	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	return nil
}

func (w *Webhook) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", w.UserAgent)
	if w.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", w.Token))
	}
	return req
}
