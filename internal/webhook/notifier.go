package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/ws"
)

var ErrDeliveryFailed = errors.New("webhook delivery failed")

const (
	HeaderSignature = "X-FaceGuard-Signature"
	HeaderTimestamp = "X-FaceGuard-Timestamp"
	HeaderEvent     = "X-FaceGuard-Event"
)

type Config struct {
	URL    string
	Secret string
	// MaxAttempts includes the first delivery.
	MaxAttempts int
	// RetryBase is the delay before the first retry; it doubles after each.
	RetryBase time.Duration
	QueueSize int
	Timeout   time.Duration
}

func DefaultConfig(url, secret string) Config {
	return Config{
		URL:         url,
		Secret:      secret,
		MaxAttempts: 3,
		RetryBase:   time.Second,
		QueueSize:   256,
		Timeout:     10 * time.Second,
	}
}

// Notifier posts signed per-call detection events to one URL, typically the
// relay server that forwarded the frames. Events are queued in memory and
// delivered by Run; a full queue drops new events.
type Notifier struct {
	cfg    Config
	client *http.Client
	queue  chan Event
	logger *slog.Logger
	stopCh chan struct{}
	once   sync.Once
}

func NewNotifier(cfg Config, logger *slog.Logger) *Notifier {
	defaults := DefaultConfig(cfg.URL, cfg.Secret)
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaults.RetryBase
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		queue:  make(chan Event, cfg.QueueSize),
		logger: logger.With("component", "webhook"),
		stopCh: make(chan struct{}),
	}
}

// BroadcastToCall enqueues an event without blocking.
func (n *Notifier) BroadcastToCall(callID string, eventType ws.EventType, data interface{}) {
	event := Event{
		Type:      string(eventType),
		CallID:    callID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	select {
	case n.queue <- event:
	default:
		n.logger.Warn("webhook queue full, event dropped",
			"call_id", callID,
			"event", eventType,
		)
	}
}

func (n *Notifier) Run(ctx context.Context) {
	n.logger.Info("webhook worker started")

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("webhook worker stopped")
			return
		case <-n.stopCh:
			n.logger.Info("webhook worker stopped")
			return
		case event := <-n.queue:
			if err := n.deliver(ctx, event); err != nil {
				n.logger.Warn("webhook job failed",
					"call_id", event.CallID,
					"event", event.Type,
					"error", err,
				)
			}
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (n *Notifier) Stop() {
	n.once.Do(func() { close(n.stopCh) })
}

// deliver sends event, retrying with exponential backoff.
func (n *Notifier) deliver(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	delay := n.cfg.RetryBase
	for attempt := 1; ; attempt++ {
		err = n.Send(ctx, event.Type, payload)
		if err == nil {
			n.logger.Debug("webhook delivered", "call_id", event.CallID, "event", event.Type, "attempts", attempt)
			return nil
		}
		if attempt >= n.cfg.MaxAttempts {
			return err
		}

		n.logger.Info("webhook job scheduled for retry",
			"call_id", event.CallID,
			"attempts", attempt,
			"next_retry", delay,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.stopCh:
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// Send posts one signed payload. Any non-2xx answer is a failure.
func (n *Notifier) Send(ctx context.Context, eventType string, payload []byte) error {
	timestamp := time.Now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set("User-Agent", "FaceGuard-Webhook/1.0")
	if n.cfg.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(n.cfg.Secret, timestamp, payload))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrDeliveryFailed, resp.StatusCode)
	}

	return nil
}
