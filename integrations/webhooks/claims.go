package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the logical webhook topic.
type EventType string

const (
	// EventRewardsClaimed is delivered once per settled claim so the payout
	// system can transfer the reward.
	EventRewardsClaimed EventType = "nftstake.rewards.claimed"

	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second

	// SignatureHeader carries the hex HMAC-SHA256 of the body.
	SignatureHeader = "X-Stake-Signature"
	// EventHeader carries the EventType.
	EventHeader = "X-Stake-Event"
)

// ClaimPayload describes the webhook body for a settled claim. Amount is
// the payout in reward base units rendered as a decimal string.
type ClaimPayload struct {
	Type       EventType `json:"type"`
	DeliveryID string    `json:"deliveryId"`
	Holder     string    `json:"holder"`
	Points     uint32    `json:"points"`
	Amount     string    `json:"amount"`
	ClaimedAt  time.Time `json:"claimedAt"`
}

var errDispatcherClosed = errors.New("webhook: dispatcher closed")

// Dispatcher orchestrates webhook deliveries with retry and exponential backoff.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	eventType EventType
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithLogger routes delivery failures to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = string(bytes.TrimSpace([]byte(endpoint)))
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan delivery, 32),
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops the dispatcher and waits for inflight deliveries to complete.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// EnqueueClaim sends a claim event asynchronously.
func (d *Dispatcher) EnqueueClaim(payload ClaimPayload) error {
	payload.Type = EventRewardsClaimed
	if payload.ClaimedAt.IsZero() {
		payload.ClaimedAt = time.Now().UTC()
	}
	if payload.DeliveryID == "" {
		payload.DeliveryID = uuid.NewString()
	}
	return d.enqueue(payload.Type, payload)
}

func (d *Dispatcher) enqueue(eventType EventType, body interface{}) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	if d.ctx.Err() != nil {
		return errDispatcherClosed
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	select {
	case d.queue <- delivery{eventType: eventType, body: data}:
		return nil
	case <-d.ctx.Done():
		return errDispatcherClosed
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.maxAttempts {
			d.logger.Error("webhook delivery abandoned",
				slog.String("event", string(job.eventType)),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, string(job.eventType))
	req.Header.Set(SignatureHeader, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	sum := mac.Sum(nil)
	return "sha256=" + hex.EncodeToString(sum)
}

// Verify reports whether signature matches body under secret.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	if next < current {
		return max
	}
	return next
}
