package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/engineering-truestate/iqol-crm-backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OutboxStore is the slice of the webhook outbox the dispatcher needs.
type OutboxStore interface {
	ClaimDue(ctx context.Context, dispatcherID string, batchSize int, lockTimeout time.Duration, maxAttempts int) ([]models.WebhookMessage, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, deliveryErr error, nextAttemptAt time.Time) error
	MarkDead(ctx context.Context, id string, deliveryErr error) error
}

// WebhookSender delivers one notification.
type WebhookSender interface {
	Send(ctx context.Context, msg models.WebhookMessage) error
}

// OutboxDispatcher drains the webhook outbox in the background. Delivery is
// at-least-once: messages are claimed, POSTed, and retried with exponential
// backoff until SENT or DEAD.
type OutboxDispatcher struct {
	Store        OutboxStore
	Sender       WebhookSender
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(store OutboxStore, sender WebhookSender, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		Store:          store,
		Sender:         sender,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims and delivers one batch.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) {
	claimed, err := d.Store.ClaimDue(ctx, d.DispatcherID, d.BatchSize, d.LockTimeout, d.MaxAttempts)
	if err != nil {
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field": "OutboxDispatcher",
			}).Error("failed to claim outbox batch: " + err.Error())
		}
		return
	}

	for _, msg := range claimed {
		if sendErr := d.Sender.Send(ctx, msg); sendErr != nil {
			d.markFailed(ctx, msg, sendErr)
			continue
		}
		if err := d.Store.MarkSent(ctx, msg.ID, time.Now().UTC()); err != nil && d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":     "OutboxDispatcher",
				"record_id": msg.ID,
			}).Error("failed to mark webhook sent: " + err.Error())
		}
	}
}

func (d *OutboxDispatcher) markFailed(ctx context.Context, msg models.WebhookMessage, deliveryErr error) {
	// Terminal after MaxAttempts (DLQ equivalent).
	if d.MaxAttempts > 0 && msg.PublishAttempts >= d.MaxAttempts {
		_ = d.Store.MarkDead(ctx, msg.ID, deliveryErr)
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":     "OutboxDispatcher",
				"record_id": msg.ID,
				"kind":      msg.Kind,
				"attempt":   msg.PublishAttempts,
			}).Error("webhook moved to DEAD after max attempts: " + deliveryErr.Error())
		}
		return
	}

	backoff := d.InitialBackoff
	for i := 1; i < msg.PublishAttempts; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			backoff = time.Minute * 10
			break
		}
	}
	next := time.Now().UTC().Add(backoff)
	_ = d.Store.MarkFailed(ctx, msg.ID, deliveryErr, next)

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "OutboxDispatcher",
			"record_id":       msg.ID,
			"kind":            msg.Kind,
			"attempt":         msg.PublishAttempts,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("webhook delivery failed: " + deliveryErr.Error())
	}
}

// HTTPWebhookSender POSTs notifications to the external QC service:
// {base}/qcstatus/{id} and {base}/property/{id}.
type HTTPWebhookSender struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
}

func NewHTTPWebhookSender() (*HTTPWebhookSender, error) {
	baseURL := strings.TrimSpace(os.Getenv("QC_WEBHOOK_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("QC_WEBHOOK_BASE_URL is required")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("QC_WEBHOOK_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	return &HTTPWebhookSender{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    strings.TrimSpace(os.Getenv("QC_WEBHOOK_API_KEY")),
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *HTTPWebhookSender) Send(ctx context.Context, msg models.WebhookMessage) error {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, msg.Kind, msg.ReferenceId)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(msg.Payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	if msg.CorrelationId != "" {
		req.Header.Set("x-correlation-id", msg.CorrelationId)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
