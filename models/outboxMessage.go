package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/engineering-truestate/iqol-crm-backend/utils"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// WebhookMessage is one pending outbound notification. Review and
// materialization writes enqueue these; the dispatcher delivers them with
// at-least-once semantics so a webhook outage never fails a review.
type WebhookMessage struct {
	ID          string   `firestore:"id" json:"id"`
	Kind        string   `firestore:"kind" json:"kind"`
	ReferenceId string   `firestore:"referenceId" json:"referenceId"`
	Platform    Platform `firestore:"platform" json:"platform"`
	Payload     string   `firestore:"payload" json:"payload"`

	PublishStatus    string     `firestore:"publishStatus" json:"publishStatus"`
	PublishAttempts  int        `firestore:"publishAttempts" json:"publishAttempts"`
	NextAttemptAt    time.Time  `firestore:"nextAttemptAt" json:"nextAttemptAt"`
	LockedAt         *time.Time `firestore:"lockedAt" json:"lockedAt"`
	LockedBy         *string    `firestore:"lockedBy" json:"lockedBy"`
	LastPublishError *string    `firestore:"lastPublishError" json:"lastPublishError"`

	CorrelationId string     `firestore:"correlationId" json:"correlationId"`
	CreatedAt     time.Time  `firestore:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time `firestore:"publishedAt" json:"publishedAt"`
}

// WebhookOutbox is the Firestore-backed outbox store.
type WebhookOutbox struct {
	Client *firestore.Client
}

func (s WebhookOutbox) col() *firestore.CollectionRef {
	return fsClient(s.Client).Collection(CollectionWebhookOutbox)
}

// Enqueue records a notification as PENDING, due immediately.
func (s WebhookOutbox) Enqueue(ctx context.Context, kind string, referenceId string, platform Platform, payload any) error {
	if kind != WebhookKindQCStatus && kind != WebhookKindProperty {
		return errors.New("unknown webhook kind")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	msg := WebhookMessage{
		ID:            uuid.NewString(),
		Kind:          kind,
		ReferenceId:   referenceId,
		Platform:      platform,
		Payload:       string(body),
		PublishStatus: OutboxPublishStatusPending,
		NextAttemptAt: now,
		CorrelationId: cid,
		CreatedAt:     now,
	}
	_, err = s.col().Doc(msg.ID).Create(ctx, &msg)
	return err
}

// ClaimDue claims up to batchSize deliverable messages for this dispatcher.
// Eligible:
//   - PENDING / FAILED and due for retry
//   - PROCESSING with a stale lock (dispatcher crashed mid-batch)
//
// Each message is claimed in its own transaction so two dispatchers never
// deliver the same record. Messages past maxAttempts go terminal (DEAD).
func (s WebhookOutbox) ClaimDue(ctx context.Context, dispatcherID string, batchSize int, lockTimeout time.Duration, maxAttempts int) ([]WebhookMessage, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-lockTimeout)

	due := s.col().
		Where("publishStatus", "in", []string{OutboxPublishStatusPending, OutboxPublishStatusFailed}).
		Where("nextAttemptAt", "<=", now).
		OrderBy("nextAttemptAt", firestore.Asc).
		Limit(batchSize).
		Documents(ctx)
	candidates, err := collectMessages(due)
	if err != nil {
		return nil, err
	}

	stale := s.col().
		Where("publishStatus", "==", OutboxPublishStatusProcessing).
		Where("lockedAt", "<=", staleBefore).
		Limit(batchSize).
		Documents(ctx)
	reclaimable, err := collectMessages(stale)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, reclaimable...)

	var claimed []WebhookMessage
	for _, c := range candidates {
		if len(claimed) >= batchSize {
			break
		}
		msg, ok, err := s.claimOne(ctx, c.ID, dispatcherID, now, staleBefore, maxAttempts)
		if err != nil {
			return claimed, err
		}
		if ok {
			claimed = append(claimed, msg)
		}
	}
	return claimed, nil
}

// claimOne re-reads the message inside a transaction and marks it PROCESSING
// if it is still eligible. Returns ok=false when another dispatcher won or
// the message went terminal.
func (s WebhookOutbox) claimOne(ctx context.Context, id string, dispatcherID string, now time.Time, staleBefore time.Time, maxAttempts int) (WebhookMessage, bool, error) {
	ref := s.col().Doc(id)
	var claimed WebhookMessage
	var ok bool
	err := fsClient(s.Client).RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ok = false
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var msg WebhookMessage
		if err := snap.DataTo(&msg); err != nil {
			return err
		}

		next, outcome := claimTransition(msg, dispatcherID, now, staleBefore, maxAttempts)
		switch outcome {
		case claimSkip:
			return nil
		case claimDead:
			return tx.Update(ref, []firestore.Update{
				{Path: "publishStatus", Value: OutboxPublishStatusDead},
				{Path: "lastPublishError", Value: next.LastPublishError},
				{Path: "lockedAt", Value: nil},
				{Path: "lockedBy", Value: nil},
			})
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "publishStatus", Value: OutboxPublishStatusProcessing},
			{Path: "lockedAt", Value: now},
			{Path: "lockedBy", Value: dispatcherID},
			{Path: "publishAttempts", Value: next.PublishAttempts},
			{Path: "lastPublishError", Value: nil},
		}); err != nil {
			return err
		}
		claimed = next
		ok = true
		return nil
	})
	return claimed, ok, err
}

type claimOutcome int

const (
	// another dispatcher won the race, or the message is not due yet
	claimSkip claimOutcome = iota
	// message exhausted its attempts before delivery; goes terminal
	claimDead
	// message is ours; deliver it
	claimLocked
)

// claimTransition decides whether one message can be claimed right now and
// returns its post-claim state. PENDING and FAILED messages are eligible once
// due; PROCESSING messages only when their lock predates staleBefore, which
// reclaims work from a dispatcher that crashed mid-batch.
func claimTransition(msg WebhookMessage, dispatcherID string, now time.Time, staleBefore time.Time, maxAttempts int) (WebhookMessage, claimOutcome) {
	eligible := false
	switch msg.PublishStatus {
	case OutboxPublishStatusPending, OutboxPublishStatusFailed:
		eligible = !msg.NextAttemptAt.After(now)
	case OutboxPublishStatusProcessing:
		eligible = msg.LockedAt != nil && !msg.LockedAt.After(staleBefore)
	}
	if !eligible {
		return msg, claimSkip
	}

	if maxAttempts > 0 && msg.PublishAttempts >= maxAttempts {
		reason := "max publish attempts exceeded"
		msg.PublishStatus = OutboxPublishStatusDead
		msg.LastPublishError = &reason
		msg.LockedAt = nil
		msg.LockedBy = nil
		return msg, claimDead
	}

	msg.PublishStatus = OutboxPublishStatusProcessing
	msg.LockedAt = &now
	msg.LockedBy = &dispatcherID
	msg.PublishAttempts++
	msg.LastPublishError = nil
	return msg, claimLocked
}

func (s WebhookOutbox) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := s.col().Doc(id).Update(ctx, []firestore.Update{
		{Path: "publishStatus", Value: OutboxPublishStatusSent},
		{Path: "publishedAt", Value: at},
		{Path: "lockedAt", Value: nil},
		{Path: "lockedBy", Value: nil},
	})
	return err
}

func (s WebhookOutbox) MarkFailed(ctx context.Context, id string, deliveryErr error, nextAttemptAt time.Time) error {
	msg := deliveryErr.Error()
	_, err := s.col().Doc(id).Update(ctx, []firestore.Update{
		{Path: "publishStatus", Value: OutboxPublishStatusFailed},
		{Path: "lastPublishError", Value: &msg},
		{Path: "nextAttemptAt", Value: nextAttemptAt},
		{Path: "lockedAt", Value: nil},
		{Path: "lockedBy", Value: nil},
	})
	return err
}

func (s WebhookOutbox) MarkDead(ctx context.Context, id string, deliveryErr error) error {
	msg := deliveryErr.Error()
	_, err := s.col().Doc(id).Update(ctx, []firestore.Update{
		{Path: "publishStatus", Value: OutboxPublishStatusDead},
		{Path: "lastPublishError", Value: &msg},
		{Path: "lockedAt", Value: nil},
		{Path: "lockedBy", Value: nil},
	})
	return err
}

// Requeue puts a DEAD/FAILED message back in line (admin replay endpoint).
func (s WebhookOutbox) Requeue(ctx context.Context, id string) (*WebhookMessage, error) {
	ref := s.col().Doc(id)
	now := time.Now().UTC()
	err := fsClient(s.Client).RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var msg WebhookMessage
		if err := snap.DataTo(&msg); err != nil {
			return err
		}
		if msg.PublishStatus != OutboxPublishStatusDead && msg.PublishStatus != OutboxPublishStatusFailed {
			return errors.New("only FAILED or DEAD messages can be replayed")
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "publishStatus", Value: OutboxPublishStatusFailed},
			{Path: "nextAttemptAt", Value: now},
			{Path: "lockedAt", Value: nil},
			{Path: "lockedBy", Value: nil},
			{Path: "lastPublishError", Value: nil},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, err
	}
	var msg WebhookMessage
	if err := snap.DataTo(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func collectMessages(iter *firestore.DocumentIterator) ([]WebhookMessage, error) {
	defer iter.Stop()
	var out []WebhookMessage
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		var msg WebhookMessage
		if err := snap.DataTo(&msg); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
}
