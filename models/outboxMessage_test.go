package models

import (
	"testing"
	"time"
)

func outboxTestMessage(status string, mutate func(*WebhookMessage)) WebhookMessage {
	msg := WebhookMessage{
		ID:            "msg-1",
		Kind:          WebhookKindQCStatus,
		ReferenceId:   "qc-1",
		Platform:      PlatformTrueState,
		Payload:       `{"qcStatus":"approved"}`,
		PublishStatus: status,
		CreatedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(&msg)
	}
	return msg
}

func TestClaimTransition_Eligibility(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	staleBefore := now.Add(-2 * time.Minute)
	freshLock := now.Add(-30 * time.Second)
	staleLock := now.Add(-10 * time.Minute)

	tests := []struct {
		name string
		msg  WebhookMessage
		want claimOutcome
	}{
		{
			name: "pending and due",
			msg: outboxTestMessage(OutboxPublishStatusPending, func(m *WebhookMessage) {
				m.NextAttemptAt = now.Add(-time.Second)
			}),
			want: claimLocked,
		},
		{
			name: "failed and due for retry",
			msg: outboxTestMessage(OutboxPublishStatusFailed, func(m *WebhookMessage) {
				m.NextAttemptAt = now
				m.PublishAttempts = 2
			}),
			want: claimLocked,
		},
		{
			name: "failed but still backing off",
			msg: outboxTestMessage(OutboxPublishStatusFailed, func(m *WebhookMessage) {
				m.NextAttemptAt = now.Add(40 * time.Second)
				m.PublishAttempts = 2
			}),
			want: claimSkip,
		},
		{
			name: "processing under a live lock",
			msg: outboxTestMessage(OutboxPublishStatusProcessing, func(m *WebhookMessage) {
				m.LockedAt = &freshLock
			}),
			want: claimSkip,
		},
		{
			name: "processing with a stale lock is reclaimed",
			msg: outboxTestMessage(OutboxPublishStatusProcessing, func(m *WebhookMessage) {
				m.LockedAt = &staleLock
				m.PublishAttempts = 1
			}),
			want: claimLocked,
		},
		{
			name: "sent is never reclaimed",
			msg: outboxTestMessage(OutboxPublishStatusSent, func(m *WebhookMessage) {
				m.NextAttemptAt = now.Add(-time.Hour)
			}),
			want: claimSkip,
		},
		{
			name: "dead stays dead",
			msg: outboxTestMessage(OutboxPublishStatusDead, func(m *WebhookMessage) {
				m.NextAttemptAt = now.Add(-time.Hour)
			}),
			want: claimSkip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, outcome := claimTransition(tt.msg, "dispatcher-a", now, staleBefore, 5)
			if outcome != tt.want {
				t.Fatalf("outcome = %v, want %v", outcome, tt.want)
			}
		})
	}
}

func TestClaimTransition_LocksForTheClaimingDispatcher(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	staleBefore := now.Add(-2 * time.Minute)
	msg := outboxTestMessage(OutboxPublishStatusFailed, func(m *WebhookMessage) {
		m.NextAttemptAt = now.Add(-time.Minute)
		m.PublishAttempts = 2
		failure := "connection refused"
		m.LastPublishError = &failure
	})

	next, outcome := claimTransition(msg, "dispatcher-a", now, staleBefore, 5)
	if outcome != claimLocked {
		t.Fatalf("outcome = %v, want claimLocked", outcome)
	}
	if next.PublishStatus != OutboxPublishStatusProcessing {
		t.Errorf("publishStatus = %q, want %q", next.PublishStatus, OutboxPublishStatusProcessing)
	}
	if next.PublishAttempts != 3 {
		t.Errorf("publishAttempts = %d, want 3", next.PublishAttempts)
	}
	if next.LockedBy == nil || *next.LockedBy != "dispatcher-a" {
		t.Errorf("lockedBy = %v, want dispatcher-a", next.LockedBy)
	}
	if next.LockedAt == nil || !next.LockedAt.Equal(now) {
		t.Errorf("lockedAt = %v, want %v", next.LockedAt, now)
	}
	if next.LastPublishError != nil {
		t.Errorf("lastPublishError = %q, want cleared", *next.LastPublishError)
	}
}

func TestClaimTransition_ReclaimedStaleLockKeepsRetryBudget(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	staleBefore := now.Add(-2 * time.Minute)
	staleLock := now.Add(-15 * time.Minute)
	other := "dispatcher-b"
	msg := outboxTestMessage(OutboxPublishStatusProcessing, func(m *WebhookMessage) {
		m.LockedAt = &staleLock
		m.LockedBy = &other
		m.PublishAttempts = 3
	})

	next, outcome := claimTransition(msg, "dispatcher-a", now, staleBefore, 5)
	if outcome != claimLocked {
		t.Fatalf("outcome = %v, want claimLocked", outcome)
	}
	if next.PublishAttempts != 4 {
		t.Errorf("publishAttempts = %d, want 4", next.PublishAttempts)
	}
	if next.LockedBy == nil || *next.LockedBy != "dispatcher-a" {
		t.Errorf("lockedBy = %v, want dispatcher-a", next.LockedBy)
	}
}

func TestClaimTransition_ExhaustedAttemptsGoDead(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	staleBefore := now.Add(-2 * time.Minute)
	staleLock := now.Add(-15 * time.Minute)

	tests := []struct {
		name string
		msg  WebhookMessage
	}{
		{
			name: "failed message out of retries",
			msg: outboxTestMessage(OutboxPublishStatusFailed, func(m *WebhookMessage) {
				m.NextAttemptAt = now.Add(-time.Minute)
				m.PublishAttempts = 5
			}),
		},
		{
			name: "reclaimed stale lock out of retries",
			msg: outboxTestMessage(OutboxPublishStatusProcessing, func(m *WebhookMessage) {
				m.LockedAt = &staleLock
				m.PublishAttempts = 5
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, outcome := claimTransition(tt.msg, "dispatcher-a", now, staleBefore, 5)
			if outcome != claimDead {
				t.Fatalf("outcome = %v, want claimDead", outcome)
			}
			if next.PublishStatus != OutboxPublishStatusDead {
				t.Errorf("publishStatus = %q, want %q", next.PublishStatus, OutboxPublishStatusDead)
			}
			if next.LastPublishError == nil || *next.LastPublishError != "max publish attempts exceeded" {
				t.Errorf("lastPublishError = %v, want max publish attempts exceeded", next.LastPublishError)
			}
			if next.LockedAt != nil || next.LockedBy != nil {
				t.Errorf("lock not cleared: lockedAt=%v lockedBy=%v", next.LockedAt, next.LockedBy)
			}
		})
	}
}
