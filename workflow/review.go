package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bsm/redislock"
	"github.com/engineering-truestate/iqol-crm-backend/config"
	"github.com/engineering-truestate/iqol-crm-backend/models"
	"github.com/engineering-truestate/iqol-crm-backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// QCReader is the slice of the QC inventory store the review flow needs.
type QCReader interface {
	Get(ctx context.Context, propertyId string) (*models.QCInventory, error)
	ApplyReview(ctx context.Context, propertyId string, patch models.ReviewPatch) error
}

// Notifier enqueues outbound webhook notifications.
type Notifier interface {
	Enqueue(ctx context.Context, kind string, referenceId string, platform models.Platform, payload any) error
}

// LifecyclePublisher pushes listing events to the searchsync pipeline.
type LifecyclePublisher interface {
	Publish(ctx context.Context, evt config.ListingEvent) (string, error)
}

// ReviewService runs one status-update call end to end: role check, decision,
// single document update, conditional materialization, notifications.
type ReviewService struct {
	QC           QCReader
	Materializer *Materializer
	Outbox       Notifier
	Events       LifecyclePublisher
	Logger       *logrus.Logger
}

type UpdateStatusInput struct {
	PropertyId string              `json:"propertyId" validate:"required"`
	Status     models.ReviewStatus `json:"status" validate:"required"`
	ActiveTab  models.ReviewTab    `json:"activeTab"`
	Comments   string              `json:"comments"`
}

type UpdateStatusResult struct {
	Inventory *models.QCInventory `json:"inventory"`
	Property  *models.Property    `json:"property,omitempty"`
	Created   bool                `json:"created"`
}

// qcStatusPayload is the body POSTed to /qcstatus/{id}.
type qcStatusPayload struct {
	PropertyId string `json:"propertyId"`
	Stage      string `json:"stage"`
	QCStatus   string `json:"qcStatus"`
	KamStatus  string `json:"kamStatus"`
	DataStatus string `json:"dataStatus"`
	UpdatedBy  string `json:"updatedBy"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// UpdateStatus applies one requested review status. All precondition checks
// run before any write; rejections come back as plain error values for the
// handler to render. Webhook and event delivery failures are logged and
// swallowed, never surfaced.
func (s *ReviewService) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*UpdateStatusResult, error) {
	role, _ := utils.GetUserRoleFromContext(ctx)
	reviewer, _ := utils.GetUserNameFromContext(ctx)
	now := time.Now()

	// Best-effort: serialize concurrent reviews of the same listing. Redis
	// being down must not block reviews; the update itself stays
	// last-writer-wins either way.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "qclock:"+input.PropertyId, 30*time.Second, nil)
		if err == nil {
			defer func() {
				if releaseErr := lock.Release(ctx); releaseErr != nil && s.Logger != nil {
					s.Logger.WithFields(logrus.Fields{
						"field":       "ReviewService",
						"property_id": input.PropertyId,
					}).Warn("failed to release review lock: " + releaseErr.Error())
				}
			}()
		} else if err != redislock.ErrNotObtained && s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"field":       "ReviewService",
				"property_id": input.PropertyId,
			}).Warn("could not obtain review lock; proceeding: " + err.Error())
		}
	}

	inv, err := s.QC.Get(ctx, input.PropertyId)
	if err != nil {
		return nil, err
	}

	decision, err := Decide(ReviewInput{
		Stage:        inv.Stage,
		KamStatus:    inv.QCReview.KamReview.Status,
		DataStatus:   inv.QCReview.DataReview.Status,
		Role:         models.Role(role),
		ActiveTab:    input.ActiveTab,
		Requested:    input.Status,
		ReviewerName: reviewer,
		Comments:     input.Comments,
		Now:          now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.QC.ApplyReview(ctx, input.PropertyId, decision.Patch); err != nil {
		return nil, err
	}

	updated := *inv
	decision.Patch.Apply(&updated)

	result := &UpdateStatusResult{Inventory: &updated}

	if decision.Materialize {
		prop, created, err := s.Materializer.Materialize(ctx, updated, reviewer, now)
		if err != nil {
			return nil, err
		}
		result.Property = prop
		result.Created = created
		if created {
			s.notify(ctx, models.WebhookKindProperty, prop.PropertyId, prop.Platform, prop)
			s.publishEvent(ctx, config.ListingEventPropertyCreated, prop.PropertyId, updated.Platform, prop)
		}
	}

	s.notify(ctx, models.WebhookKindQCStatus, updated.PropertyId, updated.Platform, qcStatusPayload{
		PropertyId: updated.PropertyId,
		Stage:      string(updated.Stage),
		QCStatus:   updated.QCStatus,
		KamStatus:  updated.KamStatus,
		DataStatus: string(updated.QCReview.DataReview.Status),
		UpdatedBy:  reviewer,
		UpdatedAt:  updated.Lastmodified,
	})
	s.publishEvent(ctx, config.ListingEventQCStatusChanged, updated.PropertyId, updated.Platform, &updated)

	return result, nil
}

func (s *ReviewService) notify(ctx context.Context, kind string, referenceId string, platform models.Platform, payload any) {
	if s.Outbox == nil {
		return
	}
	if err := s.Outbox.Enqueue(ctx, kind, referenceId, platform, payload); err != nil && s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"field":        "ReviewService",
			"kind":         kind,
			"reference_id": referenceId,
		}).Error("failed to enqueue webhook: " + err.Error())
	}
}

func (s *ReviewService) publishEvent(ctx context.Context, eventType string, referenceId string, platform models.Platform, payload any) {
	if s.Events == nil || !config.SearchSyncEnabled() {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	evt := config.ListingEvent{
		ID:            uuid.NewString(),
		Platform:      string(platform),
		EventType:     eventType,
		ReferenceId:   referenceId,
		OccurredAt:    time.Now().UTC(),
		Payload:       body,
		CorrelationId: cid,
	}
	if _, err := s.Events.Publish(ctx, evt); err != nil && s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"field":        "ReviewService",
			"event_type":   eventType,
			"reference_id": referenceId,
		}).Error("failed to publish listing event: " + err.Error())
	}
}
