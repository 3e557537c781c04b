package searchsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/engineering-truestate/iqol-crm-backend/config"
	"github.com/engineering-truestate/iqol-crm-backend/models"
	"github.com/engineering-truestate/iqol-crm-backend/utils"
)

// Indexer is the slice of the Algolia client the worker needs.
type Indexer interface {
	SaveProperty(ctx context.Context, objectID string, record map[string]interface{}) error
	SaveInventory(ctx context.Context, objectID string, record map[string]interface{}) error
}

type PropertySource interface {
	Get(ctx context.Context, propertyId string) (*models.Property, error)
}

type InventorySource interface {
	Get(ctx context.Context, propertyId string) (*models.QCInventory, error)
}

// Worker applies listing events to the search indices. Records are keyed by
// document ID, so replaying an event overwrites the same object rather than
// duplicating it. The event payload is only a hint; the worker re-reads the
// document so the index always reflects the current state.
type Worker struct {
	Search      Indexer
	Properties  PropertySource
	Inventories InventorySource
	Logger      *logrus.Logger
}

func NewWorker(search Indexer, properties PropertySource, inventories InventorySource, logger *logrus.Logger) *Worker {
	return &Worker{Search: search, Properties: properties, Inventories: inventories, Logger: logger}
}

// Handle routes one listing event. A nil return acks the message; an error
// lets Pub/Sub redeliver it.
func (w *Worker) Handle(ctx context.Context, evt config.ListingEvent) error {
	if evt.ReferenceId == "" {
		return errors.New("listing event missing referenceId")
	}

	switch evt.EventType {
	case config.ListingEventPropertyCreated, config.ListingEventPropertyUpdated:
		return w.syncProperty(ctx, evt)
	case config.ListingEventQCStatusChanged:
		return w.syncInventory(ctx, evt)
	default:
		// Unknown event kinds are acked, not retried: redelivery cannot fix them.
		w.Logger.WithFields(logrus.Fields{
			"field":        "Handle",
			"event_type":   evt.EventType,
			"reference_id": evt.ReferenceId,
		}).Warn("skipping unknown listing event type")
		return nil
	}
}

func (w *Worker) syncProperty(ctx context.Context, evt config.ListingEvent) error {
	prop, err := w.Properties.Get(ctx, evt.ReferenceId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			// The document may have been deleted between publish and delivery.
			w.Logger.WithFields(logrus.Fields{
				"field":        "syncProperty",
				"reference_id": evt.ReferenceId,
			}).Warn("property no longer exists; dropping event")
			return nil
		}
		return fmt.Errorf("load property %s: %w", evt.ReferenceId, err)
	}

	record, err := toRecord(prop)
	if err != nil {
		return err
	}
	if err := w.Search.SaveProperty(ctx, prop.PropertyId, record); err != nil {
		return fmt.Errorf("index property %s: %w", prop.PropertyId, err)
	}
	return nil
}

func (w *Worker) syncInventory(ctx context.Context, evt config.ListingEvent) error {
	inv, err := w.Inventories.Get(ctx, evt.ReferenceId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			w.Logger.WithFields(logrus.Fields{
				"field":        "syncInventory",
				"reference_id": evt.ReferenceId,
			}).Warn("qc record no longer exists; dropping event")
			return nil
		}
		return fmt.Errorf("load qc record %s: %w", evt.ReferenceId, err)
	}

	record, err := toRecord(inv)
	if err != nil {
		return err
	}
	if err := w.Search.SaveInventory(ctx, inv.PropertyId, record); err != nil {
		return fmt.Errorf("index qc record %s: %w", inv.PropertyId, err)
	}
	return nil
}

// toRecord flattens a document into the generic map Algolia expects.
func toRecord(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal search record: %w", err)
	}
	var record map[string]interface{}
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshal search record: %w", err)
	}
	return record, nil
}
