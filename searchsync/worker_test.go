package searchsync

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/engineering-truestate/iqol-crm-backend/config"
	"github.com/engineering-truestate/iqol-crm-backend/models"
	"github.com/engineering-truestate/iqol-crm-backend/utils"
)

type fakeIndexer struct {
	properties  map[string]map[string]interface{}
	inventories map[string]map[string]interface{}
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{
		properties:  map[string]map[string]interface{}{},
		inventories: map[string]map[string]interface{}{},
	}
}

func (f *fakeIndexer) SaveProperty(_ context.Context, objectID string, record map[string]interface{}) error {
	f.properties[objectID] = record
	return nil
}

func (f *fakeIndexer) SaveInventory(_ context.Context, objectID string, record map[string]interface{}) error {
	f.inventories[objectID] = record
	return nil
}

type fakePropertySource struct {
	records map[string]*models.Property
	err     error
}

func (f *fakePropertySource) Get(_ context.Context, id string) (*models.Property, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.records[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return p, nil
}

type fakeInventorySource struct {
	records map[string]*models.QCInventory
}

func (f *fakeInventorySource) Get(_ context.Context, id string) (*models.QCInventory, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return r, nil
}

func testWorker(idx *fakeIndexer, props *fakePropertySource, invs *fakeInventorySource) *Worker {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewWorker(idx, props, invs, logger)
}

func TestWorker_PropertyCreatedIndexesListing(t *testing.T) {
	idx := newFakeIndexer()
	props := &fakePropertySource{records: map[string]*models.Property{
		"AP5269": {PropertyId: "AP5269", QCId: "qc-1", Micromarket: "Whitefield", Status: "Available"},
	}}
	w := testWorker(idx, props, &fakeInventorySource{})

	err := w.Handle(context.Background(), config.ListingEvent{
		EventType:   config.ListingEventPropertyCreated,
		ReferenceId: "AP5269",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	record, ok := idx.properties["AP5269"]
	if !ok {
		t.Fatal("listing was not indexed")
	}
	if record["micromarket"] != "Whitefield" || record["status"] != "Available" {
		t.Fatalf("indexed record = %v", record)
	}
}

func TestWorker_ReplayOverwritesSameObject(t *testing.T) {
	idx := newFakeIndexer()
	props := &fakePropertySource{records: map[string]*models.Property{
		"AP5269": {PropertyId: "AP5269", Status: "Available"},
	}}
	w := testWorker(idx, props, &fakeInventorySource{})
	evt := config.ListingEvent{EventType: config.ListingEventPropertyUpdated, ReferenceId: "AP5269"}

	if err := w.Handle(context.Background(), evt); err != nil {
		t.Fatalf("first Handle() error = %v", err)
	}
	props.records["AP5269"].Status = "Sold"
	if err := w.Handle(context.Background(), evt); err != nil {
		t.Fatalf("replay Handle() error = %v", err)
	}

	if len(idx.properties) != 1 {
		t.Fatalf("index holds %d objects, want 1", len(idx.properties))
	}
	if idx.properties["AP5269"]["status"] != "Sold" {
		t.Fatalf("replay did not refresh the record: %v", idx.properties["AP5269"])
	}
}

func TestWorker_QCStatusChangeIndexesInventory(t *testing.T) {
	idx := newFakeIndexer()
	invs := &fakeInventorySource{records: map[string]*models.QCInventory{
		"qc-1": {PropertyId: "qc-1", Stage: models.StageDataTeam, QCStatus: "approved"},
	}}
	w := testWorker(idx, &fakePropertySource{}, invs)

	err := w.Handle(context.Background(), config.ListingEvent{
		EventType:   config.ListingEventQCStatusChanged,
		ReferenceId: "qc-1",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if idx.inventories["qc-1"]["stage"] != "dataTeam" {
		t.Fatalf("indexed qc record = %v", idx.inventories["qc-1"])
	}
}

func TestWorker_MissingDocumentAcksEvent(t *testing.T) {
	w := testWorker(newFakeIndexer(), &fakePropertySource{records: map[string]*models.Property{}}, &fakeInventorySource{})

	err := w.Handle(context.Background(), config.ListingEvent{
		EventType:   config.ListingEventPropertyCreated,
		ReferenceId: "gone",
	})
	if err != nil {
		t.Fatalf("deleted document must ack, got %v", err)
	}
}

func TestWorker_SourceErrorTriggersRetry(t *testing.T) {
	w := testWorker(newFakeIndexer(), &fakePropertySource{err: errors.New("firestore unavailable")}, &fakeInventorySource{})

	err := w.Handle(context.Background(), config.ListingEvent{
		EventType:   config.ListingEventPropertyCreated,
		ReferenceId: "AP5269",
	})
	if err == nil {
		t.Fatal("transient source error must surface so Pub/Sub retries")
	}
}

func TestWorker_UnknownEventTypeIsAcked(t *testing.T) {
	w := testWorker(newFakeIndexer(), &fakePropertySource{}, &fakeInventorySource{})

	err := w.Handle(context.Background(), config.ListingEvent{
		EventType:   "listing_archived",
		ReferenceId: "AP5269",
	})
	if err != nil {
		t.Fatalf("unknown event must ack, got %v", err)
	}
}
