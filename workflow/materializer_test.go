package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/engineering-truestate/iqol-crm-backend/models"
)

// fakeCounterStore serializes transactions with a mutex, matching the
// atomicity Firestore gives the real allocator document.
type fakeCounterStore struct {
	mu      sync.Mutex
	counter models.PropertyCounter
	exists  bool
}

type fakeCounterTx struct {
	store *fakeCounterStore
}

func (t fakeCounterTx) Get() (models.PropertyCounter, bool, error) {
	return t.store.counter, t.store.exists, nil
}

func (t fakeCounterTx) Set(c models.PropertyCounter) error {
	t.store.counter = c
	t.store.exists = true
	return nil
}

func (s *fakeCounterStore) RunCounterTx(_ context.Context, fn func(tx models.CounterTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(fakeCounterTx{store: s})
}

// fakePropertyStore keeps listings in memory, keyed by propertyId.
type fakePropertyStore struct {
	mu     sync.Mutex
	byId   map[string]*models.Property
	byQCId map[string]*models.Property
}

func newFakePropertyStore() *fakePropertyStore {
	return &fakePropertyStore{
		byId:   map[string]*models.Property{},
		byQCId: map[string]*models.Property{},
	}
}

func (s *fakePropertyStore) FindByQCId(_ context.Context, qcId string) (*models.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byQCId[qcId], nil
}

func (s *fakePropertyStore) Create(_ context.Context, p *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byId[p.PropertyId]; ok {
		return fmt.Errorf("document already exists: %s", p.PropertyId)
	}
	s.byId[p.PropertyId] = p
	s.byQCId[p.QCId] = p
	return nil
}

func qcRecord(id string) models.QCInventory {
	return models.QCInventory{
		PropertyId:  id,
		Platform:    models.PlatformACN,
		AssetType:   "apartment",
		Micromarket: "Whitefield",
		Stage:       models.StageLive,
	}
}

func TestAllocatePropertyId_SeedsOnFirstUse(t *testing.T) {
	store := &fakeCounterStore{}
	id, err := models.AllocatePropertyId(context.Background(), store)
	if err != nil {
		t.Fatalf("AllocatePropertyId() error = %v", err)
	}
	if id != "AP5269" {
		t.Fatalf("first allocated id = %q, want AP5269", id)
	}

	id, err = models.AllocatePropertyId(context.Background(), store)
	if err != nil {
		t.Fatalf("AllocatePropertyId() error = %v", err)
	}
	if id != "AP5270" {
		t.Fatalf("second allocated id = %q, want AP5270", id)
	}
}

func TestAllocatePropertyId_NoDuplicatesUnderConcurrency(t *testing.T) {
	store := &fakeCounterStore{counter: models.PropertyCounter{Count: 100, Prefix: "A", Label: "P"}, exists: true}

	const n = 50
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := models.AllocatePropertyId(context.Background(), store)
			if err != nil {
				t.Error(err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate property id allocated: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("allocated %d distinct ids, want %d", len(seen), n)
	}
	if store.counter.Count != 100+n {
		t.Fatalf("final count = %d, want %d", store.counter.Count, 100+n)
	}
}

func TestMaterialize_CreatesListingFromQCRecord(t *testing.T) {
	props := newFakePropertyStore()
	m := &Materializer{Counter: &fakeCounterStore{}, Properties: props}
	now := time.UnixMilli(1700000000000)

	inv := qcRecord("qc-1")
	inv.QCStatus = string(models.ReviewApproved)
	inv.Status = models.QCStatusAvailable

	p, created, err := m.Materialize(context.Background(), inv, "Ravi", now)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if !created {
		t.Fatal("expected a fresh listing")
	}
	if p.PropertyId != "AP5269" {
		t.Fatalf("property id = %q, want AP5269", p.PropertyId)
	}
	if p.QCId != "qc-1" {
		t.Fatalf("qcId backref = %q, want qc-1", p.QCId)
	}
	if p.Status != models.PropertyStatusAvailable {
		t.Fatalf("listing status = %q, want %q", p.Status, models.PropertyStatusAvailable)
	}
	if p.Micromarket != inv.Micromarket || p.AssetType != inv.AssetType {
		t.Fatalf("descriptive fields not copied: %+v", p)
	}
	if len(p.History) == 0 || p.History[len(p.History)-1].Action != "materialized" {
		t.Fatalf("missing materialized history entry: %+v", p.History)
	}
	if p.History[len(p.History)-1].PerformedBy != "Ravi" {
		t.Fatalf("history performedBy = %q, want Ravi", p.History[len(p.History)-1].PerformedBy)
	}
}

func TestMaterialize_ReplayReturnsExistingListing(t *testing.T) {
	props := newFakePropertyStore()
	counter := &fakeCounterStore{}
	m := &Materializer{Counter: counter, Properties: props}
	now := time.UnixMilli(1700000000000)

	first, created, err := m.Materialize(context.Background(), qcRecord("qc-1"), "Ravi", now)
	if err != nil || !created {
		t.Fatalf("first Materialize() = (%v, %v), want created", err, created)
	}

	second, created, err := m.Materialize(context.Background(), qcRecord("qc-1"), "Ravi", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("replay Materialize() error = %v", err)
	}
	if created {
		t.Fatal("replay must not create a second listing")
	}
	if second.PropertyId != first.PropertyId {
		t.Fatalf("replay returned %q, want %q", second.PropertyId, first.PropertyId)
	}
	if got := counter.counter.Count; got != 5269 {
		t.Fatalf("replay consumed a counter increment: count = %d", got)
	}
	if len(props.byId) != 1 {
		t.Fatalf("store holds %d listings, want 1", len(props.byId))
	}
}
