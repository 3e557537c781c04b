package models

import (
	"context"
	"strconv"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PropertyCounter is the shared allocator document at acn-admin/lastPropId.
// Count is the last issued number, not the next one.
type PropertyCounter struct {
	Count  int64  `firestore:"count" json:"count"`
	Prefix string `firestore:"prefix" json:"prefix"`
	Label  string `firestore:"label" json:"label"`
}

func (c PropertyCounter) ID() string {
	return c.Prefix + c.Label + strconv.FormatInt(c.Count, 10)
}

// Seed values written when the counter document does not exist yet.
var counterSeed = PropertyCounter{Count: 5269, Prefix: "A", Label: "P"}

// CounterTx is the single-document read-modify-write primitive the allocator
// runs inside. Firestore backs it in production; tests substitute a fake to
// exercise the no-duplicate-IDs property under concurrency.
type CounterTx interface {
	Get() (counter PropertyCounter, exists bool, err error)
	Set(counter PropertyCounter) error
}

type CounterStore interface {
	RunCounterTx(ctx context.Context, fn func(tx CounterTx) error) error
}

// AllocatePropertyId issues the next sequential listing identifier. The read,
// increment, and write happen in one atomic transaction: two concurrent
// allocations can never observe the same count.
func AllocatePropertyId(ctx context.Context, store CounterStore) (string, error) {
	var id string
	err := store.RunCounterTx(ctx, func(tx CounterTx) error {
		cur, exists, err := tx.Get()
		if err != nil {
			return err
		}
		if !exists {
			cur = counterSeed
		} else {
			cur.Count++
		}
		if err := tx.Set(cur); err != nil {
			return err
		}
		id = cur.ID()
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// FirestoreCounterStore runs the allocator against acn-admin/lastPropId.
type FirestoreCounterStore struct {
	Client *firestore.Client
}

func (s FirestoreCounterStore) doc() *firestore.DocumentRef {
	return fsClient(s.Client).Collection(CollectionAdmin).Doc(DocLastPropId)
}

func (s FirestoreCounterStore) RunCounterTx(ctx context.Context, fn func(tx CounterTx) error) error {
	ref := s.doc()
	return fsClient(s.Client).RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(firestoreCounterTx{tx: tx, ref: ref})
	})
}

type firestoreCounterTx struct {
	tx  *firestore.Transaction
	ref *firestore.DocumentRef
}

func (t firestoreCounterTx) Get() (PropertyCounter, bool, error) {
	snap, err := t.tx.Get(t.ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return PropertyCounter{}, false, nil
		}
		return PropertyCounter{}, false, err
	}
	var c PropertyCounter
	if err := snap.DataTo(&c); err != nil {
		return PropertyCounter{}, false, err
	}
	return c, true, nil
}

func (t firestoreCounterTx) Set(c PropertyCounter) error {
	return t.tx.Set(t.ref, c)
}
