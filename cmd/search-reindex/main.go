// search-reindex rebuilds the Algolia indices from Firestore. Run it after
// changing index settings or when the indices have drifted from the source of
// truth (e.g. a long SEARCH_SYNC_ENABLED=false window).
//
// Usage (from backend directory):
//   FIRESTORE_PROJECT_ID=... ALGOLIA_APP_ID=... ALGOLIA_API_KEY=... go run ./cmd/search-reindex
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/engineering-truestate/iqol-crm-backend/config"
	"github.com/engineering-truestate/iqol-crm-backend/models"
	"github.com/engineering-truestate/iqol-crm-backend/searchsync"
)

const pageSize = 100

func main() {
	properties := flag.Bool("properties", true, "Reindex live listings")
	inventories := flag.Bool("inventories", true, "Reindex QC records")
	flag.Parse()

	ctx := context.Background()
	config.ConnectFirestoreWithRetry()
	if config.GetFirestore() == nil {
		fmt.Fprintln(os.Stderr, "firestore not initialized. Set FIRESTORE_PROJECT_ID / FIRESTORE_CREDENTIALS_JSON.")
		os.Exit(1)
	}

	search, err := searchsync.NewClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "search client: %v\n", err)
		os.Exit(1)
	}

	if *properties {
		n, err := reindexProperties(ctx, search)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reindex properties: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Reindexed %d listings\n", n)
	}
	if *inventories {
		n, err := reindexInventories(ctx, search)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reindex qc records: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Reindexed %d QC records\n", n)
	}
}

func reindexProperties(ctx context.Context, search *searchsync.Client) (int, error) {
	store := models.PropertyStore{}
	total := 0
	for offset := 0; ; offset += pageSize {
		page, err := store.List(ctx, models.PropertyListFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return total, err
		}
		for _, p := range page {
			record, err := toRecord(p)
			if err != nil {
				return total, err
			}
			if err := search.SaveProperty(ctx, p.PropertyId, record); err != nil {
				return total, fmt.Errorf("listing %s: %w", p.PropertyId, err)
			}
			total++
		}
		if len(page) < pageSize {
			return total, nil
		}
	}
}

func reindexInventories(ctx context.Context, search *searchsync.Client) (int, error) {
	store := models.QCInventoryStore{}
	total := 0
	for offset := 0; ; offset += pageSize {
		page, err := store.List(ctx, models.QCListFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return total, err
		}
		for _, inv := range page {
			record, err := toRecord(inv)
			if err != nil {
				return total, err
			}
			if err := search.SaveInventory(ctx, inv.PropertyId, record); err != nil {
				return total, fmt.Errorf("qc record %s: %w", inv.PropertyId, err)
			}
			total++
		}
		if len(page) < pageSize {
			return total, nil
		}
	}
}

func toRecord(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var record map[string]interface{}
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return record, nil
}
