package searchsync

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	"github.com/algolia/algoliasearch-client-go/v3/algolia/search"
)

// Client wraps the Algolia application the CRM dashboards query. Listings and
// QC records live in separate indices; sort variants are replica indices
// selected by name suffix.
type Client struct {
	app            *search.Client
	propertyIndex  string
	inventoryIndex string
}

func NewClient() (*Client, error) {
	appID := strings.TrimSpace(os.Getenv("ALGOLIA_APP_ID"))
	apiKey := strings.TrimSpace(os.Getenv("ALGOLIA_API_KEY"))
	if appID == "" || apiKey == "" {
		return nil, errors.New("ALGOLIA_APP_ID and ALGOLIA_API_KEY are required")
	}
	propertyIndex := strings.TrimSpace(os.Getenv("ALGOLIA_PROPERTY_INDEX"))
	if propertyIndex == "" {
		propertyIndex = "properties"
	}
	inventoryIndex := strings.TrimSpace(os.Getenv("ALGOLIA_QC_INDEX"))
	if inventoryIndex == "" {
		inventoryIndex = "qcInventories"
	}
	return &Client{
		app:            search.NewClient(appID, apiKey),
		propertyIndex:  propertyIndex,
		inventoryIndex: inventoryIndex,
	}, nil
}

// indexFor resolves the replica index for a sort criterion, e.g.
// "price_asc" -> "properties_price_asc". Empty sort means the primary index.
func (c *Client) indexFor(base string, sort string) *search.Index {
	name := base
	if sort != "" {
		name = base + "_" + sort
	}
	return c.app.InitIndex(name)
}

// SaveProperty upserts a materialized listing into the property index.
// Keyed by objectID, so replays are idempotent.
func (c *Client) SaveProperty(ctx context.Context, objectID string, record map[string]interface{}) error {
	record["objectID"] = objectID
	_, err := c.indexFor(c.propertyIndex, "").SaveObject(record, ctx)
	return err
}

// SaveInventory upserts a QC record into the QC dashboard index.
func (c *Client) SaveInventory(ctx context.Context, objectID string, record map[string]interface{}) error {
	record["objectID"] = objectID
	_, err := c.indexFor(c.inventoryIndex, "").SaveObject(record, ctx)
	return err
}

// DeleteProperty removes a listing from the property index.
func (c *Client) DeleteProperty(ctx context.Context, objectID string) error {
	_, err := c.indexFor(c.propertyIndex, "").DeleteObject(objectID, ctx)
	return err
}

// Query runs a faceted search against the property index (or one of its sort
// replicas) and returns paginated hits plus facet counts.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	opts := []interface{}{
		ctx,
		opt.Page(req.Page),
		opt.HitsPerPage(req.hitsPerPage()),
	}
	if len(req.Facets) > 0 {
		opts = append(opts, opt.Facets(req.Facets...))
	}
	if len(req.FacetFilters) > 0 {
		filters := make([]interface{}, 0, len(req.FacetFilters))
		for _, f := range req.FacetFilters {
			filters = append(filters, f)
		}
		opts = append(opts, opt.FacetFilterAnd(filters...))
	}

	res, err := c.indexFor(c.propertyIndex, req.Sort).Search(req.Query, opts...)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Hits:        res.Hits,
		NbHits:      res.NbHits,
		Page:        res.Page,
		NbPages:     res.NbPages,
		HitsPerPage: res.HitsPerPage,
		Facets:      res.Facets,
	}, nil
}
