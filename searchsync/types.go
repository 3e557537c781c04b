package searchsync

// QueryRequest carries the dashboard search parameters. FacetFilters use
// Algolia "attribute:value" syntax and are ANDed together. Sort names a
// replica suffix such as "price_asc" or "added_desc".
type QueryRequest struct {
	Query        string   `json:"query"`
	Page         int      `json:"page"`
	HitsPerPage  int      `json:"hitsPerPage"`
	Sort         string   `json:"sort"`
	Facets       []string `json:"facets"`
	FacetFilters []string `json:"facetFilters"`
}

func (r QueryRequest) hitsPerPage() int {
	if r.HitsPerPage <= 0 {
		return 25
	}
	if r.HitsPerPage > 100 {
		return 100
	}
	return r.HitsPerPage
}

type QueryResult struct {
	Hits        []map[string]interface{}  `json:"hits"`
	NbHits      int                       `json:"nbHits"`
	Page        int                       `json:"page"`
	NbPages     int                       `json:"nbPages"`
	HitsPerPage int                       `json:"hitsPerPage"`
	Facets      map[string]map[string]int `json:"facets,omitempty"`
}
