package models

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/engineering-truestate/iqol-crm-backend/utils"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ReviewEntry is one stage's review block inside qcReview.
// ReviewDate is epoch milliseconds.
type ReviewEntry struct {
	Status     ReviewStatus `firestore:"status" json:"status"`
	ReviewDate int64        `firestore:"reviewDate" json:"reviewDate"`
	ReviewedBy string       `firestore:"reviewedBy" json:"reviewedBy"`
	Comments   string       `firestore:"comments" json:"comments"`
}

type QCReview struct {
	KamReview  ReviewEntry `firestore:"kamReview" json:"kamReview"`
	DataReview ReviewEntry `firestore:"dataReview" json:"dataReview"`
}

// QCInventory is a submitted listing pending review. The document key is
// PropertyId (the QC-side identifier, distinct from a materialized listing's).
type QCInventory struct {
	PropertyId string   `firestore:"propertyId" json:"propertyId"`
	Platform   Platform `firestore:"platform" json:"platform"`

	AssetType   string  `firestore:"assetType" json:"assetType"`
	UnitType    string  `firestore:"unitType" json:"unitType"`
	Facing      string  `firestore:"facing" json:"facing"`
	SBUA        float64 `firestore:"sbua" json:"sbua"`
	CarpetArea  float64 `firestore:"carpetArea" json:"carpetArea"`
	PlotSize    float64 `firestore:"plotSize" json:"plotSize"`
	FloorNo     string  `firestore:"floorNo" json:"floorNo"`
	TotalFloors int     `firestore:"totalFloors" json:"totalFloors"`
	Micromarket string  `firestore:"micromarket" json:"micromarket"`
	Address     string  `firestore:"address" json:"address"`
	AskPrice    float64 `firestore:"totalAskPrice" json:"totalAskPrice"`

	AgentCpid string `firestore:"cpId" json:"cpId"`
	AgentName string `firestore:"cpName" json:"cpName"`

	Stage     Stage          `firestore:"stage" json:"stage"`
	QCReview  QCReview       `firestore:"qcReview" json:"qcReview"`
	QCHistory []HistoryEntry `firestore:"qcHistory" json:"qcHistory"`

	// Convenience mirrors kept in sync by the review workflow; dashboards
	// filter on these without reading into qcReview.
	QCStatus  string `firestore:"qcStatus" json:"qcStatus"`
	Status    string `firestore:"status" json:"status"`
	KamStatus string `firestore:"kamStatus" json:"kamStatus"`

	Added        int64 `firestore:"added" json:"added"`
	Lastmodified int64 `firestore:"lastmodified" json:"lastmodified"`
}

// ReviewPatch is the set of pending field updates an accepted review decision
// produces. It is applied to Firestore as one partial-document update, and to
// in-memory copies (materializer, tests) via Apply.
type ReviewPatch struct {
	Target       ReviewTarget
	Entry        ReviewEntry
	Stage        Stage
	QCStatus     string
	Status       string
	KamStatus    string // written only for kamReview targets
	History      HistoryEntry
	Lastmodified int64
}

// Apply mutates a QC inventory copy with the pending updates.
func (p ReviewPatch) Apply(inv *QCInventory) {
	switch p.Target {
	case TargetKamReview:
		inv.QCReview.KamReview = p.Entry
		inv.KamStatus = p.KamStatus
	case TargetDataReview:
		inv.QCReview.DataReview = p.Entry
	}
	inv.Stage = p.Stage
	inv.QCStatus = p.QCStatus
	inv.Status = p.Status
	inv.QCHistory = append(inv.QCHistory, p.History)
	inv.Lastmodified = p.Lastmodified
}

// updates converts the patch into dotted-path Firestore updates.
func (p ReviewPatch) updates() []firestore.Update {
	out := []firestore.Update{
		{Path: "qcReview." + string(p.Target), Value: p.Entry},
		{Path: "stage", Value: p.Stage},
		{Path: "qcStatus", Value: p.QCStatus},
		{Path: "status", Value: p.Status},
		{Path: "qcHistory", Value: firestore.ArrayUnion(p.History)},
		{Path: "lastmodified", Value: p.Lastmodified},
	}
	if p.Target == TargetKamReview {
		out = append(out, firestore.Update{Path: "kamStatus", Value: p.KamStatus})
	}
	return out
}

// QCListFilter narrows dashboard queries.
type QCListFilter struct {
	Platform Platform
	Stage    Stage
	QCStatus string
	Limit    int
	Offset   int
}

// QCInventoryStore is the Firestore-backed store for QC inventory records.
type QCInventoryStore struct {
	Client *firestore.Client
}

func (s QCInventoryStore) col() *firestore.CollectionRef {
	return fsClient(s.Client).Collection(CollectionQCInventories)
}

func (s QCInventoryStore) Get(ctx context.Context, propertyId string) (*QCInventory, error) {
	if propertyId == "" {
		return nil, errors.New("property id is required")
	}
	snap, err := s.col().Doc(propertyId).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	var inv QCInventory
	if err := snap.DataTo(&inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// ApplyReview writes the decision's pending updates as a single partial
// document update. No optimistic concurrency: last writer wins, matching the
// rest of the document surface.
func (s QCInventoryStore) ApplyReview(ctx context.Context, propertyId string, patch ReviewPatch) error {
	_, err := s.col().Doc(propertyId).Update(ctx, patch.updates())
	if err != nil && status.Code(err) == codes.NotFound {
		return utils.ErrorRecordNotFound
	}
	return err
}

func (s QCInventoryStore) List(ctx context.Context, filter QCListFilter) ([]*QCInventory, error) {
	q := s.col().Query
	if filter.Platform != "" {
		q = q.Where("platform", "==", string(filter.Platform))
	}
	if filter.Stage != "" {
		q = q.Where("stage", "==", string(filter.Stage))
	}
	if filter.QCStatus != "" {
		q = q.Where("qcStatus", "==", filter.QCStatus)
	}
	q = q.OrderBy("lastmodified", firestore.Desc)
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	q = q.Limit(limit)

	var results []*QCInventory
	iter := q.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var inv QCInventory
		if err := snap.DataTo(&inv); err != nil {
			return nil, err
		}
		results = append(results, &inv)
	}
	return results, nil
}
