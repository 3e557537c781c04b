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

// Property is a live listing materialized from a dual-approved QC record.
// PropertyId is the allocator-issued identifier (document key); QCId points
// back at the originating QC inventory document and is the idempotency key
// for materialization.
type Property struct {
	PropertyId string   `firestore:"propertyId" json:"propertyId"`
	QCId       string   `firestore:"qcId" json:"qcId"`
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

	Photos []string `firestore:"photos" json:"photos"`

	Status            string         `firestore:"status" json:"status"`
	StatusLastUpdated int64          `firestore:"statusLastUpdated" json:"statusLastUpdated"`
	DaysOnStatus      int            `firestore:"daysOnStatus" json:"daysOnStatus"`
	History           []HistoryEntry `firestore:"qcHistory" json:"qcHistory"`

	Added        int64 `firestore:"added" json:"added"`
	Lastmodified int64 `firestore:"lastmodified" json:"lastmodified"`
}

// PropertyFromQC builds the live listing as a copy of the QC record with the
// pending review updates already applied.
func PropertyFromQC(inv QCInventory, newPropertyId string, now int64) *Property {
	return &Property{
		PropertyId:        newPropertyId,
		QCId:              inv.PropertyId,
		Platform:          inv.Platform,
		AssetType:         inv.AssetType,
		UnitType:          inv.UnitType,
		Facing:            inv.Facing,
		SBUA:              inv.SBUA,
		CarpetArea:        inv.CarpetArea,
		PlotSize:          inv.PlotSize,
		FloorNo:           inv.FloorNo,
		TotalFloors:       inv.TotalFloors,
		Micromarket:       inv.Micromarket,
		Address:           inv.Address,
		AskPrice:          inv.AskPrice,
		AgentCpid:         inv.AgentCpid,
		AgentName:         inv.AgentName,
		Status:            PropertyStatusAvailable,
		StatusLastUpdated: now,
		DaysOnStatus:      0,
		History:           append([]HistoryEntry(nil), inv.QCHistory...),
		Added:             now,
		Lastmodified:      now,
	}
}

type PropertyListFilter struct {
	Platform    Platform
	Status      string
	Micromarket string
	Limit       int
	Offset      int
}

// PropertyStore is the Firestore-backed store for live listings.
type PropertyStore struct {
	Client *firestore.Client
}

func (s PropertyStore) col() *firestore.CollectionRef {
	return fsClient(s.Client).Collection(CollectionProperties)
}

func (s PropertyStore) Get(ctx context.Context, propertyId string) (*Property, error) {
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
	var p Property
	if err := snap.DataTo(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByQCId returns the listing materialized from the given QC record, or
// nil when none exists. Used as the materialize-at-most-once guard.
func (s PropertyStore) FindByQCId(ctx context.Context, qcId string) (*Property, error) {
	iter := s.col().Where("qcId", "==", qcId).Limit(1).Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Property
	if err := snap.DataTo(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create writes the listing document keyed by its allocated PropertyId.
// Create (not Set) so an ID collision surfaces instead of overwriting.
func (s PropertyStore) Create(ctx context.Context, p *Property) error {
	_, err := s.col().Doc(p.PropertyId).Create(ctx, p)
	return err
}

// AddPhoto appends an object key to the listing's photo set.
func (s PropertyStore) AddPhoto(ctx context.Context, propertyId string, objectKey string) error {
	_, err := s.col().Doc(propertyId).Update(ctx, []firestore.Update{
		{Path: "photos", Value: firestore.ArrayUnion(objectKey)},
		{Path: "lastmodified", Value: utils.NowMillis()},
	})
	if err != nil && status.Code(err) == codes.NotFound {
		return utils.ErrorRecordNotFound
	}
	return err
}

// RemovePhoto drops an object key from the listing's photo set.
func (s PropertyStore) RemovePhoto(ctx context.Context, propertyId string, objectKey string) error {
	_, err := s.col().Doc(propertyId).Update(ctx, []firestore.Update{
		{Path: "photos", Value: firestore.ArrayRemove(objectKey)},
		{Path: "lastmodified", Value: utils.NowMillis()},
	})
	if err != nil && status.Code(err) == codes.NotFound {
		return utils.ErrorRecordNotFound
	}
	return err
}

// Update applies a partial update from downstream CRUD flows.
// Last writer wins; the review workflow never calls this.
func (s PropertyStore) Update(ctx context.Context, propertyId string, fields map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, value := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	_, err := s.col().Doc(propertyId).Update(ctx, updates)
	if err != nil && status.Code(err) == codes.NotFound {
		return utils.ErrorRecordNotFound
	}
	return err
}

func (s PropertyStore) List(ctx context.Context, filter PropertyListFilter) ([]*Property, error) {
	q := s.col().Query
	if filter.Platform != "" {
		q = q.Where("platform", "==", string(filter.Platform))
	}
	if filter.Status != "" {
		q = q.Where("status", "==", filter.Status)
	}
	if filter.Micromarket != "" {
		q = q.Where("micromarket", "==", filter.Micromarket)
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

	var results []*Property
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
		var p Property
		if err := snap.DataTo(&p); err != nil {
			return nil, err
		}
		results = append(results, &p)
	}
	return results, nil
}
