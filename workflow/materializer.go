package workflow

import (
	"context"
	"time"

	"github.com/engineering-truestate/iqol-crm-backend/models"
	"github.com/sirupsen/logrus"
)

// PropertyWriter is the slice of the property store the materializer needs.
type PropertyWriter interface {
	FindByQCId(ctx context.Context, qcId string) (*models.Property, error)
	Create(ctx context.Context, p *models.Property) error
}

// Materializer copies a dual-approved QC record into the live properties
// collection under a freshly allocated sequential identifier.
//
// The ID allocation is atomic (single-document transaction); the property
// write is deliberately a separate call. A crash in between leaves an
// allocated-but-unused ID, which is acceptable: the sequence need not be
// gap-free.
type Materializer struct {
	Counter    models.CounterStore
	Properties PropertyWriter
	Logger     *logrus.Logger
}

// Materialize creates the live listing for the given QC record (already
// carrying the pending review updates). A listing that already exists for
// this QC record is returned as-is: a replayed dual-approval must not mint a
// second property.
func (m *Materializer) Materialize(ctx context.Context, inv models.QCInventory, actor string, now time.Time) (*models.Property, bool, error) {
	existing, err := m.Properties.FindByQCId(ctx, inv.PropertyId)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if m.Logger != nil {
			m.Logger.WithFields(logrus.Fields{
				"field":       "Materializer",
				"qc_id":       inv.PropertyId,
				"property_id": existing.PropertyId,
			}).Warn("listing already materialized; skipping duplicate create")
		}
		return existing, false, nil
	}

	newId, err := models.AllocatePropertyId(ctx, m.Counter)
	if err != nil {
		return nil, false, err
	}

	p := models.PropertyFromQC(inv, newId, now.UnixMilli())
	event := models.PropertyMaterializedEvent{QCId: inv.PropertyId, PropertyId: newId}
	p.History = append(p.History, models.NewHistoryEntry(event, actor, now))

	if err := m.Properties.Create(ctx, p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}
