package models

import (
	"fmt"
	"time"
)

// HistoryEntry is the audit record shape stored in the qcHistory array.
// Date is epoch milliseconds.
type HistoryEntry struct {
	Date        int64  `firestore:"date" json:"date"`
	Action      string `firestore:"action" json:"action"`
	PerformedBy string `firestore:"performedBy" json:"performedBy"`
	Details     string `firestore:"details" json:"details"`
}

// DomainEvent is the closed set of loggable QC workflow events. Each variant
// carries its own payload and renders its own history entry, so a new action
// cannot silently go un-logged.
type DomainEvent interface {
	Action() string
	Details() string
	sealedEvent()
}

// KamReviewEvent records a KAM review status write. StageTo is set when the
// write also advanced the stage.
type KamReviewEvent struct {
	Status   ReviewStatus
	Comments string
	StageTo  Stage
}

func (e KamReviewEvent) Action() string { return "kamReview" }

func (e KamReviewEvent) Details() string {
	d := fmt.Sprintf("KAM review marked %s", e.Status)
	if e.StageTo != "" {
		d += fmt.Sprintf("; stage moved to %s", e.StageTo)
	}
	if e.Comments != "" {
		d += fmt.Sprintf(" (%s)", e.Comments)
	}
	return d
}

func (KamReviewEvent) sealedEvent() {}

// DataReviewEvent records a data team review status write.
type DataReviewEvent struct {
	Status   ReviewStatus
	Comments string
	StageTo  Stage
}

func (e DataReviewEvent) Action() string { return "dataReview" }

func (e DataReviewEvent) Details() string {
	d := fmt.Sprintf("Data team review marked %s", e.Status)
	if e.StageTo != "" {
		d += fmt.Sprintf("; stage moved to %s", e.StageTo)
	}
	if e.Comments != "" {
		d += fmt.Sprintf(" (%s)", e.Comments)
	}
	return d
}

func (DataReviewEvent) sealedEvent() {}

// PropertyMaterializedEvent records the creation of a live listing from a
// dual-approved QC record. It is written to the Property's own history so the
// QC update stays a single document write.
type PropertyMaterializedEvent struct {
	QCId       string
	PropertyId string
}

func (e PropertyMaterializedEvent) Action() string { return "materialized" }

func (e PropertyMaterializedEvent) Details() string {
	return fmt.Sprintf("Listing %s created from QC record %s", e.PropertyId, e.QCId)
}

func (PropertyMaterializedEvent) sealedEvent() {}

// NewHistoryEntry renders a domain event into the stored audit shape.
func NewHistoryEntry(e DomainEvent, performedBy string, at time.Time) HistoryEntry {
	return HistoryEntry{
		Date:        at.UnixMilli(),
		Action:      e.Action(),
		PerformedBy: performedBy,
		Details:     e.Details(),
	}
}
