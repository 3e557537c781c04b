package models

import (
	"testing"
	"time"
)

func TestHistoryEntry_DeterministicDetails(t *testing.T) {
	at := time.UnixMilli(1700000000000)

	tests := []struct {
		name        string
		event       DomainEvent
		wantAction  string
		wantDetails string
	}{
		{
			name:        "kam approval with stage move",
			event:       KamReviewEvent{Status: ReviewApproved, StageTo: StageDataTeam},
			wantAction:  "kamReview",
			wantDetails: "KAM review marked approved; stage moved to dataTeam",
		},
		{
			name:        "kam rejection with comment",
			event:       KamReviewEvent{Status: ReviewRejected, Comments: "wrong tower"},
			wantAction:  "kamReview",
			wantDetails: "KAM review marked rejected (wrong tower)",
		},
		{
			name:        "data approval goes live",
			event:       DataReviewEvent{Status: ReviewApproved, StageTo: StageLive},
			wantAction:  "dataReview",
			wantDetails: "Data team review marked approved; stage moved to live",
		},
		{
			name:        "duplicate flag without stage move",
			event:       DataReviewEvent{Status: ReviewDuplicate},
			wantAction:  "dataReview",
			wantDetails: "Data team review marked duplicate",
		},
		{
			name:        "materialization",
			event:       PropertyMaterializedEvent{QCId: "qc-1", PropertyId: "AP5269"},
			wantAction:  "materialized",
			wantDetails: "Listing AP5269 created from QC record qc-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := NewHistoryEntry(tt.event, "Asha", at)
			if entry.Action != tt.wantAction {
				t.Fatalf("action = %q, want %q", entry.Action, tt.wantAction)
			}
			if entry.Details != tt.wantDetails {
				t.Fatalf("details = %q, want %q", entry.Details, tt.wantDetails)
			}
			if entry.PerformedBy != "Asha" || entry.Date != at.UnixMilli() {
				t.Fatalf("entry stamp = %+v", entry)
			}

			// Rendering twice from the same event must be byte-identical;
			// downstream consumers diff these strings.
			again := NewHistoryEntry(tt.event, "Asha", at)
			if again != entry {
				t.Fatalf("rendering is not deterministic: %+v vs %+v", entry, again)
			}
		})
	}
}
