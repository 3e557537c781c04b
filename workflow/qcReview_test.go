package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/engineering-truestate/iqol-crm-backend/models"
)

var reviewTime = time.UnixMilli(1700000000000)

func TestDecide_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		input   ReviewInput
		wantErr error
	}{
		{
			name: "unknown status",
			input: ReviewInput{
				Stage: models.StageKam, Role: models.RoleKam,
				Requested: models.ReviewStatus("bogus"),
			},
			wantErr: ErrUnknownStatus,
		},
		{
			name: "unauthorized role",
			input: ReviewInput{
				Stage: models.StageKam, Role: models.RoleAdmin,
				Requested: models.ReviewApproved,
			},
			wantErr: ErrUnauthorizedRole,
		},
		{
			name: "data team before kam approval",
			input: ReviewInput{
				Stage: models.StageKam, Role: models.RoleDataTeam,
				KamStatus: models.ReviewPending,
				Requested: models.ReviewApproved,
			},
			wantErr: ErrDataTeamNeedsKamApproval,
		},
		{
			name: "moderator on data tab before kam approval",
			input: ReviewInput{
				Stage: models.StageKam, Role: models.RoleKamModerator,
				ActiveTab: models.TabDataTeam,
				KamStatus: models.ReviewRejected,
				Requested: models.ReviewApproved,
			},
			wantErr: ErrDataTeamNeedsKamApproval,
		},
		{
			name: "kam after stage moved on",
			input: ReviewInput{
				Stage: models.StageDataTeam, Role: models.RoleKam,
				KamStatus: models.ReviewApproved,
				Requested: models.ReviewRejected,
			},
			wantErr: ErrKamStageMismatch,
		},
		{
			name: "same status is a no-op write",
			input: ReviewInput{
				Stage: models.StageKam, Role: models.RoleKam,
				KamStatus: models.ReviewPending,
				Requested: models.ReviewPending,
			},
			wantErr: ErrSameStatus,
		},
		{
			name: "same status on data review",
			input: ReviewInput{
				Stage: models.StageDataTeam, Role: models.RoleDataTeam,
				KamStatus: models.ReviewApproved, DataStatus: models.ReviewRejected,
				Requested: models.ReviewRejected,
			},
			wantErr: ErrSameStatus,
		},
		{
			name: "moderator with unknown tab",
			input: ReviewInput{
				Stage: models.StageKam, Role: models.RoleKamModerator,
				ActiveTab: models.ReviewTab("marketing"),
				Requested: models.ReviewApproved,
			},
			wantErr: ErrUnknownTab,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.Now = reviewTime
			_, err := Decide(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decide() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecide_KamApprovalAdvancesStage(t *testing.T) {
	d, err := Decide(ReviewInput{
		Stage:        models.StageKam,
		KamStatus:    models.ReviewPending,
		Role:         models.RoleKam,
		Requested:    models.ReviewApproved,
		ReviewerName: "Asha",
		Comments:     "looks good",
		Now:          reviewTime,
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !d.StageChanged || d.Patch.Stage != models.StageDataTeam {
		t.Fatalf("expected stage to advance to dataTeam, got stage=%s changed=%v", d.Patch.Stage, d.StageChanged)
	}
	if d.Materialize {
		t.Fatal("kam approval must not materialize a listing")
	}
	if d.Patch.Target != models.TargetKamReview {
		t.Fatalf("patch target = %s, want kamReview", d.Patch.Target)
	}
	if d.Patch.KamStatus != string(models.ReviewApproved) {
		t.Fatalf("kamStatus mirror = %q, want approved", d.Patch.KamStatus)
	}
	if d.Patch.Entry.ReviewedBy != "Asha" || d.Patch.Entry.ReviewDate != reviewTime.UnixMilli() {
		t.Fatalf("review entry not stamped with reviewer/time: %+v", d.Patch.Entry)
	}
	if d.Patch.History.Action != "kamReview" {
		t.Fatalf("history action = %q, want kamReview", d.Patch.History.Action)
	}
}

func TestDecide_KamNonApprovalKeepsStage(t *testing.T) {
	for _, status := range []models.ReviewStatus{
		models.ReviewRejected, models.ReviewDuplicate, models.ReviewPrimary,
	} {
		d, err := Decide(ReviewInput{
			Stage:     models.StageKam,
			KamStatus: models.ReviewPending,
			Role:      models.RoleKam,
			Requested: status,
			Now:       reviewTime,
		})
		if err != nil {
			t.Fatalf("Decide(%s) error = %v", status, err)
		}
		if d.StageChanged || d.Patch.Stage != models.StageKam {
			t.Fatalf("Decide(%s) moved the stage: %+v", status, d.Patch)
		}
		if d.Materialize {
			t.Fatalf("Decide(%s) wants to materialize", status)
		}
	}
}

func TestDecide_DataApprovalGoesLiveAndMaterializes(t *testing.T) {
	d, err := Decide(ReviewInput{
		Stage:      models.StageDataTeam,
		KamStatus:  models.ReviewApproved,
		DataStatus: models.ReviewPending,
		Role:       models.RoleDataTeam,
		Requested:  models.ReviewApproved,
		Now:        reviewTime,
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !d.Materialize {
		t.Fatal("data approval must materialize")
	}
	if d.Patch.Stage != models.StageLive || !d.StageChanged {
		t.Fatalf("expected stage live, got %s changed=%v", d.Patch.Stage, d.StageChanged)
	}
	// The dual-approved record is surfaced to buyers as available, while the
	// raw review status is kept on qcStatus.
	if d.Patch.Status != models.QCStatusAvailable {
		t.Fatalf("status mirror = %q, want %q", d.Patch.Status, models.QCStatusAvailable)
	}
	if d.Patch.QCStatus != string(models.ReviewApproved) {
		t.Fatalf("qcStatus mirror = %q, want approved", d.Patch.QCStatus)
	}
	if d.Patch.KamStatus != "" {
		t.Fatalf("data review must not touch kamStatus, got %q", d.Patch.KamStatus)
	}
}

func TestDecide_DataRejectionStaysPutButIsRecorded(t *testing.T) {
	d, err := Decide(ReviewInput{
		Stage:      models.StageDataTeam,
		KamStatus:  models.ReviewApproved,
		DataStatus: models.ReviewPending,
		Role:       models.RoleDataTeam,
		Requested:  models.ReviewRejected,
		Comments:   "photos mismatch",
		Now:        reviewTime,
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Materialize || d.StageChanged {
		t.Fatalf("rejection must not advance or materialize: %+v", d)
	}
	if d.Patch.Status != string(models.ReviewRejected) {
		t.Fatalf("status mirror = %q, want rejected", d.Patch.Status)
	}
	if d.Patch.History.Action != "dataReview" {
		t.Fatalf("history action = %q, want dataReview", d.Patch.History.Action)
	}
}

func TestDecide_ModeratorBypassesKamStageCheck(t *testing.T) {
	// A moderator can correct the KAM review even after the record left the
	// kam stage; the correction must not regress or re-advance the stage.
	d, err := Decide(ReviewInput{
		Stage:      models.StageDataTeam,
		KamStatus:  models.ReviewApproved,
		DataStatus: models.ReviewPending,
		Role:       models.RoleKamModerator,
		ActiveTab:  models.TabKam,
		Requested:  models.ReviewRejected,
		Now:        reviewTime,
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.StageChanged || d.Patch.Stage != models.StageDataTeam {
		t.Fatalf("moderator correction moved the stage: %+v", d.Patch)
	}
	if d.Patch.Target != models.TargetKamReview {
		t.Fatalf("patch target = %s, want kamReview", d.Patch.Target)
	}
}

func TestDecide_ModeratorApprovalOutsideKamStageDoesNotReadvance(t *testing.T) {
	d, err := Decide(ReviewInput{
		Stage:      models.StageLive,
		KamStatus:  models.ReviewRejected,
		DataStatus: models.ReviewApproved,
		Role:       models.RoleKamModerator,
		ActiveTab:  models.TabKam,
		Requested:  models.ReviewApproved,
		Now:        reviewTime,
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.StageChanged || d.Patch.Stage != models.StageLive {
		t.Fatalf("late kam approval must leave a live record alone: %+v", d.Patch)
	}
}
