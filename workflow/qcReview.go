package workflow

import (
	"errors"
	"time"

	"github.com/engineering-truestate/iqol-crm-backend/models"
)

// Rejection messages surfaced to the front-end as toasts. The wording is part
// of the UI contract; do not reword casually.
var (
	ErrDataTeamNeedsKamApproval = errors.New("data team can only edit if KAM status is approved")
	ErrKamStageMismatch         = errors.New("KAM can only review while the property is in the kam stage")
	ErrSameStatus               = errors.New("cannot change to the status it already is")
	ErrUnknownTab               = errors.New("these fields cannot be edited from this tab")
	ErrUnauthorizedRole         = errors.New("this role is not authorized to review")
	ErrUnknownStatus            = errors.New("unknown review status")
)

// ReviewInput is everything the decision needs, read once from the QC record
// and the session before any write.
type ReviewInput struct {
	Stage      models.Stage
	KamStatus  models.ReviewStatus
	DataStatus models.ReviewStatus

	Role      models.Role
	ActiveTab models.ReviewTab
	Requested models.ReviewStatus

	ReviewerName string
	Comments     string
	Now          time.Time
}

// Decision is the accepted outcome: the pending document updates, whether the
// stage moved, and whether a live listing must be materialized.
type Decision struct {
	Patch        models.ReviewPatch
	StageChanged bool
	Materialize  bool
	Event        models.DomainEvent
}

// transitionEffect is one row of the transition table.
type transitionEffect struct {
	AdvanceTo   models.Stage // empty: stage unchanged
	Materialize bool
}

// transitions enumerates every (target review, requested status) pair. Only
// approvals move the stage; a dataReview approval additionally materializes.
var transitions = map[models.ReviewTarget]map[models.ReviewStatus]transitionEffect{
	models.TargetKamReview: {
		models.ReviewApproved:  {AdvanceTo: models.StageDataTeam},
		models.ReviewPending:   {},
		models.ReviewRejected:  {},
		models.ReviewDuplicate: {},
		models.ReviewPrimary:   {},
	},
	models.TargetDataReview: {
		models.ReviewApproved:  {AdvanceTo: models.StageLive, Materialize: true},
		models.ReviewPending:   {},
		models.ReviewRejected:  {},
		models.ReviewDuplicate: {},
		models.ReviewPrimary:   {},
	},
}

// resolveTarget maps the acting role (and, for moderators, the active tab) to
// the review block being written.
func resolveTarget(role models.Role, tab models.ReviewTab) (models.ReviewTarget, error) {
	switch role {
	case models.RoleKam:
		return models.TargetKamReview, nil
	case models.RoleDataTeam:
		return models.TargetDataReview, nil
	case models.RoleKamModerator:
		switch tab {
		case models.TabKam:
			return models.TargetKamReview, nil
		case models.TabDataTeam:
			return models.TargetDataReview, nil
		default:
			return "", ErrUnknownTab
		}
	default:
		return "", ErrUnauthorizedRole
	}
}

// Decide is the QC review state machine: a pure function from the current
// review state and the requested write to the accepted transition. All
// rejection rules are checked here, before any document write.
func Decide(input ReviewInput) (Decision, error) {
	if !input.Requested.Valid() {
		return Decision{}, ErrUnknownStatus
	}

	target, err := resolveTarget(input.Role, input.ActiveTab)
	if err != nil {
		return Decision{}, err
	}

	// The data team (or a moderator on their tab) only reviews listings the
	// KAM has already approved.
	if target == models.TargetDataReview && input.KamStatus != models.ReviewApproved {
		return Decision{}, ErrDataTeamNeedsKamApproval
	}
	// KAMs only review listings still in their stage. Moderators bypass.
	if target == models.TargetKamReview && input.Role == models.RoleKam && input.Stage != models.StageKam {
		return Decision{}, ErrKamStageMismatch
	}

	current := input.KamStatus
	if target == models.TargetDataReview {
		current = input.DataStatus
	}
	if input.Requested == current {
		return Decision{}, ErrSameStatus
	}

	effect := transitions[target][input.Requested]

	newStage := input.Stage
	stageChanged := false
	switch {
	case target == models.TargetKamReview && effect.AdvanceTo != "":
		if input.Stage == models.StageKam {
			newStage = effect.AdvanceTo
			stageChanged = true
		}
	case target == models.TargetDataReview && effect.AdvanceTo != "":
		newStage = effect.AdvanceTo
		stageChanged = newStage != input.Stage
	}

	entry := models.ReviewEntry{
		Status:     input.Requested,
		ReviewDate: input.Now.UnixMilli(),
		ReviewedBy: input.ReviewerName,
		Comments:   input.Comments,
	}

	var advancedTo models.Stage
	if stageChanged {
		advancedTo = newStage
	}
	var event models.DomainEvent
	if target == models.TargetKamReview {
		event = models.KamReviewEvent{Status: input.Requested, Comments: input.Comments, StageTo: advancedTo}
	} else {
		event = models.DataReviewEvent{Status: input.Requested, Comments: input.Comments, StageTo: advancedTo}
	}

	statusField := string(input.Requested)
	if target == models.TargetDataReview && input.Requested == models.ReviewApproved {
		statusField = models.QCStatusAvailable
	}

	patch := models.ReviewPatch{
		Target:       target,
		Entry:        entry,
		Stage:        newStage,
		QCStatus:     string(input.Requested),
		Status:       statusField,
		History:      models.NewHistoryEntry(event, input.ReviewerName, input.Now),
		Lastmodified: input.Now.UnixMilli(),
	}
	if target == models.TargetKamReview {
		patch.KamStatus = string(input.Requested)
	}

	return Decision{
		Patch:        patch,
		StageChanged: stageChanged,
		Materialize:  effect.Materialize,
		Event:        event,
	}, nil
}
