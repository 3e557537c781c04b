package models

// Firestore collection names. The admin collection and counter doc names are
// shared with the CRM front-ends and must not change.
const (
	CollectionQCInventories = "qcInventories"
	CollectionProperties    = "properties"
	CollectionUsers         = "iqolUsers"
	CollectionWebhookOutbox = "webhookOutbox"
	CollectionAdmin         = "acn-admin"
	DocLastPropId           = "lastPropId"
)

// Stage is the coarse workflow position of a QC inventory record.
type Stage string

const (
	StageKam      Stage = "kam"
	StageDataTeam Stage = "dataTeam"
	StageLive     Stage = "live"
)

func (s Stage) Valid() bool {
	switch s {
	case StageKam, StageDataTeam, StageLive:
		return true
	}
	return false
}

// ReviewStatus is a per-stage review outcome.
type ReviewStatus string

const (
	ReviewApproved  ReviewStatus = "approved"
	ReviewPending   ReviewStatus = "pending"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewDuplicate ReviewStatus = "duplicate"
	ReviewPrimary   ReviewStatus = "primary"
)

func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewApproved, ReviewPending, ReviewRejected, ReviewDuplicate, ReviewPrimary:
		return true
	}
	return false
}

// Role is the reviewer role carried in the session token.
type Role string

const (
	RoleKam          Role = "kam"
	RoleDataTeam     Role = "dataTeam"
	RoleKamModerator Role = "kamModerator"
	RoleAdmin        Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleKam, RoleDataTeam, RoleKamModerator, RoleAdmin:
		return true
	}
	return false
}

// ReviewTab identifies which review pane a moderator is acting from.
type ReviewTab string

const (
	TabKam      ReviewTab = "kam"
	TabDataTeam ReviewTab = "dataTeam"
)

// ReviewTarget is the review block a decision writes.
type ReviewTarget string

const (
	TargetKamReview  ReviewTarget = "kamReview"
	TargetDataReview ReviewTarget = "dataReview"
)

// Platform is the CRM tenant a record belongs to.
type Platform string

const (
	PlatformACN         Platform = "acn"
	PlatformCanvasHomes Platform = "canvas-homes"
	PlatformTrueState   Platform = "truestate"
	PlatformVault       Platform = "vault"
	PlatformRestack     Platform = "restack"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformACN, PlatformCanvasHomes, PlatformTrueState, PlatformVault, PlatformRestack:
		return true
	}
	return false
}

// PropertyStatusAvailable is the listing status forced on materialization.
const PropertyStatusAvailable = "Available"

// QCStatusAvailable is the top-level convenience status written to the QC
// record when the data team approves (the front-ends key dashboards off it).
const QCStatusAvailable = "available"
