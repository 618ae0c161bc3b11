package core

import "agrorec/pkg/domain"

type (
	EntityType           = domain.EntityType
	Severity             = domain.Severity
	Recommendation       = domain.Recommendation
	RecommendationStatus = domain.RecommendationStatus
	FarmerData           = domain.FarmerData
	TechnicianData       = domain.TechnicianData
	ProductLine          = domain.ProductLine
	FollowUp             = domain.FollowUp
	Client               = domain.Client
	Product              = domain.Product
	UserProfile          = domain.UserProfile
	SyncStatus           = domain.SyncStatus
	Change               = domain.Change
	Action               = domain.Action
	Violation            = domain.Violation
	Result               = domain.Result
	RuleViolationError   = domain.RuleViolationError
	Rule                 = domain.Rule
	RuleView             = domain.RuleView
	RulesEngine          = domain.RulesEngine
)

const (
	EntityRecommendation = domain.EntityRecommendation
	EntityClient         = domain.EntityClient
	EntityProduct        = domain.EntityProduct
	EntityUserProfile    = domain.EntityUserProfile
)

const (
	StatusPending     = domain.StatusPending
	StatusInTreatment = domain.StatusInTreatment
	StatusFinished    = domain.StatusFinished
)

const (
	SyncPendingCreation = domain.SyncPendingCreation
	SyncPendingUpdate   = domain.SyncPendingUpdate
	SyncPendingDeletion = domain.SyncPendingDeletion
	SyncSynced          = domain.SyncSynced
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}
