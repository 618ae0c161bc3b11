// Package domain defines the persistent records, value types, and rule
// evaluation primitives used by agrorec.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the local store.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityRecommendation identifies agronomic recommendation records.
	EntityRecommendation EntityType = "recommendation"
	// EntityClient identifies farmer client records keyed by national id.
	EntityClient EntityType = "client"
	// EntityProduct identifies catalog products.
	EntityProduct EntityType = "product"
	// EntityUserProfile identifies cached technician profiles.
	EntityUserProfile EntityType = "user_profile"
)

// RecommendationStatus captures the agronomic treatment state of a recommendation.
type RecommendationStatus string

// Recommendation statuses.
const (
	StatusPending     RecommendationStatus = "Pending"
	StatusInTreatment RecommendationStatus = "InTreatment"
	StatusFinished    RecommendationStatus = "Finished"
)

// Valid reports whether the status is one of the known treatment states.
func (s RecommendationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInTreatment, StatusFinished:
		return true
	}
	return false
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// FarmerData is the farmer section of a recommendation form.
type FarmerData struct {
	Name       string `json:"name"`
	NationalID string `json:"nationalId"`
	Address    string `json:"address"`
	Region     string `json:"region"`
}

// TechnicianData is the issuing technician section of a recommendation form.
type TechnicianData struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Region string `json:"region"`
}

// ProductLine is one prescribed product within a recommendation.
type ProductLine struct {
	Product           string `json:"product"`
	Quantity          string `json:"quantity"`
	UsageInstructions string `json:"usageInstructions"`
}

// FollowUp holds the field follow-up of a recommendation. Photos are opaque
// encoded payloads stored verbatim.
type FollowUp struct {
	BeforePhoto  *string `json:"beforePhoto"`
	AfterPhoto   *string `json:"afterPhoto"`
	Observations string  `json:"observations"`
}

// Recommendation is the primary record issued by a technician to a farmer.
type Recommendation struct {
	ID                    string               `json:"id"`
	LegacyLocalKey        int64                `json:"legacyLocalKey,omitempty"`
	OwnerID               string               `json:"ownerId,omitempty"`
	SheetNumber           string               `json:"sheetNumber"`
	Date                  time.Time            `json:"date"`
	Status                RecommendationStatus `json:"status"`
	Farmer                FarmerData           `json:"farmerData"`
	Technician            TechnicianData       `json:"technicianData"`
	Diagnosis             string               `json:"diagnosis"`
	ProductLines          []ProductLine        `json:"productLines"`
	SafetyRecommendations []string             `json:"safetyRecommendations"`
	FarmerSignature       *string              `json:"farmerSignature"`
	TechnicianSignature   *string              `json:"technicianSignature"`
	FollowUp              FollowUp             `json:"followUp"`
	NationalID            string               `json:"nationalId"`
	TechnicianEmail       string               `json:"technicianEmail"`
	SyncStatus            SyncStatus           `json:"syncStatus"`
	LastModifiedAt        time.Time            `json:"lastModifiedAt"`
}

// Normalize recomputes the denormalized lookup fields and replaces nil list
// fields with empty slices. Every write path calls it before storing.
func (r *Recommendation) Normalize() {
	r.Farmer.NationalID = strings.TrimSpace(r.Farmer.NationalID)
	r.NationalID = r.Farmer.NationalID
	r.TechnicianEmail = r.Technician.Email
	if r.ProductLines == nil {
		r.ProductLines = []ProductLine{}
	}
	if r.SafetyRecommendations == nil {
		r.SafetyRecommendations = []string{}
	}
}

// Visible reports whether the record should appear in local reads.
func (r Recommendation) Visible() bool { return r.SyncStatus.Visible() }

// Client is a farmer entry derived from recommendation submissions.
type Client struct {
	NationalID     string    `json:"nationalId"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Region         string    `json:"region"`
	Phone          string    `json:"phone"`
	Signature      *string   `json:"signature,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`
}

// Product is an agrochemical catalog entry.
type Product struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	ActiveIngredient string     `json:"activeIngredient"`
	Kind             string     `json:"kind"`
	Available        bool       `json:"available"`
	SyncStatus       SyncStatus `json:"syncStatus"`
	LastModifiedAt   time.Time  `json:"lastModifiedAt"`
}

// Visible reports whether the product should appear in local reads.
func (p Product) Visible() bool { return p.SyncStatus.Visible() }

// UserProfile caches technician details between sessions.
type UserProfile struct {
	UserID         string    `json:"userId"`
	Email          string    `json:"email"`
	Name           string    `json:"name,omitempty"`
	Signature      *string   `json:"signature,omitempty"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured per transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// StringPtr returns a pointer to a copy of value.
func StringPtr(value string) *string {
	return &value
}
