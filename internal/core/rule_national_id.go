package core

import (
	"agrorec/pkg/domain"
	"context"
	"fmt"
)

// NationalIDConsistencyRule blocks writes whose flattened nationalId differs
// from farmerData.nationalId. A farmer whose national id matches an
// existing client under a different name only produces a warning.
func NationalIDConsistencyRule() domain.Rule {
	return nationalIDRule{}
}

type nationalIDRule struct{}

func (nationalIDRule) Name() string { return "national_id_consistency" }

func (nationalIDRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityRecommendation {
			continue
		}
		rec, ok := domain.DecodeChangePayload[domain.Recommendation](change.After)
		if !ok {
			continue
		}
		if rec.NationalID != rec.Farmer.NationalID {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "national_id_consistency",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("recommendation %s nationalId does not match farmerData.nationalId", rec.ID),
				Entity:   domain.EntityRecommendation,
				EntityID: rec.ID,
			})
			continue
		}
		if rec.NationalID == "" || view == nil {
			continue
		}
		if client, found := view.FindClient(rec.NationalID); found && client.Name != "" && client.Name != rec.Farmer.Name {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "national_id_consistency",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("recommendation %s farmer name differs from the client directory entry", rec.ID),
				Entity:   domain.EntityRecommendation,
				EntityID: rec.ID,
			})
		}
	}
	return res, nil
}
