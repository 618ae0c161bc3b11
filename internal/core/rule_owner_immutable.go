package core

import (
	"agrorec/pkg/domain"
	"context"
	"fmt"
)

// OwnerImmutableRule rejects updates that rewrite a recommendation owner once set.
func OwnerImmutableRule() domain.Rule {
	return ownerImmutableRule{}
}

type ownerImmutableRule struct{}

func (ownerImmutableRule) Name() string { return "owner_immutable" }

func (ownerImmutableRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityRecommendation || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := domain.DecodeChangePayload[domain.Recommendation](change.Before)
		if !ok || before.OwnerID == "" {
			continue
		}
		after, ok := domain.DecodeChangePayload[domain.Recommendation](change.After)
		if !ok || after.OwnerID == before.OwnerID {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "owner_immutable",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("recommendation %s owner cannot change", after.ID),
			Entity:   domain.EntityRecommendation,
			EntityID: after.ID,
		})
	}
	return res, nil
}
