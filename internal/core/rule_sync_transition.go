package core

import (
	"agrorec/pkg/domain"
	"context"
	"fmt"
)

// SyncTransitionRule blocks commits that move a record's syncStatus along an
// edge the sync model does not allow, such as regressing to
// pending_creation or resurrecting a tombstone.
func SyncTransitionRule() domain.Rule {
	return syncTransitionRule{}
}

type syncTransitionRule struct{}

type syncExtractor func(payload domain.ChangePayload) (id string, status domain.SyncStatus, ok bool)

var syncExtractors = map[domain.EntityType]syncExtractor{
	domain.EntityRecommendation: func(payload domain.ChangePayload) (string, domain.SyncStatus, bool) {
		rec, ok := domain.DecodeChangePayload[domain.Recommendation](payload)
		return rec.ID, rec.SyncStatus, ok
	},
	domain.EntityProduct: func(payload domain.ChangePayload) (string, domain.SyncStatus, bool) {
		product, ok := domain.DecodeChangePayload[domain.Product](payload)
		return product.ID, product.SyncStatus, ok
	},
}

func (syncTransitionRule) Name() string { return "sync_transition" }

func (r syncTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		extract, ok := syncExtractors[change.Entity]
		if !ok {
			continue
		}
		id, after, ok := extract(change.After)
		if !ok {
			continue
		}
		if !after.Valid() {
			res.Violations = append(res.Violations, r.violation(change.Entity, id,
				fmt.Sprintf("%s %s has unknown sync status %q", change.Entity, id, after)))
			continue
		}
		if change.Action != domain.ActionUpdate {
			continue
		}
		_, before, ok := extract(change.Before)
		if !ok {
			continue
		}
		if !domain.CanTransition(before, after) {
			res.Violations = append(res.Violations, r.violation(change.Entity, id,
				fmt.Sprintf("cannot move %s %s from %s to %s", change.Entity, id, before, after)))
		}
	}
	return res, nil
}

func (r syncTransitionRule) violation(entity domain.EntityType, id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     r.Name(),
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   entity,
		EntityID: id,
	}
}
