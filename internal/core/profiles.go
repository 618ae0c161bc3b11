package core

import (
	"agrorec/pkg/domain"
	"context"
)

// ProfileStore caches technician profiles keyed by user id.
type ProfileStore struct {
	svc *Service
}

// Put inserts or replaces the profile of userID.
func (p *ProfileStore) Put(ctx context.Context, userID string, profile UserProfile) (UserProfile, error) {
	profile.UserID = userID
	var stored UserProfile
	err := p.svc.run(ctx, "put_user_profile", func(ctx context.Context) (string, error) {
		return userID, p.svc.write(ctx, func(tx domain.Transaction) error {
			var err error
			stored, err = tx.PutUserProfile(profile)
			return err
		})
	})
	return stored, err
}

// Get returns the cached profile of userID.
func (p *ProfileStore) Get(ctx context.Context, userID string) (UserProfile, bool, error) {
	var (
		profile UserProfile
		ok      bool
	)
	err := p.svc.store.View(ctx, func(v domain.TransactionView) error {
		profile, ok = v.FindUserProfile(userID)
		return nil
	})
	return profile, ok, err
}
