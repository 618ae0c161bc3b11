package core

import (
	"agrorec/pkg/domain"
	"context"
	"errors"
)

// UnavailableStore stands in for a local store that failed to open. Reads
// see an empty store and writes fail with the original storage error, so
// the application degrades to "no local data" instead of crashing.
type UnavailableStore struct {
	Cause error
}

var _ domain.PersistentStore = UnavailableStore{}

func (u UnavailableStore) err() error {
	switch {
	case u.Cause == nil:
		return domain.ErrStorageUnavailable
	case errors.Is(u.Cause, domain.ErrStorageUnavailable):
		return u.Cause
	default:
		return domain.StorageUnavailableError{Cause: u.Cause}
	}
}

// RunInTransaction always fails.
func (u UnavailableStore) RunInTransaction(context.Context, func(domain.Transaction) error) (domain.Result, error) {
	return domain.Result{}, u.err()
}

// View runs fn against an empty view.
func (u UnavailableStore) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(emptyView{})
}

// ClearAll always fails.
func (u UnavailableStore) ClearAll(context.Context) error { return u.err() }

// SchemaVersion reports zero: nothing was opened.
func (UnavailableStore) SchemaVersion() int { return 0 }

// Close is a no-op.
func (UnavailableStore) Close() error { return nil }

type emptyView struct{}

func (emptyView) ListRecommendations() []Recommendation                  { return []Recommendation{} }
func (emptyView) FindRecommendation(string) (Recommendation, bool)       { return Recommendation{}, false }
func (emptyView) RecommendationsByOwner(string) []Recommendation         { return []Recommendation{} }
func (emptyView) RecommendationsBySyncStatus(SyncStatus) []Recommendation { return []Recommendation{} }
func (emptyView) ListClients() []Client                                  { return []Client{} }
func (emptyView) FindClient(string) (Client, bool)                       { return Client{}, false }
func (emptyView) ListProducts() []Product                                { return []Product{} }
func (emptyView) FindProduct(string) (Product, bool)                     { return Product{}, false }
func (emptyView) FindProductByName(string) (Product, bool)               { return Product{}, false }
func (emptyView) FindUserProfile(string) (UserProfile, bool)             { return UserProfile{}, false }
