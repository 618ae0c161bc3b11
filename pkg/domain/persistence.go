package domain

import (
	"context"
	"time"
)

// Transaction exposes the record operations that a persistence implementation
// must support within an atomic scope. Lookups return tombstoned records too;
// visibility is decided by the services above the store.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreateRecommendation(Recommendation) (Recommendation, error)
	UpdateRecommendation(id string, mutator func(*Recommendation) error) (Recommendation, error)
	DeleteRecommendation(id string) error
	FindRecommendation(id string) (Recommendation, bool)
	CreateClient(Client) (Client, error)
	UpdateClient(nationalID string, mutator func(*Client) error) (Client, error)
	FindClient(nationalID string) (Client, bool)
	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	DeleteProduct(id string) error
	FindProduct(id string) (Product, bool)
	PutUserProfile(UserProfile) (UserProfile, error)
	Clear()
}

// TransactionView provides read-only access to snapshot data for services and rules.
type TransactionView interface {
	ListRecommendations() []Recommendation
	FindRecommendation(id string) (Recommendation, bool)
	RecommendationsByOwner(ownerID string) []Recommendation
	RecommendationsBySyncStatus(status SyncStatus) []Recommendation
	ListClients() []Client
	FindClient(nationalID string) (Client, bool)
	ListProducts() []Product
	FindProduct(id string) (Product, bool)
	FindProductByName(name string) (Product, bool)
	FindUserProfile(userID string) (UserProfile, bool)
}

// PersistentStore is the local store abstraction shared by the memory, SQLite
// and Postgres backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ClearAll(ctx context.Context) error
	SchemaVersion() int
	Close() error
}
