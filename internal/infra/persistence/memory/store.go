// Package memory provides the in-memory transactional implementation of the
// local store. Durable backends embed it and snapshot its state after each
// committed transaction.
package memory

import (
	"agrorec/pkg/domain"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Recommendation aliases domain.Recommendation for in-memory persistence operations.
	Recommendation = domain.Recommendation
	// Client aliases domain.Client.
	Client = domain.Client
	// Product aliases domain.Product.
	Product = domain.Product
	// UserProfile aliases domain.UserProfile.
	UserProfile = domain.UserProfile
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

func mustApply(label string, err error) {
	if err != nil {
		panic(fmt.Errorf("memory store %s: %w", label, err))
	}
}

func payloadOf(value any) domain.ChangePayload {
	payload, err := domain.NewChangePayload(value)
	mustApply("encode change payload", err)
	return payload
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// Store provides an in-memory transactional local store.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState upgrades the snapshot to the current schema and replaces the
// store state with it.
func (s *Store) ImportState(snapshot Snapshot) error {
	migrated, err := Migrate(snapshot, domain.SchemaVersion)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrated)
	return nil
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SchemaVersion reports the schema version of the held state.
func (s *Store) SchemaVersion() int { return domain.SchemaVersion }

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// ClearAll truncates every collection.
func (s *Store) ClearAll(ctx context.Context) error {
	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		tx.Clear()
		return nil
	})
	return err
}

// CommitFunc durably records the state a transaction is about to publish.
// A non-nil error aborts the commit and leaves the live state untouched.
type CommitFunc func(ctx context.Context, next Snapshot) error

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn and every blocking rule pass.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	return s.RunInTransactionWithCommit(ctx, fn, nil)
}

// RunInTransactionWithCommit is RunInTransaction with a commit step that runs
// after the rules pass and before the copy goes live. Durable backends use
// it to write their snapshot first, so a failed write is never visible.
func (s *Store) RunInTransactionWithCommit(ctx context.Context, fn func(tx Transaction) error, commit CommitFunc) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if commit != nil {
		if err := commit(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(entity domain.EntityType, action domain.Action, before, after any) {
	change := Change{Entity: entity, Action: action}
	if before != nil {
		change.Before = payloadOf(before)
	}
	if after != nil {
		change.After = payloadOf(after)
	}
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every write of the transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// FindRecommendation looks up a recommendation, tombstones included.
func (tx *transaction) FindRecommendation(id string) (Recommendation, bool) {
	return newTransactionView(&tx.state).FindRecommendation(id)
}

// CreateRecommendation stores a new recommendation within the transaction.
func (tx *transaction) CreateRecommendation(r Recommendation) (Recommendation, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.recommendations[r.ID]; exists {
		return Recommendation{}, domain.ConflictError{Entity: domain.EntityRecommendation, Field: "id", Value: r.ID}
	}
	if r.SyncStatus == "" {
		r.SyncStatus = domain.SyncPendingCreation
	}
	if r.Date.IsZero() {
		r.Date = tx.now
	}
	r.LastModifiedAt = tx.now
	r.Normalize()
	tx.state.putRecommendation(cloneRecommendation(r))
	tx.recordChange(domain.EntityRecommendation, domain.ActionCreate, nil, r)
	return cloneRecommendation(r), nil
}

// UpdateRecommendation mutates a recommendation using the provided mutator.
func (tx *transaction) UpdateRecommendation(id string, mutator func(*Recommendation) error) (Recommendation, error) {
	current, ok := tx.state.recommendations[id]
	if !ok {
		return Recommendation{}, domain.ErrNotFound{Entity: domain.EntityRecommendation, ID: id}
	}
	before := cloneRecommendation(current)
	current = cloneRecommendation(current)
	if err := mutator(&current); err != nil {
		return Recommendation{}, err
	}
	current.ID = id
	current.LegacyLocalKey = before.LegacyLocalKey
	current.LastModifiedAt = tx.now
	current.Normalize()
	tx.state.putRecommendation(cloneRecommendation(current))
	tx.recordChange(domain.EntityRecommendation, domain.ActionUpdate, before, current)
	return cloneRecommendation(current), nil
}

// DeleteRecommendation physically removes a recommendation.
func (tx *transaction) DeleteRecommendation(id string) error {
	current, ok := tx.state.recommendations[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityRecommendation, ID: id}
	}
	tx.state.removeRecommendation(id)
	tx.recordChange(domain.EntityRecommendation, domain.ActionDelete, current, nil)
	return nil
}

// FindClient looks up a client by national id.
func (tx *transaction) FindClient(nationalID string) (Client, bool) {
	return newTransactionView(&tx.state).FindClient(nationalID)
}

// CreateClient inserts a client; the national id must be free.
func (tx *transaction) CreateClient(c Client) (Client, error) {
	if c.NationalID == "" {
		return Client{}, domain.ValidationError{Entity: domain.EntityClient, Field: "nationalId", Message: "required"}
	}
	if _, exists := tx.state.clients[c.NationalID]; exists {
		return Client{}, domain.ConflictError{Entity: domain.EntityClient, Field: "nationalId", Value: c.NationalID}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = tx.now
	}
	c.LastModifiedAt = tx.now
	tx.state.clients[c.NationalID] = cloneClient(c)
	tx.recordChange(domain.EntityClient, domain.ActionCreate, nil, c)
	return cloneClient(c), nil
}

// UpdateClient mutates a client. The key and creation time are preserved.
func (tx *transaction) UpdateClient(nationalID string, mutator func(*Client) error) (Client, error) {
	current, ok := tx.state.clients[nationalID]
	if !ok {
		return Client{}, domain.ErrNotFound{Entity: domain.EntityClient, ID: nationalID}
	}
	before := cloneClient(current)
	current = cloneClient(current)
	if err := mutator(&current); err != nil {
		return Client{}, err
	}
	current.NationalID = nationalID
	current.CreatedAt = before.CreatedAt
	current.LastModifiedAt = tx.now
	tx.state.clients[nationalID] = cloneClient(current)
	tx.recordChange(domain.EntityClient, domain.ActionUpdate, before, current)
	return cloneClient(current), nil
}

// FindProduct looks up a product by id, tombstones included.
func (tx *transaction) FindProduct(id string) (Product, bool) {
	return newTransactionView(&tx.state).FindProduct(id)
}

// CreateProduct inserts a product; the name must be unique.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.products[p.ID]; exists {
		return Product{}, domain.ConflictError{Entity: domain.EntityProduct, Field: "id", Value: p.ID}
	}
	if _, taken := tx.state.productsByName[p.Name]; taken {
		return Product{}, domain.ConflictError{Entity: domain.EntityProduct, Field: "name", Value: p.Name}
	}
	if p.SyncStatus == "" {
		p.SyncStatus = domain.SyncPendingCreation
	}
	p.LastModifiedAt = tx.now
	tx.state.putProduct(p)
	tx.recordChange(domain.EntityProduct, domain.ActionCreate, nil, p)
	return p, nil
}

// UpdateProduct mutates a product, re-checking name uniqueness.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.ID = id
	if owner, taken := tx.state.productsByName[current.Name]; taken && owner != id {
		return Product{}, domain.ConflictError{Entity: domain.EntityProduct, Field: "name", Value: current.Name}
	}
	current.LastModifiedAt = tx.now
	tx.state.removeProduct(id)
	tx.state.putProduct(current)
	tx.recordChange(domain.EntityProduct, domain.ActionUpdate, before, current)
	return current, nil
}

// DeleteProduct physically removes a product.
func (tx *transaction) DeleteProduct(id string) error {
	current, ok := tx.state.products[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
	}
	tx.state.removeProduct(id)
	tx.recordChange(domain.EntityProduct, domain.ActionDelete, current, nil)
	return nil
}

// PutUserProfile inserts or replaces the profile of a user.
func (tx *transaction) PutUserProfile(p UserProfile) (UserProfile, error) {
	if p.UserID == "" {
		return UserProfile{}, domain.ValidationError{Entity: domain.EntityUserProfile, Field: "userId", Message: "required"}
	}
	before, existed := tx.state.profiles[p.UserID]
	p.LastModifiedAt = tx.now
	tx.state.profiles[p.UserID] = cloneProfile(p)
	if existed {
		tx.recordChange(domain.EntityUserProfile, domain.ActionUpdate, before, p)
	} else {
		tx.recordChange(domain.EntityUserProfile, domain.ActionCreate, nil, p)
	}
	return cloneProfile(p), nil
}

// Clear drops every record of every collection.
func (tx *transaction) Clear() {
	tx.state = newMemoryState()
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListRecommendations returns every stored recommendation ordered by id.
func (v transactionView) ListRecommendations() []Recommendation {
	out := make([]Recommendation, 0, len(v.state.recommendations))
	for _, r := range v.state.recommendations {
		out = append(out, cloneRecommendation(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindRecommendation returns the recommendation with the given id.
func (v transactionView) FindRecommendation(id string) (Recommendation, bool) {
	r, ok := v.state.recommendations[id]
	if !ok {
		return Recommendation{}, false
	}
	return cloneRecommendation(r), true
}

// RecommendationsByOwner resolves the ownerId index.
func (v transactionView) RecommendationsByOwner(ownerID string) []Recommendation {
	return v.collect(v.state.recsByOwner[ownerID])
}

// RecommendationsBySyncStatus resolves the syncStatus index.
func (v transactionView) RecommendationsBySyncStatus(status domain.SyncStatus) []Recommendation {
	return v.collect(v.state.recsBySync[status])
}

func (v transactionView) collect(ids map[string]struct{}) []Recommendation {
	out := make([]Recommendation, 0, len(ids))
	for id := range ids {
		if r, ok := v.state.recommendations[id]; ok {
			out = append(out, cloneRecommendation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListClients returns every client ordered by national id.
func (v transactionView) ListClients() []Client {
	out := make([]Client, 0, len(v.state.clients))
	for _, c := range v.state.clients {
		out = append(out, cloneClient(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NationalID < out[j].NationalID })
	return out
}

// FindClient returns the client with the given national id.
func (v transactionView) FindClient(nationalID string) (Client, bool) {
	c, ok := v.state.clients[nationalID]
	if !ok {
		return Client{}, false
	}
	return cloneClient(c), true
}

// ListProducts returns every product ordered by id.
func (v transactionView) ListProducts() []Product {
	out := make([]Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindProduct returns the product with the given id.
func (v transactionView) FindProduct(id string) (Product, bool) {
	p, ok := v.state.products[id]
	return p, ok
}

// FindProductByName resolves the unique name index.
func (v transactionView) FindProductByName(name string) (Product, bool) {
	id, ok := v.state.productsByName[name]
	if !ok {
		return Product{}, false
	}
	return v.FindProduct(id)
}

// FindUserProfile returns the cached profile of a user.
func (v transactionView) FindUserProfile(userID string) (UserProfile, bool) {
	p, ok := v.state.profiles[userID]
	if !ok {
		return UserProfile{}, false
	}
	return cloneProfile(p), true
}
