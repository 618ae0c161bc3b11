package core

import (
	"agrorec/internal/infra/persistence/memory"
	"agrorec/pkg/domain"
	"context"
	"time"
)

// DefaultPageSize is used by List when neither the caller nor the service
// configuration supplies a page size.
const DefaultPageSize = 10

// Service bundles the repositories that operate on one local store handle.
type Service struct {
	store    domain.PersistentStore
	clock    Clock
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	pageSize int

	recommendations *RecommendationRepository
	clients         *ClientService
	products        *ProductCatalog
	profiles        *ProfileStore
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		clock:    ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		audit:    noopAudit{},
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clients = &ClientService{svc: s}
	s.recommendations = &RecommendationRepository{svc: s}
	s.products = &ProductCatalog{svc: s}
	s.profiles = &ProfileStore{svc: s}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store whose
// records are stamped with the service clock.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	s := NewService(nil, opts...)
	s.store = memory.NewStore(engine, memory.WithClock(s.clock.Now))
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Recommendations returns the recommendation repository.
func (s *Service) Recommendations() *RecommendationRepository { return s.recommendations }

// Clients returns the client directory.
func (s *Service) Clients() *ClientService { return s.clients }

// Products returns the product catalog.
func (s *Service) Products() *ProductCatalog { return s.products }

// Profiles returns the user profile store.
func (s *Service) Profiles() *ProfileStore { return s.profiles }

// ClearAll empties every collection of the local store.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.run(ctx, "clear_all", func(ctx context.Context) (string, error) {
		return "", s.store.ClearAll(ctx)
	})
}

// Close releases the store.
func (s *Service) Close() error { return s.store.Close() }

func (s *Service) write(ctx context.Context, fn func(domain.Transaction) error) error {
	res, err := s.store.RunInTransaction(ctx, fn)
	for _, v := range res.Violations {
		if v.Severity != SeverityBlock {
			s.logger.Warn("rule violation", "rule", v.Rule, "entity", v.Entity, "message", v.Message)
		}
	}
	return err
}
