package memory

import (
	"agrorec/pkg/domain"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// migrations holds one forward step per stored version: migrations[v]
// upgrades a snapshot laid out as version v to version v+1.
var migrations = map[int]func(*Snapshot) error{
	1: migrateV1ToV2,
	2: migrateV2ToV3,
}

// legacyStatuses maps the status labels written by the first releases.
var legacyStatuses = map[string]domain.RecommendationStatus{
	"Pendiente":      domain.StatusPending,
	"En tratamiento": domain.StatusInTreatment,
	"Finalizado":     domain.StatusFinished,
}

// Migrate upgrades snapshot to the target schema version one step at a time.
// A snapshot without a version is treated as version 1 when it holds data and
// as already current when empty. Snapshots newer than target are refused.
func Migrate(snapshot Snapshot, target int) (Snapshot, error) {
	if snapshot.Version == 0 {
		if snapshot.Empty() {
			snapshot.Version = target
		} else {
			snapshot.Version = 1
		}
	}
	if snapshot.Version > target {
		return Snapshot{}, domain.StorageUnavailableError{
			Cause: fmt.Errorf("stored schema version %d is newer than supported version %d", snapshot.Version, target),
		}
	}
	ensureCollections(&snapshot)
	for snapshot.Version < target {
		step, ok := migrations[snapshot.Version]
		if !ok {
			return Snapshot{}, domain.StorageUnavailableError{
				Cause: fmt.Errorf("no migration from schema version %d", snapshot.Version),
			}
		}
		if err := step(&snapshot); err != nil {
			return Snapshot{}, fmt.Errorf("migrate schema v%d: %w", snapshot.Version, err)
		}
		snapshot.Version++
	}
	return snapshot, nil
}

func ensureCollections(s *Snapshot) {
	if s.Recommendations == nil {
		s.Recommendations = map[string]Recommendation{}
	}
	if s.Products == nil {
		s.Products = map[string]Product{}
	}
	if s.Clients == nil {
		s.Clients = map[string]Client{}
	}
	if s.UserProfiles == nil {
		s.UserProfiles = map[string]UserProfile{}
	}
}

// v2 added the userProfiles collection and the denormalized nationalId
// lookup field on recommendations.
func migrateV1ToV2(s *Snapshot) error {
	for key, rec := range s.Recommendations {
		rec.Farmer.NationalID = strings.TrimSpace(rec.Farmer.NationalID)
		rec.NationalID = rec.Farmer.NationalID
		rec.TechnicianEmail = rec.Technician.Email
		s.Recommendations[key] = rec
	}
	return nil
}

// v3 keys recommendations and products by their uuid instead of the local
// auto-increment key, backfilling ids and sync statuses where missing.
func migrateV2ToV3(s *Snapshot) error {
	recs := make(map[string]Recommendation, len(s.Recommendations))
	for key, rec := range s.Recommendations {
		if rec.LegacyLocalKey == 0 {
			if n, err := strconv.ParseInt(key, 10, 64); err == nil {
				rec.LegacyLocalKey = n
			}
		}
		if rec.ID == "" {
			if _, err := uuid.Parse(key); err == nil {
				rec.ID = key
			} else {
				rec.ID = uuid.NewString()
			}
		}
		if !rec.SyncStatus.Valid() {
			rec.SyncStatus = domain.SyncPendingCreation
		}
		if mapped, ok := legacyStatuses[string(rec.Status)]; ok {
			rec.Status = mapped
		}
		if rec.Status == "" {
			rec.Status = domain.StatusPending
		}
		rec.Normalize()
		if existing, dup := recs[rec.ID]; dup && existing.LastModifiedAt.After(rec.LastModifiedAt) {
			continue
		}
		recs[rec.ID] = rec
	}
	s.Recommendations = recs

	products := make(map[string]Product, len(s.Products))
	byName := make(map[string]string, len(s.Products))
	for _, p := range s.Products {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if !p.SyncStatus.Valid() {
			p.SyncStatus = domain.SyncPendingCreation
		}
		if otherID, dup := byName[p.Name]; dup {
			if products[otherID].LastModifiedAt.After(p.LastModifiedAt) {
				continue
			}
			delete(products, otherID)
		}
		byName[p.Name] = p.ID
		products[p.ID] = p
	}
	s.Products = products

	clients := make(map[string]Client, len(s.Clients))
	for _, c := range s.Clients {
		c.NationalID = strings.TrimSpace(c.NationalID)
		if c.NationalID == "" {
			continue
		}
		clients[c.NationalID] = c
	}
	s.Clients = clients
	return nil
}
