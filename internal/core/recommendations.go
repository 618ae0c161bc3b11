package core

import (
	"agrorec/pkg/domain"
	"context"
	"sort"
	"strings"
	"time"
)

// RecommendationRepository is the CRUD and query surface over the
// recommendations collection.
type RecommendationRepository struct {
	svc *Service
}

// RecommendationPatch carries the fields of a partial update. Nil fields are
// left untouched.
type RecommendationPatch struct {
	SheetNumber           *string
	Date                  *time.Time
	Status                *RecommendationStatus
	Farmer                *FarmerData
	Technician            *TechnicianData
	Diagnosis             *string
	ProductLines          *[]ProductLine
	SafetyRecommendations *[]string
	FarmerSignature       *string
	TechnicianSignature   *string
	FollowUp              *FollowUp
}

func (p RecommendationPatch) touchesFarmer() bool {
	return p.Farmer != nil || p.FarmerSignature != nil
}

func (p RecommendationPatch) apply(r *Recommendation) {
	if p.SheetNumber != nil {
		r.SheetNumber = *p.SheetNumber
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Farmer != nil {
		r.Farmer = *p.Farmer
	}
	if p.Technician != nil {
		r.Technician = *p.Technician
	}
	if p.Diagnosis != nil {
		r.Diagnosis = *p.Diagnosis
	}
	if p.ProductLines != nil {
		r.ProductLines = append([]ProductLine{}, (*p.ProductLines)...)
	}
	if p.SafetyRecommendations != nil {
		r.SafetyRecommendations = append([]string{}, (*p.SafetyRecommendations)...)
	}
	if p.FarmerSignature != nil {
		r.FarmerSignature = domain.StringPtr(*p.FarmerSignature)
	}
	if p.TechnicianSignature != nil {
		r.TechnicianSignature = domain.StringPtr(*p.TechnicianSignature)
	}
	if p.FollowUp != nil {
		r.FollowUp = *p.FollowUp
	}
}

// ListFilters narrow a List query. Zero values do not filter. Date bounds
// are inclusive at day granularity.
type ListFilters struct {
	Query    string
	Status   RecommendationStatus
	DateFrom time.Time
	DateTo   time.Time
}

// Page is one page of a List query together with the pre-pagination total.
type Page struct {
	Items    []Recommendation
	Total    int
	Page     int
	PageSize int
	HasMore  bool
}

func validateForm(form Recommendation) error {
	if strings.TrimSpace(form.Farmer.Name) == "" {
		return domain.ValidationError{Entity: EntityRecommendation, Field: "farmerData.name", Message: "required"}
	}
	if form.Status != "" && !form.Status.Valid() {
		return domain.ValidationError{Entity: EntityRecommendation, Field: "status", Message: "unknown status " + string(form.Status)}
	}
	return nil
}

// validateUpdate checks a merged record: the farmer keeps a name, and a
// national id once recorded cannot be blanked.
func validateUpdate(before, after Recommendation) error {
	if err := validateForm(after); err != nil {
		return err
	}
	if strings.TrimSpace(before.Farmer.NationalID) != "" && strings.TrimSpace(after.Farmer.NationalID) == "" {
		return domain.ValidationError{Entity: EntityRecommendation, Field: "farmerData.nationalId", Message: "cannot be cleared"}
	}
	return nil
}

func clientFromFarmer(farmer FarmerData, signature *string) Client {
	return Client{
		NationalID: farmer.NationalID,
		Name:       farmer.Name,
		Address:    farmer.Address,
		Region:     farmer.Region,
		Signature:  signature,
	}
}

// Create stores a new recommendation for ownerID and returns its id. The
// farmer is then upserted into the client directory; an upsert failure is
// returned together with the id of the already stored record.
func (r *RecommendationRepository) Create(ctx context.Context, form Recommendation, ownerID string) (string, error) {
	var created Recommendation
	err := r.svc.run(ctx, "create_recommendation", func(ctx context.Context) (string, error) {
		if err := validateForm(form); err != nil {
			return "", err
		}
		rec := form
		rec.ID = ""
		rec.LegacyLocalKey = 0
		rec.OwnerID = ownerID
		rec.SyncStatus = SyncPendingCreation
		rec.Date = time.Time{}
		if rec.Status == "" {
			rec.Status = StatusPending
		}
		err := r.svc.write(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateRecommendation(rec)
			return err
		})
		return created.ID, err
	})
	if err != nil {
		return "", err
	}
	r.svc.logger.Info("recommendation created", "id", created.ID, "owner_id", ownerID, "sheet", created.SheetNumber)
	if _, err := r.svc.clients.Upsert(ctx, clientFromFarmer(created.Farmer, created.FarmerSignature)); err != nil {
		return created.ID, err
	}
	return created.ID, nil
}

// GetByID returns the record with the given id. Tombstoned and missing
// records both report ok=false.
func (r *RecommendationRepository) GetByID(ctx context.Context, id string) (Recommendation, bool, error) {
	var (
		rec Recommendation
		ok  bool
	)
	err := r.svc.store.View(ctx, func(v domain.TransactionView) error {
		rec, ok = v.FindRecommendation(id)
		return nil
	})
	if err != nil || !ok || !rec.Visible() {
		return Recommendation{}, false, err
	}
	return rec, true, nil
}

// Update merges patch into the stored record and applies the sync-status
// update rule. When the patch carries farmer data or a farmer signature the
// merged farmer is upserted into the client directory.
func (r *RecommendationRepository) Update(ctx context.Context, id string, patch RecommendationPatch) (Recommendation, error) {
	var updated Recommendation
	err := r.svc.run(ctx, "update_recommendation", func(ctx context.Context) (string, error) {
		if patch.Status != nil && !patch.Status.Valid() {
			return id, domain.ValidationError{Entity: EntityRecommendation, Field: "status", Message: "unknown status " + string(*patch.Status)}
		}
		err := r.svc.write(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindRecommendation(id)
			if !ok || !current.Visible() {
				return domain.ErrNotFound{Entity: EntityRecommendation, ID: id}
			}
			var err error
			updated, err = tx.UpdateRecommendation(id, func(rec *Recommendation) error {
				patch.apply(rec)
				if err := validateUpdate(current, *rec); err != nil {
					return err
				}
				rec.SyncStatus = rec.SyncStatus.AfterUpdate()
				return nil
			})
			return err
		})
		return id, err
	})
	if err != nil {
		return Recommendation{}, err
	}
	if patch.touchesFarmer() {
		if _, err := r.svc.clients.Upsert(ctx, clientFromFarmer(updated.Farmer, updated.FarmerSignature)); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// Delete removes a record from local reads. Records that never left the
// device are removed physically; the rest become pending_deletion tombstones.
func (r *RecommendationRepository) Delete(ctx context.Context, id string) error {
	return r.svc.run(ctx, "delete_recommendation", func(ctx context.Context) (string, error) {
		return id, r.svc.write(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindRecommendation(id)
			if !ok || !current.Visible() {
				return domain.ErrNotFound{Entity: EntityRecommendation, ID: id}
			}
			if current.SyncStatus.OnDelete() == domain.DeleteHard {
				return tx.DeleteRecommendation(id)
			}
			_, err := tx.UpdateRecommendation(id, func(rec *Recommendation) error {
				rec.SyncStatus = SyncPendingDeletion
				return nil
			})
			return err
		})
	})
}

// List returns one page of the records visible to ownerID that match
// filters, most recent first. Records without an owner are visible to every
// owner. An empty ownerID lists every visible record.
func (r *RecommendationRepository) List(ctx context.Context, ownerID string, page, pageSize int, filters ListFilters) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = r.svc.pageSize
	}
	var matched []Recommendation
	err := r.svc.store.View(ctx, func(v domain.TransactionView) error {
		var candidates []Recommendation
		if ownerID == "" {
			candidates = v.ListRecommendations()
		} else {
			candidates = append(v.RecommendationsByOwner(ownerID), v.RecommendationsByOwner("")...)
		}
		match := filters.matcher()
		for _, rec := range candidates {
			if rec.Visible() && match(rec) {
				matched = append(matched, rec)
			}
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	sortByDateDesc(matched)

	result := Page{Items: []Recommendation{}, Total: len(matched), Page: page, PageSize: pageSize}
	// Compare page numbers before computing the offset so huge pages
	// cannot overflow it.
	pages := len(matched) / pageSize
	if len(matched)%pageSize != 0 {
		pages++
	}
	if page > pages {
		return result, nil
	}
	offset := (page - 1) * pageSize
	end := offset + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	result.Items = matched[offset:end]
	result.HasMore = end < len(matched)
	return result, nil
}

// Last returns the most recent record visible to ownerID.
func (r *RecommendationRepository) Last(ctx context.Context, ownerID string) (Recommendation, bool, error) {
	page, err := r.List(ctx, ownerID, 1, 1, ListFilters{})
	if err != nil || len(page.Items) == 0 {
		return Recommendation{}, false, err
	}
	return page.Items[0], true, nil
}

// PendingSync returns every record the synchronizer still has to push,
// tombstones included, oldest modification first.
func (r *RecommendationRepository) PendingSync(ctx context.Context) ([]Recommendation, error) {
	var pending []Recommendation
	err := r.svc.store.View(ctx, func(v domain.TransactionView) error {
		for _, status := range []SyncStatus{SyncPendingCreation, SyncPendingUpdate, SyncPendingDeletion} {
			pending = append(pending, v.RecommendationsBySyncStatus(status)...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].LastModifiedAt.Equal(pending[j].LastModifiedAt) {
			return pending[i].LastModifiedAt.Before(pending[j].LastModifiedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

// MarkSynced records that the synchronizer pushed the record: pending
// records become synced and confirmed tombstones are purged.
func (r *RecommendationRepository) MarkSynced(ctx context.Context, id string) error {
	return r.svc.run(ctx, "mark_recommendation_synced", func(ctx context.Context) (string, error) {
		return id, r.svc.write(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindRecommendation(id)
			if !ok {
				return domain.ErrNotFound{Entity: EntityRecommendation, ID: id}
			}
			next, purge := current.SyncStatus.AfterSync()
			if purge {
				return tx.DeleteRecommendation(id)
			}
			_, err := tx.UpdateRecommendation(id, func(rec *Recommendation) error {
				rec.SyncStatus = next
				return nil
			})
			return err
		})
	})
}

func (f ListFilters) matcher() func(Recommendation) bool {
	query := strings.TrimSpace(f.Query)
	lowered := strings.ToLower(query)
	var from, until time.Time
	if !f.DateFrom.IsZero() {
		from = startOfDay(f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		until = startOfDay(f.DateTo).AddDate(0, 0, 1)
	}
	return func(rec Recommendation) bool {
		if query != "" &&
			!strings.Contains(strings.ToLower(rec.Farmer.Name), lowered) &&
			!strings.Contains(rec.NationalID, query) {
			return false
		}
		if f.Status != "" && rec.Status != f.Status {
			return false
		}
		if !from.IsZero() && rec.Date.Before(from) {
			return false
		}
		if !until.IsZero() && !rec.Date.Before(until) {
			return false
		}
		return true
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sortByDateDesc(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Date.Equal(recs[j].Date) {
			return recs[i].Date.After(recs[j].Date)
		}
		return recs[i].ID > recs[j].ID
	})
}
