package core

import (
	"agrorec/pkg/domain"
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestCreateRecommendationScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	rec := form("Juan Perez", "12345678")
	rec.SheetNumber = "001"
	rec.Status = StatusPending
	rec.ID = "client-supplied"

	id, err := svc.Recommendations().Create(ctx, rec, "user-a")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" || id == "client-supplied" {
		t.Fatalf("expected fresh key, got %q", id)
	}
	got := mustGet(t, svc, id)
	if got.Status != StatusPending || got.SyncStatus != SyncPendingCreation {
		t.Fatalf("unexpected statuses %s/%s", got.Status, got.SyncStatus)
	}
	if got.NationalID != "12345678" || got.TechnicianEmail != "tec@agro.test" || got.OwnerID != "user-a" {
		t.Fatalf("expected derived lookup fields, got %+v", got)
	}
	if got.Date.IsZero() || !got.Date.Equal(got.LastModifiedAt) {
		t.Fatalf("expected creation date stamped, got %v / %v", got.Date, got.LastModifiedAt)
	}
	if got.SafetyRecommendations == nil || got.ProductLines == nil {
		t.Fatalf("expected list fields defaulted to empty")
	}
	clients, err := svc.Clients().List(ctx)
	if err != nil {
		t.Fatalf("list clients: %v", err)
	}
	if len(clients) != 1 || clients[0].NationalID != "12345678" || clients[0].Name != "Juan Perez" {
		t.Fatalf("expected one client entry, got %+v", clients)
	}
}

func TestCreateDefaultsStatusAndRequiresFarmerName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, form("Ana", ""), "")
	if got := mustGet(t, svc, id); got.Status != StatusPending {
		t.Fatalf("expected default status Pending, got %s", got.Status)
	}

	_, err := svc.Recommendations().Create(ctx, form("  ", "1"), "u")
	var verr domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "farmerData.name" {
		t.Fatalf("expected validation error on farmer name, got %v", err)
	}
	bad := form("Ana", "1")
	bad.Status = "Archived"
	if _, err := svc.Recommendations().Create(ctx, bad, "u"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error on status, got %v", err)
	}
	page, _ := svc.Recommendations().List(ctx, "", 1, 50, ListFilters{})
	if page.Total != 1 {
		t.Fatalf("expected rejected creates to write nothing, got %d records", page.Total)
	}
	if clients, _ := svc.Clients().List(ctx); len(clients) != 0 {
		t.Fatalf("expected no client without national id, got %+v", clients)
	}
}

func TestUpdateKeepsPendingCreation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, form("Juan Perez", "12345678"), "u")

	finished := StatusFinished
	updated, err := svc.Recommendations().Update(ctx, id, RecommendationPatch{
		Status:   &finished,
		FollowUp: &FollowUp{AfterPhoto: strPtr("data:image/jpeg;base64,AAAA"), Observations: "ok"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != StatusFinished || updated.SyncStatus != SyncPendingCreation {
		t.Fatalf("expected Finished/pending_creation, got %s/%s", updated.Status, updated.SyncStatus)
	}
	if updated.FollowUp.AfterPhoto == nil || *updated.FollowUp.AfterPhoto != "data:image/jpeg;base64,AAAA" {
		t.Fatalf("expected photo stored verbatim")
	}
}

func TestUpdateAfterSyncMovesToPendingUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	repo := svc.Recommendations()
	id := mustCreate(t, svc, form("Juan Perez", "12345678"), "u")
	if err := repo.MarkSynced(ctx, id); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if got := mustGet(t, svc, id); got.SyncStatus != SyncSynced {
		t.Fatalf("expected synced, got %s", got.SyncStatus)
	}
	updated, err := repo.Update(ctx, id, RecommendationPatch{Diagnosis: strPtr("Tizón tardío")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.SyncStatus != SyncPendingUpdate || updated.Diagnosis != "Tizón tardío" {
		t.Fatalf("expected pending_update after edit, got %+v", updated)
	}
	again, err := repo.Update(ctx, id, RecommendationPatch{Diagnosis: strPtr("otra")})
	if err != nil || again.SyncStatus != SyncPendingUpdate {
		t.Fatalf("expected to stay pending_update, got %s %v", again.SyncStatus, err)
	}
}

func TestSyncStatusNeverReturnsToPendingCreation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	repo := svc.Recommendations()
	id := mustCreate(t, svc, form("Ana", "1"), "u")
	seen := []SyncStatus{mustGet(t, svc, id).SyncStatus}
	steps := []func() error{
		func() error { return repo.MarkSynced(ctx, id) },
		func() error { _, err := repo.Update(ctx, id, RecommendationPatch{Diagnosis: strPtr("a")}); return err },
		func() error { return repo.MarkSynced(ctx, id) },
		func() error { _, err := repo.Update(ctx, id, RecommendationPatch{SheetNumber: strPtr("9")}); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		seen = append(seen, mustGet(t, svc, id).SyncStatus)
	}
	for i, status := range seen[1:] {
		if status == SyncPendingCreation {
			t.Fatalf("status returned to pending_creation at step %d: %v", i, seen)
		}
	}

	_, err := svc.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateRecommendation(id, func(r *Recommendation) error {
			r.SyncStatus = SyncPendingCreation
			return nil
		})
		return err
	})
	var rv RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected sync transition rule to block regression, got %v", err)
	}
}

func TestUpdateUpsertsClientOnlyWhenFarmerTouched(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, form("Ana", "1"), "u")

	if _, err := svc.Recommendations().Update(ctx, id, RecommendationPatch{Diagnosis: strPtr("x")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if c, _, _ := svc.Clients().Get(ctx, "1"); c.Signature != nil {
		t.Fatalf("expected client untouched, got %+v", c)
	}
	if _, err := svc.Recommendations().Update(ctx, id, RecommendationPatch{
		Farmer:          &FarmerData{Name: "Ana María", NationalID: "1", Region: "Sur"},
		FarmerSignature: strPtr("sig"),
	}); err != nil {
		t.Fatalf("update farmer: %v", err)
	}
	c, ok, err := svc.Clients().Get(ctx, "1")
	if err != nil || !ok {
		t.Fatalf("get client: %v", err)
	}
	if c.Name != "Ana María" || c.Region != "Sur" || c.Signature == nil || *c.Signature != "sig" {
		t.Fatalf("expected client merged from farmer, got %+v", c)
	}
}

func TestUpdateRejectsBlankFarmerIdentity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, form("Ana Rojas", "123"), "u1")
	before := mustGet(t, svc, id)

	cases := []struct {
		name   string
		farmer FarmerData
		field  string
	}{
		{"empty farmer", FarmerData{}, "farmerData.name"},
		{"blank name", FarmerData{Name: "  ", NationalID: "123"}, "farmerData.name"},
		{"cleared national id", FarmerData{Name: "Ana Rojas", NationalID: " "}, "farmerData.nationalId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			farmer := tc.farmer
			_, err := svc.Recommendations().Update(ctx, id, RecommendationPatch{Farmer: &farmer})
			var verr domain.ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
			after := mustGet(t, svc, id)
			if after.Farmer != before.Farmer || after.NationalID != "123" || !after.LastModifiedAt.Equal(before.LastModifiedAt) {
				t.Fatalf("expected stored record untouched, got %+v", after.Farmer)
			}
		})
	}

	renamed := FarmerData{Name: "Ana R.", NationalID: "123"}
	if _, err := svc.Recommendations().Update(ctx, id, RecommendationPatch{Farmer: &renamed}); err != nil {
		t.Fatalf("expected valid farmer patch accepted: %v", err)
	}
}

func TestUpdateAndDeleteMissingReportNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Recommendations().Update(ctx, "nope", RecommendationPatch{}); !domain.IsNotFound(err) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if err := svc.Recommendations().Delete(ctx, "nope"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
	bad := RecommendationStatus("Lost")
	id := mustCreate(t, svc, form("Ana", "1"), "u")
	var verr domain.ValidationError
	if _, err := svc.Recommendations().Update(ctx, id, RecommendationPatch{Status: &bad}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteVisibility(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	repo := svc.Recommendations()
	local := mustCreate(t, svc, form("Local", "1"), "u")
	synced := mustCreate(t, svc, form("Synced", "2"), "u")
	if err := repo.MarkSynced(ctx, synced); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	for _, id := range []string{local, synced} {
		if err := repo.Delete(ctx, id); err != nil {
			t.Fatalf("delete %s: %v", id, err)
		}
		if _, ok, err := repo.GetByID(ctx, id); ok || err != nil {
			t.Fatalf("expected %s hidden after delete, ok=%v err=%v", id, ok, err)
		}
		if err := repo.Delete(ctx, id); !domain.IsNotFound(err) {
			t.Fatalf("expected second delete to report not found, got %v", err)
		}
		if _, err := repo.Update(ctx, id, RecommendationPatch{Diagnosis: strPtr("x")}); !domain.IsNotFound(err) {
			t.Fatalf("expected tombstone update to report not found, got %v", err)
		}
	}
	page, err := repo.List(ctx, "u", 1, 10, ListFilters{})
	if err != nil || page.Total != 0 {
		t.Fatalf("expected deleted records excluded from list, got %d %v", page.Total, err)
	}

	pending, err := repo.PendingSync(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != synced || pending[0].SyncStatus != SyncPendingDeletion {
		t.Fatalf("expected only the synced record kept as tombstone, got %+v", pending)
	}
	if err := repo.MarkSynced(ctx, synced); err != nil {
		t.Fatalf("confirm deletion: %v", err)
	}
	_ = svc.Store().View(ctx, func(v domain.TransactionView) error {
		if recs := v.ListRecommendations(); len(recs) != 0 {
			t.Fatalf("expected tombstone purged after sync, got %+v", recs)
		}
		return nil
	})
}

func TestListOwnershipFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mine := mustCreate(t, svc, form("Mine", "1"), "a")
	mustCreate(t, svc, form("Theirs", "2"), "b")
	shared := mustCreate(t, svc, form("Shared", "3"), "")

	page, err := svc.Recommendations().List(ctx, "a", 1, 10, ListFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := map[string]bool{}
	for _, rec := range page.Items {
		if rec.OwnerID != "" && rec.OwnerID != "a" {
			t.Fatalf("list leaked record of %s", rec.OwnerID)
		}
		ids[rec.ID] = true
	}
	if !ids[mine] || !ids[shared] || page.Total != 2 {
		t.Fatalf("expected own and unowned records, got %+v", page.Items)
	}
	all, _ := svc.Recommendations().List(ctx, "", 1, 10, ListFilters{})
	if all.Total != 3 {
		t.Fatalf("expected unscoped list to see every record, got %d", all.Total)
	}
}

func TestListPaginationCompleteness(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	repo := svc.Recommendations()
	for i := 0; i < 23; i++ {
		mustCreate(t, svc, form(fmt.Sprintf("Farmer %02d", i), fmt.Sprint(i)), "u")
	}
	full, err := repo.List(ctx, "u", 1, 1000, ListFilters{})
	if err != nil || full.Total != 23 || full.HasMore {
		t.Fatalf("unexpected unpaginated result total=%d more=%v err=%v", full.Total, full.HasMore, err)
	}
	for i := 1; i < len(full.Items); i++ {
		if full.Items[i].Date.After(full.Items[i-1].Date) {
			t.Fatalf("expected most recent first")
		}
	}

	var collected []string
	for page := 1; ; page++ {
		res, err := repo.List(ctx, "u", page, 5, ListFilters{})
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if res.Total != 23 {
			t.Fatalf("expected total reported on every page, got %d", res.Total)
		}
		for _, rec := range res.Items {
			collected = append(collected, rec.ID)
		}
		if !res.HasMore {
			break
		}
	}
	if len(collected) != len(full.Items) {
		t.Fatalf("expected %d records across pages, got %d", len(full.Items), len(collected))
	}
	for i, rec := range full.Items {
		if collected[i] != rec.ID {
			t.Fatalf("page concatenation diverges at %d", i)
		}
	}

	beyond, _ := repo.List(ctx, "u", 99, 5, ListFilters{})
	if len(beyond.Items) != 0 || beyond.HasMore {
		t.Fatalf("expected empty page past the end, got %+v", beyond)
	}
	for _, tc := range []struct{ page, size int }{
		{math.MaxInt/2 + 2, 2},
		{math.MaxInt, 5},
		{2, math.MaxInt},
	} {
		huge, err := repo.List(ctx, "u", tc.page, tc.size, ListFilters{})
		if err != nil || len(huge.Items) != 0 || huge.HasMore || huge.Total != 23 {
			t.Fatalf("page %d size %d: expected empty page, got %d items more=%v err=%v", tc.page, tc.size, len(huge.Items), huge.HasMore, err)
		}
	}
	whole, _ := repo.List(ctx, "u", 1, math.MaxInt, ListFilters{})
	if len(whole.Items) != 23 || whole.HasMore {
		t.Fatalf("expected one page holding everything, got %d", len(whole.Items))
	}
	defaults, _ := repo.List(ctx, "u", 0, 0, ListFilters{})
	if defaults.Page != 1 || defaults.PageSize != DefaultPageSize || len(defaults.Items) != DefaultPageSize {
		t.Fatalf("expected defaults applied, got page=%d size=%d", defaults.Page, defaults.PageSize)
	}
}

func TestListFiltersStatusAndDateRange(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	repo := svc.Recommendations()
	finished := StatusFinished

	create := func(day time.Time, name string, finish bool) string {
		clock.set(day)
		id := mustCreate(t, svc, form(name, name), "u")
		if finish {
			if _, err := repo.Update(ctx, id, RecommendationPatch{Status: &finished}); err != nil {
				t.Fatalf("finish: %v", err)
			}
		}
		return id
	}
	jan1 := create(time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC), "a", true)
	jan31 := create(time.Date(2024, 1, 31, 22, 0, 0, 0, time.UTC), "b", true)
	create(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), "c", false)
	create(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "d", true)
	create(time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), "e", true)

	page, err := repo.List(ctx, "u", 1, 10, ListFilters{
		Status:   StatusFinished,
		DateFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || page.Items[0].ID != jan31 || page.Items[1].ID != jan1 {
		t.Fatalf("expected the two finished January records, got %+v", page.Items)
	}
}

func TestListQueryMatchesNameOrNationalID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	juan := mustCreate(t, svc, form("Juan Perez", "12345678"), "u")
	mustCreate(t, svc, form("Rosa", "999"), "u")

	for _, q := range []string{"perez", "JUAN", "3456"} {
		page, err := svc.Recommendations().List(ctx, "u", 1, 10, ListFilters{Query: q})
		if err != nil || page.Total != 1 || page.Items[0].ID != juan {
			t.Fatalf("query %q: expected Juan only, got %+v %v", q, page.Items, err)
		}
	}
}

func TestLastAndPendingSync(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	repo := svc.Recommendations()
	if _, ok, err := repo.Last(ctx, "u"); ok || err != nil {
		t.Fatalf("expected no last record on empty store")
	}
	first := mustCreate(t, svc, form("A", "1"), "u")
	second := mustCreate(t, svc, form("B", "2"), "u")
	last, ok, err := repo.Last(ctx, "u")
	if err != nil || !ok || last.ID != second {
		t.Fatalf("expected newest record, got %+v", last)
	}
	if err := repo.MarkSynced(ctx, second); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	pending, err := repo.PendingSync(ctx)
	if err != nil || len(pending) != 1 || pending[0].ID != first {
		t.Fatalf("expected only unsynced record pending, got %+v", pending)
	}
	if err := repo.MarkSynced(ctx, "missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
