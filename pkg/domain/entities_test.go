package domain

import (
	"encoding/json"
	"testing"
)

func TestRecommendationNormalize(t *testing.T) {
	rec := Recommendation{
		Farmer:     FarmerData{Name: "Ana", NationalID: " 12345678 "},
		Technician: TechnicianData{Email: "tech@example.com"},
	}
	rec.Normalize()
	if rec.NationalID != "12345678" || rec.Farmer.NationalID != "12345678" {
		t.Fatalf("expected trimmed denormalized national id, got %q / %q", rec.NationalID, rec.Farmer.NationalID)
	}
	if rec.TechnicianEmail != "tech@example.com" {
		t.Fatalf("expected technician email copied, got %q", rec.TechnicianEmail)
	}
	if rec.ProductLines == nil || rec.SafetyRecommendations == nil {
		t.Fatalf("expected list fields to be non-nil")
	}
}

func TestRecommendationJSONFieldNames(t *testing.T) {
	rec := Recommendation{ID: "r1", SyncStatus: SyncPendingCreation}
	rec.Normalize()
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "date", "status", "farmerData", "technicianData", "productLines", "safetyRecommendations", "followUp", "nationalId", "syncStatus", "lastModifiedAt"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("expected %q in exported record", key)
		}
	}
	if lines, ok := fields["productLines"].([]any); !ok || len(lines) != 0 {
		t.Fatalf("expected empty productLines array, got %v", fields["productLines"])
	}
	if _, ok := fields["ownerId"]; ok {
		t.Fatalf("legacy records without owner omit ownerId")
	}
}

func TestRecommendationStatusValid(t *testing.T) {
	for _, status := range []RecommendationStatus{StatusPending, StatusInTreatment, StatusFinished} {
		if !status.Valid() {
			t.Fatalf("expected %s valid", status)
		}
	}
	if RecommendationStatus("Cancelled").Valid() {
		t.Fatalf("unexpected valid status")
	}
}

func TestCurrentSchemaDeclaresIndexes(t *testing.T) {
	schema := CurrentSchema()
	if schema.Version != SchemaVersion {
		t.Fatalf("schema version mismatch")
	}
	recs, ok := schema.Collection(CollectionRecommendations)
	if !ok {
		t.Fatalf("recommendations collection missing")
	}
	for _, idx := range []string{"ownerId", "date", "status", "nationalId", "syncStatus", "[ownerId+date]"} {
		if !recs.HasIndex(idx) {
			t.Errorf("recommendations missing index %s", idx)
		}
	}
	products, _ := schema.Collection(CollectionProducts)
	if !products.HasIndex("name") || products.Unique[0] != "name" {
		t.Fatalf("products must declare unique name")
	}
	if _, ok := schema.Collection("missing"); ok {
		t.Fatalf("unexpected collection")
	}
}
