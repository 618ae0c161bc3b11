package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agrorec/internal/core"

	"github.com/prometheus/client_golang/prometheus"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("AGROREC_CONFIG", "")
	t.Setenv("AGROREC_USER", "")
	t.Setenv("AGROREC_EMAIL", "")
	t.Setenv("AGROREC_STORAGE_DRIVER", "sqlite")
	t.Setenv("AGROREC_SQLITE_PATH", filepath.Join(dir, "data", "agrorec.db"))
	t.Setenv("AGROREC_BLOB_DRIVER", "fs")
	t.Setenv("AGROREC_BLOB_FS_ROOT", filepath.Join(dir, "media"))
	t.Setenv("AGROREC_LOG_MODE", "nop")
	t.Setenv("AGROREC_PAGE_SIZE", "")
	return dir
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := run(t, args...)
	if code != 0 {
		t.Fatalf("agrorec %v exited %d: %s", args, code, errOut)
	}
	return out
}

func TestCLIUsageErrors(t *testing.T) {
	setupEnv(t)
	if code, _, errOut := run(t); code != 2 || !strings.Contains(errOut, "usage: agrorec") {
		t.Fatalf("expected usage with status 2, got %d %q", code, errOut)
	}
	if code, _, errOut := run(t, "frobnicate"); code != 2 || !strings.Contains(errOut, `unknown command "frobnicate"`) {
		t.Fatalf("expected unknown command, got %d %q", code, errOut)
	}
	if code, _, _ := run(t, "-nope"); code != 2 {
		t.Fatalf("expected bad global flag to exit 2, got %d", code)
	}
	if code, _, _ := run(t, "show"); code != 2 {
		t.Fatalf("expected missing id to exit 2, got %d", code)
	}
	if code, _, errOut := run(t, "list"); code != 1 || !strings.Contains(errOut, "no user") {
		t.Fatalf("expected missing user error, got %d %q", code, errOut)
	}
	if code, _, errOut := run(t, "-user", "u1", "create", "-farmer", "Ana", "-status", "Cancelled"); code != 1 || !strings.Contains(errOut, "unknown status") {
		t.Fatalf("expected status error, got %d %q", code, errOut)
	}
	if code, _, errOut := run(t, "products", "rename"); code != 2 || !strings.Contains(errOut, "unknown products action") {
		t.Fatalf("expected products action error, got %d %q", code, errOut)
	}
}

func TestCLIRecommendationLifecycle(t *testing.T) {
	dir := setupEnv(t)
	sig := filepath.Join(dir, "sig.txt")
	if err := os.WriteFile(sig, []byte("data:image/png;base64,AAAA\n"), 0o600); err != nil {
		t.Fatalf("write signature: %v", err)
	}

	id := strings.TrimSpace(mustRun(t, "-user", "u1", "-email", "tec@example.org", "create",
		"-farmer", "Ana Rojas", "-national-id", " 123 ", "-region", "Norte",
		"-diagnosis", "roya", "-product", "Cobre:2 kg:diluir", "-safety", "guantes",
		"-farmer-signature", sig))
	if id == "" {
		t.Fatalf("expected created id")
	}

	if out := mustRun(t, "-user", "u1", "list"); !strings.Contains(out, id) || !strings.Contains(out, "Ana Rojas") || !strings.Contains(out, "page 1, 1 of 1 records") {
		t.Fatalf("unexpected list output:\n%s", out)
	}
	if out := mustRun(t, "-user", "u1", "list", "-page", "9223372036854775807", "-size", "2"); !strings.Contains(out, "0 of 1 records") {
		t.Fatalf("expected an empty page far past the end:\n%s", out)
	}
	if out := mustRun(t, "-user", "u2", "list"); strings.Contains(out, id) {
		t.Fatalf("expected other users not to see the record:\n%s", out)
	}

	var shown core.Recommendation
	if err := json.Unmarshal([]byte(mustRun(t, "show", id)), &shown); err != nil {
		t.Fatalf("decode show output: %v", err)
	}
	if shown.NationalID != "123" || shown.TechnicianEmail != "tec@example.org" || len(shown.ProductLines) != 1 || shown.ProductLines[0].Quantity != "2 kg" {
		t.Fatalf("unexpected stored record %+v", shown)
	}

	if out := mustRun(t, "update", "-status", "InTreatment", "-observations", "mejora", id); !strings.Contains(out, "InTreatment pending_creation") {
		t.Fatalf("expected pending_creation kept on update, got %q", out)
	}
	if out := mustRun(t, "pending"); !strings.Contains(out, id) {
		t.Fatalf("expected record pending sync:\n%s", out)
	}
	mustRun(t, "synced", id)
	if out := mustRun(t, "pending"); strings.Contains(out, id) {
		t.Fatalf("expected synced record to leave the pending list:\n%s", out)
	}
	if out := mustRun(t, "update", "-diagnosis", "roya leve", id); !strings.Contains(out, "pending_update") {
		t.Fatalf("expected synced record to become pending_update, got %q", out)
	}

	if out := mustRun(t, "clients", "-search", "12"); !strings.Contains(out, "Ana Rojas") || !strings.Contains(out, "Norte") {
		t.Fatalf("expected client upserted from the form:\n%s", out)
	}

	out := mustRun(t, "archive", id)
	if !strings.Contains(out, core.MediaKey(id, core.SlotFarmerSignature)) || !strings.Contains(out, "image/png") {
		t.Fatalf("unexpected archive output %q", out)
	}
	stored, err := os.ReadFile(filepath.Join(dir, "media", "recommendations", id, core.SlotFarmerSignature))
	if err != nil || string(stored) != "data:image/png;base64,AAAA" {
		t.Fatalf("expected payload archived verbatim, got %q %v", stored, err)
	}
	if out := mustRun(t, "archive", "-purge", id); !strings.Contains(out, "removed 1 blobs") {
		t.Fatalf("unexpected purge output %q", out)
	}

	var last core.Recommendation
	if err := json.Unmarshal([]byte(mustRun(t, "-user", "u1", "last")), &last); err != nil || last.ID != id {
		t.Fatalf("expected last recommendation %s, got %+v %v", id, last, err)
	}

	mustRun(t, "delete", id)
	if code, _, errOut := run(t, "show", id); code != 1 || !strings.Contains(errOut, "not found") {
		t.Fatalf("expected deleted record hidden, got %d %q", code, errOut)
	}
}

func TestCLIProductsAndProfile(t *testing.T) {
	setupEnv(t)
	id := strings.TrimSpace(mustRun(t, "products", "add", "-ingredient", "oxicloruro", "-kind", "fungicida", "Cobre"))
	if code, _, errOut := run(t, "products", "add", "Cobre"); code != 1 || !strings.Contains(errOut, "Cobre") {
		t.Fatalf("expected duplicate name conflict, got %d %q", code, errOut)
	}
	mustRun(t, "products", "update", "-name", "Cobre 50", id)
	if out := mustRun(t, "products"); !strings.Contains(out, "Cobre 50") || !strings.Contains(out, "oxicloruro") {
		t.Fatalf("unexpected catalog:\n%s", out)
	}
	mustRun(t, "products", "delete", id)
	if out := mustRun(t, "products", "list"); strings.Contains(out, "Cobre") {
		t.Fatalf("expected never-synced product removed:\n%s", out)
	}

	if out := mustRun(t, "-user", "u1", "profile"); !strings.Contains(out, "no profile") {
		t.Fatalf("expected empty profile, got %q", out)
	}
	var profile core.UserProfile
	if err := json.Unmarshal([]byte(mustRun(t, "-user", "u1", "-email", "a@b.c", "profile", "-name", "Marta")), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.UserID != "u1" || profile.Name != "Marta" || profile.Email != "a@b.c" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestCLILogoutAndInfo(t *testing.T) {
	setupEnv(t)
	mustRun(t, "-user", "u1", "create", "-farmer", "Luis", "-national-id", "9")

	var info map[string]any
	if err := json.Unmarshal([]byte(mustRun(t, "info")), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info["storage"] != "ok" || info["storageDriver"] != "sqlite" || info["pendingSync"] != float64(1) || info["schemaVersion"] != float64(3) {
		t.Fatalf("unexpected info %v", info)
	}

	if out := mustRun(t, "-user", "u1", "logout"); !strings.Contains(out, "not confirmed") {
		t.Fatalf("expected unconfirmed logout, got %q", out)
	}
	if out := mustRun(t, "-user", "u1", "list"); !strings.Contains(out, "1 of 1") {
		t.Fatalf("expected data kept without confirmation:\n%s", out)
	}
	if out := mustRun(t, "-user", "u1", "logout", "-yes"); !strings.Contains(out, "local data cleared") {
		t.Fatalf("expected cleared, got %q", out)
	}
	if out := mustRun(t, "-user", "u1", "list"); !strings.Contains(out, "0 of 0") {
		t.Fatalf("expected empty store after logout:\n%s", out)
	}
}

func TestCLIDegradedStorage(t *testing.T) {
	dir := setupEnv(t)
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	t.Setenv("AGROREC_SQLITE_PATH", filepath.Join(blocker, "agrorec.db"))

	if out := mustRun(t, "-user", "u1", "list"); !strings.Contains(out, "0 of 0") {
		t.Fatalf("expected reads to degrade to empty:\n%s", out)
	}
	if code, _, errOut := run(t, "-user", "u1", "create", "-farmer", "Ana"); code != 1 || !strings.Contains(errOut, "unavailable") {
		t.Fatalf("expected write to fail with storage unavailable, got %d %q", code, errOut)
	}
}

func TestMetricsMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithMetricsRecorder(rec))
	if _, err := svc.Products().Add(t.Context(), core.Product{Name: "Azufre"}); err != nil {
		t.Fatalf("add product: %v", err)
	}

	srv := httptest.NewServer(metricsMux(reg))
	defer srv.Close()
	for path, want := range map[string]string{
		"/metrics":    `operation="add_product"`,
		"/debug/vars": `"memstats"`,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), want) {
			t.Fatalf("GET %s: status %d, missing %s", path, resp.StatusCode, want)
		}
	}
}

func TestProductLineFlag(t *testing.T) {
	var lines productLines
	if err := lines.Set("Cobre"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := lines.Set("Azufre: 1 l : cada 7 dias: no mezclar"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := lines.Set(" :1"); err == nil {
		t.Fatalf("expected empty product name rejected")
	}
	if len(lines) != 2 || lines[1].Quantity != "1 l" || lines[1].UsageInstructions != "cada 7 dias: no mezclar" {
		t.Fatalf("unexpected lines %+v", lines)
	}
}
