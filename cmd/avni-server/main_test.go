package main

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/avni/avni-server/internal/config"
	"github.com/avni/avni-server/internal/domain/schema"
	"github.com/avni/avni-server/internal/importer"
	"github.com/avni/avni-server/internal/platform/db"
)

const testBundle = `
concepts:
  - uuid: c-weight
    name: Weight
    dataType: Numeric
forms:
  - uuid: f-reg
    name: Registration
    formType: IndividualProfile
    subjectType: st-person
    elements:
      - uuid: fe-weight
        name: Weight
        displayOrder: 1
        type: SingleSelect
        concept: Weight
`

func testConfig() *config.Config {
	return &config.Config{
		Env:                  "development",
		ImportTimezone:       "UTC",
		ExportTimezone:       "UTC",
		MultiSelectDelimiter: ",",
		ImportWorkers:        2,
		MediaBaseURL:         "http://localhost/api/v1",
		MediaDownloadTimeout: time.Second,
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	m := db.NewMigrator(nil, migrationFiles(""))
	loaded, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(loaded) == 0 || loaded[0].Version != 1 {
		t.Fatalf("expected migration 1 first, got %+v", loaded)
	}
	if !strings.Contains(loaded[0].SQL, "CREATE TABLE IF NOT EXISTS individual") {
		t.Error("schema migration does not create the individual table")
	}
	if len(loaded) < 2 || !strings.Contains(loaded[1].SQL, "encounter ADD COLUMN IF NOT EXISTS legacy_id") {
		t.Error("expected migration 2 to add encounter legacy ids")
	}
}

func TestMigrationFiles_Dir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "007_extra.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	names, err := fs.Glob(migrationFiles(dir), "*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "007_extra.sql" {
		t.Errorf("names = %v", names)
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, "org_demo", []db.MigrationStatus{
		{Version: 1, Name: "avni_schema", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "media"},
	})
	out := buf.String()
	if !strings.Contains(out, "org_demo") {
		t.Error("missing schema name")
	}
	if !strings.Contains(out, "applied") || !strings.Contains(out, "2024-01-02 03:04:05") {
		t.Errorf("applied migration not reported:\n%s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("pending migration not reported:\n%s", out)
	}
}

func TestCreateOutput(t *testing.T) {
	var fallback bytes.Buffer
	w, closeFn, err := createOutput("", &fallback)
	if err != nil {
		t.Fatal(err)
	}
	closeFn()
	if w != io.Writer(&fallback) {
		t.Error("empty path should return the fallback writer")
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	w, closeFn, err = createOutput(path, &fallback)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, "a,b\n"); err != nil {
		t.Fatal(err)
	}
	closeFn()
	data, _ := os.ReadFile(path)
	if string(data) != "a,b\n" {
		t.Errorf("file content = %q", data)
	}
}

func TestImportService_Bundle(t *testing.T) {
	bundle := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(bundle, []byte(testBundle), 0o644); err != nil {
		t.Fatal(err)
	}
	svc, cleanup, err := importService(context.Background(), testConfig(), bundle, "", zerolog.Nop())
	if err != nil {
		t.Fatalf("importService: %v", err)
	}
	defer cleanup()

	csv := "Id from previous system,First Name,Weight\nS1,Asha,52.5\nS2,Ravi,heavy\n"
	res, err := svc.Import(svc.ctx, strings.NewReader(csv), schema.FormTypeRegistration)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Fatalf("succeeded=%d failed=%d", res.Succeeded, res.Failed)
	}

	var out, errs bytes.Buffer
	if _, _, err := importer.WriteResults(res.Rows, res.Headers, &out, &errs); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(errs.String(), "Invalid answer 'heavy' for 'Weight'") {
		t.Errorf("error csv = %q", errs.String())
	}
}

func TestImportService_NeedsSource(t *testing.T) {
	if _, _, err := importService(context.Background(), testConfig(), "", "", zerolog.Nop()); err == nil {
		t.Fatal("expected error without --schema or --organisation")
	}
}
