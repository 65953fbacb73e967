package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bolagsradar/internal/common"
	"github.com/ternarybob/bolagsradar/internal/models"
	"github.com/ternarybob/bolagsradar/internal/sink"
	"github.com/ternarybob/bolagsradar/internal/storage/sqlite"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "cmd_test.db")
	return cfg
}

func TestRunSeedReadsFileAndInsertsJobs(t *testing.T) {
	cfg := testConfig(t)
	seedFile := filepath.Join(t.TempDir(), "orgnrs.txt")
	if err := os.WriteFile(seedFile, []byte("556036-0793\nnot-a-number\n6969697979\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	seedFlags.file = seedFile
	seedFlags.priority = 3
	t.Cleanup(func() { seedFlags.file = ""; seedFlags.priority = 0 })

	if err := runSeed(cfg, arbor.NewLogger(), flag.NewFlagSet("seed", flag.ContinueOnError)); err != nil {
		t.Fatalf("runSeed: %v", err)
	}

	db, err := openDB(cfg, arbor.NewLogger())
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.Raw().QueryRow("SELECT COUNT(*) FROM jobs").Scan(&count); err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if count != 2 {
		t.Errorf("jobs inserted = %d, want 2 (the malformed line should be skipped)", count)
	}
}

func TestRunSeedWithNoValidOrgNumbersDoesNotError(t *testing.T) {
	cfg := testConfig(t)
	seedFile := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(seedFile, []byte("not-a-number\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	seedFlags.file = seedFile
	seedFlags.priority = 0
	t.Cleanup(func() { seedFlags.file = "" })

	if err := runSeed(cfg, arbor.NewLogger(), flag.NewFlagSet("seed", flag.ContinueOnError)); err != nil {
		t.Fatalf("runSeed with no valid org numbers: want no error, got %v", err)
	}
}

func TestRunResetRecoversCooledDownBlockedJob(t *testing.T) {
	cfg := testConfig(t)
	db, err := openDB(cfg, arbor.NewLogger())
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}

	store := sqlite.NewJobStore(db, arbor.NewLogger())
	orgNr := models.OrgNumber("5560360793")
	if _, err := store.AddJobs(context.Background(), []models.OrgNumber{orgNr}, 0, models.StageDiscovery); err != nil {
		t.Fatalf("AddJobs: %v", err)
	}
	if err := store.BlockJob(context.Background(), orgNr, "example.se", "captcha", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("BlockJob: %v", err)
	}
	db.Close()

	resetFlags.staleOnly = false
	t.Cleanup(func() { resetFlags.staleOnly = false })

	if err := runReset(cfg, arbor.NewLogger(), flag.NewFlagSet("reset", flag.ContinueOnError)); err != nil {
		t.Fatalf("runReset: %v", err)
	}

	db, err = openDB(cfg, arbor.NewLogger())
	if err != nil {
		t.Fatalf("openDB (verify): %v", err)
	}
	defer db.Close()

	var status string
	if err := db.Raw().QueryRow("SELECT status FROM jobs WHERE org_nr = ?", orgNr.String()).Scan(&status); err != nil {
		t.Fatalf("query job status: %v", err)
	}
	if status != string(models.StatusPending) {
		t.Errorf("job status after reset = %q, want pending", status)
	}
}

func TestRunStatsDoesNotError(t *testing.T) {
	cfg := testConfig(t)
	if err := runStats(cfg, arbor.NewLogger(), flag.NewFlagSet("stats", flag.ContinueOnError)); err != nil {
		t.Fatalf("runStats: %v", err)
	}
}

func TestExportCSVWritesHeaderAndRow(t *testing.T) {
	cfg := testConfig(t)
	db, err := openDB(cfg, arbor.NewLogger())
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	defer db.Close()

	queue, err := sink.NewQueueSink(db.Raw(), "graph-sink")
	if err != nil {
		t.Fatalf("NewQueueSink: %v", err)
	}
	record := models.CompanyRecord{
		OrgNr:     models.OrgNumber("5560360793"),
		Name:      "Exempel Aktiebolag",
		LegalForm: "Aktiebolag",
		Status:    "active",
	}
	if err := queue.Publish(context.Background(), record); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "out.csv")
	out, err := os.Create(outPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	n, err := exportCSV(context.Background(), queue, out, 0)
	out.Close()
	if err != nil {
		t.Fatalf("exportCSV: %v", err)
	}
	if n != 1 {
		t.Errorf("exportCSV wrote %d records, want 1", n)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv output has %d lines, want a header plus one row: %q", len(lines), data)
	}
	if !strings.Contains(lines[1], "Exempel Aktiebolag") {
		t.Errorf("csv row = %q, want it to contain the company name", lines[1])
	}
}

func TestExportJSONWritesOneRecordPerLine(t *testing.T) {
	cfg := testConfig(t)
	db, err := openDB(cfg, arbor.NewLogger())
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	defer db.Close()

	queue, err := sink.NewQueueSink(db.Raw(), "graph-sink")
	if err != nil {
		t.Fatalf("NewQueueSink: %v", err)
	}
	record := models.CompanyRecord{
		OrgNr:     models.OrgNumber("5560360793"),
		Name:      "Exempel Aktiebolag",
		LegalForm: "Aktiebolag",
		Status:    "active",
	}
	if err := queue.Publish(context.Background(), record); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := os.Create(outPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	n, err := exportJSON(context.Background(), queue, out, 0)
	out.Close()
	if err != nil {
		t.Fatalf("exportJSON: %v", err)
	}
	if n != 1 {
		t.Errorf("exportJSON wrote %d records, want 1", n)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded models.CompanyRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Name != record.Name {
		t.Errorf("decoded.Name = %q, want %q", decoded.Name, record.Name)
	}
}

func TestCompanyCSVRowUsesLatestFinancialYear(t *testing.T) {
	revenue := 12345.0
	record := &models.CompanyRecord{
		OrgNr:     models.OrgNumber("5560360793"),
		Name:      "Exempel AB",
		LegalForm: "Aktiebolag",
		Status:    "active",
		Financials: []models.Financials{
			{FiscalYear: 2021},
			{FiscalYear: 2022, Revenue: &revenue},
		},
	}
	row := companyCSVRow(record)
	if row[6] != "2022" {
		t.Errorf("companyCSVRow fiscal year = %q, want 2022 (the latest entry)", row[6])
	}
	if row[7] != "12345.00" {
		t.Errorf("companyCSVRow revenue = %q, want 12345.00", row[7])
	}
}

func TestRunExportRejectsUnsupportedFormat(t *testing.T) {
	cfg := testConfig(t)
	exportFlags.format = "xml"
	t.Cleanup(func() { exportFlags.format = "csv" })

	if err := runExport(cfg, arbor.NewLogger(), flag.NewFlagSet("export", flag.ContinueOnError)); err == nil {
		t.Error("runExport with an unsupported format: want error, got nil")
	}
}
