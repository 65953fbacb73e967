package rawstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bolagsradar/internal/models"
)

func TestWriteReadRoundTripUncompressed(t *testing.T) {
	store := New(t.TempDir(), false, arbor.NewLogger())
	orgNr := models.OrgNumber("5560360793")
	content := []byte("<html>raw page</html>")

	path, err := store.Write(orgNr, models.StageScraped, "html", content)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Ext(path) != ".html" {
		t.Errorf("Write path = %q, want uncompressed .html extension", path)
	}

	got, err := store.Read(orgNr, models.StageScraped, "html")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Read() = %q, want %q", got, content)
	}
}

func TestWriteReadRoundTripGzip(t *testing.T) {
	store := New(t.TempDir(), true, arbor.NewLogger())
	orgNr := models.OrgNumber("5560360793")
	content := []byte("annual report bytes")

	path, err := store.Write(orgNr, models.StageRegistry, "zip", content)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Ext(path) != ".gz" {
		t.Errorf("Write path = %q, want a .gz suffix when gzip is enabled", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(raw) == string(content) {
		t.Error("file on disk should be gzip-compressed, not equal to the raw content")
	}

	got, err := store.Read(orgNr, models.StageRegistry, "zip")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Read() = %q, want %q", got, content)
	}
}

func TestWriteShardsByOrgNrPrefix(t *testing.T) {
	base := t.TempDir()
	store := New(base, false, arbor.NewLogger())
	orgNr := models.OrgNumber("5560360793")

	if _, err := store.Write(orgNr, models.StageScraped, "html", []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := os.Stat(filepath.Join(base, "55", "5560360793.scraped.html")); err != nil {
		t.Errorf("expected a file sharded under the org number's first two digits: %v", err)
	}
}

func TestWriteRejectsShortOrgNumber(t *testing.T) {
	store := New(t.TempDir(), false, arbor.NewLogger())
	if _, err := store.Write(models.OrgNumber("1"), models.StageScraped, "html", []byte("x")); err == nil {
		t.Error("Write with a too-short org number: want error, got nil")
	}
}

func TestReadMissingFile(t *testing.T) {
	store := New(t.TempDir(), false, arbor.NewLogger())
	if _, err := store.Read(models.OrgNumber("5560360793"), models.StageScraped, "html"); err == nil {
		t.Error("Read of a document never written: want error, got nil")
	}
}
