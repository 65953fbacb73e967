package rawstore

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bolagsradar/internal/models"
)

// Store writes raw source documents (HTML pages, PDFs, JSON blobs) to a
// content-addressed side output, organized by organisation number rather
// than a content hash: every stage re-fetches the same document under the
// same key, so org-number addressing is what actually deduplicates here.
// Path shape: <baseDir>/<orgnr[:2]>/<orgnr>.<stage>.<ext>[.gz]
type Store struct {
	baseDir string
	gzip    bool
	logger  arbor.ILogger
}

// New creates a raw-document store rooted at baseDir.
func New(baseDir string, gzipDocs bool, logger arbor.ILogger) *Store {
	return &Store{baseDir: baseDir, gzip: gzipDocs, logger: logger}
}

// Write persists content for an organisation number's stage output under
// the given file extension (without the leading dot), gzip-compressing it
// if the store is configured to. Returns the path written.
func (s *Store) Write(orgNr models.OrgNumber, stage models.Stage, ext string, content []byte) (string, error) {
	key := orgNr.String()
	if len(key) < 2 {
		return "", fmt.Errorf("invalid org number for raw store key: %q", key)
	}

	subDir := filepath.Join(s.baseDir, key[:2])
	if err := os.MkdirAll(subDir, 0755); err != nil {
		return "", fmt.Errorf("create raw store directory: %w", err)
	}

	filename := fmt.Sprintf("%s.%s.%s", key, stage, ext)
	if s.gzip {
		filename += ".gz"
	}
	path := filepath.Join(subDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create raw document file: %w", err)
	}
	defer f.Close()

	if s.gzip {
		gw := gzip.NewWriter(f)
		if _, err := gw.Write(content); err != nil {
			return "", fmt.Errorf("write gzip raw document: %w", err)
		}
		if err := gw.Close(); err != nil {
			return "", fmt.Errorf("close gzip raw document: %w", err)
		}
	} else if _, err := f.Write(content); err != nil {
		return "", fmt.Errorf("write raw document: %w", err)
	}

	s.logger.Debug().
		Str("org_nr", key).
		Str("stage", string(stage)).
		Str("path", path).
		Int("size", len(content)).
		Msg("Wrote raw document side output")

	return path, nil
}

// Read reads back a previously-written raw document, transparently
// decompressing it if the store is configured for gzip.
func (s *Store) Read(orgNr models.OrgNumber, stage models.Stage, ext string) ([]byte, error) {
	key := orgNr.String()
	if len(key) < 2 {
		return nil, fmt.Errorf("invalid org number for raw store key: %q", key)
	}

	filename := fmt.Sprintf("%s.%s.%s", key, stage, ext)
	if s.gzip {
		filename += ".gz"
	}
	path := filepath.Join(s.baseDir, key[:2], filename)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw document: %w", err)
	}
	defer f.Close()

	if !s.gzip {
		return io.ReadAll(f)
	}

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip raw document: %w", err)
	}
	defer gr.Close()

	return io.ReadAll(gr)
}
