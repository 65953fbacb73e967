// -----------------------------------------------------------------------
// PDF signature-page extractor, used as a fallback when an annual report
// carries no machine-readable tagged markup. Uses pdfcpu for Go-native
// PDF processing.
// -----------------------------------------------------------------------

package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
)

// Page holds the extracted text for a single PDF page.
type Page struct {
	PageNumber int
	Text       string
}

// Extractor pulls page text out of PDF byte content via temp-file
// round trips through pdfcpu, which has no in-memory text API.
type Extractor struct {
	logger  arbor.ILogger
	tempDir string
}

// NewExtractor creates a PDF extractor that stages files under tempDir
// (created if missing).
func NewExtractor(logger arbor.ILogger, tempDir string) *Extractor {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "bolagsradar-pdf")
	}
	os.MkdirAll(tempDir, 0755)
	return &Extractor{logger: logger, tempDir: tempDir}
}

// ExtractPages extracts text content by page from raw PDF bytes.
func (e *Extractor) ExtractPages(content []byte) ([]Page, error) {
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("extract_%d_%d.pdf", os.Getpid(), len(content)))
	if err := os.WriteFile(tempFile, content, 0644); err != nil {
		return nil, fmt.Errorf("write temp pdf file: %w", err)
	}
	defer os.Remove(tempFile)

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("read pdf context: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%d_%d", os.Getpid(), len(content)))
	os.MkdirAll(outDir, 0755)
	defer os.RemoveAll(outDir)

	pages := make([]Page, 0, pageCount)

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		if e.logger != nil {
			e.logger.Warn().Err(err).Msg("pdf content extraction failed, returning empty pages")
		}
		for pageNum := 1; pageNum <= pageCount; pageNum++ {
			pages = append(pages, Page{PageNumber: pageNum})
		}
		return pages, nil
	}

	files, _ := os.ReadDir(outDir)
	pageTexts := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(raw)
		} else if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(raw)
		}
	}

	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		pages = append(pages, Page{PageNumber: pageNum, Text: pageTexts[pageNum]})
	}
	return pages, nil
}

// ExtractSignaturePage returns the text of the page most likely to be the
// board signature page: the last page matching any of the given marker
// substrings (case-insensitive), or the final page of the document if no
// marker matches. Annual reports place the board's signatures and the
// auditor's opinion near the end, almost never on page 1.
func (e *Extractor) ExtractSignaturePage(content []byte, markers []string) (Page, error) {
	pages, err := e.ExtractPages(content)
	if err != nil {
		return Page{}, err
	}
	if len(pages) == 0 {
		return Page{}, fmt.Errorf("pdf has no pages")
	}

	for i := len(pages) - 1; i >= 0; i-- {
		lower := strings.ToLower(pages[i].Text)
		for _, marker := range markers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				return pages[i], nil
			}
		}
	}
	return pages[len(pages)-1], nil
}
