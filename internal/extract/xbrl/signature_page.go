package xbrl

import (
	"regexp"
	"strings"
)

// signatureMarkers are substrings that identify a PDF page as the board's
// signature page in a Swedish annual report.
var signatureMarkers = []string{
	"styrelsens underskrift",
	"ort och datum",
	"undertecknande",
	"revisionsberättelse",
}

// nameLinePattern matches a line that looks like "Firstname Lastname" on
// its own, the shape a signature block prints names in.
var nameLinePattern = regexp.MustCompile(`^[A-ZÅÄÖ][a-zåäöéè]+(?:\s+[A-ZÅÄÖ][a-zåäöéè]+){1,3}$`)

// SignatureMarkers exposes the marker list so callers building a
// pdf.Extractor.ExtractSignaturePage call can reuse the same vocabulary.
func SignatureMarkers() []string {
	return signatureMarkers
}

// FromSignaturePage extracts director candidates from a PDF signature
// page's plain text, for annual reports that ship no tagged XBRL markup at
// all. Confidence decays linearly with distance (in lines) from the
// nearest marker phrase, since names far from any signature marker are
// more likely to be noise than names immediately next to one.
func FromSignaturePage(pageText string) []ExtractedDirector {
	lines := strings.Split(pageText, "\n")

	markerLines := make([]int, 0)
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, marker := range signatureMarkers {
			if strings.Contains(lower, marker) {
				markerLines = append(markerLines, i)
				break
			}
		}
	}

	if len(markerLines) == 0 {
		return nil
	}

	var directors []ExtractedDirector
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !nameLinePattern.MatchString(trimmed) {
			continue
		}

		distance := nearestMarkerDistance(i, markerLines)
		if distance > 2 {
			continue
		}

		confidence := 0.7 - float64(distance)*0.15
		role := nearbyRole(lines, i)

		parts := strings.Fields(trimmed)
		firstName := parts[0]
		lastName := strings.Join(parts[1:], " ")

		directors = append(directors, ExtractedDirector{
			FirstName:      firstName,
			LastName:       lastName,
			Role:           role,
			RoleNormalized: normalizeRole(role),
			Confidence:     confidence,
			SourceField:    "pdf_signature_page",
		})
	}

	return dedupeDirectors(directors)
}

func nearestMarkerDistance(line int, markerLines []int) int {
	best := 1 << 30
	for _, m := range markerLines {
		d := line - m
		if d < 0 {
			d = -d
		}
		if d < best {
			best = d
		}
	}
	return best
}

// nearbyRole looks one line above and below a candidate name line for a
// recognizable role string, the way a signature block typically prints
// "Name\nRole" or "Role\nName".
func nearbyRole(lines []string, i int) string {
	for _, j := range []int{i - 1, i + 1} {
		if j < 0 || j >= len(lines) {
			continue
		}
		candidate := strings.TrimSpace(lines[j])
		if normalizeRole(candidate) != "unknown" {
			return candidate
		}
	}
	return ""
}
