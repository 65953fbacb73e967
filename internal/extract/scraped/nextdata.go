// Package scraped extracts company and person data out of allabolag.se's
// embedded __NEXT_DATA__ JSON blob, the Next.js server-side props payload
// every page on the site ships regardless of what's rendered to the DOM.
package scraped

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoNextData is returned when a page has no __NEXT_DATA__ script tag,
// which usually means the site served a block/challenge page instead of
// the company or person page that was requested.
var ErrNoNextData = errors.New("scraped: page has no __NEXT_DATA__ script tag")

// extractNextData locates the __NEXT_DATA__ script tag and decodes its
// JSON body into a generic map, for callers that navigate specific keys.
func extractNextData(html string) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	script := doc.Find("script#__NEXT_DATA__").First()
	if script.Length() == 0 {
		return nil, ErrNoNextData
	}

	body := script.Text()
	if strings.TrimSpace(body) == "" {
		return nil, ErrNoNextData
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// pageProps navigates data -> props -> pageProps, the path every page's
// server-side data lives under.
func pageProps(data map[string]any) map[string]any {
	props, _ := data["props"].(map[string]any)
	if props == nil {
		return nil
	}
	pp, _ := props["pageProps"].(map[string]any)
	return pp
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
