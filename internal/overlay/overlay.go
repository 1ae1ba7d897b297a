// Package overlay turns a detection list into labelled markers, each linked
// to a shopping search for the detected class.
package overlay

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/ayusman/shoplens/internal/detector"
)

// DefaultSearchURL is the search template used when none is configured.
// {query} is replaced by the percent-encoded class name.
const DefaultSearchURL = "https://www.amazon.com/s?k={query}"

// QueryPlaceholder marks where the search term goes in a search template.
const QueryPlaceholder = "{query}"

// labelInset is how much narrower a label is than its marker.
const labelInset = 100

// Marker is one rendered detection: a text label and a clickable box.
type Marker struct {
	Class      string  `json:"class"`
	Label      string  `json:"label"`
	LabelLeft  float64 `json:"label_left"`
	LabelTop   float64 `json:"label_top"`
	LabelWidth float64 `json:"label_width"`
	Left       float64 `json:"left"`
	Top        float64 `json:"top"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	SearchURL  string  `json:"search_url"`
}

// Render returns one marker per detection, in detection order.
// An empty template falls back to DefaultSearchURL.
func Render(detections []detector.Detection, searchTemplate string) []Marker {
	markers := make([]Marker, 0, len(detections))
	for _, d := range detections {
		markers = append(markers, Marker{
			Class:      d.Class,
			Label:      LabelText(d),
			LabelLeft:  d.BBox.X,
			LabelTop:   d.BBox.Y,
			LabelWidth: math.Max(0, d.BBox.Width-labelInset),
			Left:       d.BBox.X,
			Top:        d.BBox.Y,
			Width:      d.BBox.Width,
			Height:     d.BBox.Height,
			SearchURL:  SearchURL(searchTemplate, d.Class),
		})
	}
	return markers
}

// LabelText formats a detection as "<class> - with <percent>% confidence.".
func LabelText(d detector.Detection) string {
	return fmt.Sprintf("%s - with %d%% confidence.", d.Class, int(math.Round(d.Score*100)))
}

// SearchURL fills the template with the query, percent-encoded with spaces as %20.
func SearchURL(template, query string) string {
	if template == "" {
		template = DefaultSearchURL
	}
	escaped := strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
	return strings.ReplaceAll(template, QueryPlaceholder, escaped)
}

// ValidateTemplate checks that a search template is an absolute http(s) URL
// containing the query placeholder.
func ValidateTemplate(template string) error {
	if !strings.Contains(template, QueryPlaceholder) {
		return fmt.Errorf("search template must contain %s", QueryPlaceholder)
	}
	u, err := url.Parse(strings.ReplaceAll(template, QueryPlaceholder, "q"))
	if err != nil {
		return fmt.Errorf("parse search template: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("search template must be an http or https URL")
	}
	if u.Host == "" {
		return fmt.Errorf("search template has no host")
	}
	return nil
}
