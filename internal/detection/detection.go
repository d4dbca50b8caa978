// Package detection defines the vendor independent detection record and the
// normalizers that map Azure Custom Vision and Google AutoML responses onto it.
//
// Every Detection produced by this package satisfies:
//   - Confidence is within [0,1] and not below the threshold used
//   - every Box field is within [0,1], Width and Height are positive
package detection

import (
	"fmt"
	"strings"
)

// Source identifies the vendor that produced a detection.
type Source string

const (
	SourceAzure  Source = "Azure"
	SourceGoogle Source = "Google"
)

// AllSources lists the sources in service order. Aggregated runs keep this order.
func AllSources() []Source {
	return []Source{SourceAzure, SourceGoogle}
}

// DisplayName returns the human readable service name.
func (s Source) DisplayName() string {
	switch s {
	case SourceAzure:
		return "Azure Custom Vision"
	case SourceGoogle:
		return "Google AutoML"
	default:
		return string(s)
	}
}

// Order returns the position of s in service order, unknown sources sort last.
func (s Source) Order() int {
	switch s {
	case SourceAzure:
		return 0
	case SourceGoogle:
		return 1
	default:
		return 2
	}
}

// ParseSource resolves a user supplied service name. It accepts the source
// value, the display name and a few common aliases, case-insensitively.
func ParseSource(name string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "azure", "azure custom vision", "customvision", "custom vision":
		return SourceAzure, nil
	case "google", "google automl", "automl", "google automl vision":
		return SourceGoogle, nil
	default:
		return "", fmt.Errorf("unknown detection service %q", name)
	}
}

// Box is an axis aligned bounding box in fractions of the image size,
// origin at the top-left corner.
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (b Box) Right() float64 { return b.Left + b.Width }

// Bottom returns the y coordinate of the bottom edge.
func (b Box) Bottom() float64 { return b.Top + b.Height }

// clamp restricts the box to the unit square. Values already inside are kept
// bit for bit. The second return value is false when nothing of positive area remains.
func (b Box) clamp() (Box, bool) {
	b.Left, b.Width = clampSpan(b.Left, b.Width)
	b.Top, b.Height = clampSpan(b.Top, b.Height)
	return b, b.Width > 0 && b.Height > 0
}

// clampSpan fits the interval [start, start+size] into [0,1].
func clampSpan(start, size float64) (float64, float64) {
	if start < 0 {
		size += start
		start = 0
	}
	if start > 1 {
		return 1, 0
	}
	if start+size > 1 {
		size = 1 - start
	}
	return start, size
}

// Detection is one labelled box from either vendor.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Source     Source  `json:"source"`
}
