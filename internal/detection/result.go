package detection

import (
	"slices"
	"time"
)

// Result is one service's outcome for a detection run.
type Result struct {
	Source         Source        `json:"source"`
	Service        string        `json:"service"`
	Detections     []Detection   `json:"detections"`
	ProcessingTime time.Duration `json:"processingTime"`
	ImageWidth     int           `json:"imageWidth"`
	ImageHeight    int           `json:"imageHeight"`
	Threshold      float64       `json:"threshold"`
}

// NewResult creates a result for source with the display name filled in.
func NewResult(source Source, detections []Detection, threshold float64) *Result {
	if detections == nil {
		detections = []Detection{}
	}
	return &Result{
		Source:     source,
		Service:    source.DisplayName(),
		Detections: detections,
		Threshold:  threshold,
	}
}

// Count returns the number of detections.
func (r *Result) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Detections)
}

// HighConfidence returns the detections whose confidence is at least minConfidence.
func (r *Result) HighConfidence(minConfidence float64) []Detection {
	if r == nil {
		return nil
	}
	return FilterByConfidence(r.Detections, minConfidence)
}

// UniqueLabels returns the sorted set of labels in the result.
func (r *Result) UniqueLabels() []string {
	if r == nil {
		return nil
	}
	return UniqueLabels(r.Detections)
}

// FilterByConfidence keeps detections with confidence >= threshold, preserving order.
func FilterByConfidence(detections []Detection, threshold float64) []Detection {
	out := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// UniqueLabels returns the sorted set of labels in detections.
func UniqueLabels(detections []Detection) []string {
	labels := make([]string, 0, len(detections))
	for _, d := range detections {
		labels = append(labels, d.Label)
	}
	slices.Sort(labels)
	return slices.Compact(labels)
}

// BySource returns the detections that came from source.
func BySource(detections []Detection, source Source) []Detection {
	var out []Detection
	for _, d := range detections {
		if d.Source == source {
			out = append(out, d)
		}
	}
	return out
}
