// Package analytics computes summary statistics and chart data over the
// results of a detection run.
package analytics

import (
	"cmp"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tphakala/visiondash/internal/detection"
)

const (
	// HighConfidence is the lower bound of the high confidence band.
	HighConfidence = 0.7
	// MediumConfidence is the lower bound of the medium confidence band.
	MediumConfidence = 0.4

	// HistogramBins is the number of equal width confidence bins on [0,1].
	HistogramBins = 20

	topLabelCount = 5
)

// ConfidenceBands counts detections per confidence band.
type ConfidenceBands struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// LabelCount is the number of detections with a label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary aggregates statistics over all results of a run.
type Summary struct {
	TotalServices         int                      `json:"totalServices"`
	TotalDetections       int                      `json:"totalDetections"`
	AverageProcessingTime time.Duration            `json:"averageProcessingTime"`
	ServicesUsed          []string                 `json:"servicesUsed"`
	DetectionsPerService  map[detection.Source]int `json:"detectionsPerService"`
	AverageConfidence     float64                  `json:"averageConfidence"`
	MaxConfidence         float64                  `json:"maxConfidence"`
	MinConfidence         float64                  `json:"minConfidence"`
	ConfidenceBands       ConfidenceBands          `json:"confidenceBands"`
	TopLabels             []LabelCount             `json:"topLabels"`
	UniqueLabels          int                      `json:"uniqueLabels"`
}

// HistogramBin is one bar of the confidence histogram, covering [Lower, Upper).
// The last bin also includes 1.0.
type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// ServiceComparison compares the services of a run side by side.
type ServiceComparison struct {
	Source         detection.Source `json:"source"`
	Service        string           `json:"service"`
	Detections     int              `json:"detections"`
	ProcessingTime time.Duration    `json:"processingTime"`
	MeanConfidence float64          `json:"meanConfidence"`
}

// LabelDistribution is the label histogram of one service.
type LabelDistribution struct {
	Source detection.Source `json:"source"`
	Labels []LabelCount     `json:"labels"`
}

// Report bundles everything the dashboard charts need.
type Report struct {
	Summary   Summary             `json:"summary"`
	Histogram []HistogramBin      `json:"histogram"`
	Services  []ServiceComparison `json:"services"`
	Labels    []LabelDistribution `json:"labels"`
}

// Analyze computes the full analytics report for results.
func Analyze(results []*detection.Result) Report {
	return Report{
		Summary:   Summarize(results),
		Histogram: ConfidenceHistogram(allDetections(results)),
		Services:  CompareServices(results),
		Labels:    LabelsByService(results),
	}
}

// Summarize computes the run summary. Nil results are ignored.
func Summarize(results []*detection.Result) Summary {
	results = nonNil(results)
	s := Summary{
		ServicesUsed:         []string{},
		DetectionsPerService: make(map[detection.Source]int, len(results)),
		TopLabels:            []LabelCount{},
	}
	if len(results) == 0 {
		return s
	}

	var processing time.Duration
	for _, r := range results {
		s.ServicesUsed = append(s.ServicesUsed, r.Service)
		s.DetectionsPerService[r.Source] += r.Count()
		processing += r.ProcessingTime
	}
	s.TotalServices = len(results)
	s.AverageProcessingTime = processing / time.Duration(len(results))

	detections := allDetections(results)
	s.TotalDetections = len(detections)
	if len(detections) == 0 {
		return s
	}

	conf := confidences(detections)
	s.AverageConfidence = stat.Mean(conf, nil)
	s.MaxConfidence = floats.Max(conf)
	s.MinConfidence = floats.Min(conf)
	s.ConfidenceBands = bands(conf)

	counts := countLabels(detections)
	s.UniqueLabels = len(counts)
	s.TopLabels = counts[:min(topLabelCount, len(counts))]

	return s
}

// ConfidenceHistogram bins detection confidences into HistogramBins equal bins on [0,1].
func ConfidenceHistogram(detections []detection.Detection) []HistogramBin {
	dividers := make([]float64, HistogramBins+1)
	floats.Span(dividers, 0, 1)

	bins := make([]HistogramBin, HistogramBins)
	for i := range bins {
		bins[i] = HistogramBin{Lower: dividers[i], Upper: dividers[i+1]}
	}
	if len(detections) == 0 {
		return bins
	}

	// stat.Histogram treats the last divider as exclusive
	dividers[HistogramBins] = math.Nextafter(1, 2)

	x := confidences(detections)
	slices.Sort(x)
	counts := stat.Histogram(nil, dividers, x, nil)
	for i, c := range counts {
		bins[i].Count = int(c)
	}
	return bins
}

// CompareServices returns one comparison row per result, in input order.
func CompareServices(results []*detection.Result) []ServiceComparison {
	results = nonNil(results)
	rows := make([]ServiceComparison, 0, len(results))
	for _, r := range results {
		row := ServiceComparison{
			Source:         r.Source,
			Service:        r.Service,
			Detections:     r.Count(),
			ProcessingTime: r.ProcessingTime,
		}
		if r.Count() > 0 {
			row.MeanConfidence = stat.Mean(confidences(r.Detections), nil)
		}
		rows = append(rows, row)
	}
	return rows
}

// LabelsByService returns the label counts of each result, most common first.
func LabelsByService(results []*detection.Result) []LabelDistribution {
	results = nonNil(results)
	out := make([]LabelDistribution, 0, len(results))
	for _, r := range results {
		out = append(out, LabelDistribution{Source: r.Source, Labels: countLabels(r.Detections)})
	}
	return out
}

func nonNil(results []*detection.Result) []*detection.Result {
	return slices.DeleteFunc(slices.Clone(results), func(r *detection.Result) bool { return r == nil })
}

func allDetections(results []*detection.Result) []detection.Detection {
	var all []detection.Detection
	for _, r := range results {
		if r != nil {
			all = append(all, r.Detections...)
		}
	}
	return all
}

func confidences(detections []detection.Detection) []float64 {
	out := make([]float64, len(detections))
	for i, d := range detections {
		out[i] = d.Confidence
	}
	return out
}

func bands(conf []float64) ConfidenceBands {
	var b ConfidenceBands
	for _, c := range conf {
		switch {
		case c >= HighConfidence:
			b.High++
		case c >= MediumConfidence:
			b.Medium++
		default:
			b.Low++
		}
	}
	return b
}

// countLabels counts labels, most common first and ties broken alphabetically.
func countLabels(detections []detection.Detection) []LabelCount {
	index := make(map[string]int)
	counts := []LabelCount{}
	for _, d := range detections {
		i, ok := index[d.Label]
		if !ok {
			i = len(counts)
			index[d.Label] = i
			counts = append(counts, LabelCount{Label: d.Label})
		}
		counts[i].Count++
	}
	slices.SortFunc(counts, func(a, b LabelCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return counts
}
