package analytics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/visiondash/internal/detection"
)

func det(label string, confidence float64, source detection.Source) detection.Detection {
	return detection.Detection{
		Label:      label,
		Confidence: confidence,
		Box:        detection.Box{Left: 0.1, Top: 0.2, Width: 0.3, Height: 0.4},
		Source:     source,
	}
}

func sampleResults() []*detection.Result {
	azure := detection.NewResult(detection.SourceAzure, []detection.Detection{
		det("cat", 0.9, detection.SourceAzure),
		det("dog", 0.5, detection.SourceAzure),
	}, 0.3)
	azure.ProcessingTime = 100 * time.Millisecond

	google := detection.NewResult(detection.SourceGoogle, []detection.Detection{
		det("cat", 0.95, detection.SourceGoogle),
		det("cat", 0.35, detection.SourceGoogle),
		det("bird", 0.7, detection.SourceGoogle),
	}, 0.3)
	google.ProcessingTime = 300 * time.Millisecond

	return []*detection.Result{azure, google}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := Summarize(sampleResults())

	assert.Equal(t, 2, s.TotalServices)
	assert.Equal(t, 5, s.TotalDetections)
	assert.Equal(t, 200*time.Millisecond, s.AverageProcessingTime)
	assert.Equal(t, []string{"Azure Custom Vision", "Google AutoML"}, s.ServicesUsed)
	assert.Equal(t, map[detection.Source]int{detection.SourceAzure: 2, detection.SourceGoogle: 3}, s.DetectionsPerService)

	assert.InDelta(t, (0.9+0.5+0.95+0.35+0.7)/5, s.AverageConfidence, 1e-12)
	assert.InDelta(t, 0.95, s.MaxConfidence, 0)
	assert.InDelta(t, 0.35, s.MinConfidence, 0)
	assert.Equal(t, ConfidenceBands{High: 3, Medium: 1, Low: 1}, s.ConfidenceBands)

	assert.Equal(t, 3, s.UniqueLabels)
	assert.Equal(t, []LabelCount{{"cat", 3}, {"bird", 1}, {"dog", 1}}, s.TopLabels)
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil)
	assert.Zero(t, s.TotalServices)
	assert.Zero(t, s.TotalDetections)
	assert.Empty(t, s.ServicesUsed)
	assert.Empty(t, s.TopLabels)

	s = Summarize([]*detection.Result{nil, detection.NewResult(detection.SourceAzure, nil, 0.5)})
	assert.Equal(t, 1, s.TotalServices)
	assert.Zero(t, s.TotalDetections)
	assert.Zero(t, s.MaxConfidence)
}

func TestSummarize_TopLabelsCapped(t *testing.T) {
	t.Parallel()

	var detections []detection.Detection
	for _, label := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		detections = append(detections, det(label, 0.8, detection.SourceAzure))
	}
	s := Summarize([]*detection.Result{detection.NewResult(detection.SourceAzure, detections, 0.5)})

	assert.Equal(t, 7, s.UniqueLabels)
	require.Len(t, s.TopLabels, 5)
	assert.Equal(t, "a", s.TopLabels[0].Label)
	assert.Equal(t, "e", s.TopLabels[4].Label)
}

func TestConfidenceHistogram(t *testing.T) {
	t.Parallel()

	bins := ConfidenceHistogram([]detection.Detection{
		det("a", 0, detection.SourceAzure),
		det("b", 0.049, detection.SourceAzure),
		det("c", 0.52, detection.SourceAzure),
		det("d", 0.97, detection.SourceAzure),
		det("e", 1, detection.SourceAzure),
	})

	require.Len(t, bins, HistogramBins)
	assert.InDelta(t, 0, bins[0].Lower, 0)
	assert.InDelta(t, 0.05, bins[0].Upper, 1e-12)
	assert.InDelta(t, 1, bins[HistogramBins-1].Upper, 0)

	assert.Equal(t, 2, bins[0].Count)
	assert.Equal(t, 1, bins[10].Count)
	assert.Equal(t, 2, bins[19].Count, "1.0 falls into the last bin")

	total := 0
	for _, b := range bins {
		total += b.Count
	}
	assert.Equal(t, 5, total)
}

func TestConfidenceHistogram_Empty(t *testing.T) {
	t.Parallel()

	bins := ConfidenceHistogram(nil)
	require.Len(t, bins, HistogramBins)
	for _, b := range bins {
		assert.Zero(t, b.Count)
	}
}

func TestCompareServices(t *testing.T) {
	t.Parallel()

	rows := CompareServices(sampleResults())
	require.Len(t, rows, 2)

	assert.Equal(t, detection.SourceAzure, rows[0].Source)
	assert.Equal(t, 2, rows[0].Detections)
	assert.InDelta(t, 0.7, rows[0].MeanConfidence, 1e-12)
	assert.Equal(t, 100*time.Millisecond, rows[0].ProcessingTime)

	assert.Equal(t, detection.SourceGoogle, rows[1].Source)
	assert.InDelta(t, 2.0/3.0, rows[1].MeanConfidence, 1e-12)
}

func TestLabelsByService(t *testing.T) {
	t.Parallel()

	dist := LabelsByService(sampleResults())
	require.Len(t, dist, 2)
	assert.Equal(t, []LabelCount{{"cat", 1}, {"dog", 1}}, dist[0].Labels)
	assert.Equal(t, []LabelCount{{"cat", 2}, {"bird", 1}}, dist[1].Labels)
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	report := Analyze(sampleResults())
	assert.Equal(t, 5, report.Summary.TotalDetections)
	assert.Len(t, report.Histogram, HistogramBins)
	assert.Len(t, report.Services, 2)
	assert.Len(t, report.Labels, 2)
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteCSV(&buf, []detection.Detection{
		det("cat", 0.9, detection.SourceAzure),
		{Label: "traffic, light", Confidence: 0.55, Box: detection.Box{Left: 0, Top: 0.5, Width: 0.25, Height: 0.125}, Source: detection.SourceGoogle},
	})
	require.NoError(t, err)

	want := strings.Join([]string{
		"label,confidence,left,top,width,height,source",
		"cat,0.9,0.1,0.2,0.3,0.4,Azure",
		`"traffic, light",0.55,0,0.5,0.25,0.125,Google`,
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_HeaderOnly(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "label,confidence,left,top,width,height,source\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, assert.AnError }

func TestWriteCSV_WriteError(t *testing.T) {
	t.Parallel()
	require.Error(t, WriteCSV(failingWriter{}, []detection.Detection{det("cat", 0.9, detection.SourceAzure)}))
}
