package detection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/visiondash/internal/errors"
)

const azureCatResponse = `{
	"id": "7f2b2c1a-0000-4c3e-9f1e-1a2b3c4d5e6f",
	"project": "b1f0c0de-0000-0000-0000-000000000000",
	"iteration": "c0ffee00-0000-0000-0000-000000000000",
	"created": "2024-05-01T10:00:00.000Z",
	"predictions": [
		{"probability": 0.9, "tagId": "t1", "tagName": "cat",
		 "boundingBox": {"left": 0.1, "top": 0.2, "width": 0.3, "height": 0.4}},
		{"probability": 0.2, "tagId": "t2", "tagName": "dog",
		 "boundingBox": {"left": 0.5, "top": 0.5, "width": 0.2, "height": 0.2}}
	]
}`

const googleCatResponse = `{
	"payload": [
		{"annotationSpecId": "1", "displayName": "cat",
		 "imageObjectDetection": {"score": 0.95,
		   "boundingBox": {"normalizedVertices": [{"x": 0.1, "y": 0.2}, {"x": 0.4, "y": 0.6}]}}},
		{"annotationSpecId": "2", "displayName": "bird",
		 "imageObjectDetection": {"score": 0.45,
		   "boundingBox": {"normalizedVertices": [{"x": 0.6, "y": 0.1}, {"x": 0.9, "y": 0.3}]}}}
	]
}`

// azureWithConfidences builds an Azure response with one prediction per confidence.
func azureWithConfidences(confidences ...float64) []byte {
	items := ""
	for i, c := range confidences {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"tagName":"tag%d","probability":%g,"boundingBox":{"left":0.1,"top":0.1,"width":0.2,"height":0.2}}`, i, c)
	}
	return []byte(`{"predictions":[` + items + `]}`)
}

// googleWithScores builds a Google response with one payload item per score.
func googleWithScores(scores ...float64) []byte {
	items := ""
	for i, s := range scores {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"displayName":"tag%d","imageObjectDetection":{"score":%g,"boundingBox":{"normalizedVertices":[{"x":0.1,"y":0.1},{"x":0.3,"y":0.3}]}}}`, i, s)
	}
	return []byte(`{"payload":[` + items + `]}`)
}

func assertMalformed(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMalformedResponse), "expected malformed response, got %v", err)
	assert.Equal(t, KindMalformedResponse, KindOf(err))
}

func TestNormalizeAzure_CatScenario(t *testing.T) {
	detections, err := NormalizeAzure([]byte(azureCatResponse), 0.5)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	assert.Equal(t, Detection{
		Label:      "cat",
		Confidence: 0.9,
		Box:        Box{Left: 0.1, Top: 0.2, Width: 0.3, Height: 0.4},
		Source:     SourceAzure,
	}, detections[0])
}

func TestNormalizeAzure_BoxPassesThrough(t *testing.T) {
	detections, err := NormalizeAzure([]byte(azureCatResponse), 0)
	require.NoError(t, err)
	require.Len(t, detections, 2)

	for _, d := range detections {
		assert.Equal(t, SourceAzure, d.Source)
	}
	assert.Equal(t, Box{Left: 0.5, Top: 0.5, Width: 0.2, Height: 0.2}, detections[1].Box)
}

func TestNormalizeAzure_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>gateway timeout</html>`},
		{"json array", `[]`},
		{"missing predictions", `{"id":"x"}`},
		{"predictions null", `{"predictions":null}`},
		{"predictions object", `{"predictions":{"tagName":"cat"}}`},
		{"predictions of numbers", `{"predictions":[1,2]}`},
		{"missing tagName", `{"predictions":[{"probability":0.9,"boundingBox":{"left":0,"top":0,"width":1,"height":1}}]}`},
		{"missing probability", `{"predictions":[{"tagName":"cat","boundingBox":{"left":0,"top":0,"width":1,"height":1}}]}`},
		{"string probability", `{"predictions":[{"tagName":"cat","probability":"0.9","boundingBox":{"left":0,"top":0,"width":1,"height":1}}]}`},
		{"missing boundingBox", `{"predictions":[{"tagName":"cat","probability":0.9}]}`},
		{"missing height", `{"predictions":[{"tagName":"cat","probability":0.9,"boundingBox":{"left":0,"top":0,"width":1}}]}`},
		{"confidence above one", `{"predictions":[{"tagName":"cat","probability":1.5,"boundingBox":{"left":0,"top":0,"width":1,"height":1}}]}`},
		{"negative confidence", `{"predictions":[{"tagName":"cat","probability":-0.1,"boundingBox":{"left":0,"top":0,"width":1,"height":1}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detections, err := NormalizeAzure([]byte(tt.body), 0.5)
			assertMalformed(t, err)
			assert.Nil(t, detections)
		})
	}
}

func TestNormalizeAzure_EmptyPredictions(t *testing.T) {
	detections, err := NormalizeAzure([]byte(`{"predictions":[]}`), 0.5)
	require.NoError(t, err)
	assert.Empty(t, detections)
	assert.NotNil(t, detections)
}

func TestNormalizeAzure_ClampsBoxes(t *testing.T) {
	body := `{"predictions":[
		{"tagName":"edge","probability":0.8,"boundingBox":{"left":-0.1,"top":0.9,"width":0.3,"height":0.3}},
		{"tagName":"outside","probability":0.8,"boundingBox":{"left":1.2,"top":0.1,"width":0.1,"height":0.1}},
		{"tagName":"flat","probability":0.8,"boundingBox":{"left":0.1,"top":0.1,"width":0,"height":0.1}}
	]}`

	detections, err := NormalizeAzure([]byte(body), 0.5)
	require.NoError(t, err)
	require.Len(t, detections, 1, "degenerate boxes are dropped")

	box := detections[0].Box
	assert.InDelta(t, 0.0, box.Left, 1e-9)
	assert.InDelta(t, 0.2, box.Width, 1e-9)
	assert.InDelta(t, 0.9, box.Top, 1e-9)
	assert.InDelta(t, 0.1, box.Height, 1e-9)
}

func TestNormalizeGoogle_VertexScenario(t *testing.T) {
	detections, err := NormalizeGoogle([]byte(googleCatResponse), 0.5)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	d := detections[0]
	assert.Equal(t, "cat", d.Label)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
	assert.Equal(t, SourceGoogle, d.Source)
	assert.InDelta(t, 0.1, d.Box.Left, 1e-9)
	assert.InDelta(t, 0.2, d.Box.Top, 1e-9)
	assert.InDelta(t, 0.3, d.Box.Width, 1e-9)
	assert.InDelta(t, 0.4, d.Box.Height, 1e-9)
}

func TestNormalizeGoogle_VertexArithmetic(t *testing.T) {
	vertices := [][4]float64{
		{0, 0, 1, 1},
		{0.25, 0.5, 0.75, 0.875},
		{0.05, 0.9, 0.06, 0.95},
	}

	for _, v := range vertices {
		body := fmt.Sprintf(`{"payload":[{"displayName":"x","imageObjectDetection":{"score":0.9,
			"boundingBox":{"normalizedVertices":[{"x":%g,"y":%g},{"x":%g,"y":%g}]}}}]}`, v[0], v[1], v[2], v[3])

		detections, err := NormalizeGoogle([]byte(body), 0)
		require.NoError(t, err)
		require.Len(t, detections, 1)

		box := detections[0].Box
		assert.InDelta(t, v[0], box.Left, 1e-12)
		assert.InDelta(t, v[1], box.Top, 1e-12)
		assert.InDelta(t, v[2]-v[0], box.Width, 1e-12)
		assert.InDelta(t, v[3]-v[1], box.Height, 1e-12)
	}
}

func TestNormalizeGoogle_UsesAllVertices(t *testing.T) {
	body := `{"payload":[{"displayName":"box","imageObjectDetection":{"score":0.9,
		"boundingBox":{"normalizedVertices":[{"x":0.4,"y":0.2},{"x":0.1,"y":0.2},{"x":0.1,"y":0.6},{"x":0.4,"y":0.6}]}}}]}`

	detections, err := NormalizeGoogle([]byte(body), 0.5)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.InDelta(t, 0.1, detections[0].Box.Left, 1e-9)
	assert.InDelta(t, 0.3, detections[0].Box.Width, 1e-9)
}

func TestNormalizeGoogle_MissingPayloadMeansNoDetections(t *testing.T) {
	detections, err := NormalizeGoogle([]byte(`{}`), 0.5)
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestNormalizeGoogle_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `upstream connect error`},
		{"payload object", `{"payload":{"displayName":"cat"}}`},
		{"payload string", `{"payload":"none"}`},
		{"payload of strings", `{"payload":["cat"]}`},
		{"one vertex", `{"payload":[{"displayName":"cat","imageObjectDetection":{"score":0.9,"boundingBox":{"normalizedVertices":[{"x":0.1,"y":0.2}]}}}]}`},
		{"no vertices", `{"payload":[{"displayName":"cat","imageObjectDetection":{"score":0.9,"boundingBox":{}}}]}`},
		{"missing x", `{"payload":[{"displayName":"cat","imageObjectDetection":{"score":0.9,"boundingBox":{"normalizedVertices":[{"y":0.2},{"x":0.4,"y":0.6}]}}}]}`},
		{"missing y", `{"payload":[{"displayName":"cat","imageObjectDetection":{"score":0.9,"boundingBox":{"normalizedVertices":[{"x":0.1,"y":0.2},{"x":0.4}]}}}]}`},
		{"missing score", `{"payload":[{"displayName":"cat","imageObjectDetection":{"boundingBox":{"normalizedVertices":[{"x":0.1,"y":0.2},{"x":0.4,"y":0.6}]}}}]}`},
		{"missing displayName", `{"payload":[{"imageObjectDetection":{"score":0.9,"boundingBox":{"normalizedVertices":[{"x":0.1,"y":0.2},{"x":0.4,"y":0.6}]}}}]}`},
		{"score above one", `{"payload":[{"displayName":"cat","imageObjectDetection":{"score":2,"boundingBox":{"normalizedVertices":[{"x":0.1,"y":0.2},{"x":0.4,"y":0.6}]}}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detections, err := NormalizeGoogle([]byte(tt.body), 0.5)
			assertMalformed(t, err)
			assert.Nil(t, detections)
		})
	}
}

func TestNormalize_ThresholdIsRespected(t *testing.T) {
	confidences := []float64{0, 0.1, 0.25, 0.3, 0.4999, 0.5, 0.7, 0.9, 1}

	for step := range 11 {
		threshold := float64(step) / 10
		t.Run(fmt.Sprintf("threshold %.1f", threshold), func(t *testing.T) {
			azure, err := NormalizeAzure(azureWithConfidences(confidences...), threshold)
			require.NoError(t, err)
			google, err := NormalizeGoogle(googleWithScores(confidences...), threshold)
			require.NoError(t, err)

			want := 0
			for _, c := range confidences {
				if c >= threshold {
					want++
				}
			}
			assert.Len(t, azure, want)
			assert.Len(t, google, want)

			for _, d := range append(azure, google...) {
				assert.GreaterOrEqual(t, d.Confidence, threshold)
			}
		})
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	first, err := Normalize(SourceAzure, []byte(azureCatResponse), 0)
	require.NoError(t, err)
	second, err := Normalize(SourceAzure, []byte(azureCatResponse), 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	first, err = Normalize(SourceGoogle, []byte(googleCatResponse), 0)
	require.NoError(t, err)
	second, err = Normalize(SourceGoogle, []byte(googleCatResponse), 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = Normalize(Source("Other"), []byte(`{}`), 0)
	require.Error(t, err)
}

func TestNormalize_BoxInvariant(t *testing.T) {
	for _, source := range AllSources() {
		raw := []byte(azureCatResponse)
		if source == SourceGoogle {
			raw = []byte(googleCatResponse)
		}
		detections, err := Normalize(source, raw, 0)
		require.NoError(t, err)

		for _, d := range detections {
			assert.Equal(t, source, d.Source)
			for _, v := range []float64{d.Box.Left, d.Box.Top, d.Box.Width, d.Box.Height} {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
			assert.Positive(t, d.Box.Width)
			assert.Positive(t, d.Box.Height)
		}
	}
}
