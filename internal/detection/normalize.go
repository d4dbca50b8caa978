package detection

import (
	"fmt"

	"github.com/antonholmquist/jason"
)

// NormalizeAzure maps a Custom Vision prediction response onto Detections.
//
// Expected shape:
//
//	{"predictions":[{"tagName":"cat","probability":0.9,
//	  "boundingBox":{"left":0.1,"top":0.2,"width":0.3,"height":0.4}}]}
//
// Predictions below threshold are dropped. Box values pass through unchanged
// unless they leave the unit square.
func NormalizeAzure(raw []byte, threshold float64) ([]Detection, error) {
	root, err := jason.NewObjectFromBytes(raw)
	if err != nil {
		return nil, newMalformed(SourceAzure, "azure response is not a JSON object: %v", err)
	}

	if _, ok := root.Map()["predictions"]; !ok {
		return nil, newMalformed(SourceAzure, "azure response has no predictions")
	}
	predictions, err := root.GetObjectArray("predictions")
	if err != nil {
		return nil, newMalformed(SourceAzure, "azure predictions is not a list of objects")
	}

	detections := make([]Detection, 0, len(predictions))
	for i, p := range predictions {
		label, err := p.GetString("tagName")
		if err != nil {
			return nil, newMalformed(SourceAzure, "azure prediction %d: missing tagName", i)
		}
		confidence, err := p.GetFloat64("probability")
		if err != nil {
			return nil, newMalformed(SourceAzure, "azure prediction %d: missing probability", i)
		}
		if confidence < 0 || confidence > 1 {
			return nil, newMalformed(SourceAzure, "azure prediction %d: probability %g outside [0,1]", i, confidence)
		}

		var box Box
		fields := []struct {
			key string
			dst *float64
		}{
			{"left", &box.Left},
			{"top", &box.Top},
			{"width", &box.Width},
			{"height", &box.Height},
		}
		for _, f := range fields {
			v, err := p.GetFloat64("boundingBox", f.key)
			if err != nil {
				return nil, newMalformed(SourceAzure, "azure prediction %d: missing boundingBox.%s", i, f.key)
			}
			*f.dst = v
		}

		if confidence < threshold {
			continue
		}
		clamped, ok := box.clamp()
		if !ok {
			continue
		}

		detections = append(detections, Detection{
			Label:      label,
			Confidence: confidence,
			Box:        clamped,
			Source:     SourceAzure,
		})
	}

	return detections, nil
}

// NormalizeGoogle maps an AutoML Vision predict response onto Detections.
//
// Expected shape:
//
//	{"payload":[{"displayName":"cat","imageObjectDetection":{"score":0.95,
//	  "boundingBox":{"normalizedVertices":[{"x":0.1,"y":0.2},{"x":0.4,"y":0.6}]}}}]}
//
// The box spans the vertices, so for the usual top-left and bottom-right pair
// width is x2-x1 and height is y2-y1. A missing payload means no detections.
func NormalizeGoogle(raw []byte, threshold float64) ([]Detection, error) {
	root, err := jason.NewObjectFromBytes(raw)
	if err != nil {
		return nil, newMalformed(SourceGoogle, "google response is not a JSON object: %v", err)
	}

	if _, ok := root.Map()["payload"]; !ok {
		return []Detection{}, nil
	}
	payload, err := root.GetObjectArray("payload")
	if err != nil {
		return nil, newMalformed(SourceGoogle, "google payload is not a list of objects")
	}

	detections := make([]Detection, 0, len(payload))
	for i, item := range payload {
		label, err := item.GetString("displayName")
		if err != nil {
			return nil, newMalformed(SourceGoogle, "google payload %d: missing displayName", i)
		}
		score, err := item.GetFloat64("imageObjectDetection", "score")
		if err != nil {
			return nil, newMalformed(SourceGoogle, "google payload %d: missing score", i)
		}
		if score < 0 || score > 1 {
			return nil, newMalformed(SourceGoogle, "google payload %d: score %g outside [0,1]", i, score)
		}

		vertices, err := item.GetObjectArray("imageObjectDetection", "boundingBox", "normalizedVertices")
		if err != nil || len(vertices) < 2 {
			return nil, newMalformed(SourceGoogle, "google payload %d: need at least two normalizedVertices", i)
		}
		box, err := boxFromVertices(vertices)
		if err != nil {
			return nil, newMalformed(SourceGoogle, "google payload %d: %v", i, err)
		}

		if score < threshold {
			continue
		}
		clamped, ok := box.clamp()
		if !ok {
			continue
		}

		detections = append(detections, Detection{
			Label:      label,
			Confidence: score,
			Box:        clamped,
			Source:     SourceGoogle,
		})
	}

	return detections, nil
}

// boxFromVertices returns the bounding box of the given points.
func boxFromVertices(vertices []*jason.Object) (Box, error) {
	var minX, minY, maxX, maxY float64
	for i, v := range vertices {
		x, err := v.GetFloat64("x")
		if err != nil {
			return Box{}, vertexError(i, "x")
		}
		y, err := v.GetFloat64("y")
		if err != nil {
			return Box{}, vertexError(i, "y")
		}
		if i == 0 {
			minX, maxX, minY, maxY = x, x, y, y
			continue
		}
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	return Box{Left: minX, Top: minY, Width: maxX - minX, Height: maxY - minY}, nil
}

func vertexError(vertex int, axis string) error {
	return fmt.Errorf("vertex %d missing %s coordinate", vertex, axis)
}

// Normalize dispatches raw to the normalizer of source.
func Normalize(source Source, raw []byte, threshold float64) ([]Detection, error) {
	switch source {
	case SourceAzure:
		return NormalizeAzure(raw, threshold)
	case SourceGoogle:
		return NormalizeGoogle(raw, threshold)
	default:
		return nil, fmt.Errorf("no normalizer for source %q", source)
	}
}
