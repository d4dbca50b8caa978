package analytics

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/errors"
)

// CSVHeader is the column order of exported detections.
var CSVHeader = []string{"label", "confidence", "left", "top", "width", "height", "source"}

// WriteCSV writes one row per detection, in order, after the header.
func WriteCSV(w io.Writer, detections []detection.Detection) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return csvError(err)
	}
	for _, d := range detections {
		record := []string{
			d.Label,
			formatFloat(d.Confidence),
			formatFloat(d.Box.Left),
			formatFloat(d.Box.Top),
			formatFloat(d.Box.Width),
			formatFloat(d.Box.Height),
			string(d.Source),
		}
		if err := cw.Write(record); err != nil {
			return csvError(err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return csvError(err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func csvError(err error) error {
	return errors.New(err).
		Component("analytics").
		Category(errors.CategoryFileIO).
		Context("operation", "export_csv").
		Build()
}
