package detect

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tphakala/visiondash/internal/aggregator"
	"github.com/tphakala/visiondash/internal/analytics"
)

// Output formats
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatTable, FormatCSV, FormatJSON}
}

// WriteReport writes report to w in the given format. lang selects number
// formatting for the table format and falls back to $LANG, then English.
func WriteReport(w io.Writer, report *aggregator.Report, format, lang string) error {
	switch format {
	case FormatCSV:
		return analytics.WriteCSV(w, report.Detections)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		return writeTable(w, report, newPrinter(lang))
	}
}

func writeTable(w io.Writer, report *aggregator.Report, p *message.Printer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	p.Fprintf(tw, "Run %s: %d detections at threshold %.2f in %d ms\n\n",
		report.ID, len(report.Detections), report.Threshold, report.Duration.Milliseconds())

	fmt.Fprintln(tw, "LABEL\tCONFIDENCE\tLEFT\tTOP\tWIDTH\tHEIGHT\tSOURCE")
	for _, d := range report.Detections {
		p.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%s\n",
			d.Label, d.Confidence, d.Box.Left, d.Box.Top, d.Box.Width, d.Box.Height, d.Source)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "SERVICE\tSTATUS\tDETECTIONS\tTIME")
	for _, o := range report.Outcomes {
		if !o.OK() {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\n", o.Service, o.Kind)
			continue
		}
		p.Fprintf(tw, "%s\tok\t%d\t%d ms\n", o.Service, o.Result.Count(), o.Result.ProcessingTime.Milliseconds())
	}

	return tw.Flush()
}

// newPrinter returns a printer for lang, e.g. "de" or "fi_FI.UTF-8".
func newPrinter(lang string) *message.Printer {
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	return message.NewPrinter(parseLanguage(lang))
}

func parseLanguage(lang string) language.Tag {
	lang, _, _ = strings.Cut(lang, ".")
	lang = strings.ReplaceAll(lang, "_", "-")
	if lang == "" || lang == "C" || lang == "POSIX" {
		return language.English
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return language.English
	}
	return tag
}
