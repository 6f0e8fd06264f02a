// Package render writes occurrence lists in the output formats shared by
// the CLI and the HTTP API.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"almanac/internal/ics"
	"almanac/internal/model"
)

// Format names an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatICS  Format = "ics"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatCSV, FormatICS:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json, csv or ics)", s)
	}
}

// ContentType is the HTTP media type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatICS:
		return "text/calendar; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Write encodes occs to w. name titles the ICS calendar.
func Write(w io.Writer, f Format, name string, occs []model.Occurrence) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if occs == nil {
			occs = []model.Occurrence{}
		}
		return enc.Encode(occs)
	case FormatCSV:
		return WriteCSV(w, occs)
	case FormatICS:
		return ics.WriteCalendar(w, name, occs)
	default:
		return WriteText(w, occs)
	}
}

var csvHeader = []string{"date", "country_code", "template_id", "title", "category", "tags", "location", "description", "sources"}

// WriteCSV writes one row per occurrence after a header row. Tags and
// sources are joined with ";".
func WriteCSV(w io.Writer, occs []model.Occurrence) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, o := range occs {
		row := []string{
			o.Date.String(),
			o.CountryCode,
			o.TemplateID,
			o.Title,
			string(o.Category),
			strings.Join(o.Tags, ";"),
			o.Location,
			o.Description,
			strings.Join(o.Sources, ";"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteText writes an aligned table for terminals.
func WriteText(w io.Writer, occs []model.Occurrence) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, o := range occs {
		tags := ""
		if len(o.Tags) > 0 {
			tags = "[" + strings.Join(o.Tags, ", ") + "]"
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.Date, o.Date.Time().Weekday().String()[:3], o.Title, o.Category, tags); err != nil {
			return err
		}
	}
	return tw.Flush()
}
