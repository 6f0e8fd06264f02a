package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"almanac/internal/ics"
	appLog "almanac/internal/log"
	"almanac/internal/templates"
)

func importCmd() *cobra.Command {
	var (
		from    string
		country string
		dbPath  string
		replace bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import templates from a YAML/JSON or iCalendar file into the SQLite store",
		Example: `  almanac import --from events.yaml --db almanac.db
  almanac import --from holidays.ics --country BB --db almanac.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = cfg.Templates.DB
			}
			if dbPath == "" {
				dbPath = "almanac.db"
			}
			country = strings.ToUpper(strings.TrimSpace(country))

			res, err := readTemplates(from, country)
			if err != nil {
				return err
			}
			for _, is := range res.Issues {
				appLog.Warn("record skipped", "file", from, "index", is.Index, "id", is.ID, "err", is.Err.Error())
			}

			incoming := make([]templates.Record, 0, len(res.Templates))
			for _, t := range res.Templates {
				if country != "" && t.CountryCode != country {
					continue
				}
				incoming = append(incoming, templates.RecordOf(t))
			}

			if dir := filepath.Dir(dbPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create db dir: %w", err)
				}
			}
			st, err := templates.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			records := incoming
			if !replace {
				existing, err := st.List(ctx)
				if err != nil {
					return err
				}
				records = mergeRecords(existing, incoming)
			}
			if err := st.ReplaceAll(ctx, records); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d templates from %s into %s (%d total, %d skipped)\n",
				len(incoming), from, dbPath, len(records), len(res.Issues))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "file to import (.yaml, .yml, .json or .ics)")
	cmd.Flags().StringVar(&country, "country", "", "country code; required for .ics, filters other formats")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default templates.db from config, else almanac.db)")
	cmd.Flags().BoolVar(&replace, "replace", false, "drop all stored templates before importing")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

// readTemplates decodes and validates a template file by extension.
func readTemplates(path, country string) (templates.LoadResult, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ics", ".ical", ".ifb":
		if country == "" {
			return templates.LoadResult{}, fmt.Errorf("--country is required for iCalendar imports")
		}
		f, err := os.Open(path)
		if err != nil {
			return templates.LoadResult{}, err
		}
		defer f.Close()
		return ics.ImportTemplates(f, country)
	case ".yaml", ".yml", ".json":
		return templates.FileSource{Path: path}.Load(context.Background())
	default:
		return templates.LoadResult{}, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// mergeRecords keeps existing records unless incoming redefines their
// ID; new records are appended in order.
func mergeRecords(existing, incoming []templates.Record) []templates.Record {
	replaced := make(map[string]bool, len(incoming))
	for _, r := range incoming {
		replaced[r.ID] = true
	}
	out := make([]templates.Record, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if !replaced[r.ID] {
			out = append(out, r)
		}
	}
	return append(out, incoming...)
}
