package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"almanac/internal/almanac"
	"almanac/internal/feast"
	"almanac/internal/render"
)

func expandCmd() *cobra.Command {
	var (
		country  string
		year     int
		category string
		tags     []string
		search   string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "List the events of a country for one year",
		Example: `  almanac expand --country JM --year 2026
  almanac expand --country TT --tag carnival --format ics > carnival.ics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := render.ParseFormat(format)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if country == "" {
				country = cfg.DefaultCountry
			}
			country = strings.ToUpper(country)
			if year == 0 {
				year = time.Now().Year()
			}

			cat, closeSrc, err := loadCatalog(context.Background(), cfg)
			if err != nil {
				return err
			}
			defer closeSrc()

			if !cat.HasCountry(country) {
				return fmt.Errorf("no templates for country %q", country)
			}

			res, err := cat.Events(country, year)
			if err != nil {
				return err
			}

			occs := almanac.FilterOccurrences(res.Occurrences, almanac.Criteria{
				Category: category,
				Tags:     tags,
				Search:   search,
			})

			return render.Write(cmd.OutOrStdout(), f, fmt.Sprintf("%s %d", country, year), occs)
		},
	}

	cmd.Flags().StringVarP(&country, "country", "c", "", "ISO country code (default from config)")
	cmd.Flags().IntVarP(&year, "year", "y", 0, "calendar year (default current year)")
	cmd.Flags().StringVar(&category, "category", "", "historical, cultural or all")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "keep events with any of these tags (repeatable)")
	cmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive text search")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json, csv, ics")
	return cmd
}

func easterCmd() *cobra.Command {
	var (
		from, to int
		anchors  bool
	)

	cmd := &cobra.Command{
		Use:   "easter",
		Short: "Print Easter and Ash Wednesday for a range of years",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == 0 {
				from = time.Now().Year()
			}
			if to == 0 {
				to = from
			}
			if to < from {
				return fmt.Errorf("--to %d is before --from %d", to, from)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if anchors {
				header := []string{"YEAR"}
				for _, a := range feast.Anchors() {
					header = append(header, strings.ToUpper(string(a)))
				}
				fmt.Fprintln(tw, strings.Join(header, "\t"))
				for y := from; y <= to; y++ {
					table := feast.Table(y)
					row := []string{fmt.Sprint(y)}
					for _, a := range feast.Anchors() {
						row = append(row, table[a].String())
					}
					fmt.Fprintln(tw, strings.Join(row, "\t"))
				}
				return tw.Flush()
			}

			fmt.Fprintln(tw, "YEAR\tASH WEDNESDAY\tEASTER")
			for y := from; y <= to; y++ {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", y, feast.AshWednesday(y), feast.Easter(y))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&from, "from", 0, "first year (default current year)")
	cmd.Flags().IntVar(&to, "to", 0, "last year (default --from)")
	cmd.Flags().BoolVar(&anchors, "anchors", false, "print every movable feast anchor")
	return cmd
}
