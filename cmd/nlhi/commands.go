package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/nlhi-service/internal/adapter/file"
	"github.com/couchcryptid/nlhi-service/internal/domain"
	"github.com/couchcryptid/nlhi-service/internal/pipeline"
	"github.com/couchcryptid/nlhi-service/internal/service"
)

// =============================================================================
// CALCULATION
// =============================================================================

func newCalcCmd(app *cliApp) *cobra.Command {
	var (
		sub      domain.Submission
		domains  []string
		fromFile string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate and store the record for a region on a date",
		Long: `Calculate a region's NLHI from its mean age, population, life expectancy and
burden domains, then store the record (replacing any record for the same date).

Domains are given as name:tliphs:unit:mortality, for example
  --domain "Cardiovascular:1200:Year(s):0.002"
Units are Day(s), Week(s), Month(s) or Year(s).

With -f the submission is read from a YAML or JSON file instead; flags that
are set explicitly override the file.`,
		Example: `  nlhi calc --region Avalon --date 2025-01-15 --mean-age 38.5 \
    --population 125000 --life-expectancy 81.2 \
    --domain "Cardiovascular:1200:Year(s):0.002" --domain "Injury:900:Week(s):0"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fromFile != "" {
				base, err := readSubmission(fromFile)
				if err != nil {
					return err
				}
				sub = mergeSubmission(cmd, base, sub)
			}
			for _, arg := range domains {
				d, err := parseDomainFlag(arg)
				if err != nil {
					return err
				}
				sub.Domains = append(sub.Domains, d)
			}

			eng, err := app.engine(cmd)
			if err != nil {
				return err
			}
			res, err := eng.Submit(cmd.Context(), sub)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, res)
			}
			renderResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&sub.Region, "region", "", "region name")
	f.StringVar(&sub.Date, "date", "", "record date yyyy-MM-dd (default today, UTC)")
	f.Float64Var(&sub.MeanAge, "mean-age", 0, "mean age of the population")
	f.Float64Var(&sub.Population, "population", 0, "population size")
	f.Float64Var(&sub.LifeExpectancy, "life-expectancy", 0, "average life expectancy")
	f.StringArrayVar(&domains, "domain", nil, "burden domain as name:tliphs:unit:mortality (repeatable)")
	f.StringVarP(&fromFile, "file", "f", "", "read the submission from a YAML or JSON file")
	f.BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

// parseDomainFlag parses name:tliphs:unit:mortality. The name may itself
// contain colons; the last three fields are always the numbers and unit.
func parseDomainFlag(arg string) (domain.DomainInput, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 4 {
		return domain.DomainInput{}, fmt.Errorf("domain %q: want name:tliphs:unit:mortality", arg)
	}
	n := len(parts)
	tliphs, err := strconv.ParseFloat(strings.TrimSpace(parts[n-3]), 64)
	if err != nil {
		return domain.DomainInput{}, fmt.Errorf("domain %q: tliphs: %w", arg, err)
	}
	mortality, err := strconv.ParseFloat(strings.TrimSpace(parts[n-1]), 64)
	if err != nil {
		return domain.DomainInput{}, fmt.Errorf("domain %q: mortality: %w", arg, err)
	}
	unit := strings.TrimSpace(parts[n-2])
	if !domain.KnownUnit(unit) {
		return domain.DomainInput{}, fmt.Errorf("domain %q: unknown unit %q (want one of %s)",
			arg, unit, strings.Join(domain.Units(), ", "))
	}
	return domain.DomainInput{
		Name:      strings.Join(parts[:n-3], ":"),
		TLIPHS:    tliphs,
		Unit:      unit,
		Mortality: mortality,
	}, nil
}

func readSubmission(path string) (domain.Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("read submission: %w", err)
	}
	var sub domain.Submission
	if err := yaml.Unmarshal(data, &sub); err != nil {
		return domain.Submission{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return sub, nil
}

// mergeSubmission overlays explicitly set flags onto a file submission.
// Domains from --domain flags are appended later by the caller.
func mergeSubmission(cmd *cobra.Command, base, flags domain.Submission) domain.Submission {
	changed := cmd.Flags().Changed
	if changed("region") {
		base.Region = flags.Region
	}
	if changed("date") {
		base.Date = flags.Date
	}
	if changed("mean-age") {
		base.MeanAge = flags.MeanAge
	}
	if changed("population") {
		base.Population = flags.Population
	}
	if changed("life-expectancy") {
		base.LifeExpectancy = flags.LifeExpectancy
	}
	return base
}

// =============================================================================
// IMPORT
// =============================================================================

func newImportCmd(app *cliApp) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Calculate and store every submission in a YAML or JSON file",
		Long: `Import reads a submissions file (a list, a mapping with a "submissions" list, or
a single submission) and stores each one. Invalid submissions are reported on
stderr and skipped; the rest are still stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := file.Open(args[0])
			if err != nil {
				return err
			}
			eng, err := app.engine(cmd)
			if err != nil {
				return err
			}

			p := pipeline.New(reader, pipeline.NewTransformer(eng, app.logger), pipeline.NopLoader{},
				app.logger, app.metrics, batchSize)
			sum, err := p.Drain(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d submissions (%d rejected)\n",
				sum.Loaded, sum.Consumed, sum.Rejected)
			if sum.Rejected > 0 {
				return fmt.Errorf("%d submissions rejected", sum.Rejected)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "submissions stored per batch")
	return cmd
}

// =============================================================================
// REGIONS AND DATES
// =============================================================================

func newRegionsCmd(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List, add or delete regions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List regions in sorted order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := app.engine(cmd)
			if err != nil {
				return err
			}
			for _, r := range eng.Regions() {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a region with no records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := app.engine(cmd)
			if err != nil {
				return err
			}
			name, created, err := eng.RegisterRegion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Added region %q\n", name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Region %q already exists\n", name)
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a region and all of its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := app.engine(cmd)
			if err != nil {
				return err
			}
			if err := eng.DeleteRegion(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted region %q\n", strings.TrimSpace(args[0]))
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func newDatesCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "dates REGION",
		Short: "List a region's record dates in ascending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := app.engine(cmd)
			if err != nil {
				return err
			}
			dates, err := eng.Dates(args[0])
			if err != nil {
				return err
			}
			for _, d := range dates {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}

// =============================================================================
// SERIES AND DASHBOARD
// =============================================================================

func newSeriesCmd(app *cliApp) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "series REGION",
		Short: "Print a region's NLHI time series and DSAV matrix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := app.engine(cmd)
			if err != nil {
				return err
			}
			s, err := eng.Series(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, s)
			}
			renderSeries(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the series as JSON")
	return cmd
}

func newDashboardCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Print the series of every region that has records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := app.engine(cmd)
			if err != nil {
				return err
			}
			all := eng.Dashboard()
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No regions with records.")
				return nil
			}
			for _, s := range all {
				renderSeries(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

// =============================================================================
// SERVICE
// =============================================================================

func newServeCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and Kafka intake when KAFKA_ENABLED is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return service.Run(cmd.Context(), app.cfg, app.logger)
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
