// Command genmock writes a deterministic sample submissions file and the
// data file those submissions produce. It runs every submission through the
// real domain package so the data file matches what the service stores.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -submissions-out data/mock/submissions.yaml \
//	  -data-out data/mock/nlhi_data.json \
//	  -regions-out data/mock/regions.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/nlhi-service/internal/domain"
	"github.com/couchcryptid/nlhi-service/internal/storage"
	"github.com/couchcryptid/nlhi-service/internal/storage/jsonfile"
)

// regionDef describes one synthetic region.
type regionDef struct {
	name           string
	meanAge        float64
	population     float64
	lifeExpectancy float64
}

var regions = []regionDef{
	{name: "Avalon", meanAge: 38.5, population: 125000, lifeExpectancy: 81.2},
	{name: "Lyonesse", meanAge: 42.1, population: 48000, lifeExpectancy: 79.4},
	{name: "Ys", meanAge: 35.0, population: 9600, lifeExpectancy: 76.8},
	{name: "Hy Brasil", meanAge: 79.0, population: 2100, lifeExpectancy: 77.5},
}

// domainDef describes one burden domain and the range its inputs are drawn from.
type domainDef struct {
	name      string
	unit      string
	maxTLIPHS float64
	maxMort   float64
}

var domains = []domainDef{
	{name: "Cardiovascular", unit: domain.UnitYears, maxTLIPHS: 4000, maxMort: 0.004},
	{name: "Respiratory", unit: domain.UnitMonths, maxTLIPHS: 9000, maxMort: 0.002},
	{name: "Injury", unit: domain.UnitWeeks, maxTLIPHS: 30000, maxMort: 0.001},
	{name: "Mental health", unit: domain.UnitDays, maxTLIPHS: 500000, maxMort: 0.0005},
	{name: "Diabetes", unit: domain.UnitYears, maxTLIPHS: 1500, maxMort: 0.001},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	subsOut := flag.String("submissions-out", "", "output path for the YAML submissions file")
	dataOut := flag.String("data-out", "", "output path for the resulting data file")
	regionsOut := flag.String("regions-out", "", "output path for the region registry (default: next to -data-out)")
	months := flag.Int("months", 12, "number of monthly survey dates per region")
	seed := flag.Uint64("seed", 20240426, "random seed")
	flag.Parse()

	if *subsOut == "" || *dataOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -submissions-out, -data-out")
	}
	if *regionsOut == "" {
		*regionsOut = filepath.Join(filepath.Dir(*dataOut), "regions.json")
	}

	// Fixed clock so any defaulted date is reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, time.January, 1, 6, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	subs := generate(rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)), *months)
	log.Printf("generated %d submissions for %d regions", len(subs), len(regions))

	store := domain.NewRegionStore()
	var warnings int
	for _, sub := range subs {
		_, notes, err := store.Upsert(sub.Region, sub.Date, sub.Inputs())
		if err != nil {
			return fmt.Errorf("calculate %s/%s: %w", sub.Region, sub.Date, err)
		}
		warnings += len(notes)
	}

	if err := writeYAML(*subsOut, map[string][]domain.Submission{"submissions": subs}); err != nil {
		return fmt.Errorf("writing submissions: %w", err)
	}
	log.Printf("wrote submissions: %s", *subsOut)

	if err := os.MkdirAll(filepath.Dir(*dataOut), 0o755); err != nil {
		return err
	}
	repo := jsonfile.New(*dataOut, "", *regionsOut, slog.Default())
	if err := repo.Save(context.Background(), store, storage.Change{Kind: storage.ChangeRecord}); err != nil {
		return fmt.Errorf("writing data file: %w", err)
	}
	log.Printf("wrote data file: %s", *dataOut)

	printStats(store, warnings)
	return nil
}

// generate draws monthly submissions for every region. Each region uses a
// stable subset of domains; the last region has a mean age above its life
// expectancy to exercise the warning path.
func generate(rng *rand.Rand, months int) []domain.Submission {
	start := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	subs := make([]domain.Submission, 0, len(regions)*months)

	for ri, r := range regions {
		picked := domains[:3+ri%3]
		for m := range months {
			date := start.AddDate(0, m, 0).Format(domain.DateLayout)
			drift := 1 + 0.04*float64(m)/float64(max(months, 1))

			inputs := make([]domain.DomainInput, 0, len(picked))
			for _, d := range picked {
				inputs = append(inputs, domain.DomainInput{
					Name:      d.name,
					TLIPHS:    round(d.maxTLIPHS*(0.2+0.8*rng.Float64())*drift, 1),
					Unit:      d.unit,
					Mortality: round(d.maxMort*rng.Float64(), 6),
				})
			}

			subs = append(subs, domain.Submission{
				Region:         r.name,
				Date:           date,
				MeanAge:        r.meanAge,
				Population:     math.Round(r.population * drift),
				LifeExpectancy: r.lifeExpectancy,
				Domains:        inputs,
			})
		}
	}
	return subs
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeYAML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func printStats(store *domain.RegionStore, warnings int) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Regions: %d, records: %d, warnings: %d\n", len(store.Regions()), store.RecordCount(), warnings)

	for _, region := range store.Regions() {
		dates := store.RegionDates(region)
		if len(dates) == 0 {
			continue
		}
		first, _ := store.Record(region, dates[0])
		last, _ := store.Record(region, dates[len(dates)-1])
		fmt.Printf("  %-10s %d dates, %d domains, NLHI %s=%.6g ... %s=%.6g\n",
			region, len(dates), len(first.Domains), dates[0], first.NLHI, dates[len(dates)-1], last.NLHI)
	}
}
