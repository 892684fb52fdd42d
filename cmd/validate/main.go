// Command validate performs integrity checks on an NLHI data file: it
// verifies record shape, date keys and registry alignment, recomputes every
// derived value from the stored inputs, and optionally checks the records
// against the submissions file that produced them.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -data data/mock/nlhi_data.json \
//	  -regions data/mock/regions.json \
//	  -submissions data/mock/submissions.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/couchcryptid/nlhi-service/internal/adapter/file"
	"github.com/couchcryptid/nlhi-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// storedRecord is one region/date entry of the data file.
type storedRecord struct {
	region string
	date   string
	raw    gjson.Result
	rec    domain.RegionRecord
}

func main() {
	dataPath := flag.String("data", "", "path to the data file")
	regionsPath := flag.String("regions", "", "path to the region registry (optional)")
	subsPath := flag.String("submissions", "", "path to the submissions file that produced the data (optional)")
	flag.Parse()

	if *dataPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dataPath, *regionsPath, *subsPath); code != 0 {
		os.Exit(code)
	}
}

func run(dataPath, regionsPath, subsPath string) int {
	fmt.Println("=== NLHI Data Integrity Validation ===")
	fmt.Println()

	data, err := os.ReadFile(dataPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read data file: %v\n", err)
		return 1
	}
	if !json.Valid(data) {
		fmt.Fprintf(os.Stderr, "FATAL: %s is not valid JSON\n", dataPath)
		return 1
	}
	records := loadRecords(data)

	phases := []*phase{
		validateShape(records),
		validateDates(records),
		validateDerivedValues(records),
	}

	if regionsPath != "" {
		registry, err := loadRegistry(regionsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load registry: %v\n", err)
			return 1
		}
		phases = append(phases, validateRegistry(records, registry))
	}

	if subsPath != "" {
		subs, err := loadSubmissions(subsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load submissions: %v\n", err)
			return 1
		}
		phases = append(phases, validateAgainstSubmissions(records, subs))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d across %d regions\n", len(records), countRegions(records))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadRecords(data []byte) []storedRecord {
	var out []storedRecord
	gjson.ParseBytes(data).ForEach(func(region, dates gjson.Result) bool {
		dates.ForEach(func(date, raw gjson.Result) bool {
			out = append(out, storedRecord{
				region: region.String(),
				date:   date.String(),
				raw:    raw,
				rec:    domain.DecodeRecord([]byte(raw.Raw)),
			})
			return true
		})
		return true
	})
	return out
}

func loadRegistry(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func loadSubmissions(path string) ([]domain.Submission, error) {
	r, err := file.Open(path)
	if err != nil {
		return nil, err
	}
	var subs []domain.Submission
	for {
		batch, err := r.ExtractBatch(context.Background(), 100)
		if errors.Is(err, io.EOF) {
			return subs, nil
		}
		if err != nil {
			return nil, err
		}
		for _, raw := range batch {
			sub, err := domain.ParseSubmission(raw)
			if err != nil {
				return nil, fmt.Errorf("submission %d: %w", raw.Offset, err)
			}
			subs = append(subs, sub)
		}
	}
}

func countRegions(records []storedRecord) int {
	seen := map[string]bool{}
	for _, r := range records {
		seen[r.region] = true
	}
	return len(seen)
}

// ── Phase 1: Record Shape ──
// Legacy records are readable but reported so they can be rewritten.

func validateShape(records []storedRecord) *phase {
	p := &phase{name: "Phase 1: Record Shape"}
	required := []string{"MeanAge", "Population", "AvgLifeExpectancy", "domains", "DSAV", "NLHI"}

	for _, r := range records {
		id := r.region + "/" + r.date
		if !r.raw.IsObject() {
			p.errorf("%s: record is not an object", id)
			continue
		}
		for _, key := range required {
			if !r.raw.Get(key).Exists() {
				if key == "NLHI" && r.raw.Get("NLCHI").Exists() {
					p.errorf("%s: legacy NLCHI key instead of NLHI", id)
					continue
				}
				p.errorf("%s: missing %s", id, key)
			}
		}
		if dsav := r.raw.Get("DSAV"); dsav.IsObject() {
			r.raw.Get("domains").ForEach(func(name, _ gjson.Result) bool {
				if !dsav.Get(gjson.Escape(name.String())).Exists() {
					p.errorf("%s: domain %q missing from DSAV mapping", id, name.String())
				}
				return true
			})
		}
	}
	return p
}

// ── Phase 2: Date Keys ──

func validateDates(records []storedRecord) *phase {
	p := &phase{name: "Phase 2: Date Keys"}
	for _, r := range records {
		if err := domain.ValidateDate(r.date); err != nil {
			p.errorf("%s: date key %q: %v", r.region, r.date, err)
		}
	}
	return p
}

// ── Phase 3: Derived Values ──

func validateDerivedValues(records []storedRecord) *phase {
	p := &phase{name: "Phase 3: Derived Values (recomputed)"}
	for _, r := range records {
		for _, problem := range domain.VerifyRecord(r.rec) {
			p.errorf("%s/%s: %s", r.region, r.date, problem)
		}
	}
	return p
}

// ── Phase 4: Registry Alignment ──
// Every region with records must be registered. Registered regions without
// records are allowed.

func validateRegistry(records []storedRecord, registry []string) *phase {
	p := &phase{name: "Phase 4: Registry Alignment"}

	registered := make(map[string]bool, len(registry))
	for _, name := range registry {
		if registered[name] {
			p.errorf("registry lists %q more than once", name)
		}
		registered[name] = true
	}

	missing := map[string]bool{}
	for _, r := range records {
		if !registered[r.region] {
			missing[r.region] = true
		}
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.errorf("region %q has records but is not registered", name)
	}
	return p
}

// ── Phase 5: Submission Consistency ──
// The last submission for each region/date must reproduce the stored record.

func validateAgainstSubmissions(records []storedRecord, subs []domain.Submission) *phase {
	p := &phase{name: "Phase 5: Submission Consistency"}

	latest := make(map[string]domain.Submission, len(subs))
	for _, sub := range subs {
		latest[sub.Region+"/"+sub.Date] = sub
	}

	stored := make(map[string]domain.RegionRecord, len(records))
	for _, r := range records {
		stored[r.region+"/"+r.date] = r.rec
	}

	keys := make([]string, 0, len(latest))
	for key := range latest {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want, _, err := domain.Calculate(latest[key].Inputs())
		if err != nil {
			p.errorf("%s: submission rejected: %v", key, err)
			continue
		}
		got, ok := stored[key]
		if !ok {
			p.errorf("%s: submission has no stored record", key)
			continue
		}
		compareRecords(p, key, want, got)
	}
	return p
}

func compareRecords(p *phase, key string, want, got domain.RegionRecord) {
	if !floatEq(want.NLHI, got.NLHI) {
		p.errorf("%s: NLHI: expected %g, got %g", key, want.NLHI, got.NLHI)
	}
	wantNames, gotNames := want.DomainNames(), got.DomainNames()
	if fmt.Sprint(wantNames) != fmt.Sprint(gotNames) {
		p.errorf("%s: domains: expected %v, got %v", key, wantNames, gotNames)
		return
	}
	for i := range want.Domains {
		if !floatEq(want.Domains[i].DSAV, got.Domains[i].DSAV) {
			p.errorf("%s: domain %q DSAV: expected %g, got %g", key, wantNames[i], want.Domains[i].DSAV, got.Domains[i].DSAV)
		}
	}
}

// ── Helpers ──

func floatEq(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
