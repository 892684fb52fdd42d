package jsonfile

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/nlhi-service/internal/domain"
	"github.com/couchcryptid/nlhi-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyData = `{
  "Avalon": {
    "2023-05-01": {
      "MeanAge": 40, "Population": 1000, "AvgLifeExpectancy": 80,
      "domains": {"Respiratory": {"TLIPHS": 1, "TLIPHS_unit": "Year(s)", "Mortality": 0, "TLIPHS_years": 1, "DSTLYA": 1, "DSAV": 0.0025}},
      "NLCHI": 0.0025
    }
  },
  "Labrador": {}
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type paths struct {
	data, legacy, regions string
}

func newPaths(t *testing.T) paths {
	t.Helper()
	dir := t.TempDir()
	return paths{
		data:    filepath.Join(dir, "nlhi_data.json"),
		legacy:  filepath.Join(dir, "nlchi_data.json"),
		regions: filepath.Join(dir, "regions.json"),
	}
}

func (p paths) store() *Store {
	return New(p.data, p.legacy, p.regions, discardLogger())
}

func readRegions(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.Unmarshal(data, &names))
	return names
}

func TestLoad_NoFiles(t *testing.T) {
	p := newPaths(t)

	store, err := p.store().Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.Regions())

	assert.Empty(t, readRegions(t, p.regions), "registry is created from the (empty) data")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	p := newPaths(t)
	ctx := context.Background()
	repo := p.store()

	store := domain.NewRegionStore()
	rec, _, err := store.Upsert("Avalon", "2025-01-15", domain.RecordInputs{
		MeanAge: 40, Population: 1000, LifeExpectancy: 80,
		Domains: []domain.DomainInput{
			{Name: "Respiratory", TLIPHS: 730.5, Unit: domain.UnitDays, Mortality: 10},
			{Name: "Cardio", TLIPHS: 6, Unit: domain.UnitMonths},
		},
	})
	require.NoError(t, err)
	_, _, err = store.RegisterRegion("Labrador")
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, store, storage.Change{Kind: storage.ChangeRecord, Region: "Avalon", Date: "2025-01-15"}))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Avalon", "Labrador"}, loaded.Regions())

	got, ok := loaded.Record("Avalon", "2025-01-15")
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.Equal(t, []string{"Avalon", "Labrador"}, readRegions(t, p.regions))
}

func TestSave_WritesStoredShape(t *testing.T) {
	p := newPaths(t)
	store := domain.NewRegionStore()
	_, _, err := store.Upsert("Avalon", "2025-01-15", domain.RecordInputs{
		MeanAge: 40, Population: 1000, LifeExpectancy: 80,
		Domains: []domain.DomainInput{{Name: "A", TLIPHS: 100, Unit: domain.UnitYears}},
	})
	require.NoError(t, err)

	require.NoError(t, p.store().Save(context.Background(), store, storage.Change{Kind: storage.ChangeRecord}))

	data, err := os.ReadFile(p.data)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"Avalon\": {")

	var raw map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	rec := raw["Avalon"]["2025-01-15"]
	for _, key := range []string{"MeanAge", "Population", "AvgLifeExpectancy", "domains", "DSAV", "NLHI"} {
		assert.Contains(t, rec, key)
	}
	assert.InDelta(t, 0.25, rec["NLHI"], 1e-12)
}

func TestLoad_LegacyFallback(t *testing.T) {
	p := newPaths(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(p.legacy, []byte(legacyData), 0o600))

	repo := p.store()
	store, err := repo.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"Avalon", "Labrador"}, store.Regions())
	rec, ok := store.Record("Avalon", "2023-05-01")
	require.True(t, ok)
	assert.Equal(t, 0.0025, rec.NLHI)
	assert.Equal(t, map[string]float64{"Respiratory": 0.0025}, rec.DSAV())

	require.NoError(t, repo.Save(ctx, store, storage.Change{Kind: storage.ChangeRegion, Region: "Labrador"}))
	_, err = os.Stat(p.data)
	require.NoError(t, err, "saves go to the primary data file")

	legacy, err := os.ReadFile(p.legacy)
	require.NoError(t, err)
	assert.Equal(t, legacyData, string(legacy), "legacy file is never rewritten")
}

func TestLoad_PrimaryWinsOverLegacy(t *testing.T) {
	p := newPaths(t)
	require.NoError(t, os.WriteFile(p.legacy, []byte(legacyData), 0o600))
	require.NoError(t, os.WriteFile(p.data, []byte(`{"Gander": {}}`), 0o600))

	store, err := p.store().Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Gander"}, store.Regions())
}

func TestLoad_CorruptDataStartsEmpty(t *testing.T) {
	p := newPaths(t)
	require.NoError(t, os.WriteFile(p.data, []byte(`{"Avalon": {`), 0o600))

	store, err := p.store().Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.Regions())
}

func TestLoad_RegistryAddsEmptyRegions(t *testing.T) {
	p := newPaths(t)
	require.NoError(t, os.WriteFile(p.data, []byte(legacyData), 0o600))
	require.NoError(t, os.WriteFile(p.regions, []byte(`["Gander", "  ", "Avalon"]`), 0o600))

	store, err := p.store().Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Avalon", "Gander", "Labrador"}, store.Regions())
	assert.Empty(t, store.RegionDates("Gander"))
}

func TestLoad_CorruptRegistryIgnored(t *testing.T) {
	p := newPaths(t)
	require.NoError(t, os.WriteFile(p.data, []byte(legacyData), 0o600))
	require.NoError(t, os.WriteFile(p.regions, []byte(`{"not": "a list"}`), 0o600))

	store, err := p.store().Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Avalon", "Labrador"}, store.Regions())
}

func TestLoad_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPaths(t).store().Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
