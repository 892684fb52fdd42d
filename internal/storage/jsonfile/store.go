// Package jsonfile persists the region store as JSON files: a data file keyed
// region → date → record and a registry file listing region names.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/nlhi-service/internal/domain"
	"github.com/couchcryptid/nlhi-service/internal/storage"
	"github.com/tidwall/gjson"
)

// Store implements storage.Repository over local files. Writes always go to
// the primary data file; the legacy file is only read, and only when the
// primary file does not exist.
type Store struct {
	dataPath    string
	legacyPath  string
	regionsPath string
	logger      *slog.Logger
}

// New creates a file-backed repository. legacyPath and regionsPath may be
// empty to disable the legacy fallback and the region registry.
func New(dataPath, legacyPath, regionsPath string, logger *slog.Logger) *Store {
	return &Store{
		dataPath:    dataPath,
		legacyPath:  legacyPath,
		regionsPath: regionsPath,
		logger:      logger,
	}
}

// Load reads the data file (or the legacy file), normalizes every record and
// merges the region registry. A corrupt data file loads as an empty store.
func (s *Store) Load(ctx context.Context) (*domain.RegionStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store := domain.NewRegionStore()
	data, path, err := s.readData()
	if err != nil {
		return nil, err
	}
	if data != nil {
		if !gjson.ValidBytes(data) {
			s.logger.Warn("data file is not valid JSON, starting empty", "path", path)
		} else {
			decodeInto(store, data)
			s.logger.Info("data file loaded", "path", path,
				"regions", len(store.Regions()), "records", store.RecordCount())
		}
	}

	if err := s.mergeRegistry(store); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) readData() ([]byte, string, error) {
	for _, path := range []string{s.dataPath, s.legacyPath} {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, path, fmt.Errorf("read data file: %w", err)
		}
		return data, path, nil
	}
	return nil, "", nil
}

// decodeInto walks region → date → record. Entries that are not objects are
// skipped; records are normalized by domain.DecodeRecord.
func decodeInto(store *domain.RegionStore, data []byte) {
	gjson.ParseBytes(data).ForEach(func(region, dates gjson.Result) bool {
		if !dates.IsObject() {
			return true
		}
		name, _, err := store.RegisterRegion(region.String())
		if err != nil {
			return true
		}
		dates.ForEach(func(date, raw gjson.Result) bool {
			store.Put(name, date.String(), domain.DecodeRecord([]byte(raw.Raw)))
			return true
		})
		return true
	})
}

// mergeRegistry ensures every registered region exists in the store. When the
// registry file is missing it is written from the loaded data.
func (s *Store) mergeRegistry(store *domain.RegionStore) error {
	if s.regionsPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.regionsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return s.writeRegistry(store)
	}
	if err != nil {
		return fmt.Errorf("read regions file: %w", err)
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		s.logger.Warn("regions file is not a JSON list, ignoring", "path", s.regionsPath, "error", err)
		return nil
	}
	for _, name := range names {
		if _, _, err := store.RegisterRegion(name); err != nil {
			s.logger.Warn("skipping blank region name in registry", "path", s.regionsPath)
		}
	}
	return nil
}

// Save rewrites the data file and the registry. The whole store is written
// for every change.
func (s *Store) Save(ctx context.Context, store *domain.RegionStore, _ storage.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(store.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode data file: %w", err)
	}
	if err := writeFileAtomic(s.dataPath, data); err != nil {
		return fmt.Errorf("write data file: %w", err)
	}
	return s.writeRegistry(store)
}

func (s *Store) writeRegistry(store *domain.RegionStore) error {
	if s.regionsPath == "" {
		return nil
	}
	data, err := json.Marshal(store.Regions())
	if err != nil {
		return fmt.Errorf("encode regions file: %w", err)
	}
	if err := writeFileAtomic(s.regionsPath, data); err != nil {
		return fmt.Errorf("write regions file: %w", err)
	}
	return nil
}

// writeFileAtomic writes to a temporary file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
