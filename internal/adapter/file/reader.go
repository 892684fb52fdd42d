// Package file reads submissions from a YAML or JSON file for batch import.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/nlhi-service/internal/domain"
)

// Reader serves the submissions of one file in batches.
// It implements pipeline.BatchExtractor.
type Reader struct {
	source string
	events []domain.RawEvent
	next   int
}

type submissionsFile struct {
	Submissions []domain.Submission `yaml:"submissions"`
}

// Open reads and parses the submissions file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open submissions: %w", err)
	}
	defer f.Close()
	return NewReader(f, path)
}

// NewReader parses submissions from r. The document is either a list of
// submissions, a mapping with a submissions list, or a single submission.
// JSON documents are accepted as YAML.
func NewReader(r io.Reader, source string) (*Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read submissions: %w", err)
	}
	subs, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}

	events := make([]domain.RawEvent, 0, len(subs))
	for i, sub := range subs {
		value, err := json.Marshal(sub)
		if err != nil {
			return nil, fmt.Errorf("encode submission %d: %w", i, err)
		}
		events = append(events, domain.RawEvent{
			Key:     []byte(sub.Region),
			Value:   value,
			Headers: map[string]string{"source": "file"},
			Topic:   source,
			Offset:  int64(i),
		})
	}
	return &Reader{source: source, events: events}, nil
}

func parse(data []byte) ([]domain.Submission, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var subs []domain.Submission
		if err := root.Decode(&subs); err != nil {
			return nil, err
		}
		return subs, nil
	case yaml.MappingNode:
		if hasKey(root, "submissions") {
			var f submissionsFile
			if err := root.Decode(&f); err != nil {
				return nil, err
			}
			return f.Submissions, nil
		}
		var sub domain.Submission
		if err := root.Decode(&sub); err != nil {
			return nil, err
		}
		return []domain.Submission{sub}, nil
	default:
		return nil, fmt.Errorf("line %d: expected a list or mapping of submissions", root.Line)
	}
}

func hasKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}

// Len returns the number of submissions in the file.
func (r *Reader) Len() int { return len(r.events) }

// ExtractBatch returns the next batchSize submissions, then io.EOF once all
// have been served.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.next >= len(r.events) {
		return nil, io.EOF
	}
	end := min(r.next+batchSize, len(r.events))
	batch := r.events[r.next:end]
	r.next = end
	return batch, nil
}
