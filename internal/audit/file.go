package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const eventsDir = "events"

// fileLog writes one JSON file per event.
type fileLog struct {
	dir string
}

func newFileLog(dir string) (*fileLog, error) {
	d := filepath.Join(dir, eventsDir)
	if err := os.MkdirAll(d, 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &fileLog{dir: d}, nil
}

// filename sorts by chain and then by emission time.
func (f *fileLog) filename(evt *Event) string {
	key := strings.NewReplacer("/", "_", " ", "_").Replace(evt.ChainKey())
	return fmt.Sprintf("%s_%020d_batch_%d_%d.json", key, evt.Timestamp.UnixNano(), evt.Batch.Start, evt.Batch.End)
}

func (f *fileLog) Save(evt *Event) (string, error) {
	data, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	path := filepath.Join(f.dir, f.filename(evt))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write event: %w", err)
	}
	return path, nil
}

// ReadEvents loads every event of chainKey under dir, oldest first.
func ReadEvents(dir, chainKey string) ([]Event, error) {
	entries, err := os.ReadDir(filepath.Join(dir, eventsDir))
	if err != nil {
		return nil, fmt.Errorf("read audit dir: %w", err)
	}

	var events []Event
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, eventsDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		if evt.ChainKey() == chainKey {
			events = append(events, evt)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}
