package util

import (
	"fmt"
	"os"

	"events-cache/models"

	"github.com/goccy/go-json"
)

// ReadEventRecordsFromJSON loads a JSON array of event records from disk.
func ReadEventRecordsFromJSON(filePath string) ([]models.EventRecord, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", filePath, err)
	}
	var records []models.EventRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event records: %w", err)
	}
	return records, nil
}

// ReadSnapshotFromJSON loads a cached snapshot payload from disk.
func ReadSnapshotFromJSON(filePath string) (*models.Snapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", filePath, err)
	}
	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}
