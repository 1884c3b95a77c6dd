package feeders

import (
	"encoding/json"
	"fmt"
	"os"
)

// JsonFeeder is a feeder that reads JSON files.
type JsonFeeder struct {
	Path string
}

// NewJsonFeeder creates a new JsonFeeder that reads from the given JSON file.
func NewJsonFeeder(filePath string) JsonFeeder {
	return JsonFeeder{Path: filePath}
}

// Feed reads the JSON file and populates the provided structure.
func (j JsonFeeder) Feed(structure interface{}) error {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return fmt.Errorf("json feed error: %w", err)
	}
	if err := json.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("json feed error: %w", err)
	}
	return nil
}

// FeedKey reads a JSON file and extracts a specific top-level key.
func (j JsonFeeder) FeedKey(key string, target interface{}) error {
	var allData map[string]interface{}
	if err := j.Feed(&allData); err != nil {
		return err
	}

	value, exists := allData[key]
	if !exists {
		return nil
	}

	valueBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal json data: %w", err)
	}
	if err := json.Unmarshal(valueBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal json data: %w", err)
	}
	return nil
}
