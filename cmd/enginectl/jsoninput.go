package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// parseJSONInput reads step data / resume payloads the same way the
// teacher's set command reads compute config: a literal JSON string, a
// bare path to a file, or a file:// URI, adapted to return the raw bytes
// a step handler's JSON Schema validates rather than a decoded map.
func parseJSONInput(value string) ([]byte, error) {
	if value == "" {
		return []byte("{}"), nil
	}

	raw := []byte(value)
	sourcePath := ""

	if strings.HasPrefix(value, "file://") {
		sourcePath = strings.TrimPrefix(value, "file://")
	} else if info, err := os.Stat(value); err == nil && !info.IsDir() {
		sourcePath = value
	}

	if sourcePath != "" {
		data, err := os.ReadFile(sourcePath)
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		raw = data
	}

	var probe map[string]interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("parse JSON input: %w", err)
	}
	return raw, nil
}
