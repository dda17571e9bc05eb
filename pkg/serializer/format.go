package serializer

import (
	"bytes"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
)

// Format represents a file format
type Format string

const (
	FormatPattern Format = "pattern"
	FormatLegacy  Format = "legacy"
	FormatMIDI    Format = "midi"
	FormatUnknown Format = "unknown"
)

// DetectFormat detects the format of a file based on extension. JSON files
// are reported as FormatPattern; use DetectFormatFromContent to tell a
// legacy file apart.
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mid", ".midi":
		return FormatMIDI
	case ".json":
		return FormatPattern
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) Format {
	if len(data) >= 4 && string(data[:4]) == "MThd" {
		return FormatMIDI
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return FormatUnknown
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return FormatUnknown
	}
	if _, ok := probe["formatVersion"]; ok {
		return FormatPattern
	}
	if _, ok := probe["rows_meta"]; ok {
		return FormatLegacy
	}
	return FormatUnknown
}
