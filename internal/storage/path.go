package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var keyComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildRawUploadPath is the key for the file exactly as uploaded.
func BuildRawUploadPath(userID, datasetID, filename string) (string, error) {
	if err := validateKeyComponent(userID, "user id"); err != nil {
		return "", err
	}
	if err := validateKeyComponent(datasetID, "dataset id"); err != nil {
		return "", err
	}
	safe := sanitizeFilename(filename)
	if safe == "" {
		return "", fmt.Errorf("invalid filename: %q", filename)
	}
	return path.Join(userID, datasetID, "raw", safe), nil
}

// BuildDatasetPath is the key for the converted Parquet file, the dataset
// locator used by introspection and execution.
func BuildDatasetPath(userID, datasetID string) (string, error) {
	if err := validateKeyComponent(userID, "user id"); err != nil {
		return "", err
	}
	if err := validateKeyComponent(datasetID, "dataset id"); err != nil {
		return "", err
	}
	return path.Join(userID, datasetID, "data.parquet"), nil
}

func validateKeyComponent(value, field string) error {
	if !keyComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

func sanitizeFilename(filename string) string {
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "." || filename == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
