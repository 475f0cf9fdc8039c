package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/trialmatch/internal/model"
)

// readText reads a file, or stdin for "-"
func readText(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// readProfile decodes a patient profile from a .json, .yaml or .yml file.
// The file name (without extension) is the id when the profile has none.
func readProfile(path string) (*model.PatientProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var profile model.PatientProfile
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &profile)
	case ".json", "":
		err = json.Unmarshal(data, &profile)
	default:
		return nil, fmt.Errorf("unsupported profile format %q (use .json or .yaml)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", path, err)
	}

	if profile.ID == "" {
		profile.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &profile, nil
}

// isFile reports whether path names an existing regular file
func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
