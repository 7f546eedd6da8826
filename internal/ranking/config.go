package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Weight configuration errors.
var (
	ErrInvalidWeight = errors.New("invalid weight: must be a non-negative number")
)

// CalibrationConfig represents the JSON structure of a calibration file.
type CalibrationConfig struct {
	Version string         `json:"version"` // Config version for future compatibility
	Weights PartialWeights `json:"weights"` // Weight overrides; omitted keys keep defaults
}

// LoadCalibration reads a weight override set from a JSON calibration file.
// An empty path yields no overrides and no error.
// Omitted coefficients stay nil so they merge over the defaults.
func LoadCalibration(filePath string) (*PartialWeights, error) {
	if filePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file: %w", err)
	}

	if err := config.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration file %s: %w", filePath, err)
	}

	return &config.Weights, nil
}

// FileWeightSource is a WeightSource backed by a JSON calibration file.
// The file is read on every call so edits are picked up without a restart.
type FileWeightSource struct {
	path string
}

// NewFileWeightSource creates a WeightSource that reads the given calibration file.
func NewFileWeightSource(path string) *FileWeightSource {
	return &FileWeightSource{path: path}
}

// LoadWeights implements WeightSource.
// A missing file is treated as an absent configuration record.
func (s *FileWeightSource) LoadWeights(_ context.Context) (*PartialWeights, error) {
	weights, err := LoadCalibration(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return weights, nil
}
