package ranking

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestLoadCalibration_DefaultFile tests loading the checked-in calibration file.
func TestLoadCalibration_DefaultFile(t *testing.T) {
	configPath := filepath.Join("..", "..", "configs", "ranking.calibration.json")
	if _, err := os.Stat(configPath); err != nil {
		t.Skipf("calibration file not present: %v", err)
	}

	override, err := LoadCalibration(configPath)
	if err != nil {
		t.Fatalf("expected no error loading default calibration file, got: %v", err)
	}

	if merged := MergeWeights(DefaultWeights(), override); merged != DefaultWeights() {
		t.Errorf("checked-in calibration should match defaults:\nloaded: %+v\ndefaults: %+v",
			merged, DefaultWeights())
	}
}

// TestLoadCalibration_EmptyPath tests loading with empty file path.
func TestLoadCalibration_EmptyPath(t *testing.T) {
	override, err := LoadCalibration("")
	if err != nil {
		t.Errorf("expected no error with empty path, got: %v", err)
	}
	if override != nil {
		t.Errorf("expected no overrides, got %+v", override)
	}
}

// TestLoadCalibration_NonExistentFile tests loading a non-existent file.
func TestLoadCalibration_NonExistentFile(t *testing.T) {
	_, err := LoadCalibration("/nonexistent/path/to/file.json")
	if err == nil {
		t.Fatal("expected error when file doesn't exist")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist in chain, got %v", err)
	}
}

// TestLoadCalibration_PartialWeights tests that omitted keys stay unset.
func TestLoadCalibration_PartialWeights(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "partial.json")
	content := `{"version": "1.0", "weights": {"orders": 0.4, "stock": 0}}`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	override, err := LoadCalibration(tmpFile)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if override.Orders == nil || *override.Orders != 0.4 {
		t.Errorf("expected orders 0.4, got %v", override.Orders)
	}
	if override.Stock == nil || *override.Stock != 0 {
		t.Errorf("expected explicit stock 0, got %v", override.Stock)
	}
	if override.Recency != nil {
		t.Errorf("expected recency unset, got %v", *override.Recency)
	}

	merged := MergeWeights(DefaultWeights(), override)
	if merged.Recency != 0.30 || merged.Orders != 0.4 || merged.Stock != 0 {
		t.Errorf("unexpected merge result %+v", merged)
	}
}

// TestLoadCalibration_InvalidJSON tests loading invalid JSON.
func TestLoadCalibration_InvalidJSON(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(tmpFile, []byte("{invalid json}"), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	if _, err := LoadCalibration(tmpFile); err == nil {
		t.Error("expected error when JSON is invalid")
	}
}

// TestLoadCalibration_NegativeWeight tests that negative coefficients are rejected.
func TestLoadCalibration_NegativeWeight(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "negative.json")
	if err := os.WriteFile(tmpFile, []byte(`{"weights": {"rating": -0.1}}`), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	_, err := LoadCalibration(tmpFile)
	if !errors.Is(err, ErrInvalidWeight) {
		t.Errorf("expected ErrInvalidWeight, got %v", err)
	}
}

func TestFileWeightSource_MissingFileIsAbsent(t *testing.T) {
	src := NewFileWeightSource(filepath.Join(t.TempDir(), "missing.json"))
	weights, err := src.LoadWeights(context.Background())
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if weights != nil {
		t.Errorf("expected nil weights, got %+v", weights)
	}
}
