// Package report provides persistence for dewarping run reports.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// File records one dewarping run: what went in, what came out, and how the
// fit behaved. Image paths are stored relative to the report file so a run
// directory can be moved as a unit.
type File struct {
	Version int       `json:"version"`
	Created time.Time `json:"created"`

	InputPath  string `json:"input"`
	OutputPath string `json:"output"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`

	StaffCurves    int     `json:"staff_curves"`
	BoundaryCurves int     `json:"boundary_curves"`
	ResidualRMS    float64 `json:"residual_rms"`
	ResidualMax    float64 `json:"residual_max"`

	LowConfidence bool     `json:"low_confidence"`
	Warnings      []string `json:"warnings,omitempty"`

	Settings Settings `json:"settings"`
}

// Settings holds the tunables the run used, for reproducing it later.
type Settings struct {
	MinCurveFrac   float64 `json:"min_curve_frac"`
	OutlierCutoff  float64 `json:"outlier_cutoff"`
	BinarizeWindow int     `json:"binarize_window"`
	FillValue      uint8   `json:"fill_value"`
}

// New creates a report with the current timestamp.
func New() *File {
	return &File{
		Version: 1,
		Created: time.Now(),
	}
}

// Load reads a report from a JSON file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rep File
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Save writes the report as indented JSON.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SetInput stores the input image path relative to the report location.
func (f *File) SetInput(reportPath, imagePath string) {
	f.InputPath = relativize(reportPath, imagePath)
}

// SetOutput stores the output image path relative to the report location.
func (f *File) SetOutput(reportPath, imagePath string) {
	f.OutputPath = relativize(reportPath, imagePath)
}

// InputImagePath returns the absolute path to the input image.
func (f *File) InputImagePath(reportPath string) string {
	return absolutize(reportPath, f.InputPath)
}

// OutputImagePath returns the absolute path to the output image.
func (f *File) OutputImagePath(reportPath string) string {
	return absolutize(reportPath, f.OutputPath)
}

func relativize(anchor, path string) string {
	rel, err := filepath.Rel(filepath.Dir(anchor), path)
	if err != nil {
		return path
	}
	return rel
}

func absolutize(anchor, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(anchor), path)
}
