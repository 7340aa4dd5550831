package report

import (
	"path/filepath"
	"testing"
)

func TestReportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")

	rep := New()
	rep.SetInput(path, filepath.Join(dir, "scans", "page1.png"))
	rep.SetOutput(path, filepath.Join(dir, "out", "page1.png"))
	rep.Width = 2480
	rep.Height = 3508
	rep.StaffCurves = 10
	rep.BoundaryCurves = 2
	rep.ResidualRMS = 0.42
	rep.LowConfidence = true
	rep.Warnings = []string{"fit residual RMS 1.61 px exceeds sanity bound"}

	if err := rep.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got.InputPath != filepath.Join("scans", "page1.png") {
		t.Fatalf("input path not relativized: %q", got.InputPath)
	}
	if got.InputImagePath(path) != filepath.Join(dir, "scans", "page1.png") {
		t.Fatalf("absolute input path wrong: %q", got.InputImagePath(path))
	}
	if got.StaffCurves != 10 || got.ResidualRMS != 0.42 || !got.LowConfidence {
		t.Fatalf("fields lost in round trip: %+v", got)
	}
	if len(got.Warnings) != 1 {
		t.Fatalf("warnings lost: %+v", got.Warnings)
	}
}
