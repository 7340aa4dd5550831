// Command dewarp flattens a photographed sheet-music page and writes a clean
// bi-level result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"score-dewarp/internal/imaging"
	"score-dewarp/internal/overlay"
	"score-dewarp/internal/pipeline"
	"score-dewarp/internal/report"
	"score-dewarp/internal/segment"
	"score-dewarp/internal/version"
)

func main() {
	imagePath := flag.String("image", "", "Path to page image (TIFF, PNG, or JPEG)")
	outPath := flag.String("out", "dewarped.png", "Output PNG path")
	diagDir := flag.String("diag", "", "Directory for intermediate artifacts (empty disables)")
	minCurve := flag.Float64("min-curve", 0, "Minimum staff curve length as a fraction of width (0 keeps default)")
	cutoff := flag.Float64("cutoff", 0, "Outlier rejection cutoff in MAD multiples (0 keeps default)")
	window := flag.Int("window", 0, "Local binarization window in pixels, odd (0 keeps default)")
	fill := flag.Int("fill", -1, "Fill value for unmapped pixels 0-255 (-1 keeps default)")
	timeout := flag.Duration("timeout", 0, "Segmentation timeout (0 keeps default)")
	reportPath := flag.String("report", "", "Write a JSON run report to this path")
	verbose := flag.Bool("v", false, "Verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dewarp %s (built %s, commit %s)\n",
			version.Version, version.BuildTime, version.GitCommit)
		return
	}
	if *imagePath == "" {
		fmt.Println("Usage: dewarp -image <path> [-out dewarped.png] [-diag dir]")
		os.Exit(1)
	}
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	img, err := imaging.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	bounds := img.Bounds()
	fmt.Printf("Loaded image: %dx%d pixels\n", bounds.Dx(), bounds.Dy())

	cfg := pipeline.DefaultConfig()
	if *minCurve > 0 {
		cfg = cfg.WithMinCurveLength(*minCurve)
	}
	if *cutoff > 0 {
		cfg = cfg.WithOutlierRejection(*cutoff)
	}
	if *window > 0 {
		cfg = cfg.WithBinarizeWindow(*window)
	}
	if *fill >= 0 && *fill <= 255 {
		cfg = cfg.WithFillValue(uint8(*fill))
	}
	if *timeout > 0 {
		cfg = cfg.WithSegmentTimeout(*timeout)
	}

	p := pipeline.New(segment.NewHeuristic(), cfg)

	start := time.Now()
	res, err := p.Run(context.Background(), img)
	if err != nil {
		var se *pipeline.StageError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "Dewarp failed in %s stage: %v\n", se.Stage, se.Err)
		} else {
			fmt.Fprintf(os.Stderr, "Dewarp failed: %v\n", err)
		}
		os.Exit(1)
	}
	fmt.Printf("Dewarped in %v\n", time.Since(start).Round(time.Millisecond))

	d := res.Diagnostics
	fmt.Printf("Staff curves: %d\n", d.StaffCurves)
	fmt.Printf("Boundary curves: %d\n", d.BoundaryCurves)
	fmt.Printf("Fit residual: RMS %.2f px, max %.2f px\n", d.Residuals.RMS, d.Residuals.Max)
	if d.LowConfidence {
		fmt.Println("Low confidence result:")
		for _, w := range d.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	if err := imaging.SavePNG(*outPath, res.Binary); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *outPath)

	if *diagDir != "" {
		if err := dumpDiagnostics(*diagDir, &d); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write diagnostics: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote diagnostics to %s\n", *diagDir)
	}

	if *reportPath != "" {
		rep := report.New()
		rep.SetInput(*reportPath, *imagePath)
		rep.SetOutput(*reportPath, *outPath)
		rep.Width = bounds.Dx()
		rep.Height = bounds.Dy()
		rep.StaffCurves = d.StaffCurves
		rep.BoundaryCurves = d.BoundaryCurves
		rep.ResidualRMS = d.Residuals.RMS
		rep.ResidualMax = d.Residuals.Max
		rep.LowConfidence = d.LowConfidence
		rep.Warnings = d.Warnings
		rep.Settings = report.Settings{
			MinCurveFrac:   cfg.Extract.MinCurveFrac,
			OutlierCutoff:  cfg.Fit.OutlierCutoff,
			BinarizeWindow: cfg.Binarize.Window,
			FillValue:      cfg.Rectify.FillValue,
		}
		if err := rep.Save(*reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", *reportPath)
	}
}

// dumpDiagnostics writes every intermediate artifact as a PNG.
func dumpDiagnostics(dir string, d *pipeline.Diagnostics) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create diag dir: %w", err)
	}
	if err := imaging.SavePNG(filepath.Join(dir, "mask.png"), overlay.MaskImage(d.Mask)); err != nil {
		return err
	}
	if err := imaging.SavePNG(filepath.Join(dir, "curves.png"), overlay.CurveImage(d.Input, d.Curves)); err != nil {
		return err
	}
	if err := imaging.SavePNG(filepath.Join(dir, "field.png"), overlay.FieldImage(d.Field, 20)); err != nil {
		return err
	}
	return imaging.SavePNG(filepath.Join(dir, "rectified.png"), d.Rectified)
}
