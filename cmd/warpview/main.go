// Command warpview runs the geometry stages on a page image and reports the
// extracted curves and fitted deformation, with optional overlay output.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"score-dewarp/internal/features"
	"score-dewarp/internal/imaging"
	"score-dewarp/internal/overlay"
	"score-dewarp/internal/segment"
	"score-dewarp/internal/warp"
)

func main() {
	imagePath := flag.String("image", "", "Path to page image (TIFF, PNG, or JPEG)")
	outDir := flag.String("outdir", "", "Directory for overlay PNGs (empty disables)")
	maxDisp := flag.Float64("maxdisp", 20, "Displacement saturating the field heat map, px")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: warpview -image <path> [-outdir dir]")
		os.Exit(1)
	}

	img, err := imaging.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	bounds := img.Bounds()
	fmt.Printf("Loaded image: %dx%d pixels\n", bounds.Dx(), bounds.Dy())

	adapter := segment.NewAdapter(segment.NewHeuristic(), segment.DefaultAdapterOptions())
	mask, err := adapter.Classify(context.Background(), img)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Segmentation failed: %v\n", err)
		os.Exit(1)
	}
	counts := mask.Counts()
	fmt.Printf("Mask labels: background=%d staff=%d ink=%d margin=%d\n",
		counts[segment.Background], counts[segment.Staff], counts[segment.Ink], counts[segment.Margin])

	extractor := features.NewExtractor(features.DefaultOptions())
	curves, err := extractor.Extract(mask)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nExtracted %d curves:\n", curves.Total())
	fmt.Printf("%-10s %8s %10s %10s\n", "Role", "Points", "Span", "Offset")
	for _, c := range curves.Staff {
		fmt.Printf("%-10s %8d %10.1f %10.1f\n", c.Role, len(c.Points), c.Span(), c.MeanOffset())
	}
	for _, c := range curves.Boundary {
		fmt.Printf("%-10s %8d %10.1f %10.1f\n", c.Role, len(c.Points), c.Span(), c.MeanOffset())
	}
	if curves.Crossings > 0 {
		fmt.Printf("Warning: %d staff curve pairs cross\n", curves.Crossings)
	}

	fitter := warp.NewFitter(warp.DefaultOptions())
	field, stats, err := fitter.Fit(curves, bounds.Dx(), bounds.Dy())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fit failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nFit: RMS %.2f px, max %.2f px over %d curves\n", stats.RMS, stats.Max, len(stats.PerCurve))
	for i, cs := range stats.PerCurve {
		fmt.Printf("  curve %d: RMS %.2f px, max %.2f px, %d outliers, %d iterations\n",
			i, cs.RMS, cs.Max, cs.Outliers, cs.Iterations)
	}
	if stats.Degenerate {
		fmt.Println("Warning: residuals exceed the sanity bound; fit is low confidence")
	}
	fmt.Printf("Monotonic in y: %v\n", field.MonotonicY())

	if *outDir == "" {
		return
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output dir: %v\n", err)
		os.Exit(1)
	}
	gray := imaging.ToGray(img)
	outputs := map[string]error{
		"mask.png":   imaging.SavePNG(filepath.Join(*outDir, "mask.png"), overlay.MaskImage(mask)),
		"curves.png": imaging.SavePNG(filepath.Join(*outDir, "curves.png"), overlay.CurveImage(gray, curves)),
		"field.png":  imaging.SavePNG(filepath.Join(*outDir, "field.png"), overlay.FieldImage(field, *maxDisp)),
	}
	for name, err := range outputs {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", name, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Wrote overlays to %s\n", *outDir)
}
