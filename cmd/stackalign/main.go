package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stackalign/internal/imageio"
	"stackalign/pkg/alignment"
	"stackalign/pkg/config"
	"stackalign/pkg/registration"
	"stackalign/pkg/report"
	"stackalign/pkg/stack"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing the frames of the stack")
	outputDir := flag.String("output", "aligned", "Directory to write the aligned frames to")
	configPath := flag.String("config", "stackalign.yaml", "YAML configuration file (defaults are used if missing)")
	mode := flag.String("mode", "2d", "Alignment method: 2d, vertical or horizontal")
	roiFlag := flag.String("roi", "", "Region of interest as left,right,top,bottom; defaults to the full frame")
	reference := flag.Int("reference", 0, "Index of the reference frame")
	plotPath := flag.String("plot", "", "Write a plot of the shifts to this file (png, svg, pdf, or html for an interactive chart)")
	usePNG := flag.Bool("png", false, "Write aligned frames as PNG instead of JPEG")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: numCores from the config)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *numCores > 0 {
		cfg.Align.NumCores = *numCores
	}
	logger := cfg.NewLogger(os.Stderr)

	s, frames, err := imageio.LoadStack(*inputDir)
	if err != nil {
		log.Fatalf("Failed to load stack: %v", err)
	}
	if err := s.SetIndices(*reference); err != nil {
		log.Fatalf("Invalid reference frame: %v", err)
	}
	fmt.Printf("Loaded %d frames of %dx%d from %s\n",
		s.NavigationSize(), s.SignalAxis(0).Size, s.SignalAxis(1).Size, *inputDir)

	roi, err := parseROI(*roiFlag, float64(s.SignalAxis(0).Size), float64(s.SignalAxis(1).Size))
	if err != nil {
		log.Fatalf("Invalid ROI: %v", err)
	}

	engine := alignment.NewEngine(cfg.Align, registration.NewEstimator(), logger)
	engine.SetProgressCallback(func(completed, total int, message string) {
		logger.Debug(message, "completed", completed, "total", total)
	})

	before, err := report.Metrics(s, *reference)
	if err != nil {
		log.Fatalf("Failed to measure stack: %v", err)
	}

	startTime := time.Now()
	var result *alignment.Result
	switch strings.ToLower(*mode) {
	case "2d":
		result, err = engine.Align(roi, s)
	case "vertical":
		result, err = engine.AlignAlongAxis(roi, s, alignment.Vertical)
	case "horizontal":
		result, err = engine.AlignAlongAxis(roi, s, alignment.Horizontal)
	default:
		log.Fatalf("Unknown mode %q (must be 2d, vertical or horizontal)", *mode)
	}
	if err != nil {
		log.Fatalf("Alignment failed: %v", err)
	}
	processingTime := time.Since(startTime)

	if err := imageio.SaveStack(result.Aligned, *outputDir, *usePNG); err != nil {
		log.Fatalf("Failed to save aligned frames: %v", err)
	}
	if err := imageio.SaveShifts(frames, result.Shifts, filepath.Join(*outputDir, "shifts.yaml")); err != nil {
		log.Printf("Warning: Failed to save shifts: %v", err)
	}

	fmt.Printf("\nAlignment completed in %.2f seconds\n", processingTime.Seconds())
	fmt.Printf("- Used %d cores for processing\n", cfg.Align.NumCores)
	fmt.Printf("Aligned frames saved to: %s (%dx%d)\n\n",
		*outputDir, result.Aligned.SignalAxis(0).Size, result.Aligned.SignalAxis(1).Size)

	fmt.Println("Shifts (dy, dx):")
	for i, sh := range result.Shifts {
		fmt.Printf("  %-24s %8.2f %8.2f\n", frames[i].Filename, sh.DY, sh.DX)
	}

	after, err := report.Metrics(result.Aligned, *reference)
	if err == nil {
		fmt.Println("\nRegistration quality against the reference frame:")
		fmt.Printf("- Mean RMSE:        %.4f -> %.4f\n", before.MeanRMSE, after.MeanRMSE)
		fmt.Printf("- Mean correlation: %.4f -> %.4f\n", before.MeanCorrelation, after.MeanCorrelation)
	}

	if *plotPath != "" {
		title := fmt.Sprintf("%s alignment of %s", *mode, filepath.Base(*inputDir))
		if err := writePlot(result.Shifts, title, *plotPath); err != nil {
			log.Printf("Warning: Failed to plot shifts: %v", err)
		} else {
			fmt.Printf("\nShift plot saved to: %s\n", *plotPath)
		}
	}
}

// writePlot saves the shifts as an interactive HTML chart when path ends in
// .html, and as a static plot otherwise.
func writePlot(shifts []stack.Shift, title, path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".html") {
		return report.PlotShifts(shifts, title, path)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return report.ChartShifts(shifts, title, file)
}

// parseROI reads a comma separated rectangle. An empty value selects the
// whole frame.
func parseROI(value string, width, height float64) (alignment.ROI, error) {
	if value == "" {
		return alignment.NewRectangle(0, width, 0, height), nil
	}

	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return alignment.ROI{}, fmt.Errorf("need left,right,top,bottom, got %d values", len(parts))
	}
	bounds := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return alignment.ROI{}, fmt.Errorf("bound %q: %w", p, err)
		}
		bounds[i] = v
	}
	return alignment.NewRectangle(bounds[0], bounds[1], bounds[2], bounds[3]), nil
}
