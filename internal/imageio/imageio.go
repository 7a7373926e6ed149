// Package imageio reads and writes image stacks as directories of frames.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/tiff"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"stackalign/internal/models"
	"stackalign/pkg/stack"
)

// LoadFrames reads every JPEG, PNG or TIFF file of dir, ordered by the number in
// the filename. The order matters: it defines the navigation index of each
// frame.
func LoadFrames(dir string) ([]models.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".tif", ".tiff":
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no JPG, PNG or TIFF images found in %s", dir)
	}

	sort.SliceStable(names, func(i, j int) bool {
		return extractNumber(names[i]) < extractNumber(names[j])
	})

	frames := make([]models.Frame, 0, len(names))
	for i, name := range names {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}
		frames = append(frames, models.Frame{Image: img, Index: i, Filename: name})
	}
	return frames, nil
}

// LoadStack reads a directory of equally sized frames into a 2D image
// stack with intensities in [0, 1].
func LoadStack(dir string) (*stack.Stack, []models.Frame, error) {
	frames, err := LoadFrames(dir)
	if err != nil {
		return nil, nil, err
	}

	bounds := frames[0].Image.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	data := make([][]float64, len(frames))
	for i, f := range frames {
		b := f.Image.Bounds()
		if b.Dx() != width || b.Dy() != height {
			return nil, nil, fmt.Errorf("frame %s is %dx%d, expected %dx%d", f.Filename, b.Dx(), b.Dy(), width, height)
		}
		data[i] = imageToFloat(f.Image)
	}

	s, err := stack.NewFrames(data, height, width)
	if err != nil {
		return nil, nil, err
	}
	return s, frames, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	num, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return num
}

// loadImage decodes a JPEG, PNG or TIFF file
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}

// imageToFloat converts an image to row-major luminance in [0, 1]
func imageToFloat(img image.Image) []float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	result := make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			result[y*width+x] = float64(g.Y) / 65535.0
		}
	}
	return result
}

// floatToImage converts row-major data to a 16-bit grayscale image,
// scaling [lo, hi] to the full range. NaN samples become black.
func floatToImage(data []float64, width, height int, lo, hi float64) image.Image {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := data[y*width+x]
			if math.IsNaN(v) {
				continue
			}
			v = math.Max(0, math.Min(1, (v-lo)/span))
			img.SetGray16(x, y, color.Gray16{Y: uint16(v * 65535)})
		}
	}
	return img
}

// SaveStack writes every frame of a 2D stack to outputDir as
// frame_NNN.jpg (or .png when usePNG is set). All frames share the
// intensity range of the whole stack.
func SaveStack(s *stack.Stack, outputDir string, usePNG bool) error {
	if s.SignalDimension() != 2 {
		return fmt.Errorf("save stack: %d-dimensional signal: %w", s.SignalDimension(), stack.ErrDimension)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	width := s.SignalAxis(0).Size
	height := s.SignalAxis(1).Size
	lo, hi := floats.Min(s.Data()), floats.Max(s.Data())

	ext := ".jpg"
	if usePNG {
		ext = ".png"
	}
	for i := 0; i < s.NavigationSize(); i++ {
		img := floatToImage(s.Frame(i), width, height, lo, hi)
		filename := filepath.Join(outputDir, fmt.Sprintf("frame_%03d%s", i, ext))
		if err := saveImage(img, filename, usePNG); err != nil {
			return fmt.Errorf("failed to save frame %d: %w", i, err)
		}
	}
	return nil
}

// saveImage encodes an image to a file
func saveImage(img image.Image, filename string, usePNG bool) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if usePNG {
		return png.Encode(file, img)
	}
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveShifts writes the applied shift of every frame as YAML.
func SaveShifts(frames []models.Frame, shifts []stack.Shift, path string) error {
	if len(frames) != len(shifts) {
		return fmt.Errorf("%d frames but %d shifts: %w", len(frames), len(shifts), stack.ErrShiftCount)
	}
	records := make([]models.FrameShift, len(frames))
	for i, f := range frames {
		records[i] = models.FrameShift{Filename: f.Filename, DY: shifts[i].DY, DX: shifts[i].DX}
	}
	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("error marshaling shifts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
