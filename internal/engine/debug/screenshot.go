package debug

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

// Screenshots writes captured frames as PNG files.
type Screenshots struct {
	outputDir string
	prefix    string

	// Now is the clock used for file names.
	Now func() time.Time
}

// NewScreenshots creates a capture handler writing to outputDir.
func NewScreenshots(outputDir, prefix string) *Screenshots {
	return &Screenshots{
		outputDir: outputDir,
		prefix:    prefix,
		Now:       time.Now,
	}
}

// Filename returns the path the next capture would be written to.
func (s *Screenshots) Filename() string {
	name := fmt.Sprintf("%s_%s.png", s.prefix, s.Now().Format("2006-01-02_15-04-05.000"))
	if s.outputDir != "" {
		name = filepath.Join(s.outputDir, name)
	}
	return name
}

// FlipRows converts bottom-up RGBA pixels, as read back from OpenGL, into a
// top-down image.
func FlipRows(pixels []byte, width, height int) (*image.RGBA, error) {
	if len(pixels) != width*height*4 {
		return nil, fmt.Errorf("pixel data size mismatch: expected %d, got %d", width*height*4, len(pixels))
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rowSize := width * 4
	for y := 0; y < height; y++ {
		src := (height - 1 - y) * rowSize
		dst := y * img.Stride
		copy(img.Pix[dst:dst+rowSize], pixels[src:src+rowSize])
	}
	return img, nil
}

// Capture saves bottom-up RGBA pixels and returns the file name.
func (s *Screenshots) Capture(pixels []byte, width, height int) (string, error) {
	img, err := FlipRows(pixels, width, height)
	if err != nil {
		return "", err
	}

	if s.outputDir != "" {
		if err := os.MkdirAll(s.outputDir, 0755); err != nil {
			return "", fmt.Errorf("creating output dir: %w", err)
		}
	}

	filename := s.Filename()
	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("encoding PNG: %w", err)
	}
	return filename, nil
}
