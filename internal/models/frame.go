package models

import (
	"image"
)

// Frame represents a single image of a stack loaded from disk
type Frame struct {
	// Image is the decoded image data
	Image image.Image

	// Index is the position of this frame in the sequence
	Index int

	// Filename is the original filename of the frame
	Filename string
}

// FrameShift records the shift applied to a frame during alignment
type FrameShift struct {
	// Filename is the original filename of the frame
	Filename string `yaml:"filename"`

	// DY and DX are the applied shifts in pixels
	DY float64 `yaml:"dy"`
	DX float64 `yaml:"dx"`
}
