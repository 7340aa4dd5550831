// Package segment wraps the external page-content classifier and exposes
// per-pixel class masks to the geometric pipeline.
package segment

import (
	"fmt"
)

// Label identifies one of the fixed pixel classes produced by the classifier.
// The set is closed; any other value in classifier output is a decode error.
type Label uint8

const (
	// Background is blank paper or anything outside the page.
	Background Label = iota
	// Staff marks pixels belonging to staff lines.
	Staff
	// Ink marks printed symbols and text other than staff lines.
	Ink
	// Margin marks the page boundary region.
	Margin

	numLabels
)

func (l Label) String() string {
	switch l {
	case Background:
		return "background"
	case Staff:
		return "staff"
	case Ink:
		return "ink"
	case Margin:
		return "margin"
	default:
		return "unknown"
	}
}

// Valid reports whether the label is a member of the closed class set.
func (l Label) Valid() bool {
	return l < numLabels
}

// ClassMask holds one label per pixel over the same extent as the classified
// image. It is immutable once handed to the pipeline.
type ClassMask struct {
	Width  int
	Height int
	labels []Label
}

// NewClassMask allocates a mask of the given extent, all Background.
func NewClassMask(width, height int) (*ClassMask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid mask extent %dx%d", width, height)
	}
	return &ClassMask{
		Width:  width,
		Height: height,
		labels: make([]Label, width*height),
	}, nil
}

// MaskFromLabels builds a mask from raw classifier output, validating every
// value against the closed label set.
func MaskFromLabels(width, height int, raw []uint8) (*ClassMask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid mask extent %dx%d", width, height)
	}
	if len(raw) != width*height {
		return nil, fmt.Errorf("label buffer size %d does not match extent %dx%d", len(raw), width, height)
	}
	labels := make([]Label, len(raw))
	for i, v := range raw {
		l := Label(v)
		if !l.Valid() {
			return nil, fmt.Errorf("unknown class label %d at index %d", v, i)
		}
		labels[i] = l
	}
	return &ClassMask{Width: width, Height: height, labels: labels}, nil
}

// At returns the label at (x, y). Out-of-range coordinates read as Background.
func (m *ClassMask) At(x, y int) Label {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return Background
	}
	return m.labels[y*m.Width+x]
}

// Set assigns the label at (x, y). Out-of-range coordinates are ignored.
func (m *ClassMask) Set(x, y int, l Label) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	m.labels[y*m.Width+x] = l
}

// Counts returns the number of pixels carrying each label.
func (m *ClassMask) Counts() [4]int {
	var counts [4]int
	for _, l := range m.labels {
		counts[l]++
	}
	return counts
}

// Crop returns a copy of the mask restricted to the given region, clamped to
// the mask extent.
func (m *ClassMask) Crop(x, y, width, height int) (*ClassMask, error) {
	if x < 0 {
		width += x
		x = 0
	}
	if y < 0 {
		height += y
		y = 0
	}
	if x+width > m.Width {
		width = m.Width - x
	}
	if y+height > m.Height {
		height = m.Height - y
	}
	out, err := NewClassMask(width, height)
	if err != nil {
		return nil, fmt.Errorf("crop region empty after clamping: %w", err)
	}
	for row := 0; row < height; row++ {
		src := m.labels[(y+row)*m.Width+x:]
		copy(out.labels[row*width:(row+1)*width], src[:width])
	}
	return out, nil
}
