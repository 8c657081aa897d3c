// Package geometry provides the small geometric types shared by the sheet reader.
package geometry

import (
	"image"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RectInt represents a rectangle with integer pixel coordinates.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromImageRect converts an image.Rectangle.
func FromImageRect(r image.Rectangle) RectInt {
	return RectInt{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// ImageRect converts to an image.Rectangle (Min inclusive, Max exclusive).
func (r RectInt) ImageRect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Center returns the center point of the rectangle.
func (r RectInt) Center() Point2D {
	return Point2D{
		X: float64(r.X) + float64(r.Width)/2,
		Y: float64(r.Y) + float64(r.Height)/2,
	}
}

// Area returns width*height.
func (r RectInt) Area() int {
	return r.Width * r.Height
}

// Aspect returns width/height, or 0 for a degenerate rectangle.
func (r RectInt) Aspect() float64 {
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// CenteredSquare returns a size×size square centered on (cx, cy), clamped so that
// it lies inside a width×height image and is never empty.
func CenteredSquare(cx, cy float64, size, width, height int) RectInt {
	half := float64(size) / 2
	x := int(math.Round(cx - half))
	y := int(math.Round(cy - half))
	x = clamp(x, 0, max(0, width-1))
	y = clamp(y, 0, max(0, height-1))
	return RectInt{
		X:      x,
		Y:      y,
		Width:  max(1, min(size, width-x)),
		Height: max(1, min(size, height-y)),
	}
}

// NormalizedRect is a rectangle expressed as fractions of the page size.
type NormalizedRect struct {
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// Valid reports whether the rectangle is non-empty and inside the unit square.
func (n NormalizedRect) Valid() bool {
	return n.Width > 0 && n.Height > 0 &&
		n.X >= 0 && n.Y >= 0 &&
		n.X+n.Width <= 1 && n.Y+n.Height <= 1
}

// ToPixels scales the rectangle to a width×height page, clamped to the page.
func (n NormalizedRect) ToPixels(width, height int) RectInt {
	x := clamp(int(math.Round(n.X*float64(width))), 0, max(0, width-1))
	y := clamp(int(math.Round(n.Y*float64(height))), 0, max(0, height-1))
	w := clamp(int(math.Round(n.Width*float64(width))), 1, width-x)
	h := clamp(int(math.Round(n.Height*float64(height))), 1, height-y)
	return RectInt{X: x, Y: y, Width: w, Height: h}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
