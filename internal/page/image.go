// Package page holds the raster input of the sheet reader and decodes scan files into it.
package page

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"
)

// ErrMalformed is returned by Validate for buffers the pipeline cannot interpret.
var ErrMalformed = errors.New("malformed page image")

// Image is an interleaved 8-bit pixel buffer in Go channel order: Gray, RGB or RGBA.
// It is owned by the caller; the reader never retains it past a call.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// Validate reports dimensions, channel counts and buffer sizes that do not agree.
func (img Image) Validate() error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("%w: zero dimensions %dx%d", ErrMalformed, img.Width, img.Height)
	}
	switch img.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("%w: unsupported channel count %d", ErrMalformed, img.Channels)
	}
	if want := img.Width * img.Height * img.Channels; len(img.Pix) != want {
		return fmt.Errorf("%w: buffer holds %d bytes, want %d", ErrMalformed, len(img.Pix), want)
	}
	return nil
}

// Bounds returns the image rectangle anchored at the origin.
func (img Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, img.Width, img.Height)
}

// FromImage converts any decoded image. Gray images keep one channel, opaque images
// become RGB and images with transparency become RGBA.
func FromImage(src image.Image) Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if g, ok := src.(*image.Gray); ok {
		out := Image{Width: width, Height: height, Channels: 1, Pix: make([]byte, width*height)}
		for y := 0; y < height; y++ {
			row := g.Pix[y*g.Stride : y*g.Stride+width]
			copy(out.Pix[y*width:], row)
		}
		return out
	}

	channels := 4
	switch src.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		channels = 1
	default:
		if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
			channels = 3
		}
	}

	out := Image{Width: width, Height: height, Channels: channels, Pix: make([]byte, width*height*channels)}

	// Parallelize by horizontal stripes
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := min(startY+rowsPerWorker, height)
		if startY >= height {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			for y := yStart; y < yEnd; y++ {
				i := y * width * channels
				for x := 0; x < width; x++ {
					c := src.At(x+bounds.Min.X, y+bounds.Min.Y)
					switch channels {
					case 1:
						out.Pix[i] = color.GrayModel.Convert(c).(color.Gray).Y
					case 3:
						r, g, b, _ := c.RGBA()
						out.Pix[i+0] = uint8(r >> 8)
						out.Pix[i+1] = uint8(g >> 8)
						out.Pix[i+2] = uint8(b >> 8)
					default:
						n := color.NRGBAModel.Convert(c).(color.NRGBA)
						out.Pix[i+0] = n.R
						out.Pix[i+1] = n.G
						out.Pix[i+2] = n.B
						out.Pix[i+3] = n.A
					}
					i += channels
				}
			}
		}(startY, endY)
	}
	wg.Wait()

	return out
}

// ToImage converts the buffer back to a Go image, mainly for tools and tests.
func (img Image) ToImage() image.Image {
	rect := img.Bounds()
	switch img.Channels {
	case 1:
		g := image.NewGray(rect)
		copy(g.Pix, img.Pix)
		return g
	case 3:
		n := image.NewNRGBA(rect)
		for p, i := 0, 0; p < len(img.Pix); p, i = p+3, i+4 {
			n.Pix[i+0] = img.Pix[p+0]
			n.Pix[i+1] = img.Pix[p+1]
			n.Pix[i+2] = img.Pix[p+2]
			n.Pix[i+3] = 0xff
		}
		return n
	default:
		n := image.NewNRGBA(rect)
		copy(n.Pix, img.Pix)
		return n
	}
}
