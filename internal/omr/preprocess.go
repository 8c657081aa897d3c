package omr

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"

	"omr-scanner/internal/page"
	"omr-scanner/internal/settings"

	"gocv.io/x/gocv"
)

// ErrInvalidImage is returned when the page buffer cannot be interpreted.
var ErrInvalidImage = errors.New("invalid page image")

// PreprocessedPage bundles the buffers derived from one page. It has a single owner,
// which must call Close.
type PreprocessedPage struct {
	Color  gocv.Mat // BGR
	Gray   gocv.Mat
	Binary gocv.Mat // ink = 255

	Anchors     []AnchorMark
	SkewDegrees float64 // skew measured on the input, before any correction
	Rotated     bool

	closed bool
}

// Width returns the page width in pixels.
func (p *PreprocessedPage) Width() int { return p.Color.Cols() }

// Height returns the page height in pixels.
func (p *PreprocessedPage) Height() int { return p.Color.Rows() }

// Close releases every Mat. It is safe to call more than once.
func (p *PreprocessedPage) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.Color.Close()
	p.Gray.Close()
	p.Binary.Close()
}

// Preprocess binarizes the page, detects anchor marks and, when the anchors are
// skewed beyond the tolerance, rotates the page once and detects them again.
func Preprocess(img page.Image, s settings.Settings) (*PreprocessedPage, error) {
	bgr, err := ensureColor(img)
	if err != nil {
		return nil, err
	}

	p := analyze(bgr, s)
	p.SkewDegrees = EstimateSkew(p.Anchors)
	if math.Abs(p.SkewDegrees) <= s.SkewToleranceDegrees {
		return p, nil
	}

	rotated := rotate(p.Color, p.SkewDegrees)
	skew := p.SkewDegrees
	p.Close()

	p = analyze(rotated, s)
	p.SkewDegrees = skew
	p.Rotated = true
	return p, nil
}

// analyze takes ownership of bgr.
func analyze(bgr gocv.Mat, s settings.Settings) *PreprocessedPage {
	gray, binary := binarize(bgr)
	size := image.Pt(bgr.Cols(), bgr.Rows())
	return &PreprocessedPage{
		Color:   bgr,
		Gray:    gray,
		Binary:  binary,
		Anchors: DetectAnchors(binary, size, s),
	}
}

// ensureColor copies the page into a 3-channel BGR Mat, replicating gray and dropping alpha.
func ensureColor(img page.Image) (gocv.Mat, error) {
	if err := img.Validate(); err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	var (
		matType gocv.MatType
		code    gocv.ColorConversionCode
	)
	switch img.Channels {
	case 1:
		matType, code = gocv.MatTypeCV8UC1, gocv.ColorGrayToBGR
	case 3:
		matType, code = gocv.MatTypeCV8UC3, gocv.ColorRGBToBGR
	default:
		matType, code = gocv.MatTypeCV8UC4, gocv.ColorRGBAToBGR
	}

	// The wrapper aliases img.Pix; CvtColor copies into a Mat that owns its data.
	src, err := gocv.NewMatFromBytes(img.Height, img.Width, matType, img.Pix)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	defer src.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(src, &bgr, code)
	runtime.KeepAlive(img.Pix)
	return bgr, nil
}

// binarize returns the grayscale page and its inverted Otsu threshold after a 5x5 blur.
func binarize(bgr gocv.Mat) (gray, binary gocv.Mat) {
	gray = gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	binary = gocv.NewMat()
	gocv.Threshold(blurred, &binary, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)
	return gray, binary
}

// rotate turns the page counter-clockwise by degrees about its center, keeping the
// page size and filling the uncovered corners white.
func rotate(src gocv.Mat, degrees float64) gocv.Mat {
	center := image.Pt(src.Cols()/2, src.Rows()/2)
	rotMat := gocv.GetRotationMatrix2D(center, degrees, 1.0)
	defer rotMat.Close()

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(src, &dst, rotMat, image.Pt(src.Cols(), src.Rows()),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return dst
}
