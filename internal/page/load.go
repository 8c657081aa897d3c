package page

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sunshineplan/pdf"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// DefaultDPI is the resolution assumed when a file carries none.
const DefaultDPI = 300

// Source is one page handed to the reader together with where it came from.
type Source struct {
	Number int // 1-based position within its file
	Image  Image
	DPI    float64
	Path   string
}

// SupportedFormats returns the file extensions Load understands.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".pdf"}
}

// IsSupportedFormat checks the extension of path.
func IsSupportedFormat(path string) bool {
	return slices.Contains(SupportedFormats(), strings.ToLower(filepath.Ext(path)))
}

// Load decodes a scan file into pages. Raster files yield one page; scanned PDFs yield
// one page per embedded image. dpi is used when the file does not record a resolution;
// zero means DefaultDPI.
func Load(path string, dpi float64) ([]Source, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		images, err := pdf.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to extract images from %s: %w", path, err)
		}
		if len(images) == 0 {
			return nil, fmt.Errorf("%s contains no page images", path)
		}
		pages := make([]Source, 0, len(images))
		for i, img := range images {
			pages = append(pages, Source{Number: i + 1, Image: FromImage(img), DPI: dpi, Path: path})
		}
		return pages, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if ext == ".tif" || ext == ".tiff" {
		if d, err := tiffDPI(bytes.NewReader(data)); err == nil {
			dpi = d
		}
	}
	return []Source{{Number: 1, Image: FromImage(img), DPI: dpi, Path: path}}, nil
}

// Expand replaces every directory in paths by the supported files it contains,
// sorted by name. Plain files are passed through unchecked.
func Expand(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && IsSupportedFormat(e.Name()) {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
		slices.Sort(files)
		out = append(out, files...)
	}
	return out, nil
}

// tiffDPI reads the X (or Y) resolution of the first IFD.
func tiffDPI(r io.ReaderAt) (float64, error) {
	header := make([]byte, 8)
	if _, err := r.ReadAt(header, 0); err != nil {
		return 0, err
	}

	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, errors.New("not a TIFF file")
	}

	ifd := int64(order.Uint32(header[4:8]))
	count := make([]byte, 2)
	if _, err := r.ReadAt(count, ifd); err != nil {
		return 0, err
	}

	rational := func(offset uint32) float64 {
		buf := make([]byte, 8)
		if _, err := r.ReadAt(buf, int64(offset)); err != nil {
			return 0
		}
		num, den := order.Uint32(buf[:4]), order.Uint32(buf[4:])
		if den == 0 {
			return 0
		}
		return float64(num) / float64(den)
	}

	var xRes, yRes float64
	unit := uint16(2) // inches
	entry := make([]byte, 12)
	for i := int64(0); i < int64(order.Uint16(count)); i++ {
		if _, err := r.ReadAt(entry, ifd+2+i*12); err != nil {
			return 0, err
		}
		tag, kind := order.Uint16(entry[0:2]), order.Uint16(entry[2:4])
		switch {
		case tag == 282 && kind == 5:
			xRes = rational(order.Uint32(entry[8:12]))
		case tag == 283 && kind == 5:
			yRes = rational(order.Uint32(entry[8:12]))
		case tag == 296 && kind == 3:
			unit = order.Uint16(entry[8:10])
		}
	}

	dpi := xRes
	if dpi == 0 {
		dpi = yRes
	}
	if dpi == 0 {
		return 0, errors.New("no resolution tags")
	}
	if unit == 3 { // centimeters
		dpi *= 2.54
	}
	return dpi, nil
}
