package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

// Crop cuts rect out of a decoded image page and re-encodes it as PNG.
// The rectangle is clipped to the page bounds.
func Crop(page Page, rect image.Rectangle) (Page, error) {
	if page.Image == nil {
		return Page{}, fmt.Errorf("Crop: page %s has no raster image: %w", page.MIMEType, ErrUnsupportedFormat)
	}

	rect = rect.Canon().Intersect(page.Image.Bounds())
	if rect.Empty() {
		return Page{}, errors.New("Crop: selection is empty or outside the page")
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), page.Image, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return Page{}, fmt.Errorf("Crop: encode png: %w", err)
	}
	return Page{Data: buf.Bytes(), MIMEType: MIMETypePNG, Image: dst}, nil
}
