// Package transform implements the image operations a processing task can
// request. Each step decodes, transforms, and re-encodes in the source
// format so a multi-step pipeline round-trips through storage cleanly.
package transform

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

var (
	ErrInvalidImage   = errors.New("transform: cannot decode image")
	ErrInvalidPercent = errors.New("transform: resize percentage must be between 1 and 100")
)

// Result is the output of a single transform step.
type Result struct {
	Data        *bytes.Buffer
	ContentType string
	Format      string
	Width       int
	Height      int
}

// Resize scales the image to the given percentage of its original
// dimensions. Dimensions are floored at one pixel.
func Resize(input io.Reader, percentage int) (*Result, error) {
	if percentage < 1 || percentage > 100 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPercent, percentage)
	}

	img, format, err := image.Decode(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	width := bounds.Dx() * percentage / 100
	height := bounds.Dy() * percentage / 100
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	resized := imaging.Resize(img, width, height, imaging.Lanczos)
	return encode(resized, format)
}

// Grayscale converts the image to grayscale, preserving dimensions and
// format.
func Grayscale(input io.Reader) (*Result, error) {
	img, format, err := image.Decode(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	gray := imaging.Grayscale(img)
	return encode(gray, format)
}

func encode(img image.Image, format string) (*Result, error) {
	var buf bytes.Buffer
	var contentType string
	var err error

	switch format {
	case "png":
		err = imaging.Encode(&buf, img, imaging.PNG)
		contentType = "image/png"
	case "gif":
		err = imaging.Encode(&buf, img, imaging.GIF)
		contentType = "image/gif"
	case "bmp":
		err = imaging.Encode(&buf, img, imaging.BMP)
		contentType = "image/bmp"
	default:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90))
		contentType = "image/jpeg"
		format = "jpeg"
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}

	bounds := img.Bounds()
	return &Result{
		Data:        &buf,
		ContentType: contentType,
		Format:      format,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}

// Ext maps an encode format to a file extension for result keys.
func Ext(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	default:
		return format
	}
}
