package imageprocessor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Processor builds attachment previews.
type Processor struct {
	quality       int // JPEG quality (1-100)
	thumbnailSize int // longest side of a thumbnail, px
}

func NewProcessor(quality, thumbnailSize int) *Processor {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	if thumbnailSize <= 0 {
		thumbnailSize = 256
	}
	return &Processor{
		quality:       quality,
		thumbnailSize: thumbnailSize,
	}
}

// Info describes a decoded image without its pixels.
type Info struct {
	Width  int
	Height int
	Format string
}

// Inspect reads only the image header.
func Inspect(reader io.Reader) (Info, error) {
	cfg, format, err := image.DecodeConfig(reader)
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Thumbnail scales the image so its longest side fits thumbnailSize and
// encodes it as JPEG. Images already small enough are re-encoded unscaled.
func (p *Processor) Thumbnail(reader io.Reader) (*bytes.Buffer, Info, error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to decode image: %w", err)
	}

	resized := p.fit(img, p.thumbnailSize)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(resized), &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, Info{}, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	bounds := resized.Bounds()
	return &buf, Info{Width: bounds.Dx(), Height: bounds.Dy(), Format: "jpeg"}, nil
}

// fit resizes an image keeping its aspect ratio.
func (p *Processor) fit(img image.Image, maxSide int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxSide && height <= maxSide {
		return img
	}

	newWidth, newHeight := maxSide, maxSide
	if width >= height {
		newHeight = max(1, height*maxSide/width)
	} else {
		newWidth = max(1, width*maxSide/height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// flatten paints transparent pixels onto white since JPEG has no alpha.
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}
