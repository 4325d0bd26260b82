package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type TextureLoader struct{}

// Load decodes the image at path into tightly packed RGBA8 pixels.
func (tl *TextureLoader) Load(path string) (*Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	rgba := ToRGBA(img)
	return &Resource{
		Name:     fmt.Sprintf("%s (%s)", filepath.Base(path), format),
		FullPath: path,
		DataSize: uint64(len(rgba.Pix)),
		Data:     rgba,
	}, nil
}

// ToRGBA converts img to an *image.RGBA whose bounds start at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*rgba.Rect.Dx() {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}
