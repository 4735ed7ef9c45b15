package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	_ "image/gif"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyImage    = errors.New("empty image")
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// MaxPixels bounds width*height before a full decode.
const MaxPixels = 40_000_000

func decodeBounded(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("decode image: %w", ErrEmptyImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Profile describes a re-encode target: images wider than MaxWidth are scaled down,
// narrower ones keep their size.
type Profile struct {
	MaxWidth int
	Quality  int
}

var (
	// CandidateProfile is applied to a freshly uploaded merchandise photo.
	CandidateProfile = Profile{MaxWidth: 600, Quality: 60}
	// HistoryProfile is applied to previously accepted photos sent for comparison.
	HistoryProfile = Profile{MaxWidth: 400, Quality: 50}
	// AssetProfile is applied to admin uploaded character art and question images.
	AssetProfile = Profile{MaxWidth: 1600, Quality: 85}
)

// NormalizeJPEG decodes raw (jpeg/png/gif/webp), downsizes it to p.MaxWidth keeping the
// aspect ratio and re-encodes it as JPEG at p.Quality.
func NormalizeJPEG(raw []byte, p Profile) ([]byte, error) {
	img, err := decodeBounded(raw)
	if err != nil {
		return nil, err
	}
	img = fitWidth(img, p.MaxWidth)

	// JPEG has no alpha channel; flatten onto white so transparent PNGs don't turn black.
	b := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, b.Min, draw.Over)

	q := p.Quality
	if q <= 0 || q > 100 {
		q = jpeg.DefaultQuality
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, flat, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

func fitWidth(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// AvatarPNG center-crops raw to a square, scales it to size x size and clips it to a circle.
func AvatarPNG(raw []byte, size int) ([]byte, error) {
	img, err := decodeBounded(raw)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	cropped := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(cropped, cropped.Bounds(), img, image.Point{X: x0, Y: y0}, draw.Src)

	scaled := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), cropped, cropped.Bounds(), draw.Over, nil)

	dc := gg.NewContext(size, size)
	dc.DrawCircle(float64(size)/2, float64(size)/2, float64(size)/2)
	dc.Clip()
	dc.DrawImage(scaled, 0, 0)

	var out bytes.Buffer
	if err := png.Encode(&out, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}
