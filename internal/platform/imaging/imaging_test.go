package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func decodedSize(t *testing.T, raw []byte) (int, int) {
	t.Helper()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("jpeg.DecodeConfig: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestNormalizeJPEGDownscalesWideImages(t *testing.T) {
	out, err := NormalizeJPEG(pngOf(t, 1200, 800), CandidateProfile)
	if err != nil {
		t.Fatalf("NormalizeJPEG: %v", err)
	}
	w, h := decodedSize(t, out)
	if w != 600 || h != 400 {
		t.Fatalf("size: want=600x400 got=%dx%d", w, h)
	}
}

func TestNormalizeJPEGNeverEnlarges(t *testing.T) {
	out, err := NormalizeJPEG(pngOf(t, 300, 200), CandidateProfile)
	if err != nil {
		t.Fatalf("NormalizeJPEG: %v", err)
	}
	w, h := decodedSize(t, out)
	if w != 300 || h != 200 {
		t.Fatalf("size: want=300x200 got=%dx%d", w, h)
	}
}

func TestNormalizeJPEGRejectsGarbage(t *testing.T) {
	if _, err := NormalizeJPEG(nil, HistoryProfile); err != ErrEmptyImage {
		t.Fatalf("empty: want ErrEmptyImage got=%v", err)
	}
	if _, err := NormalizeJPEG([]byte("not an image"), HistoryProfile); err == nil {
		t.Fatalf("garbage: expected decode error")
	}
}

func TestAvatarPNGIsSquare(t *testing.T) {
	out, err := AvatarPNG(pngOf(t, 300, 120), 64)
	if err != nil {
		t.Fatalf("AvatarPNG: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("png.DecodeConfig: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 64 {
		t.Fatalf("size: want=64x64 got=%dx%d", cfg.Width, cfg.Height)
	}
}

func TestRenderShareCard(t *testing.T) {
	out, err := RenderShareCard(ShareCard{
		DisplayName:   "budi",
		CharacterName: "Rem",
		Series:        "Re:Zero",
		Title:         "SUAMI SAH",
		Rank:          1,
		TotalPoints:   420,
		ThemeColor:    "#3b82f6",
		Portrait:      pngOf(t, 50, 80),
	})
	if err != nil {
		t.Fatalf("RenderShareCard: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("png.DecodeConfig: %v", err)
	}
	if cfg.Width != cardWidth || cfg.Height != cardHeight {
		t.Fatalf("size: want=%dx%d got=%dx%d", cardWidth, cardHeight, cfg.Width, cfg.Height)
	}
}

func TestParseHexColor(t *testing.T) {
	fb := color.NRGBA{A: 1}
	if got := ParseHexColor("#ff0080", fb); got != (color.NRGBA{R: 0xff, G: 0x00, B: 0x80, A: 0xff}) {
		t.Fatalf("ParseHexColor: got=%v", got)
	}
	if got := ParseHexColor("zzz", fb); got != fb {
		t.Fatalf("ParseHexColor fallback: got=%v", got)
	}
}

// pngHeader builds just the signature and IHDR chunk, enough for DecodeConfig.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor
	chunk := append([]byte("IHDR"), ihdr...)

	var buf bytes.Buffer
	buf.Write([]byte("\x89PNG\r\n\x1a\n"))
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestOversizedImagesRejectedBeforeDecode(t *testing.T) {
	raw := pngHeader(12000, 12000)
	if _, err := NormalizeJPEG(raw, CandidateProfile); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("NormalizeJPEG: want ErrImageTooLarge got=%v", err)
	}
	if _, err := AvatarPNG(raw, 64); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("AvatarPNG: want ErrImageTooLarge got=%v", err)
	}
	// Under the cap the header passes and the missing pixel data is what fails.
	if _, err := NormalizeJPEG(pngHeader(4000, 3000), CandidateProfile); err == nil || errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("in-bounds header: want decode error got=%v", err)
	}
}
