package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	cardWidth  = 1080
	cardHeight = 1350
)

type ShareCard struct {
	DisplayName   string
	CharacterName string
	Series        string
	Title         string
	Rank          int
	TotalPoints   int
	ThemeColor    string
	// Portrait is optional encoded character art.
	Portrait []byte
}

var (
	fontOnce sync.Once
	fontErr  error
	regular  *truetype.Font
	bold     *truetype.Font
)

func loadFonts() error {
	fontOnce.Do(func() {
		regular, fontErr = truetype.Parse(goregular.TTF)
		if fontErr != nil {
			return
		}
		bold, fontErr = truetype.Parse(gobold.TTF)
	})
	return fontErr
}

func face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
}

// RenderShareCard draws a portrait card with the fan's standing for one character.
func RenderShareCard(card ShareCard) ([]byte, error) {
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}
	accent := ParseHexColor(card.ThemeColor, color.NRGBA{R: 0xEC, G: 0x48, B: 0x99, A: 0xFF})

	dc := gg.NewContext(cardWidth, cardHeight)
	grad := gg.NewLinearGradient(0, 0, 0, cardHeight)
	grad.AddColorStop(0, color.NRGBA{R: 0x0F, G: 0x17, B: 0x2A, A: 0xFF})
	grad.AddColorStop(1, accent)
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, cardWidth, cardHeight)
	dc.Fill()

	if len(card.Portrait) > 0 {
		if img, _, err := image.Decode(bytes.NewReader(card.Portrait)); err == nil {
			const box = 720
			dst := image.NewRGBA(image.Rect(0, 0, box, box))
			draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
			dc.DrawRoundedRectangle((cardWidth-box)/2, 120, box, box, 48)
			dc.Clip()
			dc.DrawImage(dst, (cardWidth-box)/2, 120)
			dc.ResetClip()
		}
	}

	dc.SetColor(color.White)
	dc.SetFontFace(face(bold, 72))
	dc.DrawStringAnchored(strings.ToUpper(card.CharacterName), cardWidth/2, 930, 0.5, 0.5)
	if card.Series != "" {
		dc.SetFontFace(face(regular, 36))
		dc.DrawStringAnchored(card.Series, cardWidth/2, 990, 0.5, 0.5)
	}

	dc.SetColor(accent)
	dc.DrawRoundedRectangle(140, 1040, cardWidth-280, 90, 45)
	dc.Fill()
	dc.SetColor(color.White)
	dc.SetFontFace(face(bold, 48))
	dc.DrawStringAnchored(card.Title, cardWidth/2, 1085, 0.5, 0.5)

	dc.SetFontFace(face(regular, 40))
	rank := "-"
	if card.Rank > 0 {
		rank = "#" + strconv.Itoa(card.Rank)
	}
	dc.DrawStringAnchored("RANK "+rank, cardWidth/4+40, 1200, 0.5, 0.5)
	dc.DrawStringAnchored("POIN "+strconv.Itoa(card.TotalPoints), 3*cardWidth/4-40, 1200, 0.5, 0.5)

	dc.SetFontFace(face(regular, 32))
	dc.DrawStringAnchored("@"+card.DisplayName, cardWidth/2, 1290, 0.5, 0.5)

	var out bytes.Buffer
	if err := dc.EncodePNG(&out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// ParseHexColor parses "#RRGGBB" (leading # optional), returning fallback on any error.
func ParseHexColor(s string, fallback color.NRGBA) color.NRGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}
}
