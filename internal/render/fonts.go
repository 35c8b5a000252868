package render

import (
	"fmt"
	"os"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// fontSet hands out font faces for chart text. Without a TrueType font every
// size falls back to the fixed 7x13 bitmap face.
type fontSet struct {
	ttf *truetype.Font
}

func loadFontSet(path string) (*fontSet, error) {
	if path == "" {
		return &fontSet{}, nil
	}
	fontBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return &fontSet{ttf: parsed}, nil
}

// face returns a new face at size points. Faces are not safe for concurrent
// use, so each chart asks for its own.
func (fs *fontSet) face(size float64) font.Face {
	if fs.ttf == nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(fs.ttf, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
