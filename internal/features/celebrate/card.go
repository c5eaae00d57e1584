package celebrate

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"

	logging "wave-portal/internal/infra/log"

	"github.com/fogleman/gg"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	cardWidth  = 1200
	cardHeight = 630

	confettiCount = 140
	confettiMinW  = 8.0
	confettiMaxW  = 22.0

	qrSize    = 220
	qrMargin  = 40.0
	textLeft  = 70.0
	titleY    = 200.0
	messageY  = 300.0
	hashY     = 540.0
	titleSize = 72.0
	bodySize  = 34.0
	hashSize  = 22.0

	maxMessageRunes = 60
)

var palette = []color.RGBA{
	{255, 89, 94, 255},
	{255, 202, 58, 255},
	{138, 201, 38, 255},
	{25, 130, 196, 255},
	{106, 76, 147, 255},
}

var fontPaths = []string{
	"etc/fonts/Inter-Regular.ttf",
	"./etc/fonts/InterVariable.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
	"/System/Library/Fonts/Supplemental/Arial.ttf",
	"/Library/Fonts/Arial.ttf",
}

// Card - what goes on the celebration image
type Card struct {
	TxHash      string
	Message     string
	ExplorerURL string // QR code target, skipped when empty
}

// RenderPNG draws confetti, the wave message and a QR code to the explorer.
// Confetti layout is seeded by the tx hash so the same wave always gets the same card.
func RenderPNG(card Card) ([]byte, error) {
	dc := gg.NewContext(cardWidth, cardHeight)
	dc.SetColor(color.RGBA{16, 18, 32, 255})
	dc.Clear()

	h := fnv.New64a()
	h.Write([]byte(card.TxHash))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	for i := 0; i < confettiCount; i++ {
		c := palette[rng.Intn(len(palette))]
		w := confettiMinW + rng.Float64()*(confettiMaxW-confettiMinW)
		x := rng.Float64() * cardWidth
		y := rng.Float64() * cardHeight

		dc.Push()
		dc.RotateAbout(rng.Float64()*6.28, x, y)
		dc.SetColor(c)
		dc.DrawRectangle(x, y, w, w/2.5)
		dc.Fill()
		dc.Pop()
	}

	fontPath := loadFont(dc, titleSize)

	dc.SetColor(color.White)
	dc.DrawString("Wave confirmed!", textLeft, titleY)

	setSize(dc, fontPath, bodySize)
	dc.DrawStringWrapped(truncate(card.Message, maxMessageRunes), textLeft, messageY, 0, 0,
		cardWidth-qrSize-3*qrMargin-textLeft, 1.4, gg.AlignLeft)

	setSize(dc, fontPath, hashSize)
	dc.SetColor(color.RGBA{200, 200, 210, 255})
	dc.DrawString(card.TxHash, textLeft, hashY)

	if card.ExplorerURL != "" {
		qr, err := qrcode.New(card.ExplorerURL, qrcode.Medium)
		if err != nil {
			return nil, fmt.Errorf("failed to build QR code: %w", err)
		}
		qr.BackgroundColor = color.White
		dc.DrawImage(qr.Image(qrSize), cardWidth-qrSize-int(qrMargin), cardHeight-qrSize-int(qrMargin))
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode card: %w", err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("card is empty after rendering")
	}

	logging.LogDebug("Celebration card rendered",
		zap.String("txHash", card.TxHash),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// SavePNG renders the card into dir and returns the file path
func SavePNG(dir string, card Card) (string, error) {
	data, err := RenderPNG(card)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cards directory: %w", err)
	}
	filename := filepath.Join(dir, fmt.Sprintf("wave_%s.png", card.TxHash))
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save card: %w", err)
	}
	return filename, nil
}

// loadFont returns the path of the loaded face, "" when falling back to the built-in font
func loadFont(dc *gg.Context, size float64) string {
	for _, p := range fontPaths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := dc.LoadFontFace(p, size); err == nil {
			return p
		}
	}
	logging.LogDebug("No TrueType font found, using default face")
	return ""
}

func setSize(dc *gg.Context, fontPath string, size float64) {
	if fontPath != "" {
		dc.LoadFontFace(fontPath, size)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
