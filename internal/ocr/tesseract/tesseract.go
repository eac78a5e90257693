// Package tesseract implements ocr.Engine on top of libtesseract via gosseract.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/MalithGihan/steelminer/internal/ocr"
)

type Engine struct {
	DPI           int
	clientFactory func() *gosseract.Client
}

func New(dpi int) *Engine {
	return &Engine{DPI: dpi, clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) client(img []byte, languages []string) (*gosseract.Client, error) {
	c := e.clientFactory()
	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			c.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if e.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.DPI)); err != nil {
			c.Close()
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(img); err != nil {
		c.Close()
		return nil, fmt.Errorf("set image: %w", err)
	}
	return c, nil
}

func (e *Engine) Words(ctx context.Context, img []byte, languages []string) ([]ocr.Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := e.client(img, languages)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	boxes, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("bounding boxes: %w", err)
	}
	return toWords(boxes), nil
}

// toWords keeps non-blank word boxes with Tesseract's block, paragraph and
// line numbers. Confidence is scaled to 0..1.
func toWords(boxes []gosseract.BoundingBox) []ocr.Word {
	words := make([]ocr.Word, 0, len(boxes))
	for _, b := range boxes {
		t := strings.TrimSpace(b.Word)
		if t == "" {
			continue
		}
		words = append(words, ocr.Word{
			Text:       t,
			Box:        b.Box,
			Confidence: b.Confidence / 100,
			Block:      b.BlockNum,
			Par:        b.ParNum,
			Line:       b.LineNum,
		})
	}
	return words
}

func (e *Engine) Text(ctx context.Context, img []byte, languages []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, err := e.client(img, languages)
	if err != nil {
		return "", err
	}
	defer c.Close()
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}
