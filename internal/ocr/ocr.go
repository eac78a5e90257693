// Package ocr defines the OCR engine contract and groups recognised words
// into text blocks of lines, using the engine's own layout numbering when it
// reports one and word geometry otherwise.
package ocr

import (
	"context"
	"image"
	"sort"
)

type Word struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
	// Block, Par and Line are the engine's 1-based layout numbers; zero
	// means the engine does not report layout.
	Block, Par, Line int
}

type Engine interface {
	Name() string
	// Words returns the recognised words of one page image with their boxes.
	Words(ctx context.Context, img []byte, languages []string) ([]Word, error)
	// Text returns the plain text of one page image.
	Text(ctx context.Context, img []byte, languages []string) (string, error)
}

// Group returns the text blocks of a page, each a list of lines ordered left
// to right. Words carrying block and line numbers are grouped by them;
// otherwise the geometric Lines and Blocks heuristics are used.
func Group(words []Word) [][][]Word {
	ws := make([]Word, 0, len(words))
	for _, w := range words {
		if w.Text != "" {
			ws = append(ws, w)
		}
	}
	if len(ws) == 0 {
		return nil
	}
	for _, w := range ws {
		if w.Block < 1 || w.Line < 1 {
			return Blocks(Lines(ws))
		}
	}

	type lineKey struct{ block, par, line int }
	byLine := map[lineKey][]Word{}
	var keys []lineKey
	for _, w := range ws {
		k := lineKey{w.Block, w.Par, w.Line}
		if _, ok := byLine[k]; !ok {
			keys = append(keys, k)
		}
		byLine[k] = append(byLine[k], w)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.block != b.block {
			return a.block < b.block
		}
		if a.par != b.par {
			return a.par < b.par
		}
		return a.line < b.line
	})

	var blocks [][][]Word
	for i, k := range keys {
		line := byLine[k]
		sort.SliceStable(line, func(a, b int) bool { return line[a].Box.Min.X < line[b].Box.Min.X })
		if i == 0 || keys[i-1].block != k.block {
			blocks = append(blocks, nil)
		}
		blocks[len(blocks)-1] = append(blocks[len(blocks)-1], line)
	}
	return blocks
}

func centerY(r image.Rectangle) int { return (r.Min.Y + r.Max.Y) / 2 }

// Lines groups words whose vertical centres fall within half a word height of
// the running line centre. Each line is ordered left to right.
func Lines(words []Word) [][]Word {
	ws := make([]Word, 0, len(words))
	for _, w := range words {
		if w.Text != "" {
			ws = append(ws, w)
		}
	}
	sort.SliceStable(ws, func(i, j int) bool {
		ci, cj := centerY(ws[i].Box), centerY(ws[j].Box)
		if ci != cj {
			return ci < cj
		}
		return ws[i].Box.Min.X < ws[j].Box.Min.X
	})

	var (
		lines        [][]Word
		cur          []Word
		sumCY, sumHt int
	)
	for _, w := range ws {
		if len(cur) > 0 {
			lineCY := sumCY / len(cur)
			h := sumHt / len(cur)
			if w.Box.Dy() > h {
				h = w.Box.Dy()
			}
			if abs(centerY(w.Box)-lineCY)*2 > h {
				lines = append(lines, cur)
				cur, sumCY, sumHt = nil, 0, 0
			}
		}
		cur = append(cur, w)
		sumCY += centerY(w.Box)
		sumHt += w.Box.Dy()
	}
	if len(cur) > 0 {
		lines = append(lines, cur)
	}
	for _, l := range lines {
		sort.SliceStable(l, func(i, j int) bool { return l[i].Box.Min.X < l[j].Box.Min.X })
	}
	return lines
}

// Blocks splits consecutive lines wherever the vertical gap exceeds 1.5x the
// median line height.
func Blocks(lines [][]Word) [][][]Word {
	if len(lines) == 0 {
		return nil
	}
	heights := make([]int, 0, len(lines))
	for _, l := range lines {
		heights = append(heights, bounds(l).Dy())
	}
	sort.Ints(heights)
	median := heights[len(heights)/2]
	if median < 1 {
		median = 1
	}

	var blocks [][][]Word
	cur := [][]Word{lines[0]}
	for i := 1; i < len(lines); i++ {
		gap := bounds(lines[i]).Min.Y - bounds(lines[i-1]).Max.Y
		if gap*2 > median*3 {
			blocks = append(blocks, cur)
			cur = nil
		}
		cur = append(cur, lines[i])
	}
	return append(blocks, cur)
}

func bounds(ws []Word) image.Rectangle {
	var r image.Rectangle
	for i, w := range ws {
		if i == 0 {
			r = w.Box
			continue
		}
		r = r.Union(w.Box)
	}
	return r
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
