package ocr

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func word(text string, x, y int) Word {
	return Word{Text: text, Box: image.Rect(x, y, x+40, y+20)}
}

func texts(lines [][]Word) [][]string {
	var out [][]string
	for _, l := range lines {
		var row []string
		for _, w := range l {
			row = append(row, w.Text)
		}
		out = append(out, row)
	}
	return out
}

func TestLinesOrdersWords(t *testing.T) {
	words := []Word{
		word("Mn", 200, 102),
		word("C", 100, 100),
		word("1.52", 200, 131),
		word("0.21", 100, 129),
		word("", 300, 100),
	}
	lines := Lines(words)
	assert.Equal(t, [][]string{{"C", "Mn"}, {"0.21", "1.52"}}, texts(lines))
}

func TestBlocksSplitOnLargeGaps(t *testing.T) {
	words := []Word{
		word("Steel", 100, 100), word("C", 200, 100),
		word("A", 100, 125), word("0.2", 200, 125),
		word("Results", 100, 300),
	}
	blocks := Blocks(Lines(words))
	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0], 2)
	assert.Equal(t, [][]string{{"Results"}}, texts(blocks[1]))
	assert.Nil(t, Blocks(nil))
}

func numbered(text string, x, y, block, par, line int) Word {
	w := word(text, x, y)
	w.Block, w.Par, w.Line = block, par, line
	return w
}

func TestGroupUsesEngineNumbering(t *testing.T) {
	words := []Word{
		numbered("Si", 200, 100, 1, 1, 1),
		numbered("C", 100, 100, 1, 1, 1),
		numbered("0.21", 100, 400, 1, 1, 2),
		numbered("1.52", 200, 400, 1, 1, 2),
		numbered("note", 100, 420, 1, 2, 1),
		numbered("Results", 100, 130, 2, 1, 1),
		numbered("", 300, 100, 2, 1, 1),
	}
	blocks := Group(words)
	require.Len(t, blocks, 2)
	assert.Equal(t, [][]string{{"C", "Si"}, {"0.21", "1.52"}, {"note"}}, texts(blocks[0]))
	assert.Equal(t, [][]string{{"Results"}}, texts(blocks[1]))
}

func TestGroupFallsBackToGeometry(t *testing.T) {
	words := []Word{
		numbered("Steel", 100, 100, 1, 1, 1), word("C", 200, 100),
		word("A", 100, 125), word("0.2", 200, 125),
		word("Results", 100, 300),
	}
	blocks := Group(words)
	require.Len(t, blocks, 2)
	assert.Equal(t, [][]string{{"Steel", "C"}, {"A", "0.2"}}, texts(blocks[0]))
	assert.Nil(t, Group(nil))
}
