package gcode

import (
	"errors"
	"strconv"
	"strings"
)

// Word is a single letter and argument, like G1 or X-2.5.
type Word struct {
	W   byte
	Arg float64
}

func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z':
		return true
	}
	return false
}

func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z'
}

// String formats w with at most 3 decimals, as Grbl expects.
func (w Word) String() string {
	s := strconv.FormatFloat(w.Arg, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		s = "0"
	}
	return string(w.W) + s
}

// Block is one line of words.
type Block []Word

func (b Block) String() string {
	var sb strings.Builder
	for _, w := range b {
		sb.WriteString(w.String())
	}
	return sb.String()
}

// Axes returns only the axis words of b.
func (b Block) Axes() Block {
	res := make(Block, 0, len(b))
	for _, g := range b {
		if g.IsAxis() {
			res = append(res, g)
		}
	}
	return res
}

// Validate rejects repeated words and multiple words from one modal group.
func (b Block) Validate() error {
	var checkWord [256]bool
	var checkModal [256]bool

	for _, g := range b {
		if !g.IsValid() {
			return errors.New("invalid word in block")
		}
		if g.W != 'G' && g.W != 'M' && checkWord[g.W] {
			return errors.New("word " + string(g.W) + " was repeated in a block")
		}
		checkWord[g.W] = true
		m := g.ModalGroup()
		if m == ModalGroupNone {
			continue
		}
		if checkModal[m] {
			return errors.New("multiple words from same modal group: " + b.String())
		}
		checkModal[m] = true
	}

	return nil
}
