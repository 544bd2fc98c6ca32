package gcode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Parser reads blocks from G-code text. Comments, line numbers and
// program delimiters are dropped.
type Parser struct {
	scan *bufio.Scanner
	line int
}

func NewParser(r io.Reader) *Parser {
	return &Parser{scan: bufio.NewScanner(r)}
}

// Read returns the next non-empty block, or io.EOF.
func (p *Parser) Read() (Block, error) {
	for p.scan.Scan() {
		p.line++
		b, err := parseLine(p.scan.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
		if len(b) > 0 {
			return b, nil
		}
	}
	if err := p.scan.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func stripComments(s string) (string, error) {
	s, _, _ = strings.Cut(s, ";")
	var sb strings.Builder
	for {
		open := strings.IndexByte(s, '(')
		if open == -1 {
			break
		}
		end := strings.IndexByte(s[open:], ')')
		if end == -1 {
			return "", fmt.Errorf("unterminated comment")
		}
		sb.WriteString(s[:open])
		s = s[open+end+1:]
	}
	sb.WriteString(s)
	return sb.String(), nil
}

func parseLine(s string) (Block, error) {
	s, err := stripComments(s)
	if err != nil {
		return nil, err
	}
	s = strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if s == "%" {
		return nil, nil
	}

	var b Block
	for i := 0; i < len(s); {
		w := s[i]
		if w < 'A' || w > 'Z' {
			return nil, fmt.Errorf("unexpected '%c'", w)
		}
		i++
		start := i
		for i < len(s) && (s[i] == '.' || s[i] == '-' || s[i] == '+' || (s[i] >= '0' && s[i] <= '9')) {
			i++
		}
		arg, err := strconv.ParseFloat(s[start:i], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid argument for %c: '%s'", w, s[start:i])
		}
		if w == 'N' {
			continue
		}
		b = append(b, Word{W: w, Arg: arg})
	}
	return b, nil
}

// Parse parses all blocks in data.
func Parse(data string) ([]Block, error) {
	p := NewParser(strings.NewReader(data))
	var b []Block
	for {
		bl, err := p.Read()
		if err == io.EOF {
			return b, nil
		}
		if err != nil {
			return nil, err
		}
		b = append(b, bl)
	}
}

func MustParse(data string) []Block {
	b, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return b
}
