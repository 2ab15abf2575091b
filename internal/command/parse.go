package command

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/signalsfoundry/realm/model"
)

// tokenize splits a command line into words. A double-quoted string is one
// token without its quotes, and a parenthesised coordinate such as
// "( 1, -2 )" is one token with inner spaces removed.
func tokenize(line string) ([]string, error) {
	var (
		toks []string
		cur  strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			flush()
		case r == '"':
			flush()
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			if end == len(runes) {
				return nil, fmt.Errorf("%w: unterminated quote", ErrBadArguments)
			}
			toks = append(toks, string(runes[i+1:end]))
			i = end
		case r == '(':
			flush()
			end := i + 1
			for end < len(runes) && runes[end] != ')' {
				end++
			}
			if end == len(runes) {
				return nil, fmt.Errorf("%w: unterminated coordinate", ErrBadArguments)
			}
			inner := strings.Join(strings.Fields(string(runes[i:end+1])), "")
			toks = append(toks, inner)
			i = end
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks, nil
}

// argList consumes the arguments of one command in order.
type argList struct {
	cmd  string
	toks []string
	pos  int
}

func (a *argList) next(what string) (string, error) {
	if a.pos >= len(a.toks) {
		return "", fmt.Errorf("%w: %s: missing %s", ErrBadArguments, a.cmd, what)
	}
	tok := a.toks[a.pos]
	a.pos++
	return tok, nil
}

func (a *argList) id() (string, error) {
	return a.next("town id")
}

func (a *argList) text(what string) (string, error) {
	return a.next(what)
}

func (a *argList) integer(what string) (int, error) {
	tok, err := a.next(what)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %s %q is not an integer", ErrBadArguments, a.cmd, what, tok)
	}
	return v, nil
}

func (a *argList) coord() (model.Coord, error) {
	tok, err := a.next("coordinate")
	if err != nil {
		return model.Coord{}, err
	}
	c, ok := parseCoord(tok)
	if !ok {
		return model.Coord{}, fmt.Errorf("%w: %s: %q is not a coordinate like (x,y)", ErrBadArguments, a.cmd, tok)
	}
	return c, nil
}

// end rejects trailing arguments.
func (a *argList) end() error {
	if a.pos < len(a.toks) {
		return fmt.Errorf("%w: %s: unexpected %q", ErrBadArguments, a.cmd, a.toks[a.pos])
	}
	return nil
}

func parseCoord(tok string) (model.Coord, bool) {
	if !strings.HasPrefix(tok, "(") || !strings.HasSuffix(tok, ")") {
		return model.Coord{}, false
	}
	xs, ys, ok := strings.Cut(tok[1:len(tok)-1], ",")
	if !ok {
		return model.Coord{}, false
	}
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errX != nil || errY != nil {
		return model.Coord{}, false
	}
	return model.Coord{X: x, Y: y}, true
}
