package template

import "fmt"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokPipe
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokWord:
		return "keyword"
	case tokString:
		return "quoted argument"
	case tokPipe:
		return "'|'"
	default:
		return fmt.Sprintf("token(%d)", int(k))
	}
}

type token struct {
	kind tokenKind
	// text is the keyword, or the argument without its quotes
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// next returns the next token. Only plain spaces separate tokens.
func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && l.src[l.pos] == ' ' {
		l.pos++
	}
	if l.pos == len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]
	switch {
	case c == '|':
		l.pos++
		return token{kind: tokPipe, text: "|", pos: start}, nil
	case c == '"':
		l.pos++
		for l.pos < len(l.src) && isAlnum(l.src[l.pos]) {
			l.pos++
		}
		if l.pos == len(l.src) {
			return token{}, &ParseError{Pos: start, Msg: "unterminated quoted argument"}
		}
		if l.src[l.pos] != '"' {
			return token{}, &ParseError{
				Pos: l.pos,
				Msg: fmt.Sprintf("invalid character %q in quoted argument", l.src[l.pos]),
			}
		}
		l.pos++
		return token{kind: tokString, text: l.src[start+1 : l.pos-1], pos: start}, nil
	case isAlnum(c):
		for l.pos < len(l.src) && isAlnum(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokWord, text: l.src[start:l.pos], pos: start}, nil
	default:
		return token{}, &ParseError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", c)}
	}
}
