package template

import (
	"errors"
	"fmt"
)

// ErrParse matches every *ParseError.
var ErrParse = errors.New("template parse error")

// ParseError reports a malformed template.
type ParseError struct {
	// Pos is the byte offset of the offending input
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// keyword describes one reserved word. Exactly one of producer and stage is set.
type keyword struct {
	arg      bool
	producer func(arg string) Producer
	stage    func(arg string) Stage
}

var keywords = map[string]keyword{
	"GetInterface":         {arg: true, producer: func(a string) Producer { return GetInterface{Name: a} }},
	"GetAllInterfaces":     {producer: func(string) Producer { return GetAllInterfaces{} }},
	"GetPrivateInterfaces": {producer: func(string) Producer { return GetPrivateInterfaces{} }},

	"FilterIPv4":        {stage: func(string) Stage { return FilterIPv4{} }},
	"FilterIPv6":        {stage: func(string) Stage { return FilterIPv6{} }},
	"FilterFlags":       {arg: true, stage: func(a string) Stage { return FilterFlags{Flag: a} }},
	"FilterName":        {arg: true, stage: func(a string) Stage { return FilterName{Name: a} }},
	"FilterForwardable": {stage: func(string) Stage { return FilterForwardable{} }},
	"FilterGlobal":      {stage: func(string) Stage { return FilterGlobal{} }},
	"FilterFirst":       {stage: func(string) Stage { return FilterFirst{} }},
	"FilterLast":        {stage: func(string) Stage { return FilterLast{} }},
	"SortBy":            {arg: true, stage: func(a string) Stage { return SortBy{Criterion: a} }},
}

type parser struct {
	lex lexer
}

// Parse parses a template. It checks shape only: an unknown SortBy
// criterion parses and fails at evaluation.
func Parse(s string) (*Pipeline, error) {
	p := &parser{lex: lexer{src: s}}
	return p.parse()
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Pipeline {
	pipeline, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return pipeline
}

func (p *parser) parse() (*Pipeline, error) {
	tok, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if tok.kind != tokWord {
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("missing producer, found %s", tok.kind)}
	}
	kw, ok := keywords[tok.text]
	switch {
	case !ok:
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unknown keyword %q", tok.text)}
	case kw.producer == nil:
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("missing producer, found %s", tok.text)}
	}
	arg, err := p.argument(tok, kw)
	if err != nil {
		return nil, err
	}
	pipeline := &Pipeline{Producer: kw.producer(arg)}

	for {
		tok, err := p.lex.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokEOF:
			return pipeline, nil
		case tokPipe:
		default:
			return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s, expected '|'", tok.kind)}
		}

		stage, err := p.stage()
		if err != nil {
			return nil, err
		}
		pipeline.Stages = append(pipeline.Stages, stage)
	}
}

func (p *parser) stage() (Stage, error) {
	tok, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if tok.kind != tokWord {
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("empty stage, found %s", tok.kind)}
	}
	kw, ok := keywords[tok.text]
	switch {
	case !ok:
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unknown keyword %q", tok.text)}
	case kw.stage == nil:
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("producer %s must come first", tok.text)}
	}
	arg, err := p.argument(tok, kw)
	if err != nil {
		return nil, err
	}
	return kw.stage(arg), nil
}

func (p *parser) argument(name token, kw keyword) (string, error) {
	if !kw.arg {
		return "", nil
	}
	tok, err := p.lex.next()
	if err != nil {
		return "", err
	}
	if tok.kind != tokString {
		return "", &ParseError{
			Pos: tok.pos,
			Msg: fmt.Sprintf("%s requires a quoted argument, found %s", name.text, tok.kind),
		}
	}
	return tok.text, nil
}
