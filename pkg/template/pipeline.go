// Package template parses and evaluates interface templates, short pipeline
// strings that select host addresses to bind to:
//
//	GetAllInterfaces | FilterFlags "up" | FilterForwardable | SortBy "default"
//
// A template starts with exactly one producer followed by any number of
// pipe separated filters and sorts, applied left to right.
package template

import (
	"strconv"
	"strings"
)

// Pipeline is a parsed template. It is immutable and may be evaluated any
// number of times, concurrently.
type Pipeline struct {
	Producer Producer
	Stages   []Stage
}

// Producer seeds the working list from a snapshot.
type Producer interface {
	producer()
	String() string
}

// Stage filters or reorders the working list.
type Stage interface {
	stage()
	String() string
}

type (
	// GetInterface selects every address of the named interface
	GetInterface struct{ Name string }
	// GetAllInterfaces selects every address of every interface
	GetAllInterfaces struct{}
	// GetPrivateInterfaces is short for
	// GetAllInterfaces | FilterFlags "up" | FilterForwardable | SortBy "default"
	GetPrivateInterfaces struct{}
)

type (
	// FilterIPv4 keeps IPv4 addresses
	FilterIPv4 struct{}
	// FilterIPv6 keeps IPv6 addresses
	FilterIPv6 struct{}
	// FilterFlags keeps addresses whose interface carries Flag
	FilterFlags struct{ Flag string }
	// FilterName keeps addresses whose interface is called Name
	FilterName struct{ Name string }
	// FilterForwardable keeps addresses in forwardable ranges
	FilterForwardable struct{}
	// FilterGlobal keeps globally reachable addresses
	FilterGlobal struct{}
	// FilterFirst keeps only the first address
	FilterFirst struct{}
	// FilterLast keeps only the last address
	FilterLast struct{}
	// SortBy reorders addresses by Criterion
	SortBy struct{ Criterion string }
)

func (GetInterface) producer() {}

func (GetAllInterfaces) producer() {}

func (GetPrivateInterfaces) producer() {}

func (FilterIPv4) stage() {}

func (FilterIPv6) stage() {}

func (FilterFlags) stage() {}

func (FilterName) stage() {}

func (FilterForwardable) stage() {}

func (FilterGlobal) stage() {}

func (FilterFirst) stage() {}

func (FilterLast) stage() {}

func (SortBy) stage() {}

func (p GetInterface) String() string {
	return "GetInterface " + strconv.Quote(p.Name)
}

func (GetAllInterfaces) String() string {
	return "GetAllInterfaces"
}

func (GetPrivateInterfaces) String() string {
	return "GetPrivateInterfaces"
}

func (FilterIPv4) String() string {
	return "FilterIPv4"
}

func (FilterIPv6) String() string {
	return "FilterIPv6"
}

func (s FilterFlags) String() string {
	return "FilterFlags " + strconv.Quote(s.Flag)
}

func (s FilterName) String() string {
	return "FilterName " + strconv.Quote(s.Name)
}

func (FilterForwardable) String() string {
	return "FilterForwardable"
}

func (FilterGlobal) String() string {
	return "FilterGlobal"
}

func (FilterFirst) String() string {
	return "FilterFirst"
}

func (FilterLast) String() string {
	return "FilterLast"
}

func (s SortBy) String() string {
	return "SortBy " + strconv.Quote(s.Criterion)
}

// String renders the pipeline in canonical form; parsing the result yields
// an equal pipeline.
func (p *Pipeline) String() string {
	var b strings.Builder
	b.WriteString(p.Producer.String())
	for _, s := range p.Stages {
		b.WriteString(" | ")
		b.WriteString(s.String())
	}
	return b.String()
}
