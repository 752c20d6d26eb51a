package template

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"

	"github.com/go-logr/logr"

	"github.com/ishanjain/ift/pkg/netif"
	"github.com/ishanjain/ift/pkg/rfc"
)

var (
	// ErrInterfaceNotFound is returned by GetInterface when the snapshot has
	// no interface of that name.
	ErrInterfaceNotFound = errors.New("interface not found")

	// ErrUnknownSortCriterion is returned by SortBy for anything but "default".
	ErrUnknownSortCriterion = errors.New("unknown sort criterion")

	// ErrEmptySelection is returned by FilterFirst and FilterLast on an empty
	// list when Options.StrictSelection is set.
	ErrEmptySelection = errors.New("empty selection")
)

// SortDefault is the only sort criterion: global addresses first.
const SortDefault = "default"

// privateStages is what GetPrivateInterfaces applies after GetAllInterfaces.
var privateStages = []Stage{
	FilterFlags{Flag: "up"},
	FilterForwardable{},
	SortBy{Criterion: SortDefault},
}

// Options configures an Evaluator
type Options struct {
	// Table classifies addresses for FilterForwardable, FilterGlobal and
	// SortBy. Defaults to rfc.Default().
	Table *rfc.Table

	// Logger receives a V(1) line per stage
	Logger logr.Logger

	// StrictSelection makes FilterFirst and FilterLast fail on an empty list
	// instead of passing it through.
	StrictSelection bool
}

// Evaluator runs pipelines against snapshots. It holds no mutable state and
// is safe for concurrent use.
type Evaluator struct {
	table  *rfc.Table
	logger logr.Logger
	strict bool
}

// NewEvaluator creates an evaluator
func NewEvaluator(opts Options) *Evaluator {
	if opts.Table == nil {
		opts.Table = rfc.Default()
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	return &Evaluator{
		table:  opts.Table,
		logger: opts.Logger,
		strict: opts.StrictSelection,
	}
}

var defaultEvaluator = NewEvaluator(Options{})

// Evaluate runs p against snap and returns the surviving addresses in order.
// An empty result is not an error.
func (e *Evaluator) Evaluate(p *Pipeline, snap netif.Snapshot) ([]netif.Address, error) {
	list, err := e.produce(p.Producer, snap)
	if err != nil {
		return nil, err
	}
	e.logger.V(1).Info("Produced addresses", "producer", p.Producer.String(), "count", len(list))

	for _, s := range p.Stages {
		before := len(list)
		list, err = e.apply(s, list)
		if err != nil {
			return nil, err
		}
		e.logger.V(1).Info("Applied stage", "stage", s.String(), "before", before, "after", len(list))
	}
	return list, nil
}

func (e *Evaluator) produce(p Producer, snap netif.Snapshot) ([]netif.Address, error) {
	switch p := p.(type) {
	case GetInterface:
		iface, ok := snap.Lookup(p.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInterfaceNotFound, p.Name)
		}
		return slices.Clone(iface.Addrs), nil
	case GetAllInterfaces:
		return allAddrs(snap), nil
	case GetPrivateInterfaces:
		list := allAddrs(snap)
		for _, s := range privateStages {
			var err error
			if list, err = e.apply(s, list); err != nil {
				return nil, err
			}
		}
		return list, nil
	default:
		panic(fmt.Sprintf("unhandled producer %T", p))
	}
}

func allAddrs(snap netif.Snapshot) []netif.Address {
	var list []netif.Address
	for _, iface := range snap {
		list = append(list, iface.Addrs...)
	}
	return list
}

// apply runs one stage. The input slice is never modified.
func (e *Evaluator) apply(s Stage, list []netif.Address) ([]netif.Address, error) {
	switch s := s.(type) {
	case FilterIPv4:
		return filter(list, func(a netif.Address) bool { return a.Family() == netif.IPv4 }), nil
	case FilterIPv6:
		return filter(list, func(a netif.Address) bool { return a.Family() == netif.IPv6 }), nil
	case FilterFlags:
		return filter(list, func(a netif.Address) bool { return a.Interface.HasFlag(s.Flag) }), nil
	case FilterName:
		return filter(list, func(a netif.Address) bool { return a.Interface.Name == s.Name }), nil
	case FilterForwardable:
		return filter(list, func(a netif.Address) bool { return e.table.IsForwardable(a.Addr) }), nil
	case FilterGlobal:
		return filter(list, func(a netif.Address) bool { return e.table.IsGlobal(a.Addr) }), nil
	case FilterFirst:
		if len(list) == 0 {
			return e.empty(s)
		}
		return list[:1:1], nil
	case FilterLast:
		if len(list) == 0 {
			return e.empty(s)
		}
		return list[len(list)-1:], nil
	case SortBy:
		if s.Criterion != SortDefault {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSortCriterion, s.Criterion)
		}
		sorted := slices.Clone(list)
		slices.SortStableFunc(sorted, func(a, b netif.Address) int {
			return e.globalRank(a) - e.globalRank(b)
		})
		return sorted, nil
	default:
		panic(fmt.Sprintf("unhandled stage %T", s))
	}
}

func (e *Evaluator) empty(s Stage) ([]netif.Address, error) {
	if e.strict {
		return nil, fmt.Errorf("%w: %s on no addresses", ErrEmptySelection, s)
	}
	return nil, nil
}

func (e *Evaluator) globalRank(a netif.Address) int {
	if e.table.IsGlobal(a.Addr) {
		return 0
	}
	return 1
}

func filter(list []netif.Address, keep func(netif.Address) bool) []netif.Address {
	var out []netif.Address
	for _, a := range list {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// Evaluate runs p with the default evaluator.
func Evaluate(p *Pipeline, snap netif.Snapshot) ([]netif.Address, error) {
	return defaultEvaluator.Evaluate(p, snap)
}

// Eval parses s and evaluates it against snap.
func Eval(s string, snap netif.Snapshot) ([]netif.Address, error) {
	p, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return Evaluate(p, snap)
}

// Evals is like Eval but returns only the first address. ok is false when
// the template selects nothing.
func Evals(s string, snap netif.Snapshot) (addr netif.Address, ok bool, err error) {
	list, err := Eval(s, snap)
	if err != nil || len(list) == 0 {
		return netif.Address{}, false, err
	}
	return list[0], true, nil
}

// Addrs drops interface metadata from a result.
func Addrs(list []netif.Address) []netip.Addr {
	out := make([]netip.Addr, len(list))
	for i, a := range list {
		out[i] = a.Addr
	}
	return out
}
