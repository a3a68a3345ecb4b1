package transform

import "strings"

// Import is a module a rewrite needs in scope.
type Import uint8

const (
	ImportPytest Import = 1 << iota
	ImportRe
)

var importNames = []struct {
	imp  Import
	name string
}{
	{ImportPytest, "pytest"},
	{ImportRe, "re"},
}

// ImportSet is a set of needed imports.
type ImportSet uint8

func (s ImportSet) With(imp Import) ImportSet { return s | ImportSet(imp) }

func (s ImportSet) Has(imp Import) bool { return s&ImportSet(imp) != 0 }

func (s ImportSet) Merge(o ImportSet) ImportSet { return s | o }

func (s ImportSet) Empty() bool { return s == 0 }

// Names lists the module names in a stable order.
func (s ImportSet) Names() []string {
	var out []string
	for _, in := range importNames {
		if s.Has(in.imp) {
			out = append(out, in.name)
		}
	}
	return out
}

func (s ImportSet) String() string { return strings.Join(s.Names(), ",") }

// Outcome is a rewritten value together with the imports it requires.
type Outcome[T any] struct {
	Node    T
	Imports ImportSet
}

func keep[T any](v T) Outcome[T] { return Outcome[T]{Node: v} }

func needs[T any](v T, imps ...Import) Outcome[T] {
	var s ImportSet
	for _, i := range imps {
		s = s.With(i)
	}
	return Outcome[T]{Node: v, Imports: s}
}
