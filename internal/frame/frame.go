// Package frame holds datasets in memory as ordered, typed columns.
//
// A Frame has numeric columns (float64, NaN marks a missing value) and text
// columns. Operations that reshape a frame return a new Frame; column slices
// may be shared between frames and must be treated as read-only.
package frame

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Kind is the storage type of a column
type Kind int

const (
	Numeric Kind = iota
	Text
)

func (k Kind) String() string {
	if k == Text {
		return "text"
	}
	return "numeric"
}

type column struct {
	name string
	kind Kind
	num  []float64
	text []string
}

// Frame is a table of rows with named, ordered columns
type Frame struct {
	cols  []*column
	index map[string]int
	rows  int
}

// New creates an empty frame with a fixed row count
func New(rows int) *Frame {
	return &Frame{index: make(map[string]int), rows: rows}
}

// Len returns the number of rows
func (f *Frame) Len() int { return f.rows }

// Columns returns the column names in order
func (f *Frame) Columns() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.name
	}
	return names
}

// Has reports whether a column exists
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Kind returns the kind of a column
func (f *Frame) Kind(name string) (Kind, bool) {
	i, ok := f.index[name]
	if !ok {
		return 0, false
	}
	return f.cols[i].kind, true
}

// NumericColumns returns the numeric column names in order
func (f *Frame) NumericColumns() []string {
	return f.columnsOf(Numeric)
}

// TextColumns returns the text column names in order
func (f *Frame) TextColumns() []string {
	return f.columnsOf(Text)
}

func (f *Frame) columnsOf(kind Kind) []string {
	var names []string
	for _, c := range f.cols {
		if c.kind == kind {
			names = append(names, c.name)
		}
	}
	return names
}

// SetNumeric adds or replaces a numeric column. A replaced column keeps its position.
func (f *Frame) SetNumeric(name string, values []float64) error {
	if len(values) != f.rows {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), f.rows)
	}
	f.set(&column{name: name, kind: Numeric, num: values})
	return nil
}

// SetText adds or replaces a text column. A replaced column keeps its position.
func (f *Frame) SetText(name string, values []string) error {
	if len(values) != f.rows {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), f.rows)
	}
	f.set(&column{name: name, kind: Text, text: values})
	return nil
}

// Fill adds or replaces a numeric column holding a constant
func (f *Frame) Fill(name string, value float64) {
	values := make([]float64, f.rows)
	for i := range values {
		values[i] = value
	}
	f.set(&column{name: name, kind: Numeric, num: values})
}

func (f *Frame) set(c *column) {
	if i, ok := f.index[c.name]; ok {
		f.cols[i] = c
		return
	}
	f.index[c.name] = len(f.cols)
	f.cols = append(f.cols, c)
}

// Numeric returns the values of a numeric column
func (f *Frame) Numeric(name string) ([]float64, bool) {
	i, ok := f.index[name]
	if !ok || f.cols[i].kind != Numeric {
		return nil, false
	}
	return f.cols[i].num, true
}

// Text returns the values of a text column
func (f *Frame) Text(name string) ([]string, bool) {
	i, ok := f.index[name]
	if !ok || f.cols[i].kind != Text {
		return nil, false
	}
	return f.cols[i].text, true
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := New(f.rows)
	for _, c := range f.cols {
		if _, ok := drop[c.name]; !ok {
			out.set(c)
		}
	}
	return out
}

// Select returns a frame with exactly the named columns in the given order
func (f *Frame) Select(names []string) (*Frame, error) {
	out := New(f.rows)
	for _, n := range names {
		i, ok := f.index[n]
		if !ok {
			return nil, fmt.Errorf("column %q not found", n)
		}
		if out.Has(n) {
			return nil, fmt.Errorf("column %q selected twice", n)
		}
		out.set(f.cols[i])
	}
	return out, nil
}

// Filter returns the rows for which keep returns true
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	var idx []int
	for i := 0; i < f.rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return f.Take(idx)
}

// Take returns the rows at the given indices, in that order. Indices may repeat.
func (f *Frame) Take(idx []int) *Frame {
	out := New(len(idx))
	for _, c := range f.cols {
		nc := &column{name: c.name, kind: c.kind}
		if c.kind == Numeric {
			nc.num = make([]float64, len(idx))
			for j, i := range idx {
				nc.num[j] = c.num[i]
			}
		} else {
			nc.text = make([]string, len(idx))
			for j, i := range idx {
				nc.text[j] = c.text[i]
			}
		}
		out.set(nc)
	}
	return out
}

// Matrix copies the named numeric columns into a rows x len(names) matrix
func (f *Frame) Matrix(names []string) (*mat.Dense, error) {
	if f.rows == 0 || len(names) == 0 {
		return nil, fmt.Errorf("cannot build a %dx%d matrix", f.rows, len(names))
	}
	data := make([]float64, f.rows*len(names))
	for j, n := range names {
		values, ok := f.Numeric(n)
		if !ok {
			return nil, fmt.Errorf("numeric column %q not found", n)
		}
		for i, v := range values {
			data[i*len(names)+j] = v
		}
	}
	return mat.NewDense(f.rows, len(names), data), nil
}

// HasMissing reports whether any numeric column holds a NaN
func (f *Frame) HasMissing() bool {
	for _, c := range f.cols {
		if c.kind != Numeric {
			continue
		}
		for _, v := range c.num {
			if math.IsNaN(v) {
				return true
			}
		}
	}
	return false
}
