// Package widget implements the input controls of the explorer page. Each
// widget holds a value drawn from options fixed at construction and tells
// listeners when the reader changes it.
package widget

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownWidget is returned when a widget name is not registered in a Set.
var ErrUnknownWidget = errors.New("widget: unknown widget")

// InvalidValueError reports a value outside a widget's declared options.
type InvalidValueError struct {
	Widget string
	Value  string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("widget %q: %q is not one of its options", e.Widget, e.Value)
}

// Kind distinguishes the control types.
type Kind string

const (
	KindMultiSelect Kind = "multiselect"
	KindDropdown    Kind = "dropdown"
)

// Widget is a stateful control. Current returns a Selection for multi-select
// widgets and a string for dropdowns; both are immutable values.
type Widget interface {
	Name() string
	Label() string
	Kind() Kind
	Options() []string
	Current() any
	Selected() []string
	Set(values ...string) error
	Readout() string
	OnChange(fn func(name string, value any)) (cancel func())
}

// Selection is the immutable value of a multi-select widget, ordered like the
// widget's options.
type Selection struct {
	values []string
	set    map[string]struct{}
}

// NewSelection builds a Selection, keeping the first occurrence of duplicates.
func NewSelection(values ...string) Selection {
	s := Selection{set: make(map[string]struct{}, len(values))}
	for _, v := range values {
		if _, dup := s.set[v]; dup {
			continue
		}
		s.set[v] = struct{}{}
		s.values = append(s.values, v)
	}
	return s
}

// Contains reports whether v is selected.
func (s Selection) Contains(v string) bool {
	_, ok := s.set[v]
	return ok
}

// Len returns the number of selected values.
func (s Selection) Len() int { return len(s.values) }

// Values returns a copy of the selected values.
func (s Selection) Values() []string { return append([]string(nil), s.values...) }

func (s Selection) String() string { return strings.Join(s.values, ", ") }

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(string, any)
}

func (l *listeners) add(fn func(string, any)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(string, any))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listeners) notify(name string, value any) {
	l.mu.Lock()
	fns := make([]func(string, any), 0, len(l.fns))
	for id := 0; id < l.next; id++ {
		if fn, ok := l.fns[id]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(name, value)
	}
}

type base struct {
	name    string
	label   string
	options []string
	index   map[string]int
	mu      sync.RWMutex
	changes listeners
}

func (b *base) init(name, label string, options []string) {
	b.name, b.label = name, label
	b.index = make(map[string]int, len(options))
	for _, o := range options {
		if _, dup := b.index[o]; dup {
			continue
		}
		b.index[o] = len(b.options)
		b.options = append(b.options, o)
	}
}

func (b *base) Name() string      { return b.name }
func (b *base) Label() string     { return b.label }
func (b *base) Options() []string { return append([]string(nil), b.options...) }

func (b *base) OnChange(fn func(name string, value any)) func() {
	return b.changes.add(fn)
}

// MultiSelect selects any subset of its options. It starts with every option
// selected.
type MultiSelect struct {
	base
	value Selection
}

// NewMultiSelect builds a multi-select over options (duplicates dropped).
func NewMultiSelect(name, label string, options []string) *MultiSelect {
	m := &MultiSelect{}
	m.init(name, label, options)
	m.value = NewSelection(m.options...)
	return m
}

func (m *MultiSelect) Kind() Kind { return KindMultiSelect }

// Current returns the current Selection.
func (m *MultiSelect) Current() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

// Selected returns the selected values in option order.
func (m *MultiSelect) Selected() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value.Values()
}

// Set replaces the selection. Zero values is a valid, empty selection.
func (m *MultiSelect) Set(values ...string) error {
	picked := make([]bool, len(m.options))
	for _, v := range values {
		i, ok := m.index[v]
		if !ok {
			return &InvalidValueError{Widget: m.name, Value: v}
		}
		picked[i] = true
	}
	var ordered []string
	for i, ok := range picked {
		if ok {
			ordered = append(ordered, m.options[i])
		}
	}
	sel := NewSelection(ordered...)

	m.mu.Lock()
	m.value = sel
	m.mu.Unlock()
	m.changes.notify(m.name, sel)
	return nil
}

// Readout renders the selection for the control panel text.
func (m *MultiSelect) Readout() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return SelectionReadout(m.value, len(m.options))
}

// SelectionReadout renders sel for a widget offering total options.
func SelectionReadout(sel Selection, total int) string {
	switch {
	case total > 0 && sel.Len() == total:
		return fmt.Sprintf("all %d selected", total)
	case sel.Len() == 0:
		return "none"
	}
	return sel.String()
}

// Dropdown selects exactly one of its options; it starts on the first.
type Dropdown struct {
	base
	value string
}

// NewDropdown builds a dropdown; options must not be empty.
func NewDropdown(name, label string, options []string) (*Dropdown, error) {
	d := &Dropdown{}
	d.init(name, label, options)
	if len(d.options) == 0 {
		return nil, fmt.Errorf("widget %q: dropdown needs at least one option", name)
	}
	d.value = d.options[0]
	return d, nil
}

func (d *Dropdown) Kind() Kind { return KindDropdown }

// Current returns the selected option.
func (d *Dropdown) Current() any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.value
}

// Selected returns the selected option as a one-element slice.
func (d *Dropdown) Selected() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return []string{d.value}
}

// Set selects one option. Exactly one value is required.
func (d *Dropdown) Set(values ...string) error {
	if len(values) != 1 {
		return fmt.Errorf("widget %q: dropdown takes exactly one value, got %d", d.name, len(values))
	}
	v := values[0]
	if _, ok := d.index[v]; !ok {
		return &InvalidValueError{Widget: d.name, Value: v}
	}
	d.mu.Lock()
	d.value = v
	d.mu.Unlock()
	d.changes.notify(d.name, v)
	return nil
}

// Readout returns the selected option.
func (d *Dropdown) Readout() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.value
}
