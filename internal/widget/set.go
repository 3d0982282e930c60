package widget

import (
	"fmt"
	"regexp"
)

// Set is the widget state of a page: widgets by name, in declaration order.
// Only reader interaction mutates it; transforms read the snapshot from State.
type Set struct {
	order   []string
	widgets map[string]Widget
}

// NewSet registers widgets; names must be unique.
func NewSet(ws ...Widget) (*Set, error) {
	s := &Set{widgets: make(map[string]Widget, len(ws))}
	for _, w := range ws {
		if _, dup := s.widgets[w.Name()]; dup {
			return nil, fmt.Errorf("widget %q registered twice", w.Name())
		}
		s.widgets[w.Name()] = w
		s.order = append(s.order, w.Name())
	}
	return s, nil
}

// Names returns widget names in declaration order.
func (s *Set) Names() []string { return append([]string(nil), s.order...) }

// Get returns the widget registered under name.
func (s *Set) Get(name string) (Widget, error) {
	w, ok := s.widgets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWidget, name)
	}
	return w, nil
}

// Apply sets a widget from reader input and returns its new value.
func (s *Set) Apply(name string, values ...string) (any, error) {
	w, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	if err := w.Set(values...); err != nil {
		return nil, err
	}
	return w.Current(), nil
}

// State returns every widget's current value keyed by name.
func (s *Set) State() map[string]any {
	out := make(map[string]any, len(s.order))
	for _, name := range s.order {
		out[name] = s.widgets[name].Current()
	}
	return out
}

var placeholder = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`)

// Render substitutes {name} placeholders with each widget's readout.
// Placeholders that name no widget are left as written.
func (s *Set) Render(template string) string {
	return Expand(template, func(name string) (string, bool) {
		w, ok := s.widgets[name]
		if !ok {
			return "", false
		}
		return w.Readout(), true
	})
}

// Expand replaces each {name} in template with readout(name). Names for
// which readout reports false are kept verbatim.
func Expand(template string, readout func(name string) (string, bool)) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := readout(m[1 : len(m)-1]); ok {
			return v
		}
		return m
	})
}

// Descriptor is the serialisable form of a widget used to build page controls.
type Descriptor struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Kind     Kind     `json:"kind"`
	Options  []string `json:"options"`
	Selected []string `json:"selected"`
}

// Describe lists descriptors in declaration order.
func (s *Set) Describe() []Descriptor {
	out := make([]Descriptor, 0, len(s.order))
	for _, name := range s.order {
		w := s.widgets[name]
		out = append(out, Descriptor{
			Name:     name,
			Label:    w.Label(),
			Kind:     w.Kind(),
			Options:  w.Options(),
			Selected: w.Selected(),
		})
	}
	return out
}
