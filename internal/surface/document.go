package surface

import (
	"sort"
	"sync"

	"github.com/wilbur182/themesync/internal/theme"
)

// Class names and attribute carried by a Document root.
const (
	LightClass     = "theme-light"
	DarkClass      = "theme-dark"
	ThemeAttribute = "data-theme"
)

// ClassFor returns the root class that marks p.
func ClassFor(p theme.Preference) string {
	if p == theme.Light {
		return LightClass
	}
	return DarkClass
}

// Document is a root node carrying a class set and attributes. Anything may
// mutate it, so the theme classes can drift; Reflect repairs them.
type Document struct {
	mu      sync.RWMutex
	classes map[string]struct{}
	attrs   map[string]string
}

// NewDocument returns an empty document root.
func NewDocument() *Document {
	return &Document{
		classes: make(map[string]struct{}),
		attrs:   make(map[string]string),
	}
}

func (d *Document) Reflect(p theme.Preference) {
	want := ClassFor(p)
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.classes, LightClass)
	delete(d.classes, DarkClass)
	d.classes[want] = struct{}{}
	d.attrs[ThemeAttribute] = p.String()
}

func (d *Document) Reflected() (theme.Preference, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, light := d.classes[LightClass]
	_, dark := d.classes[DarkClass]
	switch {
	case light && !dark:
		return theme.Light, true
	case dark && !light:
		return theme.Dark, true
	}
	return "", false
}

// AddClass adds a class to the root.
func (d *Document) AddClass(name string) {
	d.mu.Lock()
	d.classes[name] = struct{}{}
	d.mu.Unlock()
}

// RemoveClass removes a class from the root.
func (d *Document) RemoveClass(name string) {
	d.mu.Lock()
	delete(d.classes, name)
	d.mu.Unlock()
}

// HasClass reports whether the root carries name.
func (d *Document) HasClass(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.classes[name]
	return ok
}

// Classes returns the root classes in sorted order.
func (d *Document) Classes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.classes))
	for c := range d.classes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// SetAttribute sets an attribute on the root.
func (d *Document) SetAttribute(name, value string) {
	d.mu.Lock()
	d.attrs[name] = value
	d.mu.Unlock()
}

// Attribute returns an attribute value.
func (d *Document) Attribute(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.attrs[name]
	return v, ok
}
