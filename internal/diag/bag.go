package diag

import "sort"

type Bag struct {
	items []Diagnostic
	max   uint16
}

func NewBag(max int) *Bag {
	if max <= 0 || max > 0xffff {
		max = 0xffff
	}
	return &Bag{
		items: make([]Diagnostic, 0, min(max, 16)),
		max:   uint16(max),
	}
}

// Add appends d unless the bag is full, in which case it reports false.
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= int(b.max) {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Cap() uint16 {
	return b.max
}

// HasErrors reports whether any diagnostic is an error.
func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

func (b *Bag) HasWarnings() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevWarning {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns the diagnostics in report order. Callers must not modify it.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// First returns the first diagnostic with the given code.
func (b *Bag) First(code Code) (Diagnostic, bool) {
	for _, d := range b.items {
		if d.Code == code {
			return d, true
		}
	}
	return Diagnostic{}, false
}

// Sort orders by lambda, node, severity (desc) and code so output is stable.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		di, dj := b.items[i], b.items[j]
		if di.Primary.Lambda != dj.Primary.Lambda {
			return di.Primary.Lambda < dj.Primary.Lambda
		}
		if di.Primary.Node != dj.Primary.Node {
			return di.Primary.Node < dj.Primary.Node
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		return di.Code < dj.Code
	})
}
