package diag

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestFormatShort(t *testing.T) {
	diags := []Diagnostic{
		NewError(LowNotAwaitable, Location{Lambda: "f", Node: 9}, "await of int\nat node 9"),
		New(SevWarning, ChkUnreachableState, Location{Lambda: "f", Node: 3}, "state 4").
			WithNote(Location{Lambda: "f", Node: 4}, "created here"),
	}
	want := "warning CHK2005 f#3 state 4\n" +
		"note CHK2005 f#4 created here\n" +
		"error LOW1001 f#9 await of int at node 9"
	if got := FormatShort(diags, true); got != want {
		t.Fatalf("unexpected output:\nwant:\n%s\n\ngot:\n%s", want, got)
	}
}

func TestBagLimit(t *testing.T) {
	bag := NewBag(2)
	loc := Location{Lambda: "g", Node: 1}
	if !bag.Add(NewError(LowJumpIntoTry, loc, "a")) || !bag.Add(NewError(LowJumpIntoTry, loc, "b")) {
		t.Fatalf("bag must accept up to its limit")
	}
	if bag.Add(NewError(IntDefect, loc, "c")) {
		t.Fatalf("bag must reject past its limit")
	}
}

func TestBagSortIsStable(t *testing.T) {
	bag := NewBag(0)
	bag.Add(NewError(LowJumpIntoTry, Location{Lambda: "g", Node: 5}, "late"))
	bag.Add(New(SevWarning, ChkUnreachableState, Location{Lambda: "g", Node: 2}, "warn"))
	bag.Add(NewError(LowNotAwaitable, Location{Lambda: "g", Node: 2}, "err"))
	bag.Add(NewError(LowNotAwaitable, Location{Lambda: "f", Node: 9}, "first"))
	bag.Sort()
	var got []string
	for _, d := range bag.Items() {
		got = append(got, d.Message)
	}
	if want := "first err warn late"; strings.Join(got, " ") != want {
		t.Fatalf("order %v, want %s", got, want)
	}
}

func TestAsError(t *testing.T) {
	bag := NewBag(4)
	if AsError(bag) != nil {
		t.Fatalf("empty bag must not be an error")
	}
	r := NewDedupReporter(BagReporter{Bag: bag})
	ReportError(r, LowAwaitInFilter, Location{Lambda: "h"}, "await in filter").Emit()
	ReportError(r, LowAwaitInFilter, Location{Lambda: "h"}, "await in filter").Emit()
	err := fmt.Errorf("lower: %w", AsError(bag))
	if !Has(err, LowAwaitInFilter) || Has(err, LowNoBackend) {
		t.Fatalf("Has must see through wrapping")
	}
	if bag.Len() != 1 {
		t.Fatalf("dedup reporter must suppress repeats")
	}
	var de *Error
	if !errors.As(err, &de) || de.Error() != "error LOW1002 h await in filter" {
		t.Fatalf("unexpected message %q", err)
	}
}
