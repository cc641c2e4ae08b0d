package report

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"asyncexpr/internal/asyncrt"
	"asyncexpr/internal/expr"
	"asyncexpr/internal/lower"
)

func lowered(t *testing.T) *lower.Result {
	t.Helper()
	body := expr.Add(
		expr.Await(expr.Const(asyncrt.FromResult(1))),
		expr.Await(expr.Const(asyncrt.FromResult(2))))
	lambda := expr.AsyncLambda("sum", reflect.TypeFor[*asyncrt.Task[int]](), nil, body)
	res, err := lower.Lower(context.Background(), lambda, lower.Options{Debug: true})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return res
}

func TestFromResultListsStates(t *testing.T) {
	res := lowered(t)
	rec, err := FromResult("sum", res)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Kind != "async" || len(rec.Machines) != 1 {
		t.Fatalf("kind %q with %d machines", rec.Kind, len(rec.Machines))
	}
	if got, want := rec.StateCount(), len(res.Root().States); got != want {
		t.Fatalf("recorded %d states, want %d", got, want)
	}
	for i, st := range rec.Machines[0].States {
		if int(st.ID) != i || st.Name == "" {
			t.Fatalf("state %d recorded as %+v", i, st)
		}
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := OpenCache(t.TempDir(), "asyncexpr")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec, err := FromResult("sum", lowered(t))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	rec.SetOutcome(3, nil, 4, nil)
	key := Key("sum", "dev", "debug")

	if _, ok, err := c.Get(key); ok || err != nil {
		t.Fatalf("empty cache hit: %v, %v", ok, err)
	}
	if err := c.Put(key, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("get: %v, %v", ok, err)
	}
	if got.Value != "3" || got.Steps != 4 || got.StateCount() != rec.StateCount() {
		t.Fatalf("cached %+v", got)
	}
	if _, ok, _ := c.Get(Key("sum", "dev", "optimized")); ok {
		t.Fatalf("different options hit the same entry")
	}
	if err := c.DropAll(); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, ok, _ := c.Get(key); ok {
		t.Fatalf("entry survived DropAll")
	}
}

func TestDecodeRejectsOtherSchema(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, []*Record{{Schema: schemaVersion + 1, Name: "old"}}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(&buf); err == nil {
		t.Fatalf("decoded a record from another schema")
	}
}

func TestWriteTable(t *testing.T) {
	good := &Record{Name: "await-add", Kind: "async", Value: "3"}
	bad := &Record{Name: "try", Kind: "async", Err: "stop", Failure: "try: error stop, want nil"}
	var buf bytes.Buffer
	if err := WriteTable(&buf, []*Record{good, bad}, Style{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"ok   await-add", "FAIL try      ", "error: stop", "1 passed, 1 failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output lacks %q:\n%s", want, out)
		}
	}
}
