package caps

import (
	"iter"
	"reflect"
	"sync"
	"testing"
)

type awaiter struct{}

func (awaiter) IsCompleted() bool       { return true }
func (awaiter) OnCompleted(func())      {}
func (awaiter) GetResult() (int, error) { return 1, nil }

type voidAwaiter struct{}

func (voidAwaiter) IsCompleted() bool  { return true }
func (voidAwaiter) OnCompleted(func()) {}
func (voidAwaiter) GetResult()         {}

type job struct{}

func (job) GetAwaiter() awaiter         { return awaiter{} }
func (job) ConfigureAwait(bool) voidJob { return voidJob{} }

type voidJob struct{}

func (voidJob) GetAwaiter() voidAwaiter { return voidAwaiter{} }

type broken struct{}

func (broken) GetAwaiter() int { return 0 }

type bag struct{}

func (bag) All() iter.Seq[string] { return nil }

func TestAwaitable(t *testing.T) {
	info, ok := Awaitable(reflect.TypeFor[job]())
	if !ok {
		t.Fatalf("job must be awaitable")
	}
	if info.Result != reflect.TypeFor[int]() || !info.Fallible {
		t.Fatalf("unexpected result %v fallible=%t", info.Result, info.Fallible)
	}
	if info.Configure != reflect.TypeFor[voidJob]() {
		t.Fatalf("configure type %v", info.Configure)
	}
	vinfo, ok := Awaitable(reflect.TypeFor[voidJob]())
	if !ok || vinfo.Result != nil || vinfo.Fallible {
		t.Fatalf("voidJob: %+v ok=%t", vinfo, ok)
	}
	for _, typ := range []reflect.Type{reflect.TypeFor[broken](), reflect.TypeFor[int](), nil} {
		if _, ok := Awaitable(typ); ok {
			t.Fatalf("%v must not be awaitable", typ)
		}
	}
}

func TestAwaitableConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]*AwaitInfo, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = Awaitable(reflect.TypeFor[*job]())
		}()
	}
	wg.Wait()
	for _, r := range results {
		if r != results[0] || r == nil {
			t.Fatalf("all callers must observe the same cached info")
		}
	}
}

func TestIterable(t *testing.T) {
	tests := []struct {
		typ      reflect.Type
		elem     reflect.Type
		via      IterForm
		fallible bool
	}{
		{reflect.TypeFor[[]int](), reflect.TypeFor[int](), IterSlice, false},
		{reflect.TypeFor[<-chan string](), reflect.TypeFor[string](), IterChan, false},
		{reflect.TypeFor[iter.Seq[int]](), reflect.TypeFor[int](), IterSeq, false},
		{reflect.TypeFor[iter.Seq2[int, error]](), reflect.TypeFor[int](), IterSeqErr, true},
		{reflect.TypeFor[bag](), reflect.TypeFor[string](), IterAll, false},
	}
	for _, tt := range tests {
		info, ok := Iterable(tt.typ)
		if !ok {
			t.Fatalf("%v must be iterable", tt.typ)
		}
		if info.Elem != tt.elem || info.Via != tt.via || info.Fallible != tt.fallible {
			t.Fatalf("%v: got %+v", tt.typ, info)
		}
	}
	if _, ok := Iterable(reflect.TypeFor[iter.Seq2[int, int]]()); ok {
		t.Fatalf("Seq2 without error must be rejected")
	}
	if _, ok := Iterable(reflect.TypeFor[chan<- int]()); ok {
		t.Fatalf("send-only channel must be rejected")
	}
}
