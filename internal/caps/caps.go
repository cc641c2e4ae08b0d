// Package caps answers capability questions about Go types: whether values
// can be awaited, and what element type a sequence produces. Answers are
// computed by reflection once per type and shared between goroutines.
package caps

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"
)

var errorType = reflect.TypeFor[error]()

// AwaitInfo describes the awaiter protocol of an awaitable type.
type AwaitInfo struct {
	Type    reflect.Type
	Awaiter reflect.Type
	// Result is nil when GetResult produces no value.
	Result   reflect.Type
	Fallible bool
	// Configure is the result type of ConfigureAwait(bool), nil if absent.
	Configure reflect.Type
}

// IterInfo describes how elements are drawn from a sequence type.
type IterInfo struct {
	Type     reflect.Type
	Elem     reflect.Type
	Fallible bool
	Via      IterForm
}

// IterForm names the protocol used to range over a sequence.
type IterForm uint8

const (
	IterSeq IterForm = iota
	IterSeqErr
	IterSlice
	IterChan
	IterAll
)

func (f IterForm) String() string {
	switch f {
	case IterSeq:
		return "iter.Seq"
	case IterSeqErr:
		return "iter.Seq2[E, error]"
	case IterSlice:
		return "slice"
	case IterChan:
		return "chan"
	case IterAll:
		return "All()"
	default:
		return "unknown"
	}
}

var (
	awaitCache sync.Map // reflect.Type -> *AwaitInfo
	iterCache  sync.Map // reflect.Type -> *IterInfo
	group      singleflight.Group
)

func typeKey(prefix string, t reflect.Type) string {
	return fmt.Sprintf("%s:%p", prefix, t)
}

// Awaitable reports the awaiter protocol of t.
func Awaitable(t reflect.Type) (*AwaitInfo, bool) {
	if t == nil {
		return nil, false
	}
	if v, ok := awaitCache.Load(t); ok {
		info := v.(*AwaitInfo)
		return info, info != nil
	}
	v, _, _ := group.Do(typeKey("await", t), func() (any, error) {
		actual, _ := awaitCache.LoadOrStore(t, inspectAwaitable(t))
		return actual, nil
	})
	info := v.(*AwaitInfo)
	return info, info != nil
}

// Iterable reports how to range over t.
func Iterable(t reflect.Type) (*IterInfo, bool) {
	if t == nil {
		return nil, false
	}
	if v, ok := iterCache.Load(t); ok {
		info := v.(*IterInfo)
		return info, info != nil
	}
	v, _, _ := group.Do(typeKey("iter", t), func() (any, error) {
		actual, _ := iterCache.LoadOrStore(t, inspectIterable(t))
		return actual, nil
	})
	info := v.(*IterInfo)
	return info, info != nil
}

// Method returns the signature of t.name without the receiver.
func Method(t reflect.Type, name string) (reflect.Type, bool) {
	m, ok := t.MethodByName(name)
	if !ok {
		return nil, false
	}
	if t.Kind() == reflect.Interface {
		return m.Type, true
	}
	ft := m.Type
	in := make([]reflect.Type, 0, ft.NumIn()-1)
	for i := 1; i < ft.NumIn(); i++ {
		in = append(in, ft.In(i))
	}
	out := make([]reflect.Type, 0, ft.NumOut())
	for i := range ft.NumOut() {
		out = append(out, ft.Out(i))
	}
	return reflect.FuncOf(in, out, ft.IsVariadic()), true
}

func inspectAwaitable(t reflect.Type) *AwaitInfo {
	get, ok := Method(t, "GetAwaiter")
	if !ok || get.NumIn() != 0 || get.NumOut() != 1 {
		return nil
	}
	aw := get.Out(0)
	done, ok := Method(aw, "IsCompleted")
	if !ok || done.NumIn() != 0 || done.NumOut() != 1 || done.Out(0).Kind() != reflect.Bool {
		return nil
	}
	on, ok := Method(aw, "OnCompleted")
	if !ok || on.NumIn() != 1 || on.NumOut() != 0 || on.In(0) != reflect.TypeFor[func()]() {
		return nil
	}
	res, ok := Method(aw, "GetResult")
	if !ok || res.NumIn() != 0 {
		return nil
	}
	info := &AwaitInfo{Type: t, Awaiter: aw}
	n := res.NumOut()
	if n > 0 && res.Out(n-1) == errorType {
		info.Fallible = true
		n--
	}
	switch n {
	case 0:
	case 1:
		info.Result = res.Out(0)
	default:
		return nil
	}
	if cfg, ok := Method(t, "ConfigureAwait"); ok &&
		cfg.NumIn() == 1 && cfg.In(0).Kind() == reflect.Bool && cfg.NumOut() == 1 {
		info.Configure = cfg.Out(0)
	}
	return info
}

func inspectIterable(t reflect.Type) *IterInfo {
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return &IterInfo{Type: t, Elem: t.Elem(), Via: IterSlice}
	case reflect.Chan:
		if t.ChanDir()&reflect.RecvDir == 0 {
			return nil
		}
		return &IterInfo{Type: t, Elem: t.Elem(), Via: IterChan}
	case reflect.Func:
		return inspectSeq(t)
	}
	if all, ok := Method(t, "All"); ok && all.NumIn() == 0 && all.NumOut() == 1 {
		if inner := inspectSeq(all.Out(0)); inner != nil {
			inner.Type = t
			inner.Via = IterAll
			return inner
		}
	}
	return nil
}

// inspectSeq recognizes iter.Seq[E] and iter.Seq2[E, error] shapes,
// including named types with those underlying signatures.
func inspectSeq(t reflect.Type) *IterInfo {
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 0 {
		return nil
	}
	yield := t.In(0)
	if yield.Kind() != reflect.Func || yield.NumOut() != 1 || yield.Out(0).Kind() != reflect.Bool {
		return nil
	}
	switch yield.NumIn() {
	case 1:
		return &IterInfo{Type: t, Elem: yield.In(0), Via: IterSeq}
	case 2:
		if yield.In(1) != errorType {
			return nil
		}
		return &IterInfo{Type: t, Elem: yield.In(0), Fallible: true, Via: IterSeqErr}
	default:
		return nil
	}
}
