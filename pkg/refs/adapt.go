package refs

import (
	"fmt"
	"reflect"
	"sync"
)

// AsObservable adapts any value with a method of the form
//
//	Subscribe(func(X)) F
//
// where F is a func() of any named type, into a Subscribable[any]. A
// callback taking no argument is also accepted and receives nil. Values
// without such a method fail with ErrNotObservable.
func AsObservable(v any) (Subscribable[any], error) {
	if isNil(v) {
		return nil, fmt.Errorf("%w: nil", ErrNotObservable)
	}
	if s, ok := v.(Subscribable[any]); ok {
		return s, nil
	}

	method := reflect.ValueOf(v).MethodByName("Subscribe")
	if !method.IsValid() {
		return nil, fmt.Errorf("%w: %T has no Subscribe method", ErrNotObservable, v)
	}
	mt := method.Type()
	if mt.NumIn() != 1 || mt.NumOut() != 1 {
		return nil, fmt.Errorf("%w: %T.Subscribe has signature %s", ErrNotObservable, v, mt)
	}
	cb := mt.In(0)
	if cb.Kind() != reflect.Func || cb.NumIn() > 1 || cb.NumOut() != 0 {
		return nil, fmt.Errorf("%w: %T.Subscribe callback has type %s", ErrNotObservable, v, cb)
	}
	out := mt.Out(0)
	if out.Kind() != reflect.Func || out.NumIn() != 0 || out.NumOut() != 0 {
		return nil, fmt.Errorf("%w: %T.Subscribe returns %s", ErrNotObservable, v, out)
	}
	return &reflectObservable{method: method, callback: cb}, nil
}

type reflectObservable struct {
	method   reflect.Value
	callback reflect.Type
}

func (o *reflectObservable) Subscribe(fn func(any)) Unsubscribe {
	if fn == nil {
		panic(fmt.Errorf("%w: nil subscriber", ErrNilFunc))
	}
	handler := reflect.MakeFunc(o.callback, func(args []reflect.Value) []reflect.Value {
		if len(args) == 0 {
			fn(nil)
		} else {
			fn(args[0].Interface())
		}
		return nil
	})

	unsub := o.method.Call([]reflect.Value{handler})[0]
	if unsub.IsNil() {
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			unsub.Call(nil)
		})
	}
}
