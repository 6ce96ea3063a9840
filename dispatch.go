// File: dispatch.go
package activebody

import (
	"context"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	futureType  = reflect.TypeOf((*Future)(nil))
	rawType     = reflect.TypeOf(cbor.RawMessage(nil))
)

// invoke calls the method named by call on target.
//
// A leading context.Context parameter receives ctx. Supported results are
// (), (T), (error) and (T, error). A returned error is delivered as the
// result. A panic is delivered as a *PanicError when the method declares an
// error result; otherwise it is undeclared, and the returned error is the
// *UndeclaredError that was also put in the result.
func invoke(ctx context.Context, target any, call MethodCall) (res Result, undeclared error) {
	if target == nil {
		return Result{Err: ErrBodyTerminated}, nil
	}
	m := reflect.ValueOf(target).MethodByName(call.Name)
	if !m.IsValid() {
		return Result{Err: errors.Wrapf(ErrNoSuchMethod, "%s on %T", call.Name, target)}, nil
	}
	mt := m.Type()

	in, err := buildArgs(ctx, mt, call)
	if err != nil {
		return Result{Err: err}, nil
	}

	declaresErr := mt.NumOut() > 0 && mt.Out(mt.NumOut()-1) == errorType

	defer func() {
		if r := recover(); r != nil {
			if declaresErr {
				res = Result{Err: &PanicError{Method: call.Name, Value: r}}
				return
			}
			ue := &UndeclaredError{Method: call.Name, Cause: r}
			res = Result{Err: ue}
			undeclared = ue
		}
	}()

	var out []reflect.Value
	if mt.IsVariadic() {
		out = m.CallSlice(in)
	} else {
		out = m.Call(in)
	}

	switch len(out) {
	case 0:
		return Result{}, nil
	case 1:
		if declaresErr {
			return Result{Err: asError(out[0])}, nil
		}
		return Result{Value: out[0].Interface()}, nil
	default:
		return Result{Value: out[0].Interface(), Err: asError(out[len(out)-1])}, nil
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

func buildArgs(ctx context.Context, mt reflect.Type, call MethodCall) ([]reflect.Value, error) {
	first := 0
	var in []reflect.Value
	if mt.NumIn() > 0 && mt.In(0) == contextType {
		in = append(in, reflect.ValueOf(ctx))
		first = 1
	}
	params := mt.NumIn() - first
	args := call.Args

	if !mt.IsVariadic() {
		if len(args) != params {
			return nil, errors.Wrapf(ErrBadArguments, "%s expects %d arguments, got %d", call.Name, params, len(args))
		}
		for i, arg := range args {
			v, err := coerce(ctx, arg, mt.In(first+i))
			if err != nil {
				return nil, errors.Wrapf(err, "%s argument %d", call.Name, i)
			}
			in = append(in, v)
		}
		return in, nil
	}

	fixed := params - 1
	if len(args) < fixed {
		return nil, errors.Wrapf(ErrBadArguments, "%s expects at least %d arguments, got %d", call.Name, fixed, len(args))
	}
	for i := 0; i < fixed; i++ {
		v, err := coerce(ctx, args[i], mt.In(first+i))
		if err != nil {
			return nil, errors.Wrapf(err, "%s argument %d", call.Name, i)
		}
		in = append(in, v)
	}
	sliceType := mt.In(mt.NumIn() - 1)
	rest := reflect.MakeSlice(sliceType, 0, len(args)-fixed)
	for i := fixed; i < len(args); i++ {
		v, err := coerce(ctx, args[i], sliceType.Elem())
		if err != nil {
			return nil, errors.Wrapf(err, "%s argument %d", call.Name, i)
		}
		rest = reflect.Append(rest, v)
	}
	return append(in, rest), nil
}

// coerce turns v into a value of type t. Awaited futures are waited for
// unless t is *Future itself, and encoded values are decoded into t.
func coerce(ctx context.Context, v any, t reflect.Type) (reflect.Value, error) {
	for {
		f, ok := v.(*Future)
		if !ok || t == futureType {
			break
		}
		val, err := f.Get(ctx)
		if err != nil {
			return reflect.Value{}, errors.Wrapf(err, "future %s", f.id)
		}
		v = val
	}

	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		if t.Kind() == reflect.Interface {
			out := reflect.New(t).Elem()
			out.Set(rv)
			return out, nil
		}
		return rv, nil
	}
	if raw, ok := v.(cbor.RawMessage); ok && t != rawType {
		ptr := reflect.New(t)
		if err := cbor.Unmarshal(raw, ptr.Interface()); err != nil {
			return reflect.Value{}, errors.Wrapf(ErrBadArguments, "cannot decode into %s: %v", t, err)
		}
		return ptr.Elem(), nil
	}
	if rv.Type().ConvertibleTo(t) && (rv.Kind() == t.Kind() || (isNumeric(rv.Kind()) && isNumeric(t.Kind()))) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, errors.Wrapf(ErrBadArguments, "cannot use %T as %s", v, t)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
