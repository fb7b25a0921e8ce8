package deps

import (
	"reflect"

	"github.com/pingcap/errors"
	"go.uber.org/dig"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Deps is a dependency container. Components are registered with Provide
// and are built on demand, once, when something depends on them.
type Deps struct {
	container *dig.Container
}

// NewDeps creates an empty container.
func NewDeps() *Deps {
	return &Deps{
		container: dig.New(),
	}
}

// Provide registers a constructor. Its parameters are resolved from the
// container when one of its results is needed.
func (d *Deps) Provide(constructor interface{}) error {
	return errors.Trace(d.container.Provide(constructor))
}

// Construct calls fn with its parameters resolved from the container and
// returns its first result. fn may return an error as its second result.
// The result is not added to the container.
func (d *Deps) Construct(fn interface{}) (interface{}, error) {
	fnVal := reflect.ValueOf(fn)
	fnTp := fnVal.Type()
	if fnTp.Kind() != reflect.Func || fnTp.NumOut() == 0 || fnTp.NumOut() > 2 {
		return nil, errors.Errorf("%s is not a valid constructor", fnTp)
	}
	if fnTp.NumOut() == 2 && fnTp.Out(1) != errorType {
		return nil, errors.Errorf("the second result of %s is not an error", fnTp)
	}

	ins := make([]reflect.Type, 0, fnTp.NumIn())
	for i := 0; i < fnTp.NumIn(); i++ {
		ins = append(ins, fnTp.In(i))
	}

	var ret interface{}
	invokeFn := reflect.MakeFunc(
		reflect.FuncOf(ins, []reflect.Type{errorType}, false),
		func(args []reflect.Value) []reflect.Value {
			results := fnVal.Call(args)
			ret = results[0].Interface()
			if len(results) == 2 {
				return []reflect.Value{results[1]}
			}
			return []reflect.Value{reflect.Zero(errorType)}
		})

	if err := d.container.Invoke(invokeFn.Interface()); err != nil {
		return nil, errors.Trace(err)
	}
	return ret, nil
}

// Fill populates the struct pointed to by params. The struct must embed
// dig.In.
func (d *Deps) Fill(params interface{}) error {
	target := reflect.ValueOf(params)
	if target.Kind() != reflect.Ptr || target.Elem().Kind() != reflect.Struct {
		return errors.Errorf("%T is not a pointer to struct", params)
	}

	fn := reflect.MakeFunc(
		reflect.FuncOf([]reflect.Type{target.Elem().Type()}, nil, false),
		func(args []reflect.Value) []reflect.Value {
			target.Elem().Set(args[0])
			return nil
		})
	return errors.Trace(d.container.Invoke(fn.Interface()))
}
