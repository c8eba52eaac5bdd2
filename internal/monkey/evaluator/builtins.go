package evaluator

import "github.com/codefionn/ronkey/internal/monkey/object"

var builtins = map[string]*object.Builtin{
	"len": {Fn: func(args ...object.Object) object.Object {
		if len(args) != 1 {
			return newError("wrong number of arguments. got=%d, want=1", len(args))
		}
		switch arg := args[0].(type) {
		case *object.String:
			return &object.Integer{Value: int64(len(arg.Value))}
		case *object.Array:
			return &object.Integer{Value: int64(len(arg.Elements))}
		default:
			return newError("argument to `len` not supported, got %s", args[0].Type())
		}
	}},
	"first": {Fn: func(args ...object.Object) object.Object {
		arr, errObj := arrayArg("first", args)
		if errObj != nil {
			return errObj
		}
		if len(arr.Elements) > 0 {
			return arr.Elements[0]
		}
		return NULL
	}},
	"last": {Fn: func(args ...object.Object) object.Object {
		arr, errObj := arrayArg("last", args)
		if errObj != nil {
			return errObj
		}
		if n := len(arr.Elements); n > 0 {
			return arr.Elements[n-1]
		}
		return NULL
	}},
	"rest": {Fn: func(args ...object.Object) object.Object {
		arr, errObj := arrayArg("rest", args)
		if errObj != nil {
			return errObj
		}
		n := len(arr.Elements)
		if n == 0 {
			return NULL
		}
		rest := make([]object.Object, n-1)
		copy(rest, arr.Elements[1:])
		return &object.Array{Elements: rest}
	}},
	"push": {Fn: func(args ...object.Object) object.Object {
		if len(args) != 2 {
			return newError("wrong number of arguments. got=%d, want=2", len(args))
		}
		arr, ok := args[0].(*object.Array)
		if !ok {
			return newError("argument to `push` must be ARRAY, got %s", args[0].Type())
		}
		elements := make([]object.Object, len(arr.Elements), len(arr.Elements)+1)
		copy(elements, arr.Elements)
		return &object.Array{Elements: append(elements, args[1])}
	}},
	// puts has nowhere to print on the server; the reply carries only the
	// statement's value.
	"puts": {Fn: func(args ...object.Object) object.Object {
		return NULL
	}},
}

func arrayArg(name string, args []object.Object) (*object.Array, *object.Error) {
	if len(args) != 1 {
		return nil, newError("wrong number of arguments. got=%d, want=1", len(args))
	}
	arr, ok := args[0].(*object.Array)
	if !ok {
		return nil, newError("argument to `%s` must be ARRAY, got %s", name, args[0].Type())
	}
	return arr, nil
}
