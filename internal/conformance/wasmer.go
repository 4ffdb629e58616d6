//go:build amd64 && cgo && !windows

package conformance

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/wasmi-project/wasmi/api"
)

// WasmerRuntime adapts wasmerio/wasmer-go to the Runtime seam, grounded on
// the teacher's own vs/wasmer package. A second, independent oracle matters
// here: a result that disagrees with wasmi but agrees with wasmtime is worth
// a closer look either way, but a result only wasmi and one oracle share
// stops looking like a real bug in this engine.
type WasmerRuntime struct {
	engine *wasmer.Engine
}

func NewWasmerRuntime() *WasmerRuntime {
	return &WasmerRuntime{engine: wasmer.NewEngine()}
}

func (r *WasmerRuntime) Name() string { return "wasmer" }

func (r *WasmerRuntime) Instantiate(wasmBinary []byte) (Module, error) {
	store := wasmer.NewStore(r.engine)
	mod, err := wasmer.NewModule(store, wasmBinary)
	if err != nil {
		return nil, err
	}
	instance, err := wasmer.NewInstance(mod, wasmer.NewImportObject())
	if err != nil {
		return nil, err
	}
	return &wasmerModule{store: store, module: mod, instance: instance}, nil
}

type wasmerModule struct {
	store    *wasmer.Store
	module   *wasmer.Module
	instance *wasmer.Instance
}

func (m *wasmerModule) Call(funcName string, args ...api.Value) ([]api.Value, error) {
	fn, err := m.instance.Exports.GetRawFunction(funcName)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("wasmer: %s is not an exported function", funcName)
	}
	wrArgs := make([]interface{}, len(args))
	for i, a := range args {
		v, err := toWasmer(a)
		if err != nil {
			return nil, err
		}
		wrArgs[i] = v
	}
	result, err := fn.Call(wrArgs...)
	if err != nil {
		return nil, err
	}
	return fromWasmerResult(fn, result)
}

func (m *wasmerModule) Close() error {
	if instance := m.instance; instance != nil {
		instance.Close()
	}
	m.instance = nil
	if mod := m.module; mod != nil {
		mod.Close()
	}
	m.module = nil
	if store := m.store; store != nil {
		store.Close()
	}
	m.store = nil
	return nil
}

func toWasmer(v api.Value) (interface{}, error) {
	switch v.Type {
	case api.ValueTypeI32:
		return v.AsI32(), nil
	case api.ValueTypeI64:
		return v.AsI64(), nil
	case api.ValueTypeF32:
		return v.AsF32(), nil
	case api.ValueTypeF64:
		return v.AsF64(), nil
	default:
		return nil, fmt.Errorf("wasmer: unsupported argument type %#x", v.Type)
	}
}

// fromWasmerResult normalizes wasmer-go's Call return the same way
// fromWasmtimeResult does for wasmtime: nil for zero results, a bare scalar
// for exactly one, a []wasmer.Value for more than one.
func fromWasmerResult(fn *wasmer.Function, result interface{}) ([]api.Value, error) {
	fnType := fn.FunctionType()
	resultTypes := fnType.Results()
	if result == nil {
		return nil, nil
	}
	if vals, ok := result.([]wasmer.Value); ok {
		out := make([]api.Value, len(vals))
		for i, v := range vals {
			out[i] = fromWasmerValue(v)
		}
		return out, nil
	}
	if len(resultTypes) != 1 {
		return nil, fmt.Errorf("wasmer: unexpected single-value result for a %d-result function", len(resultTypes))
	}
	return []api.Value{scalarToWasmerValue(result, resultTypes[0].Kind())}, nil
}

func fromWasmerValue(v wasmer.Value) api.Value {
	switch v.Kind() {
	case wasmer.I32:
		return api.I32(v.I32())
	case wasmer.I64:
		return api.I64(v.I64())
	case wasmer.F32:
		return api.F32(v.F32())
	case wasmer.F64:
		return api.F64(v.F64())
	default:
		panic(fmt.Sprintf("wasmer: unsupported result kind %v", v.Kind()))
	}
}

func scalarToWasmerValue(v interface{}, kind wasmer.ValueKind) api.Value {
	switch kind {
	case wasmer.I32:
		return api.I32(v.(int32))
	case wasmer.I64:
		return api.I64(v.(int64))
	case wasmer.F32:
		return api.F32(v.(float32))
	case wasmer.F64:
		return api.F64(v.(float64))
	default:
		panic(fmt.Sprintf("wasmer: unsupported result kind %v", kind))
	}
}
