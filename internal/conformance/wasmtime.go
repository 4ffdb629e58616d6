//go:build amd64 && cgo

package conformance

import (
	"fmt"

	"github.com/bytecodealliance/wasmtime-go"

	"github.com/wasmi-project/wasmi/api"
)

// WasmtimeRuntime adapts bytecodealliance/wasmtime-go to the Runtime seam,
// grounded on the teacher's own vs/wasmtime package: one *wasmtime.Engine
// shared across instantiations, one *wasmtime.Store per module (wasmtime
// only tears down via finalizer, so there is nothing to explicitly free).
type WasmtimeRuntime struct {
	engine *wasmtime.Engine
}

func NewWasmtimeRuntime() *WasmtimeRuntime {
	return &WasmtimeRuntime{engine: wasmtime.NewEngine()}
}

func (r *WasmtimeRuntime) Name() string { return "wasmtime" }

func (r *WasmtimeRuntime) Instantiate(wasmBinary []byte) (Module, error) {
	store := wasmtime.NewStore(r.engine)
	mod, err := wasmtime.NewModule(store.Engine, wasmBinary)
	if err != nil {
		return nil, err
	}
	instance, err := wasmtime.NewInstance(store, mod, nil)
	if err != nil {
		return nil, err
	}
	return &wasmtimeModule{store: store, instance: instance}, nil
}

type wasmtimeModule struct {
	store    *wasmtime.Store
	instance *wasmtime.Instance
}

func (m *wasmtimeModule) Call(funcName string, args ...api.Value) ([]api.Value, error) {
	fn := m.instance.GetFunc(m.store, funcName)
	if fn == nil {
		return nil, fmt.Errorf("wasmtime: %s is not an exported function", funcName)
	}
	wtArgs := make([]interface{}, len(args))
	for i, a := range args {
		v, err := toWasmtime(a)
		if err != nil {
			return nil, err
		}
		wtArgs[i] = v
	}
	result, err := fn.Call(m.store, wtArgs...)
	if err != nil {
		return nil, err
	}
	return fromWasmtimeResult(fn, m.store, result)
}

func (m *wasmtimeModule) Close() error {
	m.instance = nil
	m.store = nil
	return nil
}

func toWasmtime(v api.Value) (interface{}, error) {
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
		return nil, fmt.Errorf("wasmtime: unsupported argument type %#x", v.Type)
	}
}

// fromWasmtimeResult normalizes wasmtime-go's Call return, which is nil for
// zero results, a bare value for exactly one, and a []wasmtime.Val for more
// than one.
func fromWasmtimeResult(fn *wasmtime.Func, store *wasmtime.Store, result interface{}) ([]api.Value, error) {
	resultTypes := fn.Type(store).Results()
	if result == nil {
		return nil, nil
	}
	if vals, ok := result.([]wasmtime.Val); ok {
		out := make([]api.Value, len(vals))
		for i, v := range vals {
			out[i] = fromWasmtimeVal(v)
		}
		return out, nil
	}
	if len(resultTypes) != 1 {
		return nil, fmt.Errorf("wasmtime: unexpected single-value result for a %d-result function", len(resultTypes))
	}
	return []api.Value{scalarToValue(result, resultTypes[0].Kind())}, nil
}

func fromWasmtimeVal(v wasmtime.Val) api.Value {
	switch v.Kind() {
	case wasmtime.KindI32:
		return api.I32(v.I32())
	case wasmtime.KindI64:
		return api.I64(v.I64())
	case wasmtime.KindF32:
		return api.F32(v.F32())
	case wasmtime.KindF64:
		return api.F64(v.F64())
	default:
		panic(fmt.Sprintf("wasmtime: unsupported result kind %v", v.Kind()))
	}
}

func scalarToValue(v interface{}, kind wasmtime.ValKind) api.Value {
	switch kind {
	case wasmtime.KindI32:
		return api.I32(v.(int32))
	case wasmtime.KindI64:
		return api.I64(v.(int64))
	case wasmtime.KindF32:
		return api.F32(v.(float32))
	case wasmtime.KindF64:
		return api.F64(v.(float64))
	default:
		panic(fmt.Sprintf("wasmtime: unsupported result kind %v", kind))
	}
}
