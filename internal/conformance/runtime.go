// Package conformance runs the same binary module through wasmi and one or
// more independent Wasm runtimes and compares the results, so a bug in this
// engine's numeric or control-flow semantics shows up as a disagreement
// rather than only as an internal test assertion. The oracle backends
// (wasmtime.go, wasmer.go) are cgo-gated and live in files with their own
// build tags; this file only defines the shared seam they implement.
package conformance

import (
	"fmt"

	"github.com/wasmi-project/wasmi"
	"github.com/wasmi-project/wasmi/api"
)

// Runtime compiles and instantiates one .wasm module at a time. It mirrors
// the narrow vs.Runtime/vs.Module seam used for benchmarking, reduced to
// what a differential oracle needs: call an export, read back its results.
type Runtime interface {
	Name() string
	Instantiate(wasmBinary []byte) (Module, error)
}

// Module is one instantiated module, ready to call exports by name.
type Module interface {
	Call(funcName string, args ...api.Value) ([]api.Value, error)
	Close() error
}

// WasmiRuntime adapts wasmi itself to the Runtime seam, so the differential
// harness can treat "the engine under test" and "the oracles" uniformly.
type WasmiRuntime struct {
	Config *wasmi.Config
}

func (r *WasmiRuntime) Name() string { return "wasmi" }

func (r *WasmiRuntime) Instantiate(wasmBinary []byte) (Module, error) {
	cfg := r.Config
	if cfg == nil {
		cfg = wasmi.NewConfig()
	}
	m, err := wasmi.Instantiate("conformance", wasmBinary, nil, cfg)
	if err != nil {
		return nil, err
	}
	return &wasmiModule{m: m}, nil
}

type wasmiModule struct{ m *wasmi.Machine }

func (m *wasmiModule) Call(funcName string, args ...api.Value) ([]api.Value, error) {
	return m.m.Call(funcName, args...)
}

func (m *wasmiModule) Close() error { return nil }

// Mismatch describes a single disagreement found by Compare.
type Mismatch struct {
	FuncName   string
	Args       []api.Value
	WasmiOut   []api.Value
	WasmiErr   error
	OracleName string
	OracleOut  []api.Value
	OracleErr  error
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("%s(%v): wasmi=%v/%v, %s=%v/%v",
		m.FuncName, m.Args, m.WasmiOut, m.WasmiErr, m.OracleName, m.OracleOut, m.OracleErr)
}

// Compare runs funcName(args...) against wasmi and every oracle, returning a
// *Mismatch for the first disagreement (nil if all agree). Agreement means:
// either both trap/error (message content is not compared - trap wording is
// not part of this engine's contract with any other runtime) or both return
// the same result vector, value-for-value.
func Compare(wasmBinary []byte, oracles []Runtime, funcName string, args ...api.Value) (*Mismatch, error) {
	wasmiRT := &WasmiRuntime{}
	wasmiMod, err := wasmiRT.Instantiate(wasmBinary)
	if err != nil {
		return nil, fmt.Errorf("conformance: wasmi instantiate: %w", err)
	}
	defer wasmiMod.Close()

	wasmiOut, wasmiErr := wasmiMod.Call(funcName, args...)

	for _, oracle := range oracles {
		oracleMod, err := oracle.Instantiate(wasmBinary)
		if err != nil {
			return nil, fmt.Errorf("conformance: %s instantiate: %w", oracle.Name(), err)
		}
		oracleOut, oracleErr := oracleMod.Call(funcName, args...)
		_ = oracleMod.Close()

		if (wasmiErr == nil) != (oracleErr == nil) {
			return &Mismatch{funcName, args, wasmiOut, wasmiErr, oracle.Name(), oracleOut, oracleErr}, nil
		}
		if wasmiErr == nil && !valuesEqual(wasmiOut, oracleOut) {
			return &Mismatch{funcName, args, wasmiOut, wasmiErr, oracle.Name(), oracleOut, oracleErr}, nil
		}
	}
	return nil, nil
}

func valuesEqual(a, b []api.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || a[i].Bits() != b[i].Bits() {
			return false
		}
	}
	return true
}
