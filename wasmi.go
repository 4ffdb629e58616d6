// Package wasmi is an embeddable WebAssembly Core interpreter: decode a
// module, instantiate it against a host's imported functions, and call its
// exports. It implements the MVP (20191205) plus the sign-extension,
// non-trapping float-to-int and bulk-memory proposals.
package wasmi

import (
	"fmt"
	"io"
	"os"

	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/engine/interpreter"
	"github.com/wasmi-project/wasmi/internal/features"
	"github.com/wasmi-project/wasmi/internal/wasm"
	"github.com/wasmi-project/wasmi/internal/wasm/binary"
	"github.com/wasmi-project/wasmi/internal/wasmlog"
)

// Config controls how a Machine is built: which proposals beyond the MVP are
// enabled, and instruction/call tracing. The zero value is not usable
// directly; start from NewConfig.
type Config struct {
	features features.Features
	logLevel wasmlog.Level
	logW     io.Writer
}

// NewConfig returns the default Config: every supported proposal
// (sign-extension, non-trapping float-to-int, bulk-memory) enabled, tracing
// off.
func NewConfig() *Config {
	return &Config{features: features.All}
}

func (c *Config) clone() *Config {
	ret := *c
	return &ret
}

// WithFeatures replaces the enabled proposal set. Use this to pin a Machine
// to exactly the MVP (features.None) for conformance testing against
// pre-proposal modules.
func (c *Config) WithFeatures(f features.Features) *Config {
	ret := c.clone()
	ret.features = f
	return ret
}

// WithInstructionLogging enables per-instruction trace output to w (see
// internal/wasmlog), primarily for debugging the interpreter itself; this is
// far too noisy for production use. A nil w defaults to os.Stderr.
func (c *Config) WithInstructionLogging(w io.Writer) *Config {
	ret := c.clone()
	ret.logLevel = wasmlog.LevelInstruction
	ret.logW = w
	return ret
}

// WithCallLogging enables call-enter/call-exit trace output to w, without
// the per-instruction volume of WithInstructionLogging. A nil w defaults to
// os.Stderr.
func (c *Config) WithCallLogging(w io.Writer) *Config {
	ret := c.clone()
	ret.logLevel = wasmlog.LevelCall
	ret.logW = w
	return ret
}

// HostModule is a named collection of host functions a guest module can
// import from. Build one with NewHostModule.
type HostModule = wasm.HostModule

// NewHostModule returns an empty HostModule registered under name (the
// guest's import module string); chain ExportFunction calls to populate it.
func NewHostModule(name string) *HostModule { return wasm.NewHostModule(name) }

// Machine is one instantiated module, ready to have its exported functions
// called. It is not safe for concurrent use.
type Machine struct {
	name string
	inst *wasm.ModuleInstance
	in   *interpreter.Interpreter
}

// Instantiate decodes wasmBinary and instantiates it as a Machine named
// name, resolving its imports against hosts in order (first module whose
// name matches an import wins).
func Instantiate(name string, wasmBinary []byte, hosts []*HostModule, cfg *Config) (*Machine, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	mod, err := binary.DecodeModule(wasmBinary)
	if err != nil {
		return nil, err
	}
	inst, err := wasm.Instantiate(mod, wasm.HostModules(hosts).Lookup)
	if err != nil {
		return nil, err
	}

	var logger *wasmlog.Logger
	if cfg.logLevel != wasmlog.LevelOff {
		w := cfg.logW
		if w == nil {
			w = os.Stderr
		}
		logger = wasmlog.New(cfg.logLevel, w)
	}

	in := interpreter.New(inst,
		interpreter.WithFeatures(cfg.features),
		interpreter.WithLogger(logger),
		interpreter.WithModuleName(name),
	)

	m := &Machine{name: name, inst: inst, in: in}
	if mod.StartFunc != nil {
		if _, err := m.in.Call(*mod.StartFunc, nil, false); err != nil {
			return nil, fmt.Errorf("wasmi: start function: %w", err)
		}
	}
	return m, nil
}

// Call invokes the exported function named export with args, returning its
// result values. A trap or engine error is returned as an *wasmdebug error
// carrying the unwound call stack (see internal/wasmdebug.ErrorBuilder).
func (m *Machine) Call(export string, args ...api.Value) ([]api.Value, error) {
	idx, ok := m.inst.ExportedFunctionIndex(export)
	if !ok {
		return nil, fmt.Errorf("wasmi: no exported function %q", export)
	}
	return m.in.Call(idx, args, true)
}

// Module returns the decoded module this Machine was instantiated from, for
// callers that need to inspect its type/export tables directly (e.g. the
// validate CLI subcommand).
func (m *Machine) Module() *wasm.Module { return m.inst.Module() }

// PrintStackTrace writes err's message to w unchanged, if err came from a
// trapped or engine-error Call; this exists only so callers don't need to
// know Call's errors are already fully rendered (wasmdebug.ErrorBuilder
// builds the "wasm stack trace:" block at recovery time, not here).
func (m *Machine) PrintStackTrace(w io.Writer, err error) {
	fmt.Fprintln(w, err.Error())
}
