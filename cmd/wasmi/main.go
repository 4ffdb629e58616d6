package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/wasmi-project/wasmi"
	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/wasm"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated out from main so tests can drive it with an arbitrary
// argv and capture its output instead of the process's real stdout/stderr.
func doMain(args []string, stdOut, stdErr io.Writer) int {
	if len(args) < 1 {
		printUsage(stdErr)
		return 1
	}

	switch args[0] {
	case "run":
		return doRun(args[1:], stdOut, stdErr)
	case "validate":
		return doValidate(args[1:], stdOut, stdErr)
	default:
		fmt.Fprintf(stdErr, "invalid command %q\n", args[0])
		printUsage(stdErr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: wasmi <run|validate> <path.wasm> [flags]")
}

func doRun(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	flags.SetOutput(stdErr)

	invoke := flags.String("invoke", "", "exported function name to call after instantiation")
	trace := flags.Bool("trace", false, "log every instruction dispatched to stderr")
	_ = flags.Parse(args)

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm file")
		return 1
	}
	path := flags.Arg(0)
	callArgs := flags.Args()[1:]

	bin, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	cfg := wasmi.NewConfig()
	if *trace {
		cfg = cfg.WithInstructionLogging(stdErr)
	}

	m, err := wasmi.Instantiate(path, bin, nil, cfg)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	if *invoke == "" {
		return 0
	}

	args2, err := parseArgs(m, *invoke, callArgs)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	results, err := m.Call(*invoke, args2...)
	if err != nil {
		m.PrintStackTrace(stdErr, err)
		return 1
	}
	for _, r := range results {
		fmt.Fprintln(stdOut, r.String())
	}
	return 0
}

// parseArgs converts the CLI's plain decimal strings into typed api.Values
// matching the invoked export's declared parameter types, so callers can
// write "wasmi run a.wasm --invoke fac 5" without naming the type.
func parseArgs(m *wasmi.Machine, export string, raw []string) ([]api.Value, error) {
	idx, ok := m.Module().Exports[export]
	if !ok || idx.Kind != 0 {
		return nil, fmt.Errorf("wasmi: no exported function %q", export)
	}
	ft := m.Module().Functions[idx.Index].Type
	if len(raw) != len(ft.Params) {
		return nil, fmt.Errorf("wasmi: %s takes %d argument(s), got %d", export, len(ft.Params), len(raw))
	}
	out := make([]api.Value, len(raw))
	for i, s := range raw {
		switch ft.Params[i] {
		case api.ValueTypeI32:
			v, err := strconv.ParseInt(s, 10, 32)
			if err != nil {
				return nil, err
			}
			out[i] = api.I32(int32(v))
		case api.ValueTypeI64:
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, err
			}
			out[i] = api.I64(v)
		case api.ValueTypeF32:
			v, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, err
			}
			out[i] = api.F32(float32(v))
		case api.ValueTypeF64:
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, err
			}
			out[i] = api.F64(v)
		default:
			return nil, fmt.Errorf("wasmi: unsupported parameter type %#x", ft.Params[i])
		}
	}
	return out, nil
}

func doValidate(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("validate", flag.ExitOnError)
	flags.SetOutput(stdErr)
	_ = flags.Parse(args)

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm file")
		return 1
	}
	path := flags.Arg(0)

	bin, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	m, err := wasmi.Instantiate(path, bin, nil, wasmi.NewConfig())
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	mod := m.Module()
	fmt.Fprintf(stdOut, "%s: ok, %d function(s), %d export(s)\n", path, len(mod.Functions), len(mod.Exports))
	for i, fn := range mod.Functions {
		kind := "local"
		if fn.IsImport() {
			kind = "import " + fn.ImportModule + "." + fn.ImportName
		}
		fmt.Fprintf(stdOut, "  func[%d] %s %s\n", i, signatureString(fn.Type), kind)
	}
	return 0
}

// signatureString renders a function type as e.g. "(i32,i64) -> f64", or
// "()" for a type with no results.
func signatureString(ft *wasm.FunctionType) string {
	s := "("
	for i, t := range ft.Params {
		if i > 0 {
			s += ","
		}
		s += api.ValueTypeName(t)
	}
	s += ")"
	if len(ft.Results) > 0 {
		s += " ->"
		for _, t := range ft.Results {
			s += " " + api.ValueTypeName(t)
		}
	}
	return s
}
