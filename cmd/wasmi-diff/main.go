//go:build amd64 && cgo && !windows

// Command wasmi-diff runs one exported function through wasmi and the
// wasmtime/wasmer oracles in internal/conformance, reporting any
// disagreement. It exists for manually chasing down a suspected engine bug
// against a real module, without writing a one-off test.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/wasmi-project/wasmi/api"
	"github.com/wasmi-project/wasmi/internal/conformance"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

func doMain(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("wasmi-diff", flag.ContinueOnError)
	flags.SetOutput(stdErr)
	invoke := flags.String("invoke", "", "exported function name to call (required)")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 || *invoke == "" {
		fmt.Fprintln(stdErr, "usage: wasmi-diff --invoke <func> <path.wasm> [args...]")
		return 1
	}
	path := flags.Arg(0)
	rawArgs := flags.Args()[1:]

	bin, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	callArgs := make([]api.Value, len(rawArgs))
	for i, s := range rawArgs {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			fmt.Fprintln(stdErr, err)
			return 1
		}
		// Untyped CLI args are treated as i32 unless they overflow it; a
		// mismatched type against the export's actual signature surfaces as
		// an instantiate/call error from whichever runtime rejects it.
		if v >= -(1<<31) && v < (1<<31) {
			callArgs[i] = api.I32(int32(v))
		} else {
			callArgs[i] = api.I64(v)
		}
	}

	oracles := []conformance.Runtime{conformance.NewWasmtimeRuntime(), conformance.NewWasmerRuntime()}
	mismatch, err := conformance.Compare(bin, oracles, *invoke, callArgs...)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	if mismatch != nil {
		fmt.Fprintln(stdErr, mismatch.Error())
		return 1
	}
	fmt.Fprintln(stdOut, "ok: all runtimes agree")
	return 0
}
