// Package wasmdebug builds the human-readable Wasm stack traces attached to
// panics recovered at the outermost Call boundary.
package wasmdebug

import (
	"fmt"
	"strings"

	"github.com/wasmi-project/wasmi/api"
)

// MaxFrames caps how many frames FromRecovered renders, so a pathologically
// deep call stack doesn't produce a multi-megabyte error string.
const MaxFrames = 1000

// FuncName formats a function's identity for display in a stack trace: the
// defining module name, a dot, and the function's own name. Functions
// without a name fall back to "$<index>", matching the Wasm text format's
// convention for anonymous functions.
func FuncName(moduleName, funcName string, funcIdx uint32) string {
	if funcName == "" {
		funcName = fmt.Sprintf("$%d", funcIdx)
	}
	return moduleName + "." + funcName
}

// signature appends a function's parameter and result types to name, e.g.
// "x.y(i32,f64) (i64,f32)". Zero results omits the trailing segment
// entirely; exactly one result omits the parens around it.
func signature(name string, paramTypes, resultTypes []api.ValueType) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, t := range paramTypes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(api.ValueTypeName(t))
	}
	sb.WriteByte(')')

	switch len(resultTypes) {
	case 0:
	case 1:
		sb.WriteByte(' ')
		sb.WriteString(api.ValueTypeName(resultTypes[0]))
	default:
		sb.WriteString(" (")
		for i, t := range resultTypes {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(api.ValueTypeName(t))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// ErrorBuilder accumulates call frames, innermost first, as the interpreter
// unwinds a panic, then renders them into a wrapped error. The zero value is
// not usable; construct one with NewErrorBuilder.
type ErrorBuilder interface {
	// AddFrame records one more frame in the call stack that was active when
	// the panic occurred. Callers add frames innermost-to-outermost, which
	// is also the order the trace is printed in: the function that actually
	// trapped comes first.
	AddFrame(name string, paramTypes, resultTypes []api.ValueType)

	// FromRecovered builds an error from a value recovered via recover().
	// The returned error's message is the cause's own message followed by
	// the accumulated stack trace, and errors.Unwrap on it returns the
	// recovered value itself when that is an error, or an error formatted
	// from it otherwise.
	FromRecovered(recovered interface{}) error
}

// NewErrorBuilder returns an empty ErrorBuilder.
func NewErrorBuilder() ErrorBuilder {
	return &errorBuilder{}
}

type errorBuilder struct {
	frames []string
}

func (b *errorBuilder) AddFrame(name string, paramTypes, resultTypes []api.ValueType) {
	if len(b.frames) >= MaxFrames {
		return
	}
	b.frames = append(b.frames, signature(name, paramTypes, resultTypes))
}

func (b *errorBuilder) FromRecovered(recovered interface{}) error {
	var cause error
	switch v := recovered.(type) {
	case error:
		cause = v
	default:
		cause = fmt.Errorf("%v", v)
	}

	var sb strings.Builder
	sb.WriteString(cause.Error())
	if len(b.frames) > 0 {
		sb.WriteString("\nwasm stack trace:")
		for _, f := range b.frames {
			sb.WriteString("\n\t")
			sb.WriteString(f)
		}
	}
	return &recoveredError{cause: cause, message: sb.String()}
}

type recoveredError struct {
	cause   error
	message string
}

func (e *recoveredError) Error() string { return e.message }
func (e *recoveredError) Unwrap() error { return e.cause }
