package wasmlog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_Off(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelOff, &buf)
	l.CallEnter("x.y", []string{"i32:1"})
	l.Instruction("I32_ADD")
	l.CallExit("x.y", []string{"i32:2"})
	require.Empty(t, buf.String())
}

func TestLogger_Call(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelCall, &buf)
	l.CallEnter("x.y", []string{"i32:1", "i32:2"})
	l.Instruction("I32_ADD") // suppressed: below LevelInstruction
	l.CallExit("x.y", []string{"i32:3"})
	require.Equal(t, "==> x.y(i32:1,i32:2)\n<== x.y(i32:3)\n", buf.String())
}

func TestLogger_Instruction(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelInstruction, &buf)
	l.CallEnter("x.y", nil)
	l.Instruction("I32_CONST", int32(1))
	l.CallExit("x.y", []string{"i32:1"})
	require.Equal(t, "==> x.y()\n\tI32_CONST [1]\n<== x.y(i32:1)\n", buf.String())
}

func TestLogger_NilWriterForcesOff(t *testing.T) {
	l := New(LevelInstruction, nil)
	require.False(t, l.Enabled(LevelCall))
}
