// Package asm implements the front-end parser and the two-pass assembler
// that translate assembly source into a stackvm memory image.
package asm

import "stackvm/internal/vm"

// Node is one assembled program element: a label declaration, or an
// instruction with zero, one, or two operands.
type Node interface {
	node()
}

// LabelNode records a named position in the emitted stream.
type LabelNode struct {
	Name string
}

func (LabelNode) node() {}

// NullaryNode is an instruction with no operands: Ret, Hlt, Nop.
type NullaryNode struct {
	Op string // "Ret" | "Hlt" | "Nop"
}

func (NullaryNode) node() {}

// UnaryNode is an instruction with one operand: Not, Jmp, Psh, Pop, Cal,
// Inc, Dec, Sys.
type UnaryNode struct {
	Op string
	A  Arg
}

func (UnaryNode) node() {}

// BinaryNode is an instruction with two operands: Mov, Add, Sub, Mul, Shl,
// Shr, And, Or, Xor, and the six conditional jumps (Jne, Jeq, Jlt, Jgt, Jle,
// Jge).
type BinaryNode struct {
	Op string
	A  Arg
	B  Arg
}

func (BinaryNode) node() {}

// Arg is an instruction operand: a literal, a register, a label reference,
// a memory dereference, or an offset dereference.
type Arg interface {
	arg()
}

// LitArg is a 16-bit literal.
type LitArg struct {
	Value uint16
}

func (LitArg) arg() {}

// RegArg is a register identifier.
type RegArg struct {
	Reg vm.Register
}

func (RegArg) arg() {}

// LabelArg refers to a label defined elsewhere in the program.
type LabelArg struct {
	Name string
}

func (LabelArg) arg() {}

// MemArg is a memory dereference; Inner must be a LitArg, LabelArg, or
// RegArg (a register used as a pointer).
type MemArg struct {
	Inner Arg
}

func (MemArg) arg() {}

// OffsetArg is the reserved `base + mem[inner]` addressing form. It is
// accepted by the parser but rejected by the assembler with an explicit
// error - see assembler.go.
type OffsetArg struct {
	Base  uint16
	Inner Arg
}

func (OffsetArg) arg() {}
