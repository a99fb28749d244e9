package asm

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"stackvm/internal/vm"
)

type patchEntry struct {
	name   string
	offset int
}

// Assembler is a single-pass emitter with deferred label patching: label
// addresses are recorded as they're encountered, forward references are
// reserved as two zero bytes and queued, and a final patch pass fills them
// in. The emit* methods below select one instruction form per operand shape.
type Assembler struct {
	buf          []byte
	cursor       int
	labelAddrs   map[string]uint16
	needPatching []patchEntry
}

func newAssembler(size int) *Assembler {
	return &Assembler{
		buf:        make([]byte, size),
		labelAddrs: make(map[string]uint16),
	}
}

func (a *Assembler) emitByte(b byte) error {
	if a.cursor >= len(a.buf) {
		return fmt.Errorf("program exceeds memory size (%d bytes)", len(a.buf))
	}
	a.buf[a.cursor] = b
	a.cursor++
	return nil
}

func (a *Assembler) emitU16(v uint16) error {
	if a.cursor+2 > len(a.buf) {
		return fmt.Errorf("program exceeds memory size (%d bytes)", len(a.buf))
	}
	a.buf[a.cursor] = byte(v >> 8)
	a.buf[a.cursor+1] = byte(v)
	a.cursor += 2
	return nil
}

// emitAddr emits a 2-byte address operand. If arg is a label reference, two
// zero bytes are reserved and the reference is queued for the patch pass;
// a literal address is emitted immediately.
func (a *Assembler) emitAddr(op string, arg Arg) error {
	switch v := arg.(type) {
	case LabelArg:
		if a.cursor+2 > len(a.buf) {
			return fmt.Errorf("program exceeds memory size (%d bytes)", len(a.buf))
		}
		a.needPatching = append(a.needPatching, patchEntry{name: v.Name, offset: a.cursor})
		a.cursor += 2
		return nil
	case LitArg:
		return a.emitU16(v.Value)
	default:
		return &InvalidArgumentError{Op: op, Arg: arg, Msg: "expected a label or literal address"}
	}
}

// Assemble translates a parsed node sequence into a sealed Memory image of
// size memSize. Positions beyond the last emitted byte remain zero.
func Assemble(nodes []Node, memSize int) (*vm.Memory, error) {
	a := newAssembler(memSize)

	for _, n := range nodes {
		if err := a.emit(n); err != nil {
			return nil, err
		}
	}

	for _, p := range a.needPatching {
		addr, ok := a.labelAddrs[p.name]
		if !ok {
			return nil, &InvalidLabelError{Name: p.name}
		}
		a.buf[p.offset] = byte(addr >> 8)
		a.buf[p.offset+1] = byte(addr)
	}

	return vm.NewMemoryFromBytes(a.buf), nil
}

func (a *Assembler) emit(n Node) error {
	switch node := n.(type) {
	case LabelNode:
		a.labelAddrs[node.Name] = uint16(a.cursor)
		return nil
	case NullaryNode:
		return a.emitNullary(node)
	case UnaryNode:
		return a.emitUnary(node)
	case BinaryNode:
		return a.emitBinary(node)
	default:
		return fmt.Errorf("unknown node type %T", n)
	}
}

func (a *Assembler) trace(op vm.Opcode, before int) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	log.Debugf("asm: 0x%04X: %s %X", before, op, a.buf[before:a.cursor])
}

func (a *Assembler) emitNullary(n NullaryNode) error {
	var op vm.Opcode
	switch n.Op {
	case "Ret":
		op = vm.Ret
	case "Hlt":
		op = vm.Hlt
	case "Nop":
		op = vm.Nop
	default:
		return fmt.Errorf("unknown nullary op %q", n.Op)
	}
	before := a.cursor
	if err := a.emitByte(byte(op)); err != nil {
		return err
	}
	a.trace(op, before)
	return nil
}

func (a *Assembler) emitUnary(n UnaryNode) error {
	before := a.cursor
	switch n.Op {
	case "Not":
		reg, ok := n.A.(RegArg)
		if !ok {
			return &InvalidArgumentError{Op: "Not", Arg: n.A, Msg: "expected a register"}
		}
		if err := a.emitByte(byte(vm.NotReg)); err != nil {
			return err
		}
		if err := a.emitByte(byte(reg.Reg)); err != nil {
			return err
		}
		a.trace(vm.NotReg, before)

	case "Jmp":
		if err := a.emitByte(byte(vm.Jmp)); err != nil {
			return err
		}
		if err := a.emitAddr("Jmp", n.A); err != nil {
			return err
		}
		a.trace(vm.Jmp, before)

	case "Psh":
		switch v := n.A.(type) {
		case LitArg:
			if err := a.emitByte(byte(vm.PshLit)); err != nil {
				return err
			}
			if err := a.emitU16(v.Value); err != nil {
				return err
			}
			a.trace(vm.PshLit, before)
		case RegArg:
			if err := a.emitByte(byte(vm.PshReg)); err != nil {
				return err
			}
			if err := a.emitByte(byte(v.Reg)); err != nil {
				return err
			}
			a.trace(vm.PshReg, before)
		default:
			return &InvalidArgumentError{Op: "Psh", Arg: n.A, Msg: "expected a literal or register"}
		}

	case "Pop":
		reg, ok := n.A.(RegArg)
		if !ok {
			return &InvalidArgumentError{Op: "Pop", Arg: n.A, Msg: "expected a register"}
		}
		if err := a.emitByte(byte(vm.Pop)); err != nil {
			return err
		}
		if err := a.emitByte(byte(reg.Reg)); err != nil {
			return err
		}
		a.trace(vm.Pop, before)

	case "Cal":
		calOp := vm.CalLit
		switch v := n.A.(type) {
		case LitArg:
			if err := a.emitByte(byte(vm.CalLit)); err != nil {
				return err
			}
			if err := a.emitU16(v.Value); err != nil {
				return err
			}
		case LabelArg:
			if err := a.emitByte(byte(vm.CalLit)); err != nil {
				return err
			}
			if err := a.emitAddr("Cal", v); err != nil {
				return err
			}
		case RegArg:
			calOp = vm.CalReg
			if err := a.emitByte(byte(vm.CalReg)); err != nil {
				return err
			}
			if err := a.emitByte(byte(v.Reg)); err != nil {
				return err
			}
		default:
			return &InvalidArgumentError{Op: "Cal", Arg: n.A, Msg: "expected a literal, label, or register"}
		}
		a.trace(calOp, before)

	case "Inc", "Dec":
		reg, ok := n.A.(RegArg)
		if !ok {
			return &InvalidArgumentError{Op: n.Op, Arg: n.A, Msg: "expected a register"}
		}
		op := vm.IncReg
		if n.Op == "Dec" {
			op = vm.DecReg
		}
		if err := a.emitByte(byte(op)); err != nil {
			return err
		}
		if err := a.emitByte(byte(reg.Reg)); err != nil {
			return err
		}
		a.trace(op, before)

	case "Sys":
		lit, ok := n.A.(LitArg)
		if !ok {
			return &InvalidArgumentError{Op: "Sys", Arg: n.A, Msg: "expected a literal (label form not supported, see SPEC_FULL.md)"}
		}
		if err := a.emitByte(byte(vm.SysLit)); err != nil {
			return err
		}
		// SysLit consumes only its low byte - see spec's "SysLit (low byte)".
		if err := a.emitByte(byte(lit.Value)); err != nil {
			return err
		}
		a.trace(vm.SysLit, before)

	default:
		return fmt.Errorf("unknown unary op %q", n.Op)
	}
	return nil
}

func (a *Assembler) emitBinary(n BinaryNode) error {
	switch n.Op {
	case "Mov":
		return a.emitMov(n)
	case "Add":
		return a.emitAddSubMul(n, vm.AddRegReg, vm.AddLitReg, 0)
	case "Sub":
		return a.emitSub(n)
	case "Mul":
		return a.emitAddSubMul(n, vm.MulRegReg, vm.MulLitReg, 0)
	case "Shl":
		return a.emitRegRegOrLit(n, vm.ShlRegReg, vm.ShlRegLit)
	case "Shr":
		return a.emitRegRegOrLit(n, vm.ShrRegReg, vm.ShrRegLit)
	case "And":
		return a.emitRegRegOrLit(n, vm.AndRegReg, vm.AndRegLit)
	case "Or":
		return a.emitRegRegOrLit(n, vm.OrRegReg, vm.OrRegLit)
	case "Xor":
		return a.emitRegRegOrLit(n, vm.XorRegReg, vm.XorRegLit)
	case "Jne":
		return a.emitJump(n, vm.JmpNELit, vm.JmpNEReg)
	case "Jeq":
		return a.emitJump(n, vm.JmpEQLit, vm.JmpEQReg)
	case "Jlt":
		return a.emitJump(n, vm.JmpLTLit, vm.JmpLTReg)
	case "Jgt":
		return a.emitJump(n, vm.JmpGTLit, vm.JmpGTReg)
	case "Jle":
		return a.emitJump(n, vm.JmpLELit, vm.JmpLEReg)
	case "Jge":
		return a.emitJump(n, vm.JmpGELit, vm.JmpGEReg)
	default:
		return fmt.Errorf("unknown binary op %q", n.Op)
	}
}

// emitMov handles Mov's five operand forms: L,R -> MovLitReg; R,R ->
// MovRegReg; R,M(Lb/L) -> MovRegMem; M(Lb/L),R -> MovMemReg; and the
// register-indirect form, matched by shape (a register on one side, a
// Mem(register) on the other) rather than by position, since the register-
// indirect CPU semantics (destination register receives mem[pointer]) only
// line up with one physical byte order.
func (a *Assembler) emitMov(n BinaryNode) error {
	before := a.cursor

	if lit, ok := n.A.(LitArg); ok {
		reg, ok := n.B.(RegArg)
		if !ok {
			return &InvalidArgumentError{Op: "Mov", Arg: n.B, Msg: "expected a register"}
		}
		if err := a.emitByte(byte(vm.MovLitReg)); err != nil {
			return err
		}
		if err := a.emitU16(lit.Value); err != nil {
			return err
		}
		if err := a.emitByte(byte(reg.Reg)); err != nil {
			return err
		}
		a.trace(vm.MovLitReg, before)
		return nil
	}

	if regA, ok := n.A.(RegArg); ok {
		if regB, ok := n.B.(RegArg); ok {
			if err := a.emitByte(byte(vm.MovRegReg)); err != nil {
				return err
			}
			if err := a.emitByte(byte(regA.Reg)); err != nil {
				return err
			}
			if err := a.emitByte(byte(regB.Reg)); err != nil {
				return err
			}
			a.trace(vm.MovRegReg, before)
			return nil
		}

		if mem, ok := n.B.(MemArg); ok {
			if ptr, ok := mem.Inner.(RegArg); ok {
				// register-indirect: MovRegPtrReg fetches the pointer
				// register first, the destination register second.
				if err := a.emitByte(byte(vm.MovRegPtrReg)); err != nil {
					return err
				}
				if err := a.emitByte(byte(ptr.Reg)); err != nil {
					return err
				}
				if err := a.emitByte(byte(regA.Reg)); err != nil {
					return err
				}
				a.trace(vm.MovRegPtrReg, before)
				return nil
			}
			if _, ok := mem.Inner.(OffsetArg); ok {
				return &InvalidArgumentError{Op: "Mov", Arg: n.B, Msg: "offset addressing not yet assembled"}
			}
			if err := a.emitByte(byte(vm.MovRegMem)); err != nil {
				return err
			}
			if err := a.emitByte(byte(regA.Reg)); err != nil {
				return err
			}
			if err := a.emitAddr("Mov", mem.Inner); err != nil {
				return err
			}
			a.trace(vm.MovRegMem, before)
			return nil
		}

		// Reg followed by anything other than a register or memory operand.
		if _, ok := n.B.(OffsetArg); ok {
			return &InvalidArgumentError{Op: "Mov", Arg: n.B, Msg: "offset addressing not yet assembled"}
		}
		return &InvalidArgumentError{Op: "Mov", Arg: n.B, Msg: "expected a register or memory operand"}
	}

	if mem, ok := n.A.(MemArg); ok {
		reg, ok := n.B.(RegArg)
		if !ok {
			return &InvalidArgumentError{Op: "Mov", Arg: n.B, Msg: "expected a register"}
		}
		if ptr, ok := mem.Inner.(RegArg); ok {
			if err := a.emitByte(byte(vm.MovRegPtrReg)); err != nil {
				return err
			}
			if err := a.emitByte(byte(ptr.Reg)); err != nil {
				return err
			}
			if err := a.emitByte(byte(reg.Reg)); err != nil {
				return err
			}
			a.trace(vm.MovRegPtrReg, before)
			return nil
		}
		if _, ok := mem.Inner.(OffsetArg); ok {
			return &InvalidArgumentError{Op: "Mov", Arg: n.A, Msg: "offset addressing not yet assembled"}
		}
		if err := a.emitByte(byte(vm.MovMemReg)); err != nil {
			return err
		}
		if err := a.emitAddr("Mov", mem.Inner); err != nil {
			return err
		}
		if err := a.emitByte(byte(reg.Reg)); err != nil {
			return err
		}
		a.trace(vm.MovMemReg, before)
		return nil
	}

	if _, ok := n.A.(OffsetArg); ok {
		return &InvalidArgumentError{Op: "Mov", Arg: n.A, Msg: "offset addressing not yet assembled"}
	}

	return &InvalidArgumentError{Op: "Mov", Arg: n.A, Msg: "unsupported operand shape"}
}

// emitAddSubMul handles the common R,R / L,R shape shared by Add and Mul
// (the third opcode parameter is ignored; callers pass 0. Sub needs its
// own handler because of the Design Notes quirk).
func (a *Assembler) emitAddSubMul(n BinaryNode, regRegOp, litRegOp, _ vm.Opcode) error {
	before := a.cursor
	if regA, ok := n.A.(RegArg); ok {
		regB, ok := n.B.(RegArg)
		if !ok {
			return &InvalidArgumentError{Op: n.Op, Arg: n.B, Msg: "expected a register"}
		}
		if err := a.emitByte(byte(regRegOp)); err != nil {
			return err
		}
		if err := a.emitByte(byte(regA.Reg)); err != nil {
			return err
		}
		if err := a.emitByte(byte(regB.Reg)); err != nil {
			return err
		}
		a.trace(regRegOp, before)
		return nil
	}
	if lit, ok := n.A.(LitArg); ok {
		reg, ok := n.B.(RegArg)
		if !ok {
			return &InvalidArgumentError{Op: n.Op, Arg: n.B, Msg: "expected a register"}
		}
		if err := a.emitByte(byte(litRegOp)); err != nil {
			return err
		}
		if err := a.emitU16(lit.Value); err != nil {
			return err
		}
		if err := a.emitByte(byte(reg.Reg)); err != nil {
			return err
		}
		a.trace(litRegOp, before)
		return nil
	}
	return &InvalidArgumentError{Op: n.Op, Arg: n.A, Msg: "expected a register or literal"}
}

// emitSub handles Sub's three forms. R,L and L,R both target SubRegLit and
// both emit the same physical byte order (register byte, then literal) so
// the CPU's single SubRegLit handler (ACC := regs[R] - L) applies uniformly
// - see SPEC_FULL.md for why "Sub lit, reg" does not compute "lit - regs[reg]".
func (a *Assembler) emitSub(n BinaryNode) error {
	before := a.cursor
	if regA, ok := n.A.(RegArg); ok {
		if regB, ok := n.B.(RegArg); ok {
			if err := a.emitByte(byte(vm.SubRegReg)); err != nil {
				return err
			}
			if err := a.emitByte(byte(regA.Reg)); err != nil {
				return err
			}
			if err := a.emitByte(byte(regB.Reg)); err != nil {
				return err
			}
			a.trace(vm.SubRegReg, before)
			return nil
		}
		lit, ok := n.B.(LitArg)
		if !ok {
			return &InvalidArgumentError{Op: "Sub", Arg: n.B, Msg: "expected a register or literal"}
		}
		if err := a.emitByte(byte(vm.SubRegLit)); err != nil {
			return err
		}
		if err := a.emitByte(byte(regA.Reg)); err != nil {
			return err
		}
		if err := a.emitU16(lit.Value); err != nil {
			return err
		}
		a.trace(vm.SubRegLit, before)
		return nil
	}
	if lit, ok := n.A.(LitArg); ok {
		reg, ok := n.B.(RegArg)
		if !ok {
			return &InvalidArgumentError{Op: "Sub", Arg: n.B, Msg: "expected a register"}
		}
		if err := a.emitByte(byte(vm.SubRegLit)); err != nil {
			return err
		}
		if err := a.emitByte(byte(reg.Reg)); err != nil {
			return err
		}
		if err := a.emitU16(lit.Value); err != nil {
			return err
		}
		a.trace(vm.SubRegLit, before)
		return nil
	}
	return &InvalidArgumentError{Op: "Sub", Arg: n.A, Msg: "expected a register or literal"}
}

// emitRegRegOrLit handles the common R,R / R,L shape of Shl, Shr, And, Or,
// Xor: the operation always applies in place on the first operand.
func (a *Assembler) emitRegRegOrLit(n BinaryNode, regRegOp, regLitOp vm.Opcode) error {
	before := a.cursor
	reg, ok := n.A.(RegArg)
	if !ok {
		return &InvalidArgumentError{Op: n.Op, Arg: n.A, Msg: "expected a register"}
	}
	if regB, ok := n.B.(RegArg); ok {
		if err := a.emitByte(byte(regRegOp)); err != nil {
			return err
		}
		if err := a.emitByte(byte(reg.Reg)); err != nil {
			return err
		}
		if err := a.emitByte(byte(regB.Reg)); err != nil {
			return err
		}
		a.trace(regRegOp, before)
		return nil
	}
	lit, ok := n.B.(LitArg)
	if !ok {
		return &InvalidArgumentError{Op: n.Op, Arg: n.B, Msg: "expected a register or literal"}
	}
	if err := a.emitByte(byte(regLitOp)); err != nil {
		return err
	}
	if err := a.emitByte(byte(reg.Reg)); err != nil {
		return err
	}
	if err := a.emitU16(lit.Value); err != nil {
		return err
	}
	a.trace(regLitOp, before)
	return nil
}

// emitJump handles the six conditional jumps: first operand is the target
// (a label or literal address), second is the comparison value (literal or
// register). The stream carries address first, then value, per spec.
func (a *Assembler) emitJump(n BinaryNode, litOp, regOp vm.Opcode) error {
	before := a.cursor
	switch v := n.B.(type) {
	case LitArg:
		if err := a.emitByte(byte(litOp)); err != nil {
			return err
		}
		if err := a.emitAddr(n.Op, n.A); err != nil {
			return err
		}
		if err := a.emitU16(v.Value); err != nil {
			return err
		}
		a.trace(litOp, before)
		return nil
	case RegArg:
		if err := a.emitByte(byte(regOp)); err != nil {
			return err
		}
		if err := a.emitAddr(n.Op, n.A); err != nil {
			return err
		}
		if err := a.emitByte(byte(v.Reg)); err != nil {
			return err
		}
		a.trace(regOp, before)
		return nil
	default:
		return &InvalidArgumentError{Op: n.Op, Arg: n.B, Msg: "expected a literal or register comparison value"}
	}
}
