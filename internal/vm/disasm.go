package vm

import (
	"fmt"
	"strings"
)

// operandWidths gives the number of operand bytes following each opcode's
// tag byte, used by Disassemble to walk a memory image without executing
// it. Kept separate from execute's fetch sequence so a malformed tail
// (fewer bytes than the table expects) is reported rather than panicking.
var operandWidths = map[Opcode]int{
	Nop: 0,

	MovLitReg:    3,
	MovRegReg:    2,
	MovRegMem:    3,
	MovMemReg:    3,
	MovLitMem:    4,
	MovRegPtrReg: 2,

	AddRegReg: 2,
	AddLitReg: 3,
	SubRegReg: 2,
	SubRegLit: 3,
	SubLitReg: 3,
	MulRegReg: 2,
	MulLitReg: 3,
	IncReg:    1,
	DecReg:    1,

	ShlRegReg: 2,
	ShlRegLit: 3,
	ShrRegReg: 2,
	ShrRegLit: 3,
	AndRegReg: 2,
	AndRegLit: 3,
	OrRegReg:  2,
	OrRegLit:  3,
	XorRegReg: 2,
	XorRegLit: 3,
	NotReg:    1,

	JmpNELit: 4, JmpNEReg: 3,
	JmpEQLit: 4, JmpEQReg: 3,
	JmpLTLit: 4, JmpLTReg: 3,
	JmpGTLit: 4, JmpGTReg: 3,
	JmpLELit: 4, JmpLEReg: 3,
	JmpGELit: 4, JmpGEReg: 3,
	Jmp: 2,

	PshLit: 2,
	PshReg: 1,
	Pop:    1,
	CalLit: 2,
	CalReg: 1,
	Ret:    0,
	SysLit: 1,
	Hlt:    0,
}

// Disassemble walks mem from addr for n bytes, rendering one line per
// decoded instruction as "0xADDR: Mnemonic AA BB CC". It never executes
// anything and tolerates a truncated final instruction by rendering its
// available bytes and stopping.
func Disassemble(mem *Memory, addr uint16, n int) string {
	var b strings.Builder
	end := int(addr) + n
	if end > mem.Len() {
		end = mem.Len()
	}
	pos := int(addr)
	for pos < end {
		tag, err := mem.Get(pos)
		if err != nil {
			break
		}
		op := Decode(tag)
		width := operandWidths[op]
		opStart := pos + 1
		opEnd := opStart + width
		if opEnd > mem.Len() {
			opEnd = mem.Len()
		}
		operands, _ := mem.GetBuf(opStart, opEnd)
		fmt.Fprintf(&b, "0x%04X: %s", pos, op)
		for _, ob := range operands {
			fmt.Fprintf(&b, " %02X", ob)
		}
		b.WriteByte('\n')
		if opEnd-opStart < width {
			break // truncated tail, nothing more to decode
		}
		pos = opEnd
	}
	return b.String()
}
