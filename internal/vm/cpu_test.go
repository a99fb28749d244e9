package vm

import (
	"context"
	"testing"

	"stackvm/internal/hostcall"
)

func buildMem(size int, prog []byte) *Memory {
	buf := make([]byte, size)
	copy(buf, prog)
	return NewMemoryFromBytes(buf)
}

func runToHalt(t *testing.T, cpu *CPU) {
	t.Helper()
	if err := cpu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// TestCPUBasicRegs mirrors original_source's test_cpu_basic_regs: loading a
// literal into a register leaves every other register untouched.
func TestCPUBasicRegs(t *testing.T) {
	prog := []byte{
		byte(MovLitReg), 0x00, 0x05, byte(R1),
		byte(Hlt),
	}
	cpu := NewCPU(buildMem(64, prog))
	runToHalt(t, cpu)
	assertEqual(t, cpu.Registers().Get(R1), uint16(5), "R1")
	assertEqual(t, cpu.Registers().Get(R2), uint16(0), "R2 untouched")
}

// TestCPUAdd mirrors test_cpu_add: AddRegReg writes the sum into ACC,
// leaving its operand registers unchanged.
func TestCPUAdd(t *testing.T) {
	prog := []byte{
		byte(MovLitReg), 0x00, 0x05, byte(R1),
		byte(MovLitReg), 0x00, 0x0A, byte(R2),
		byte(AddRegReg), byte(R1), byte(R2),
		byte(Hlt),
	}
	cpu := NewCPU(buildMem(64, prog))
	runToHalt(t, cpu)
	assertEqual(t, cpu.Registers().Get(ACC), uint16(15), "ACC")
	assertEqual(t, cpu.Registers().Get(R1), uint16(5), "R1 unchanged")
	assertEqual(t, cpu.Registers().Get(R2), uint16(10), "R2 unchanged")
}

// TestCPUAddMovMem mirrors test_cpu_add_mov_mem: a sum is stored to memory
// with MovRegMem and read back with MovMemReg.
func TestCPUAddMovMem(t *testing.T) {
	prog := []byte{
		byte(MovLitReg), 0x00, 0x05, byte(R1),
		byte(MovLitReg), 0x00, 0x0A, byte(R2),
		byte(AddRegReg), byte(R1), byte(R2),
		byte(MovRegMem), byte(ACC), 0x00, 0x20,
		byte(MovMemReg), 0x00, 0x20, byte(R3),
		byte(Hlt),
	}
	cpu := NewCPU(buildMem(64, prog))
	runToHalt(t, cpu)
	assertEqual(t, cpu.Registers().Get(R3), uint16(15), "R3 loaded back from memory")
}

// TestConditionalJneNotTaken and TestConditionalJneTaken mirror
// test_conditional_jne: address is fetched before the comparison value, and
// the jump only fires when ACC != the literal.
func TestConditionalJneNotTaken(t *testing.T) {
	prog := []byte{
		byte(MovLitReg), 0x00, 0x05, byte(ACC), // 0..3
		byte(JmpNELit), 0x00, 14, 0x00, 0x05, // 4..8, addr=14, val=5 (equal, no jump)
		byte(MovLitReg), 0x00, 0x01, byte(R1), // 9..12 (fallthrough path)
		byte(Hlt),                             // 13
		byte(MovLitReg), 0x00, 0x02, byte(R1), // 14..17 (taken path, unreached)
		byte(Hlt), // 18
	}
	cpu := NewCPU(buildMem(64, prog))
	runToHalt(t, cpu)
	assertEqual(t, cpu.Registers().Get(R1), uint16(1), "fallthrough path taken")
}

func TestConditionalJneTaken(t *testing.T) {
	prog := []byte{
		byte(MovLitReg), 0x00, 0x05, byte(ACC),
		byte(JmpNELit), 0x00, 14, 0x00, 0x06, // val=6 != ACC(5): jump
		byte(MovLitReg), 0x00, 0x01, byte(R1),
		byte(Hlt),
		byte(MovLitReg), 0x00, 0x02, byte(R1),
		byte(Hlt),
	}
	cpu := NewCPU(buildMem(64, prog))
	runToHalt(t, cpu)
	assertEqual(t, cpu.Registers().Get(R1), uint16(2), "jump target path taken")
}

// TestPushPop mirrors test_pop_and_push: a pushed register round-trips
// through the stack and SP returns to its starting slot.
func TestPushPop(t *testing.T) {
	prog := []byte{
		byte(MovLitReg), 0x12, 0x34, byte(R1),
		byte(PshReg), byte(R1),
		byte(Pop), byte(R2),
		byte(Hlt),
	}
	mem := buildMem(64, prog)
	cpu := NewCPU(mem)
	spBefore := cpu.Registers().Get(SP)
	runToHalt(t, cpu)
	assertEqual(t, cpu.Registers().Get(R2), uint16(0x1234), "R2 popped value")
	assertEqual(t, cpu.Registers().Get(SP), spBefore, "SP restored after push+pop")
}

// TestCallsAndRet mirrors test_calls_and_ret: CalLit pushes the return
// address and jumps; Ret pops it back.
func TestCallsAndRet(t *testing.T) {
	prog := []byte{
		byte(CalLit), 0x00, 10, // 0..2: call address 10, returns to 3
		byte(Hlt), // 3
	}
	full := make([]byte, 64)
	copy(full, prog)
	full[10] = byte(MovLitReg)
	full[11], full[12] = 0x00, 0x42
	full[13] = byte(R1)
	full[14] = byte(Ret)

	cpu := NewCPU(NewMemoryFromBytes(full))
	runToHalt(t, cpu)
	assertEqual(t, cpu.Registers().Get(R1), uint16(0x42), "R1 set inside subroutine")
	assertEqual(t, cpu.Registers().Get(IP), uint16(4), "returned past Hlt's opcode byte")
}

func TestSubRegLitBothSourceOrdersComputeRegMinusLit(t *testing.T) {
	// Sub R1, 3 and Sub 3, R1 both assemble to SubRegLit with [reg][lit]
	// byte order - see SPEC_FULL.md. This directly exercises the CPU's fixed
	// interpretation of that encoding.
	prog := []byte{
		byte(MovLitReg), 0x00, 0x0A, byte(R1), // R1 = 10
		byte(SubRegLit), byte(R1), 0x00, 0x03, // ACC = regs[R1] - 3 = 7
		byte(Hlt),
	}
	cpu := NewCPU(buildMem(64, prog))
	runToHalt(t, cpu)
	assertEqual(t, cpu.Registers().Get(ACC), uint16(7), "ACC")
}

func TestStackUnderflowFaults(t *testing.T) {
	prog := []byte{
		byte(PshLit), 0x00, 0x01,
		byte(Hlt),
	}
	cpu := NewCPU(buildMem(16, prog))
	cpu.Registers().Set(SP, 0) // not enough room below SP for a 2-byte push
	_, err := cpu.Step()
	assertErr(t, err)
}

func TestStrictDecodeFaultsOnUnknownOpcode(t *testing.T) {
	prog := []byte{0x99}
	cpu := NewCPU(buildMem(8, prog), WithStrictDecode(true))
	_, err := cpu.Step()
	assertErr(t, err)
}

func TestTolerantDecodeTreatsUnknownOpcodeAsNop(t *testing.T) {
	prog := []byte{0x99, byte(Hlt)}
	cpu := NewCPU(buildMem(8, prog))
	halted, err := cpu.Step()
	assertNoErr(t, err)
	assertEqual(t, halted, false, "Nop does not halt")
}

func TestSysLitDispatchesRegisteredHandler(t *testing.T) {
	var got byte
	table := hostcall.NewTable()
	table.Register(0x07, func(k byte) { got = k })

	prog := []byte{byte(SysLit), 0x07, byte(Hlt)}
	cpu := NewCPU(buildMem(8, prog), WithHostCalls(table))
	runToHalt(t, cpu)
	assertEqual(t, got, byte(0x07), "host-call handler invoked with its literal")
}

func TestRunRespectsContextCancellation(t *testing.T) {
	// An infinite loop: Jmp back to address 0.
	prog := []byte{byte(Jmp), 0x00, 0x00}
	cpu := NewCPU(buildMem(8, prog))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cpu.Run(ctx)
	assertErr(t, err)
}
