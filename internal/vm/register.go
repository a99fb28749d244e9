package vm

import (
	"fmt"
	"strings"
)

// Register identifies one of the 12 fixed 16-bit registers. The numeric
// value is the register's index, not its byte offset - RegisterSize scales
// it into the backing Memory.
type Register byte

const (
	IP Register = iota
	ACC
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	SP
	BP
)

// NumRegisters is the fixed register count; in tolerant mode CPU.fetchReg
// reduces modulo this value so a malformed register byte never faults.
const NumRegisters = 12

// RegisterSize is the width of one register in bytes.
const RegisterSize = 2

// registerOrder is the fixed print order used by CPU's register snapshot.
var registerOrder = []Register{IP, ACC, R1, R2, R3, R4, R5, R6, R7, R8, SP, BP}

var registerNames = map[Register]string{
	IP: "IP", ACC: "ACC",
	R1: "R1", R2: "R2", R3: "R3", R4: "R4",
	R5: "R5", R6: "R6", R7: "R7", R8: "R8",
	SP: "SP", BP: "BP",
}

var strToRegister map[string]Register

func init() {
	strToRegister = make(map[string]Register, len(registerNames))
	for reg, name := range registerNames {
		strToRegister[strings.ToLower(name)] = reg
	}
}

// String returns the canonical upper-case register name.
func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Register(%d)", byte(r))
}

// Index returns the register's byte offset within the register file Memory.
func (r Register) Index() int { return int(r) * RegisterSize }

// ParseRegister resolves a case-insensitive register name such as "r1" or
// "SP" to its Register value.
func ParseRegister(s string) (Register, error) {
	if reg, ok := strToRegister[strings.ToLower(s)]; ok {
		return reg, nil
	}
	return 0, &InvalidRegisterError{Name: s}
}

// RegisterFile is the CPU's bank of 12 registers, itself backed by a small
// dedicated Memory - mirroring the source's choice to represent the
// register file as just another addressable byte buffer rather than a
// bespoke struct of named fields.
type RegisterFile struct {
	mem *Memory
}

// NewRegisterFile allocates a zeroed register file.
func NewRegisterFile() *RegisterFile {
	return &RegisterFile{mem: NewMemory(NumRegisters * RegisterSize)}
}

// Get reads the big-endian 16-bit value of reg.
func (rf *RegisterFile) Get(reg Register) uint16 {
	idx := reg.Index()
	buf, err := rf.mem.GetBuf(idx, idx+RegisterSize)
	if err != nil {
		// Register() always yields a valid in-range index for NumRegisters
		// registers over a NumRegisters*RegisterSize buffer; this can only
		// happen if a caller fabricates an out-of-range Register value.
		panic(err)
	}
	return uint16(buf[0])<<8 | uint16(buf[1])
}

// Set writes value (wrapping modulo 2^16 is implicit in uint16) into reg.
func (rf *RegisterFile) Set(reg Register, value uint16) {
	idx := reg.Index()
	rf.mem.SetBuf(idx, idx+RegisterSize, []byte{byte(value >> 8), byte(value)})
}

// GetByIndex reads the register whose raw index (already reduced modulo
// NumRegisters by the caller) is idx.
func (rf *RegisterFile) GetByIndex(idx int) uint16 {
	return rf.Get(Register(idx))
}

// SetByIndex writes the register whose raw index is idx.
func (rf *RegisterFile) SetByIndex(idx int, value uint16) {
	rf.Set(Register(idx), value)
}

// Snapshot renders the fixed-order register line used by the CLI and the
// debug driver: "IP: 0x.., ACC: 0x.., ..., SP: 0x.., BP: 0x..".
func (rf *RegisterFile) Snapshot() string {
	parts := make([]string, 0, len(registerOrder))
	for _, reg := range registerOrder {
		parts = append(parts, fmt.Sprintf("%s: 0x%X", reg, rf.Get(reg)))
	}
	return strings.Join(parts, ", ")
}
