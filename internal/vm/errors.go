package vm

import "fmt"

// InvalidAddressError is raised when the CPU reads or writes an address
// outside of memory, including IP running off the end of the image.
type InvalidAddressError struct {
	Addr uint16
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address: 0x%04X", e.Addr)
}

// InvalidRegisterError is raised by strict decode when a register byte does
// not name one of the 12 registers, and by register-name lookup from text.
type InvalidRegisterError struct {
	Name string
}

func (e *InvalidRegisterError) Error() string {
	return fmt.Sprintf("invalid register: %q", e.Name)
}

// InvalidInstructionError is raised by strict decode when an opcode byte
// does not name a known instruction. Tolerant decode never raises this; it
// substitutes Nop instead (see opcode.go).
type InvalidInstructionError struct {
	Opcode byte
}

func (e *InvalidInstructionError) Error() string {
	return fmt.Sprintf("invalid instruction: 0x%02X", e.Opcode)
}
