// Command stackvm assembles and runs programs for the stack-machine VM
// defined in internal/vm and internal/asm.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stackvm/internal/asm"
	"stackvm/internal/vm"
)

var (
	verbose    bool
	memSize    int
	strictMode bool
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	root := &cobra.Command{
		Use:   "stackvm",
		Short: "Assembler and CPU for a small stack-oriented virtual machine",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	root.PersistentFlags().IntVar(&memSize, "mem", vm.DefaultSize, "memory image size in bytes")
	root.PersistentFlags().BoolVar(&strictMode, "strict", false, "fault on unknown opcodes and out-of-range registers instead of decoding tolerantly")

	root.AddCommand(newAssembleCmd(), newRunCmd(), newInspectCmd(), newDisasmCmd())

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("stackvm failed")
		os.Exit(1)
	}
}

func newAssembleCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "assemble <source.asm>",
		Short: "Assemble source into a raw memory image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, err := assembleFile(args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = args[0] + ".bin"
			}
			if err := os.WriteFile(outPath, mem.Bytes(), 0o644); err != nil {
				return fmt.Errorf("writing image: %w", err)
			}
			log.WithField("out", outPath).Info("assembled")
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output image path (default: <source>.bin)")
	return cmd
}

func newRunCmd() *cobra.Command {
	var debugStep bool
	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Assemble (if source) or load (if a raw image) and execute a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			opts := []vm.Option{WithOptStrict()}
			cpu := vm.NewCPU(mem, opts...)
			if debugStep {
				return runStepDriver(cpu)
			}
			if err := cpu.Run(context.Background()); err != nil {
				return fmt.Errorf("running: %w", err)
			}
			fmt.Println(cpu.String())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&debugStep, "debug", "d", false, "single-step, printing register state after each instruction")
	return cmd
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <image> <addr>",
		Short: "Hex-dump memory starting at addr",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			addr, err := parseU16(args[1])
			if err != nil {
				return err
			}
			out, err := mem.Inspect(addr)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	return cmd
}

func newDisasmCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "disasm <program> [addr]",
		Short: "Disassemble a memory image starting at addr (default 0)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			var addr uint16
			if len(args) == 2 {
				addr, err = parseU16(args[1])
				if err != nil {
					return err
				}
			}
			fmt.Print(vm.Disassemble(mem, addr, count))
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "bytes", "n", 64, "number of bytes to disassemble")
	return cmd
}

// WithOptStrict turns the --strict persistent flag into a vm.Option.
func WithOptStrict() vm.Option {
	return vm.WithStrictDecode(strictMode)
}

// loadProgram assembles path if it parses as source, otherwise treats it as
// a raw memory image.
func loadProgram(path string) (*vm.Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if looksLikeSource(data) {
		return assembleSource(string(data))
	}
	return vm.NewMemoryFromBytes(padTo(data, memSize)), nil
}

func assembleFile(path string) (*vm.Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return assembleSource(string(data))
}

func assembleSource(source string) (*vm.Memory, error) {
	nodes, err := asm.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	mem, err := asm.Assemble(nodes, memSize)
	if err != nil {
		return nil, fmt.Errorf("assembling: %w", err)
	}
	return mem, nil
}

// looksLikeSource is a best-effort heuristic: a raw image's first byte is
// almost always a valid (if perhaps Nop-decoded) opcode byte too, so this
// only needs to catch the common case of an assembly file containing
// whitespace, letters, and punctuation that a bytecode stream would not.
func looksLikeSource(data []byte) bool {
	for _, b := range data {
		if b == '\n' || b == '\t' || b == '\r' {
			continue
		}
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return len(data) > 0
}

func padTo(data []byte, size int) []byte {
	if len(data) >= size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}

func parseU16(s string) (uint16, error) {
	var v uint16
	_, err := fmt.Sscanf(s, "0x%x", &v)
	if err == nil {
		return v, nil
	}
	_, err = fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}

// runStepDriver is a small breakpoint REPL reading commands from stdin,
// grounded on GVM's ExecProgramDebugMode/RunProgramDebugMode: "n"/"next"
// single-steps and prints the register snapshot, "b <addr>" toggles a
// breakpoint on IP, "r"/"run" free-runs until the next breakpoint or halt,
// and "program" disassembles the instruction at the current IP.
func runStepDriver(cpu *vm.CPU) error {
	fmt.Println("Commands:\n\tn or next: execute next instruction\n\tr or run: run until breakpoint or halt\n\tb <addr>: set or clear a breakpoint\n\tprogram: disassemble the current instruction")
	fmt.Println(cpu.String())

	reader := bufio.NewReader(os.Stdin)
	breakpoints := make(map[uint16]struct{})
	waitForInput := true
	lastBreakAddr, haveLastBreak := uint16(0), false

	for {
		line := ""
		if waitForInput {
			fmt.Print("\n-> ")
			raw, _ := reader.ReadString('\n')
			line = strings.ToLower(strings.TrimSpace(raw))
		} else {
			ip := cpu.Registers().Get(vm.IP)
			if _, ok := breakpoints[ip]; ok && (!haveLastBreak || lastBreakAddr != ip) {
				fmt.Println("breakpoint")
				fmt.Println(cpu.String())
				waitForInput, lastBreakAddr, haveLastBreak = true, ip, true
				continue
			}
		}

		switch {
		case !waitForInput || line == "n" || line == "next":
			haveLastBreak = false
			halted, err := cpu.Step()
			if err != nil {
				fmt.Println(cpu.String())
				return fmt.Errorf("step: %w", err)
			}
			if waitForInput {
				fmt.Println(cpu.String())
			}
			if halted {
				return nil
			}

		case line == "program":
			fmt.Print(vm.Disassemble(cpu.Memory(), cpu.Registers().Get(vm.IP), 1))

		case line == "r" || line == "run":
			waitForInput = false

		case strings.HasPrefix(line, "b"):
			arg := strings.TrimSpace(strings.TrimPrefix(line, "b"))
			addr, err := parseU16(arg)
			if err != nil {
				fmt.Println("unknown address:", err)
				continue
			}
			if _, ok := breakpoints[addr]; ok {
				delete(breakpoints, addr)
			} else {
				breakpoints[addr] = struct{}{}
			}
		}
	}
}
