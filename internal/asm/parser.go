package asm

import (
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"stackvm/internal/vm"
)

// commentRe strips a `;`-led comment running to end of line.
var commentRe = regexp.MustCompile(`;.*$`)

var nullaryMnemonics = map[string]string{
	"ret": "Ret", "hlt": "Hlt", "nop": "Nop",
}

var unaryMnemonics = map[string]string{
	"not": "Not", "jmp": "Jmp", "psh": "Psh", "pop": "Pop",
	"cal": "Cal", "inc": "Inc", "dec": "Dec", "sys": "Sys",
}

var binaryMnemonics = map[string]string{
	"mov": "Mov", "add": "Add", "sub": "Sub", "mul": "Mul",
	"shl": "Shl", "shr": "Shr", "and": "And", "or": "Or", "xor": "Xor",
	"jne": "Jne", "jeq": "Jeq", "jlt": "Jlt", "jgt": "Jgt",
	"jle": "Jle", "jge": "Jge",
}

// Parse lexes and parses assembly source into an ordered Node sequence, per
// the grammar of spec.md §6: case-insensitive mnemonics, `<lit>`/`<reg>`
// operands, `[addr-or-label]` memory dereference, `<num>+[<addr>]` offset
// form, and `label:` declarations.
func Parse(source string) ([]Node, error) {
	var nodes []Node
	for i, raw := range strings.Split(source, "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(commentRe.ReplaceAllString(raw, ""))
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, ":") {
			name := strings.TrimSpace(strings.TrimSuffix(line, ":"))
			if name == "" {
				return nil, &ParserError{Line: lineNo, Text: raw, Msg: "empty label"}
			}
			nodes = append(nodes, LabelNode{Name: name})
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		mnemonic := strings.ToLower(fields[0])
		operandStr := ""
		if len(fields) > 1 {
			operandStr = strings.TrimSpace(fields[1])
		}

		node, err := parseInstruction(mnemonic, operandStr, lineNo, raw)
		if err != nil {
			return nil, err
		}
		if log.IsLevelEnabled(log.DebugLevel) {
			log.Debugf("asm: parsed line %d: %#v", lineNo, node)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func parseInstruction(mnemonic, operandStr string, lineNo int, raw string) (Node, error) {
	if op, ok := nullaryMnemonics[mnemonic]; ok {
		if operandStr != "" {
			return nil, &ParserError{Line: lineNo, Text: raw, Msg: mnemonic + " takes no operands"}
		}
		return NullaryNode{Op: op}, nil
	}

	if op, ok := unaryMnemonics[mnemonic]; ok {
		a, err := parseArg(operandStr)
		if err != nil {
			return nil, &ParserError{Line: lineNo, Text: raw, Msg: err.Error()}
		}
		return UnaryNode{Op: op, A: a}, nil
	}

	if op, ok := binaryMnemonics[mnemonic]; ok {
		parts := strings.SplitN(operandStr, ",", 2)
		if len(parts) != 2 {
			return nil, &ParserError{Line: lineNo, Text: raw, Msg: mnemonic + " requires two comma-separated operands"}
		}
		a, err := parseArg(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, &ParserError{Line: lineNo, Text: raw, Msg: err.Error()}
		}
		b, err := parseArg(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, &ParserError{Line: lineNo, Text: raw, Msg: err.Error()}
		}
		return BinaryNode{Op: op, A: a, B: b}, nil
	}

	return nil, &ParserError{Line: lineNo, Text: raw, Msg: "unknown mnemonic: " + mnemonic}
}

// parseArg parses one operand: the offset form `num+[inner]`, the memory
// dereference form `[inner]`, or a bare literal/register/label.
func parseArg(tok string) (Arg, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, &ParserError{Msg: "missing operand"}
	}

	if idx := strings.Index(tok, "+["); idx >= 0 && strings.HasSuffix(tok, "]") {
		base, ok := parseLiteral(strings.TrimSpace(tok[:idx]))
		if !ok {
			return nil, &ParserError{Msg: "invalid offset base: " + tok[:idx]}
		}
		inner, err := parseBareArg(tok[idx+2 : len(tok)-1])
		if err != nil {
			return nil, err
		}
		return OffsetArg{Base: base, Inner: inner}, nil
	}

	if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
		inner, err := parseBareArg(tok[1 : len(tok)-1])
		if err != nil {
			return nil, err
		}
		return MemArg{Inner: inner}, nil
	}

	return parseBareArg(tok)
}

func parseBareArg(tok string) (Arg, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, &ParserError{Msg: "missing operand"}
	}
	if reg, err := vm.ParseRegister(tok); err == nil {
		return RegArg{Reg: reg}, nil
	}
	if lit, ok := parseLiteral(tok); ok {
		return LitArg{Value: lit}, nil
	}
	if isIdentifier(tok) {
		return LabelArg{Name: tok}, nil
	}
	return nil, &ParserError{Msg: "invalid operand: " + tok}
}

// parseLiteral parses a character literal ('A'), or a decimal/0x/0o/0b
// integer literal, into an unsigned 16-bit value.
func parseLiteral(tok string) (uint16, bool) {
	if len(tok) >= 3 && strings.HasPrefix(tok, "'") && strings.HasSuffix(tok, "'") {
		runes := []rune(tok[1 : len(tok)-1])
		if len(runes) != 1 {
			return 0, false
		}
		return uint16(runes[0]), true
	}
	v, err := strconv.ParseUint(tok, 0, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

func isIdentifier(tok string) bool {
	for i, r := range tok {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !isDigit {
			return false
		}
	}
	return tok != ""
}
