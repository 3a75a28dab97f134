// Package disassembler decodes encoded SN/X words back to assembly text
// through the documented field layouts.
package disassembler

import (
	"fmt"
	"strings"

	"github.com/snowykr/snx-simulator/cpu"
)

// Instruction is a single decoded word.
type Instruction struct {
	PC       int
	Word     uint16
	Mnemonic string
	Operands string
}

// Text renders the instruction the way the assembler would write it.
func (inst Instruction) Text() string {
	if inst.Operands == "" {
		return inst.Mnemonic
	}
	return inst.Mnemonic + " " + inst.Operands
}

// Decode splits one word into mnemonic and operand text. Branch words are
// only invertible while the target fits the 10-bit field; a BAL whose base
// field is nonzero reads as the register-return form, matching how the
// assembler encodes it.
func Decode(w uint16) Instruction {
	op := cpu.DecodeOp(w)
	inst := Instruction{Word: w, Mnemonic: op.String()}

	switch {
	case !op.Valid():
		inst.Mnemonic = ".word"
		inst.Operands = fmt.Sprintf("0x%04X", w)

	case op.Format() == cpu.FormatR:
		inst.Operands = fmt.Sprintf("$%d, $%d, $%d",
			cpu.DecodeDest(w), cpu.DecodeSrc1(w), cpu.DecodeSrc2(w))

	case op.Format() == cpu.FormatR1:
		inst.Operands = fmt.Sprintf("$%d, $%d", cpu.DecodeDest(w), cpu.DecodeSrc1(w))

	case op.Format() == cpu.FormatR0:
		// HLT carries no operand fields.

	case op == cpu.OpBZ:
		inst.Operands = fmt.Sprintf("$%d, %d", cpu.DecodeSrc1(w), cpu.DecodeBranchTarget(w))

	case op == cpu.OpBAL:
		if cpu.DecodeSrc2(w) != 0 {
			inst.Operands = fmt.Sprintf("$%d, %d($%d)",
				cpu.DecodeSrc1(w), cpu.DecodeImm(w), cpu.DecodeSrc2(w))
		} else {
			inst.Operands = fmt.Sprintf("$%d, %d", cpu.DecodeSrc1(w), cpu.DecodeBranchTarget(w))
		}

	case op == cpu.OpIN || op == cpu.OpOUT:
		inst.Operands = fmt.Sprintf("$%d", cpu.DecodeSrc1(w))

	default: // LD, ST, LDA
		inst.Operands = fmt.Sprintf("$%d, %d($%d)",
			cpu.DecodeSrc1(w), cpu.DecodeImm(w), cpu.DecodeSrc2(w))
	}
	return inst
}

// Disassemble decodes a whole binary image in a linear sweep.
func Disassemble(words []uint16) []Instruction {
	out := make([]Instruction, len(words))
	for pc, w := range words {
		out[pc] = Decode(w)
		out[pc].PC = pc
	}
	return out
}

// Format renders the image as text, one instruction per line with its PC
// and encoded word.
func Format(words []uint16) string {
	var b strings.Builder
	for _, inst := range Disassemble(words) {
		fmt.Fprintf(&b, "%4d  %04X  %s\n", inst.PC, inst.Word, inst.Text())
	}
	return b.String()
}
