package cpu

import "github.com/snowykr/snx-simulator/diag"

// Instruction is one lowered SN/X instruction. Register indices and the
// immediate hold the logical values from the source; truncation to the
// encoded 8-bit field happens in the word, not here.
type Instruction struct {
	Op Opcode
	// Rd is the destination register (Dest field). For ST it names the
	// register being stored; for BZ the register being tested.
	Rd int
	// Rs1 and Rs2 are source registers for R-format instructions. R1-format
	// uses Rs1 only. For I-format memory instructions Rs1 is the base.
	Rs1 int
	Rs2 int
	// Imm is the signed immediate before truncation.
	Imm int
	// Target is the resolved label PC for BZ and label-form BAL.
	Target    int
	HasTarget bool
	// Span and Text locate and reproduce the source line for diagnostics
	// and the execution trace.
	Span diag.Span
	Text string
}

// Program is the immutable result of lowering: the IR instruction sequence,
// the label table, and the parallel binary image. len(Words) == len(Instrs)
// always holds.
type Program struct {
	Instrs  []Instruction
	Words   []uint16
	Symbols map[string]int
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.Instrs)
}
