package assembler

import "github.com/snowykr/snx-simulator/diag"

// Program is the parsed source: one Line per source line, in order. It is
// the input to lowering; Assemble also returns it to the caller.
type Program struct {
	Lines []Line
}

// Line is a single source line. Either part may be absent; blank and
// comment-only lines keep an entry so line numbering stays faithful.
type Line struct {
	// Label is the upper-case label name, or "" if the line has none.
	Label string
	// Instr is nil for lines without an instruction.
	Instr *Instruction
	Span  diag.Span
}

// Instruction is an unvalidated mnemonic with its operands. Shape checking
// against the opcode table happens during lowering.
type Instruction struct {
	// Mnemonic is normalized to upper case.
	Mnemonic string
	Operands []Operand
	Span     diag.Span
	// Text is the canonical rendering of the instruction for diagnostics
	// and the execution trace.
	Text string
}

// OperandKind tags the Operand variant.
type OperandKind int

const (
	// OperandReg is a bare register, $n.
	OperandReg OperandKind = iota
	// OperandAddress is imm(base); a bare number is imm($0).
	OperandAddress
	// OperandLabel is a reference to a label by name.
	OperandLabel
)

// Operand is a tagged variant: Reg uses Reg; Address uses Imm and Base;
// Label uses Name.
type Operand struct {
	Kind OperandKind
	Reg  int
	Imm  int
	Base int
	// Name is the upper-case label name for OperandLabel.
	Name string
	Span diag.Span
}
