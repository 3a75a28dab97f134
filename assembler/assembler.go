// Package assembler implements the SN/X compile pipeline front half:
// lexing, parsing, symbol collection, lowering, and bit-exact instruction
// encoding.
package assembler

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/snowykr/snx-simulator/cpu"
	"github.com/snowykr/snx-simulator/diag"
)

// Assembler holds the configuration for one assembly run.
type Assembler struct {
	regCount int
	memSize  int
}

// New creates an assembler for a machine with regCount registers and
// memSize words of data memory.
func New(regCount, memSize int) *Assembler {
	return &Assembler{regCount: regCount, memSize: memSize}
}

// Assemble runs the full front end over src. The returned program is
// complete when diags has no errors; with errors it may contain
// placeholder entries that keep instruction indices aligned with labels.
func (asm *Assembler) Assemble(src string, diags *diag.List) (*Program, *cpu.Program) {
	// Each stage walks the whole source, so its findings are gathered
	// separately and appended to diags in source-line order.
	front := &diag.List{}
	tokens := NewLexer(src, front).Tokens()
	ast := NewParser(tokens, front).Parse()
	ir := asm.Lower(ast, front)
	items := front.Items()
	sort.SliceStable(items, func(i, j int) bool { return items[i].Span.Line < items[j].Span.Line })
	for _, d := range items {
		diags.Add(d)
	}
	return ast, ir
}

// Lower converts the AST into IR and machine words in two passes: first
// symbol collection, then validation, label resolution, and encoding.
func (asm *Assembler) Lower(ast *Program, diags *diag.List) *cpu.Program {
	prog := &cpu.Program{Symbols: make(map[string]int)}

	// Pass 1: assign a PC to every line holding an instruction and record
	// label bindings. The first binding of a duplicate label wins.
	pc := 0
	for _, line := range ast.Lines {
		if line.Label != "" {
			if prev, ok := prog.Symbols[line.Label]; ok {
				diags.Errorf(diag.CodeDupLabel, line.Span,
					"duplicate label %s (first defined at pc %d)", line.Label, prev)
			} else {
				prog.Symbols[line.Label] = pc
			}
		}
		if line.Instr != nil {
			pc++
		}
	}
	log.WithField("labels", len(prog.Symbols)).Debug("symbol pass done")

	// Pass 2: lower and encode each instruction.
	for _, line := range ast.Lines {
		if line.Instr == nil {
			continue
		}
		inst, word := asm.lowerInstruction(line.Instr, prog.Symbols, diags)
		prog.Instrs = append(prog.Instrs, inst)
		prog.Words = append(prog.Words, word)
	}
	log.WithField("instructions", prog.Len()).Debug("lowering done")

	return prog
}

// invalid produces the placeholder entry for a line that failed to lower.
// It keeps len(Words) == len(Instrs) and label PCs intact; the opcode is
// one of the unused encodings, so it can never execute successfully.
func invalid(src *Instruction) (cpu.Instruction, uint16) {
	return cpu.Instruction{
		Op:   cpu.OpInvalid,
		Span: src.Span,
		Text: src.Text,
	}, cpu.EncodeR0(cpu.OpInvalid)
}

func (asm *Assembler) lowerInstruction(src *Instruction, symbols map[string]int, diags *diag.List) (cpu.Instruction, uint16) {
	op, ok := cpu.ParseMnemonic(src.Mnemonic)
	if !ok {
		diags.Errorf(diag.CodeUnknownMnem, src.Span, "unknown mnemonic %s", src.Mnemonic)
		return invalid(src)
	}

	inst := cpu.Instruction{Op: op, Span: src.Span, Text: src.Text}

	switch op.Format() {
	case cpu.FormatR:
		regs, ok := asm.regOperands(src, 3, diags)
		if !ok {
			return invalid(src)
		}
		inst.Rd, inst.Rs1, inst.Rs2 = regs[0], regs[1], regs[2]
		return inst, cpu.EncodeR(op, inst.Rs1, inst.Rs2, inst.Rd)

	case cpu.FormatR1:
		regs, ok := asm.regOperands(src, 2, diags)
		if !ok {
			return invalid(src)
		}
		inst.Rd, inst.Rs1 = regs[0], regs[1]
		return inst, cpu.EncodeR1(op, inst.Rs1, inst.Rd)

	case cpu.FormatR0:
		if len(src.Operands) != 0 {
			diags.Errorf(diag.CodeBadOperand, src.Span,
				"%s takes no operands, got %d", src.Mnemonic, len(src.Operands))
			return invalid(src)
		}
		return inst, cpu.EncodeR0(op)

	default:
		return asm.lowerIFormat(op, inst, src, symbols, diags)
	}
}

func (asm *Assembler) lowerIFormat(op cpu.Opcode, inst cpu.Instruction, src *Instruction, symbols map[string]int, diags *diag.List) (cpu.Instruction, uint16) {
	switch op {
	case cpu.OpIN, cpu.OpOUT:
		regs, ok := asm.regOperands(src, 1, diags)
		if !ok {
			return invalid(src)
		}
		inst.Rd = regs[0]
		return inst, cpu.EncodeI(op, inst.Rd, 0, 0)

	case cpu.OpLD, cpu.OpST, cpu.OpLDA:
		if !asm.checkShape(src, 2, diags) {
			return invalid(src)
		}
		reg, ok1 := asm.regOperand(src, 0, diags)
		imm, base, ok2 := asm.addressOperand(src, 1, diags)
		if !ok1 || !ok2 {
			return invalid(src)
		}
		inst.Rd, inst.Rs1, inst.Imm = reg, base, imm
		asm.checkImmediate(op, imm, src, diags)
		if base == 0 && (op == cpu.OpLD || op == cpu.OpST) {
			// Absolute access: the truncated immediate is the address.
			addr := cpu.Sext8(imm)
			if int(addr) >= asm.memSize {
				diags.Errorf(diag.CodeAbsOOB, src.Span,
					"absolute address %d outside memory of %d words", addr, asm.memSize)
			}
		}
		return inst, cpu.EncodeI(op, inst.Rd, inst.Rs1, imm)

	case cpu.OpBZ:
		if !asm.checkShape(src, 2, diags) {
			return invalid(src)
		}
		reg, ok1 := asm.regOperand(src, 0, diags)
		target, ok2 := asm.labelOperand(src, 1, symbols, diags)
		if !ok1 || !ok2 {
			return invalid(src)
		}
		inst.Rd, inst.Target, inst.HasTarget = reg, target, true
		asm.checkBranchTarget(target, src, diags)
		return inst, cpu.EncodeBranch(op, reg, target)

	case cpu.OpBAL:
		if !asm.checkShape(src, 2, diags) {
			return invalid(src)
		}
		reg, ok := asm.regOperand(src, 0, diags)
		if !ok {
			return invalid(src)
		}
		inst.Rd = reg
		if src.Operands[1].Kind == OperandLabel {
			target, ok := asm.labelOperand(src, 1, symbols, diags)
			if !ok {
				return invalid(src)
			}
			inst.Target, inst.HasTarget = target, true
			asm.checkBranchTarget(target, src, diags)
			return inst, cpu.EncodeBranch(op, reg, target)
		}
		// Register form: the target is an effective address, typically a
		// return through a link register.
		imm, base, ok := asm.addressOperand(src, 1, diags)
		if !ok {
			return invalid(src)
		}
		inst.Rs1, inst.Imm = base, imm
		asm.checkImmediate(op, imm, src, diags)
		return inst, cpu.EncodeI(op, reg, base, imm)
	}

	diags.Errorf(diag.CodeUnknownMnem, src.Span, "unknown mnemonic %s", src.Mnemonic)
	return invalid(src)
}

// checkImmediate warns when the logical immediate does not survive the
// 8-bit field, showing the value the machine will actually use.
func (asm *Assembler) checkImmediate(op cpu.Opcode, imm int, src *Instruction, diags *diag.List) {
	if imm >= -128 && imm <= 127 {
		return
	}
	effective := cpu.Signed16(cpu.Sext8(imm))
	diags.Warnf(diag.CodeImmTruncated, src.Span,
		"immediate %d outside [-128,127]; %s will use %d", imm, op, effective)
}

// checkBranchTarget warns when the target PC overflows the 10-bit field.
// The encoder still adds the full target into the word; the overflow into
// the register and opcode bits is the documented legacy behavior.
func (asm *Assembler) checkBranchTarget(target int, src *Instruction, diags *diag.List) {
	if target >= 1024 {
		diags.Warnf(diag.CodeBranchOverflow, src.Span,
			"branch target pc %d overflows the 10-bit field", target)
	}
}

func (asm *Assembler) checkShape(src *Instruction, want int, diags *diag.List) bool {
	if len(src.Operands) != want {
		diags.Errorf(diag.CodeBadOperand, src.Span,
			"%s takes %d operands, got %d", src.Mnemonic, want, len(src.Operands))
		return false
	}
	return true
}

// regOperands validates that the instruction has exactly want register
// operands and returns their indices.
func (asm *Assembler) regOperands(src *Instruction, want int, diags *diag.List) ([]int, bool) {
	if !asm.checkShape(src, want, diags) {
		return nil, false
	}
	regs := make([]int, want)
	for i := range regs {
		r, ok := asm.regOperand(src, i, diags)
		if !ok {
			return nil, false
		}
		regs[i] = r
	}
	return regs, true
}

func (asm *Assembler) regOperand(src *Instruction, i int, diags *diag.List) (int, bool) {
	op := src.Operands[i]
	if op.Kind != OperandReg {
		diags.Errorf(diag.CodeBadOperand, op.Span,
			"%s: operand %d must be a register", src.Mnemonic, i+1)
		return 0, false
	}
	return op.Reg, asm.checkRegister(op.Reg, op.Span, diags)
}

func (asm *Assembler) addressOperand(src *Instruction, i int, diags *diag.List) (imm, base int, ok bool) {
	op := src.Operands[i]
	if op.Kind != OperandAddress {
		diags.Errorf(diag.CodeBadOperand, op.Span,
			"%s: operand %d must be an address", src.Mnemonic, i+1)
		return 0, 0, false
	}
	if !asm.checkRegister(op.Base, op.Span, diags) {
		return 0, 0, false
	}
	return op.Imm, op.Base, true
}

func (asm *Assembler) labelOperand(src *Instruction, i int, symbols map[string]int, diags *diag.List) (int, bool) {
	op := src.Operands[i]
	if op.Kind != OperandLabel {
		diags.Errorf(diag.CodeBadOperand, op.Span,
			"%s: operand %d must be a label", src.Mnemonic, i+1)
		return 0, false
	}
	target, ok := symbols[op.Name]
	if !ok {
		diags.Errorf(diag.CodeUndefLabel, op.Span, "undefined label %s", op.Name)
		return 0, false
	}
	return target, true
}

func (asm *Assembler) checkRegister(idx int, span diag.Span, diags *diag.List) bool {
	if idx < 0 || idx >= asm.regCount {
		diags.Errorf(diag.CodeBadRegister, span,
			"register $%d outside [0,%d]", idx, asm.regCount-1)
		return false
	}
	return true
}
