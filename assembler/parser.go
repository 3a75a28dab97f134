package assembler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/snowykr/snx-simulator/diag"
)

// Parser builds the AST from a token stream with one token of lookahead.
// A failure inside a line skips to the next EOL; later lines still parse.
type Parser struct {
	tokens []Token
	pos    int
	diags  *diag.List
}

// NewParser creates a parser over tokens, reporting problems to diags.
func NewParser(tokens []Token, diags *diag.List) *Parser {
	return &Parser{tokens: tokens, diags: diags}
}

// Parse consumes the whole stream and returns the program. Every source
// line gets a Line entry, including blank and comment-only lines.
func (p *Parser) Parse() *Program {
	prog := &Program{}
	for p.cur().Kind != TokenEOF {
		prog.Lines = append(prog.Lines, p.parseLine())
	}
	return prog
}

func (p *Parser) cur() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peek() Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos+1 < len(p.tokens) {
		p.pos++
	}
	return t
}

// skipLine consumes tokens up to and including the next EOL.
func (p *Parser) skipLine() {
	for p.cur().Kind != TokenEOL && p.cur().Kind != TokenEOF {
		p.advance()
	}
	if p.cur().Kind == TokenEOL {
		p.advance()
	}
}

func (p *Parser) parseLine() Line {
	line := Line{Span: p.cur().Span}

	// Optional label: IDENT ':'.
	if p.cur().Kind == TokenIdent && p.peek().Kind == TokenColon {
		line.Label = strings.ToUpper(p.advance().Lexeme)
		p.advance() // ':'
	}

	switch p.cur().Kind {
	case TokenEOL:
		p.advance()
		return line
	case TokenEOF:
		return line
	case TokenIdent:
		line.Instr = p.parseInstruction()
		if line.Instr == nil {
			return line
		}
	default:
		p.diags.Errorf(diag.CodeUnexpected, p.cur().Span,
			"expected instruction, got %s", p.cur().Kind)
		p.skipLine()
		return line
	}

	switch p.cur().Kind {
	case TokenEOL:
		p.advance()
	case TokenEOF:
	default:
		p.diags.Errorf(diag.CodeUnexpected, p.cur().Span,
			"expected end of line, got %s", p.cur().Kind)
		line.Instr = nil
		p.skipLine()
	}
	return line
}

// parseInstruction parses a mnemonic and its operands. Operand count and
// kinds are checked against the opcode table during lowering, not here.
func (p *Parser) parseInstruction() *Instruction {
	mn := p.advance()
	inst := &Instruction{
		Mnemonic: strings.ToUpper(mn.Lexeme),
		Span:     mn.Span,
	}

	if p.cur().Kind != TokenEOL && p.cur().Kind != TokenEOF {
		for {
			op, ok := p.parseOperand()
			if !ok {
				p.skipLine()
				return nil
			}
			inst.Operands = append(inst.Operands, op)
			if p.cur().Kind != TokenComma {
				break
			}
			p.advance()
		}
	}

	inst.Text = renderInstruction(inst)
	return inst
}

func (p *Parser) parseOperand() (Operand, bool) {
	t := p.cur()
	switch t.Kind {
	case TokenRegister:
		p.advance()
		idx, ok := p.registerIndex(t)
		if !ok {
			return Operand{}, false
		}
		return Operand{Kind: OperandReg, Reg: idx, Span: t.Span}, true

	case TokenNumber:
		p.advance()
		imm, err := strconv.Atoi(t.Lexeme)
		if err != nil {
			p.diags.Errorf(diag.CodeUnexpected, t.Span, "number %s out of range", t.Lexeme)
			return Operand{}, false
		}
		op := Operand{Kind: OperandAddress, Imm: imm, Base: 0, Span: t.Span}
		if p.cur().Kind != TokenLParen {
			// A bare number is an address with the constant base $0.
			return op, true
		}
		p.advance()
		reg := p.cur()
		if reg.Kind != TokenRegister {
			p.diags.Errorf(diag.CodeUnexpected, reg.Span,
				"expected register, got %s", reg.Kind)
			return Operand{}, false
		}
		p.advance()
		idx, ok := p.registerIndex(reg)
		if !ok {
			return Operand{}, false
		}
		op.Base = idx
		if p.cur().Kind != TokenRParen {
			p.diags.Errorf(diag.CodeUnexpected, p.cur().Span,
				"expected ')', got %s", p.cur().Kind)
			return Operand{}, false
		}
		p.advance()
		return op, true

	case TokenIdent:
		p.advance()
		return Operand{Kind: OperandLabel, Name: strings.ToUpper(t.Lexeme), Span: t.Span}, true

	default:
		p.diags.Errorf(diag.CodeUnexpected, t.Span, "expected operand, got %s", t.Kind)
		return Operand{}, false
	}
}

// registerIndex converts a register token to its numeric index. Range
// checking against the configured register count happens in the lowerer.
func (p *Parser) registerIndex(t Token) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimPrefix(t.Lexeme, "$"))
	if err != nil {
		p.diags.Errorf(diag.CodeBadRegister, t.Span, "bad register %s", t.Lexeme)
		return 0, false
	}
	return idx, true
}

// renderInstruction builds the canonical text used in diagnostics and the
// execution trace.
func renderInstruction(inst *Instruction) string {
	var b strings.Builder
	b.WriteString(inst.Mnemonic)
	for i, op := range inst.Operands {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		switch op.Kind {
		case OperandReg:
			fmt.Fprintf(&b, "$%d", op.Reg)
		case OperandAddress:
			fmt.Fprintf(&b, "%d($%d)", op.Imm, op.Base)
		case OperandLabel:
			b.WriteString(op.Name)
		}
	}
	return b.String()
}
