package assembler

import "github.com/snowykr/snx-simulator/diag"

// TokenKind classifies a lexed token.
type TokenKind int

const (
	// TokenIdent is a letter followed by letters, digits, or underscores.
	// Mnemonics and labels share this class; the parser disambiguates.
	TokenIdent TokenKind = iota
	// TokenNumber is an optionally signed decimal literal.
	TokenNumber
	// TokenRegister is '$' followed by decimal digits.
	TokenRegister
	// TokenComma is ','.
	TokenComma
	// TokenColon is ':'.
	TokenColon
	// TokenLParen is '('.
	TokenLParen
	// TokenRParen is ')'.
	TokenRParen
	// TokenEOL terminates every source line.
	TokenEOL
	// TokenEOF terminates the stream.
	TokenEOF
)

var tokenNames = [...]string{
	TokenIdent:    "identifier",
	TokenNumber:   "number",
	TokenRegister: "register",
	TokenComma:    "','",
	TokenColon:    "':'",
	TokenLParen:   "'('",
	TokenRParen:   "')'",
	TokenEOL:      "end of line",
	TokenEOF:      "end of file",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return "unknown"
}

// Token is one lexed item with its source position.
type Token struct {
	Kind   TokenKind
	Lexeme string
	Span   diag.Span
}
