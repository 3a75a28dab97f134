// Package snx is the public facade over the SN/X toolchain: one call to
// compile a source program and constructors for the simulator.
package snx

import (
	"errors"
	"fmt"

	"github.com/snowykr/snx-simulator/analysis"
	"github.com/snowykr/snx-simulator/assembler"
	"github.com/snowykr/snx-simulator/cpu"
	"github.com/snowykr/snx-simulator/diag"
)

// Defaults for the classroom machine configuration.
const (
	DefaultRegCount = 4
	DefaultMemSize  = 128
)

// ErrCompileFailed is returned when a simulator is requested for a program
// that did not compile cleanly.
var ErrCompileFailed = errors.New("program has compile errors")

// Options configures a compile. Zero values select the defaults, with
// static checks enabled.
type Options struct {
	// RegCount is the number of registers, in [1,4]. 0 means 4.
	RegCount int
	// MemSize is the number of data memory words, in [1, 0x10000]. 0 means 128.
	MemSize int
	// SkipStaticChecks disables the CFG and dataflow passes.
	SkipStaticChecks bool
}

func (o Options) withDefaults() Options {
	if o.RegCount == 0 {
		o.RegCount = DefaultRegCount
	}
	if o.MemSize == 0 {
		o.MemSize = DefaultMemSize
	}
	return o
}

func (o Options) validate() error {
	if o.RegCount < 1 || o.RegCount > 4 {
		return fmt.Errorf("register count %d outside [1,4]", o.RegCount)
	}
	if o.MemSize < 1 || o.MemSize > 0x10000 {
		return fmt.Errorf("memory size %d outside [1, 0x10000]", o.MemSize)
	}
	return nil
}

// CompileResult bundles everything a compile produces. IR may contain
// placeholder entries when Diags has errors; CFG and Dataflow are nil when
// static checks were skipped.
type CompileResult struct {
	AST      *assembler.Program
	IR       *cpu.Program
	Diags    *diag.List
	CFG      *analysis.CFG
	Dataflow *analysis.Dataflow
	RegCount int
	MemSize  int
}

// HasErrors reports whether compilation produced any error.
func (r *CompileResult) HasErrors() bool {
	return r.Diags.HasErrors()
}

// HasWarnings reports whether compilation produced any warning.
func (r *CompileResult) HasWarnings() bool {
	return r.Diags.HasWarnings()
}

// FormatDiagnostics renders the diagnostics as line-anchored text.
func (r *CompileResult) FormatDiagnostics() string {
	return r.Diags.Format()
}

// Compile runs the full pipeline over source. The error return covers bad
// options only; source problems are reported through the diagnostics.
func Compile(source string, opts Options) (*CompileResult, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	diags := &diag.List{}
	ast, ir := assembler.New(opts.RegCount, opts.MemSize).Assemble(source, diags)

	res := &CompileResult{
		AST:      ast,
		IR:       ir,
		Diags:    diags,
		RegCount: opts.RegCount,
		MemSize:  opts.MemSize,
	}
	if !opts.SkipStaticChecks {
		res.CFG = analysis.BuildCFG(ir)
		res.CFG.Report(diags)
		res.Dataflow = analysis.Analyze(ir, res.CFG, opts.RegCount)
		res.Dataflow.Report(diags)
	}
	return res, nil
}

// NewMachine constructs a simulator for a clean compile. It refuses when
// the result has errors.
func NewMachine(r *CompileResult) (*cpu.Machine, error) {
	if r.HasErrors() {
		return nil, ErrCompileFailed
	}
	return cpu.NewMachine(r.IR, r.RegCount, r.MemSize)
}

// NewMachineFromSource compiles source and constructs a simulator in one
// step. The CompileResult is returned even when construction fails, so the
// caller can render diagnostics.
func NewMachineFromSource(source string, opts Options) (*cpu.Machine, *CompileResult, error) {
	r, err := Compile(source, opts)
	if err != nil {
		return nil, nil, err
	}
	m, err := NewMachine(r)
	if err != nil {
		return nil, r, err
	}
	return m, r, nil
}
