package analysis

import (
	"github.com/bits-and-blooms/bitset"
	log "github.com/sirupsen/logrus"

	"github.com/snowykr/snx-simulator/cpu"
	"github.com/snowykr/snx-simulator/diag"
)

// InitState is the initialization lattice for a register or a tracked
// memory cell.
type InitState uint8

const (
	// Uninit: never written on any path reaching this point.
	Uninit InitState = iota
	// MaybeInit: written on some paths but not all.
	MaybeInit
	// Init: written on every path.
	Init
)

func (s InitState) String() string {
	switch s {
	case Init:
		return "init"
	case MaybeInit:
		return "maybe-init"
	default:
		return "uninit"
	}
}

func joinInit(a, b InitState) InitState {
	if a == b {
		return a
	}
	return MaybeInit
}

// Fact is the per-register (or per-cell) lattice value: the init state,
// the set of PCs that produced the value, and whether the value is a
// return address written by BAL on every path.
type Fact struct {
	State   InitState
	Ret     bool
	Origins *bitset.BitSet
}

func initFact(pc int, ret bool) Fact {
	o := bitset.New(1)
	o.Set(uint(pc))
	return Fact{State: Init, Ret: ret, Origins: o}
}

func joinFact(a, b Fact) Fact {
	var origins *bitset.BitSet
	switch {
	case a.Origins == nil:
		origins = b.Origins
	case b.Origins == nil:
		origins = a.Origins
	default:
		origins = a.Origins.Union(b.Origins)
	}
	return Fact{
		State:   joinInit(a.State, b.State),
		Ret:     a.Ret && b.Ret,
		Origins: origins,
	}
}

func equalFact(a, b Fact) bool {
	if a.State != b.State || a.Ret != b.Ret {
		return false
	}
	switch {
	case a.Origins == nil:
		return b.Origins == nil || b.Origins.None()
	case b.Origins == nil:
		return a.Origins.None()
	default:
		return a.Origins.Equal(b.Origins)
	}
}

// State is the abstract machine state entering one instruction: one Fact
// per register, plus facts for memory cells written through a statically
// known address (base $0).
type State struct {
	Regs []Fact
	Mem  map[uint16]Fact
}

func newEntryState(regCount int) *State {
	return &State{
		Regs: make([]Fact, regCount),
		Mem:  make(map[uint16]Fact),
	}
}

func (s *State) clone() *State {
	c := &State{
		Regs: append([]Fact(nil), s.Regs...),
		Mem:  make(map[uint16]Fact, len(s.Mem)),
	}
	for k, v := range s.Mem {
		c.Mem[k] = v
	}
	return c
}

func (s *State) join(o *State) *State {
	j := &State{
		Regs: make([]Fact, len(s.Regs)),
		Mem:  make(map[uint16]Fact, len(s.Mem)+len(o.Mem)),
	}
	for i := range s.Regs {
		j.Regs[i] = joinFact(s.Regs[i], o.Regs[i])
	}
	for k, v := range s.Mem {
		j.Mem[k] = joinFact(v, o.Mem[k])
	}
	for k, v := range o.Mem {
		if _, seen := s.Mem[k]; !seen {
			j.Mem[k] = joinFact(v, Fact{})
		}
	}
	return j
}

func (s *State) equal(o *State) bool {
	for i := range s.Regs {
		if !equalFact(s.Regs[i], o.Regs[i]) {
			return false
		}
	}
	if len(s.Mem) != len(o.Mem) {
		return false
	}
	for k, v := range s.Mem {
		ov, ok := o.Mem[k]
		if !ok || !equalFact(v, ov) {
			return false
		}
	}
	return true
}

// Dataflow holds the fixpoint result: the state entering each PC, or nil
// for instructions the analysis never reached.
type Dataflow struct {
	prog *cpu.Program
	cfg  *CFG
	In   []*State
}

// Analyze runs the worklist fixpoint over the CFG.
func Analyze(prog *cpu.Program, cfg *CFG, regCount int) *Dataflow {
	n := prog.Len()
	d := &Dataflow{prog: prog, cfg: cfg, In: make([]*State, n)}
	if n == 0 {
		return d
	}

	d.In[0] = newEntryState(regCount)
	work := []int{0}
	queued := bitset.New(uint(n))
	queued.Set(0)

	rounds := 0
	for len(work) > 0 {
		p := work[0]
		work = work[1:]
		queued.Clear(uint(p))
		rounds++

		out := d.transfer(p, d.In[p].clone())
		for _, s := range cfg.Succs[p] {
			merged := out
			if d.In[s] != nil {
				merged = d.In[s].join(out)
				if merged.equal(d.In[s]) {
					continue
				}
			}
			d.In[s] = merged
			if !queued.Test(uint(s)) {
				queued.Set(uint(s))
				work = append(work, s)
			}
		}
	}
	log.WithField("iterations", rounds).Debug("dataflow fixpoint done")

	return d
}

// transfer applies one instruction's effect to the abstract state.
func (d *Dataflow) transfer(pc int, s *State) *State {
	inst := &d.prog.Instrs[pc]
	switch inst.Op {
	case cpu.OpADD, cpu.OpAND, cpu.OpSUB, cpu.OpSLT, cpu.OpNOT, cpu.OpSR,
		cpu.OpLDA, cpu.OpIN:
		s.Regs[inst.Rd] = initFact(pc, false)

	case cpu.OpLD:
		if addr, ok := staticAddress(inst); ok {
			// The register takes on what is known about the cell. The cell
			// may never have been written, but the register itself has been,
			// so it is at worst maybe-initialized garbage.
			cell := s.Mem[addr]
			f := initFact(pc, false)
			if cell.State != Init {
				f.State = MaybeInit
			}
			f.Ret = cell.State == Init && cell.Ret
			if cell.Origins != nil {
				f.Origins = f.Origins.Union(cell.Origins)
			}
			s.Regs[inst.Rd] = f
		} else {
			s.Regs[inst.Rd] = initFact(pc, false)
		}

	case cpu.OpST:
		if addr, ok := staticAddress(inst); ok {
			s.Mem[addr] = s.Regs[inst.Rd]
		}
		// A store through a register base could hit any cell; tracked
		// cells are left as they are.

	case cpu.OpBAL:
		s.Regs[inst.Rd] = initFact(pc, true)

	case cpu.OpHLT, cpu.OpBZ, cpu.OpOUT:
		// No register or tracked-cell writes.
	}
	return s
}

// staticAddress returns the data address of an LD/ST whose base is the
// constant $0.
func staticAddress(inst *cpu.Instruction) (uint16, bool) {
	if inst.Rs1 != 0 {
		return 0, false
	}
	return cpu.Sext8(inst.Imm), true
}

// sourceRegs lists the registers an instruction reads. A base of $0 is the
// constant zero, not a register read.
func sourceRegs(inst *cpu.Instruction) []int {
	switch inst.Op {
	case cpu.OpADD, cpu.OpAND, cpu.OpSUB, cpu.OpSLT:
		return []int{inst.Rs1, inst.Rs2}
	case cpu.OpNOT, cpu.OpSR:
		return []int{inst.Rs1}
	case cpu.OpLD, cpu.OpLDA:
		if inst.Rs1 != 0 {
			return []int{inst.Rs1}
		}
	case cpu.OpST:
		if inst.Rs1 != 0 {
			return []int{inst.Rd, inst.Rs1}
		}
		return []int{inst.Rd}
	case cpu.OpOUT, cpu.OpBZ:
		return []int{inst.Rd}
	case cpu.OpBAL:
		if !inst.HasTarget && inst.Rs1 != 0 {
			return []int{inst.Rs1}
		}
	}
	return nil
}

// Report emits the dataflow findings in PC order: reads of possibly
// uninitialized registers, and returns through registers that do not hold
// a link address.
func (d *Dataflow) Report(diags *diag.List) {
	for pc := range d.prog.Instrs {
		in := d.In[pc]
		if in == nil {
			continue
		}
		inst := &d.prog.Instrs[pc]

		for _, r := range sourceRegs(inst) {
			switch in.Regs[r].State {
			case Uninit:
				diags.Warnf(diag.CodeUninitRead, inst.Span,
					"register $%d read before initialization", r)
			case MaybeInit:
				diags.Warnf(diag.CodeUninitRead, inst.Span,
					"register $%d may be uninitialized here", r)
			}
		}

		if inst.Op == cpu.OpBAL && !inst.HasTarget {
			linked := inst.Rs1 != 0 && in.Regs[inst.Rs1].State == Init && in.Regs[inst.Rs1].Ret
			if !linked {
				diags.Warnf(diag.CodeInvalidReturn, inst.Span,
					"return through $%d, which does not hold a link address", inst.Rs1)
			}
		}
	}
}
