// Package analysis implements the static checks that run after lowering:
// control-flow graph construction, reachability, infinite-loop detection,
// and the initialization/provenance dataflow pass.
package analysis

import (
	"github.com/bits-and-blooms/bitset"
	log "github.com/sirupsen/logrus"

	"github.com/snowykr/snx-simulator/cpu"
	"github.com/snowykr/snx-simulator/diag"
)

// CFG is the basic-block graph over IR instruction indices. Succs[p] lists
// the statically known successors of the instruction at PC p.
type CFG struct {
	prog  *cpu.Program
	Succs [][]int
	// ReturnSite marks register-form BAL instructions: their successor is
	// not statically known, so they act as exit edges.
	ReturnSite *bitset.BitSet
}

// BuildCFG constructs the graph for a lowered program.
func BuildCFG(prog *cpu.Program) *CFG {
	n := prog.Len()
	g := &CFG{
		prog:       prog,
		Succs:      make([][]int, n),
		ReturnSite: bitset.New(uint(n)),
	}

	for p, inst := range prog.Instrs {
		switch {
		case inst.Op == cpu.OpHLT:
			// Terminal.
		case inst.Op == cpu.OpBAL && inst.HasTarget:
			g.addEdge(p, inst.Target)
		case inst.Op == cpu.OpBAL:
			g.ReturnSite.Set(uint(p))
		case inst.Op == cpu.OpBZ:
			g.addEdge(p, p+1)
			g.addEdge(p, inst.Target)
		default:
			g.addEdge(p, p+1)
		}
	}
	return g
}

// addEdge records a successor, dropping targets past the end of the
// program.
func (g *CFG) addEdge(from, to int) {
	if to < 0 || to >= g.prog.Len() {
		return
	}
	g.Succs[from] = append(g.Succs[from], to)
}

// Reachable returns the set of PCs reachable from PC 0.
func (g *CFG) Reachable() *bitset.BitSet {
	n := g.prog.Len()
	seen := bitset.New(uint(n))
	if n == 0 {
		return seen
	}

	work := []int{0}
	seen.Set(0)
	for len(work) > 0 {
		p := work[0]
		work = work[1:]
		for _, s := range g.Succs[p] {
			if !seen.Test(uint(s)) {
				seen.Set(uint(s))
				work = append(work, s)
			}
		}
	}
	return seen
}

// Report emits the graph findings: unreachable instructions first, then
// loops with no way out.
func (g *CFG) Report(diags *diag.List) {
	reachable := g.Reachable()
	for p := range g.prog.Instrs {
		if !reachable.Test(uint(p)) {
			diags.Infof(diag.CodeUnreachable, g.prog.Instrs[p].Span,
				"unreachable instruction %q", g.prog.Instrs[p].Text)
		}
	}

	for _, scc := range g.cyclicSCCs() {
		if g.isObviousInfiniteLoop(scc) {
			first := scc[0]
			for _, p := range scc {
				if p < first {
					first = p
				}
			}
			diags.Warnf(diag.CodeInfiniteLoop, g.prog.Instrs[first].Span,
				"loop at pc %d never reaches HLT or a return", first)
		}
	}
	log.WithField("instructions", g.prog.Len()).Debug("cfg checks done")
}

// isObviousInfiniteLoop reports whether the cyclic component can never
// terminate: it performs no I/O and no HLT or return site is reachable
// from any of its members.
func (g *CFG) isObviousInfiniteLoop(scc []int) bool {
	for _, p := range scc {
		if g.prog.Instrs[p].Op.IsIO() {
			return false
		}
	}

	seen := bitset.New(uint(g.prog.Len()))
	work := append([]int(nil), scc...)
	for _, p := range scc {
		seen.Set(uint(p))
	}
	for len(work) > 0 {
		p := work[0]
		work = work[1:]
		if g.prog.Instrs[p].Op == cpu.OpHLT || g.ReturnSite.Test(uint(p)) {
			return false
		}
		for _, s := range g.Succs[p] {
			if !seen.Test(uint(s)) {
				seen.Set(uint(s))
				work = append(work, s)
			}
		}
	}
	return true
}

// cyclicSCCs returns the strongly connected components that actually
// contain a cycle: more than one member, or a single member with a self
// edge. Tarjan's algorithm, iterative to keep deep programs off the Go
// stack.
func (g *CFG) cyclicSCCs() [][]int {
	n := g.prog.Len()
	const unvisited = -1

	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := bitset.New(uint(n))
	for i := range index {
		index[i] = unvisited
	}

	var (
		sccs    [][]int
		stack   []int
		counter int
	)

	type frame struct {
		v    int
		succ int
	}

	for root := 0; root < n; root++ {
		if index[root] != unvisited {
			continue
		}
		frames := []frame{{v: root}}
		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			v := f.v
			if f.succ == 0 {
				index[v] = counter
				lowlink[v] = counter
				counter++
				stack = append(stack, v)
				onStack.Set(uint(v))
			}
			advanced := false
			for f.succ < len(g.Succs[v]) {
				w := g.Succs[v][f.succ]
				f.succ++
				if index[w] == unvisited {
					frames = append(frames, frame{v: w})
					advanced = true
					break
				}
				if onStack.Test(uint(w)) && index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
			if advanced {
				continue
			}
			if lowlink[v] == index[v] {
				var scc []int
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack.Clear(uint(w))
					scc = append(scc, w)
					if w == v {
						break
					}
				}
				if len(scc) > 1 || g.hasSelfEdge(v) {
					sccs = append(sccs, scc)
				}
			}
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].v
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
		}
	}
	return sccs
}

func (g *CFG) hasSelfEdge(v int) bool {
	for _, s := range g.Succs[v] {
		if s == v {
			return true
		}
	}
	return false
}
