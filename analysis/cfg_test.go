package analysis_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/snowykr/snx-simulator/analysis"
	"github.com/snowykr/snx-simulator/assembler"
	"github.com/snowykr/snx-simulator/cpu"
	"github.com/snowykr/snx-simulator/diag"
)

func compile(src string) *cpu.Program {
	diags := &diag.List{}
	_, prog := assembler.New(4, 128).Assemble(src, diags)
	Expect(diags.HasErrors()).To(BeFalse(), diags.Format())
	return prog
}

func reportCodes(src string) []string {
	prog := compile(src)
	g := analysis.BuildCFG(prog)
	diags := &diag.List{}
	g.Report(diags)
	var codes []string
	for _, d := range diags.Items() {
		codes = append(codes, d.Code)
	}
	return codes
}

var _ = Describe("CFG", func() {

	It("chains straight-line code", func() {
		g := analysis.BuildCFG(compile("LDA $1, 1($0)\nADD $2, $1, $1\nHLT"))
		Expect(g.Succs[0]).To(Equal([]int{1}))
		Expect(g.Succs[1]).To(Equal([]int{2}))
		Expect(g.Succs[2]).To(BeEmpty())
	})

	It("gives BZ both successors", func() {
		g := analysis.BuildCFG(compile("BZ $1, end\nLDA $1, 1($0)\nend: HLT"))
		Expect(g.Succs[0]).To(ConsistOf(1, 2))
	})

	It("gives a label BAL only its target", func() {
		g := analysis.BuildCFG(compile("BAL $2, foo\nHLT\nfoo: HLT"))
		Expect(g.Succs[0]).To(Equal([]int{2}))
	})

	It("treats a register BAL as a return site with no successors", func() {
		g := analysis.BuildCFG(compile("BAL $0, 0($2)\nHLT"))
		Expect(g.Succs[0]).To(BeEmpty())
		Expect(g.ReturnSite.Test(0)).To(BeTrue())
	})

	It("drops fall-through past the end of the program", func() {
		g := analysis.BuildCFG(compile("LDA $1, 1($0)"))
		Expect(g.Succs[0]).To(BeEmpty())
	})

	Describe("reachability", func() {
		It("marks everything reachable in a straight line", func() {
			g := analysis.BuildCFG(compile("LDA $1, 1($0)\nHLT"))
			Expect(g.Reachable().Count()).To(Equal(uint(2)))
		})

		It("reports code after an unconditional jump", func() {
			codes := reportCodes("BAL $2, end\nLDA $1, 1($0)\nend: HLT")
			Expect(codes).To(Equal([]string{diag.CodeUnreachable}))
		})

		It("stays quiet for a fully reachable program", func() {
			Expect(reportCodes("BZ $0, done\nLDA $1, 1($0)\ndone: HLT")).To(BeEmpty())
		})
	})

	Describe("infinite loops", func() {
		It("flags a self loop with no exit", func() {
			codes := reportCodes("loop: BAL $1, loop\nHLT")
			Expect(codes).To(ContainElement(diag.CodeInfiniteLoop))
		})

		It("flags a two-instruction cycle", func() {
			codes := reportCodes("a: LDA $1, 1($0)\nBAL $2, a\nHLT")
			Expect(codes).To(ContainElement(diag.CodeInfiniteLoop))
		})

		It("accepts a loop that can reach HLT", func() {
			src := "loop: LDA $1, -1($1)\nBZ $1, done\nBAL $2, loop\ndone: HLT"
			Expect(reportCodes(src)).To(BeEmpty())
		})

		It("accepts a loop that can reach a return site", func() {
			src := "loop: LDA $1, -1($1)\nBZ $1, out\nBAL $2, loop\nout: BAL $0, 0($2)"
			Expect(reportCodes(src)).To(BeEmpty())
		})

		It("spares loops that perform I/O", func() {
			codes := reportCodes("loop: OUT $1\nBAL $2, loop\nHLT")
			Expect(codes).ToNot(ContainElement(diag.CodeInfiniteLoop))
		})
	})
})
