package cpu_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/snowykr/snx-simulator/assembler"
	"github.com/snowykr/snx-simulator/cpu"
	"github.com/snowykr/snx-simulator/diag"
)

func compile(src string) *cpu.Program {
	diags := &diag.List{}
	_, prog := assembler.New(4, 0x10000).Assemble(src, diags)
	Expect(diags.HasErrors()).To(BeFalse(), diags.Format())
	return prog
}

func newMachine(src string, memSize int) *cpu.Machine {
	m, err := cpu.NewMachine(compile(src), 4, memSize)
	Expect(err).ToNot(HaveOccurred())
	return m
}

var _ = Describe("Machine", func() {

	It("rejects invalid configurations", func() {
		prog := compile("HLT")
		_, err := cpu.NewMachine(prog, 0, 128)
		Expect(err).To(HaveOccurred())
		_, err = cpu.NewMachine(prog, 5, 128)
		Expect(err).To(HaveOccurred())
		_, err = cpu.NewMachine(prog, 4, 0x10001)
		Expect(err).To(HaveOccurred())
		_, err = cpu.NewMachine(prog, 4, 0x10000)
		Expect(err).ToNot(HaveOccurred())
	})

	It("stops immediately on an empty program without setting Halted", func() {
		m := newMachine("", 128)
		Expect(m.Run()).To(Succeed())
		Expect(m.Trace).To(BeEmpty())
		Expect(m.Halted).To(BeFalse())
	})

	It("executes HLT with a single trace record", func() {
		m := newMachine("HLT", 128)
		Expect(m.Run()).To(Succeed())
		Expect(m.Halted).To(BeTrue())
		Expect(m.Trace).To(HaveLen(1))
		Expect(m.Trace[0].Text).To(Equal("HLT"))
	})

	It("stops silently when the PC runs off the end", func() {
		m := newMachine("LDA $1, 1($0)", 128)
		Expect(m.Run()).To(Succeed())
		Expect(m.Halted).To(BeFalse())
		Expect(m.Trace).To(HaveLen(1))
		Expect(m.Regs[1]).To(Equal(uint16(1)))
	})

	Describe("arithmetic", func() {
		It("wraps addition modulo 2^16", func() {
			m := newMachine("LDA $1, -1($0)\nADD $2, $1, $1\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[1]).To(Equal(uint16(0xFFFF)))
			Expect(m.Regs[2]).To(Equal(uint16(0xFFFE)))
		})

		It("wraps subtraction below zero", func() {
			m := newMachine("LDA $2, 1($0)\nSUB $3, $1, $2\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[3]).To(Equal(uint16(0xFFFF)))
		})

		It("compares signed values with SLT", func() {
			m := newMachine("LDA $1, -1($0)\nLDA $2, 1($0)\nSLT $3, $1, $2\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[3]).To(Equal(uint16(1)))
		})

		It("computes NOT and logical shift right", func() {
			m := newMachine("LDA $1, 5($0)\nNOT $2, $1\nSR $3, $2\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[2]).To(Equal(uint16(0xFFFA)))
			Expect(m.Regs[3]).To(Equal(uint16(0x7FFD)))
		})

		It("masks AND over full words", func() {
			m := newMachine("LDA $1, -1($0)\nLDA $2, 85($0)\nAND $3, $1, $2\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[3]).To(Equal(uint16(85)))
		})
	})

	Describe("effective addresses", func() {
		It("treats $0 as constant zero even when it holds a value", func() {
			// $0 is real storage: LDA writes it, but as a base it reads 0.
			m := newMachine("LDA $0, 7($0)\nLDA $1, 3($0)\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[0]).To(Equal(uint16(7)))
			Expect(m.Regs[1]).To(Equal(uint16(3)))
		})

		It("adds the sign-extended immediate to the base register", func() {
			m := newMachine("LDA $1, 100($0)\nLDA $2, -28($1)\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[2]).To(Equal(uint16(72)))
		})

		It("wraps address arithmetic modulo 2^16", func() {
			m := newMachine("LDA $2, -1($1)\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[2]).To(Equal(uint16(0xFFFF)))
		})
	})

	Describe("memory", func() {
		It("stores and loads through a register base", func() {
			m := newMachine("LDA $1, 64($0)\nLDA $2, 9($0)\nST $2, 0($1)\nLD $3, 0($1)\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Mem[64]).To(Equal(uint16(9)))
			Expect(m.Regs[3]).To(Equal(uint16(9)))
		})

		It("defaults out-of-bounds loads to zero and drops stores", func() {
			m := newMachine("LDA $1, 100($0)\nLDA $2, 5($0)\nST $2, 0($1)\nLD $3, 0($1)\nHLT", 64)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[3]).To(Equal(uint16(0)))
		})

		It("reports out-of-bounds accesses to the callback", func() {
			type access struct {
				kind string
				addr uint16
				pc   uint16
			}
			var calls []access
			m := newMachine("LDA $1, 100($0)\nLD $2, 0($1)\nHLT", 64)
			m.OnOOB = func(kind string, addr, pc uint16, text string, memSize int) error {
				calls = append(calls, access{kind, addr, pc})
				Expect(text).To(Equal("LD $2, 0($1)"))
				Expect(memSize).To(Equal(64))
				return nil
			}
			Expect(m.Run()).To(Succeed())
			Expect(calls).To(Equal([]access{{"load", 100, 1}}))
			Expect(m.Regs[2]).To(Equal(uint16(0)))
			Expect(m.Halted).To(BeTrue())
		})

		It("stops on a failing OOB callback without the default effect", func() {
			boom := errors.New("boom")
			m := newMachine("LDA $2, 7($0)\nLDA $1, 100($0)\nLD $2, 0($1)\nHLT", 64)
			m.OnOOB = func(string, uint16, uint16, string, int) error { return boom }
			err := m.Run()
			Expect(err).To(MatchError(boom))
			// The failing load must not clobber $2.
			Expect(m.Regs[2]).To(Equal(uint16(7)))
			Expect(m.Halted).To(BeFalse())
		})
	})

	Describe("branches", func() {
		It("takes BZ only when the register is zero", func() {
			m := newMachine("LDA $1, 1($0)\nBZ $1, skip\nLDA $2, 2($0)\nskip: BZ $0, done\nLDA $3, 3($0)\ndone: HLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[2]).To(Equal(uint16(2)))
			Expect(m.Regs[3]).To(Equal(uint16(0)))
		})

		It("links and returns through BAL", func() {
			m := newMachine("main: BAL $2, foo\nHLT\nfoo: BAL $0, 0($2)", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Halted).To(BeTrue())
			Expect(m.Regs[2]).To(Equal(uint16(1)))
			Expect(m.Regs[0]).To(Equal(uint16(3)))
			Expect(m.Trace).To(HaveLen(3))
		})

		It("computes the return target before writing the link register", func() {
			// BAL $2, 0($2) must jump to the old $2, not the new link value.
			m := newMachine("LDA $2, 3($0)\nBAL $2, 0($2)\nHLT\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[2]).To(Equal(uint16(2)))
			Expect(m.Trace).To(HaveLen(3))
		})
	})

	Describe("I/O", func() {
		It("reads zero from IN without a callback", func() {
			m := newMachine("LDA $1, 9($0)\nIN $1\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[1]).To(Equal(uint16(0)))
		})

		It("feeds IN from the callback and masks to 16 bits", func() {
			m := newMachine("IN $1\nHLT", 128)
			m.OnInput = func() (uint16, error) { return 0xABCD, nil }
			Expect(m.Run()).To(Succeed())
			Expect(m.Regs[1]).To(Equal(uint16(0xABCD)))
		})

		It("buffers OUT values and invokes the callback", func() {
			var seen []uint16
			m := newMachine("LDA $1, 4($0)\nOUT $1\nLDA $1, 5($0)\nOUT $1\nHLT", 128)
			m.OnOutput = func(v uint16) error {
				seen = append(seen, v)
				return nil
			}
			Expect(m.Run()).To(Succeed())
			Expect(m.Output).To(Equal([]uint16{4, 5}))
			Expect(seen).To(Equal([]uint16{4, 5}))
		})

		It("surfaces an input callback failure", func() {
			m := newMachine("IN $1\nHLT", 128)
			m.OnInput = func() (uint16, error) { return 0, fmt.Errorf("closed") }
			Expect(m.Run()).To(MatchError(ContainSubstring("closed")))
			Expect(m.Regs[1]).To(Equal(uint16(0)))
		})
	})

	Describe("tracing", func() {
		It("snapshots registers before each step", func() {
			m := newMachine("LDA $1, 3($0)\nLDA $2, 4($0)\nADD $3, $1, $2\nHLT", 128)
			Expect(m.Run()).To(Succeed())
			Expect(m.Trace).To(HaveLen(4))
			// Before ADD executes, $3 is still zero.
			Expect(m.Trace[2].Regs).To(Equal([]uint16{0, 3, 4, 0}))
			Expect(m.Trace[2].PC).To(Equal(uint16(2)))
			Expect(m.Trace[2].Text).To(Equal("ADD $3, $1, $2"))
		})

		It("invokes the trace callback with the same records", func() {
			var recs []cpu.TraceRecord
			m := newMachine("LDA $1, 1($0)\nHLT", 128)
			m.OnTrace = func(rec cpu.TraceRecord) error {
				recs = append(recs, rec)
				return nil
			}
			Expect(m.Run()).To(Succeed())
			Expect(recs).To(HaveLen(2))
			Expect(recs[0].Text).To(Equal("LDA $1, 1($0)"))
		})

		It("stops before executing when the trace callback fails", func() {
			m := newMachine("LDA $1, 1($0)\nHLT", 128)
			m.OnTrace = func(cpu.TraceRecord) error { return errors.New("stop") }
			Expect(m.Run()).To(MatchError(ContainSubstring("stop")))
			Expect(m.Regs[1]).To(Equal(uint16(0)))
		})
	})

	It("errors out when the step limit is exhausted", func() {
		m := newMachine("loop: BAL $1, loop", 128)
		m.StepLimit = 100
		Expect(m.Run()).To(MatchError(cpu.ErrStepLimit))
		Expect(m.Trace).To(HaveLen(100))
	})

	It("treats an unused opcode as a fatal runtime error", func() {
		prog := &cpu.Program{
			Instrs:  []cpu.Instruction{{Op: cpu.Opcode(0xB), Text: "?"}},
			Words:   []uint16{0xB000},
			Symbols: map[string]int{},
		}
		m, err := cpu.NewMachine(prog, 4, 128)
		Expect(err).ToNot(HaveOccurred())
		Expect(m.Run()).To(MatchError(ContainSubstring("illegal opcode")))
	})
})
