package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/snowykr/snx-simulator/cpu"
	"github.com/snowykr/snx-simulator/disassembler"
	"github.com/snowykr/snx-simulator/snx"
)

var asmCmd = &cobra.Command{
	Use:    "asm [flags] file",
	Short:  "Assemble a source file and print the machine words.",
	Args:   cobra.ExactArgs(1),
	PreRun: configureLogging,
	Run: func(cmd *cobra.Command, args []string) {
		res := compileFile(cmd, args[0])
		for i, w := range res.IR.Words {
			if i > 0 {
				fmt.Print(" ")
			}
			fmt.Printf("%04x", w)
		}
		fmt.Println()
	},
}

var checkCmd = &cobra.Command{
	Use:    "check [flags] file",
	Short:  "Compile a source file and report diagnostics only.",
	Args:   cobra.ExactArgs(1),
	PreRun: configureLogging,
	Run: func(cmd *cobra.Command, args []string) {
		res := compileFile(cmd, args[0])
		if res.Diags.Len() == 0 {
			fmt.Println("no findings")
		}
	},
}

var disCmd = &cobra.Command{
	Use:    "dis [flags] file",
	Short:  "Assemble a source file and print its disassembly.",
	Args:   cobra.ExactArgs(1),
	PreRun: configureLogging,
	Run: func(cmd *cobra.Command, args []string) {
		res := compileFile(cmd, args[0])
		fmt.Print(disassembler.Format(res.IR.Words))
	},
}

func options(cmd *cobra.Command) snx.Options {
	regs, _ := cmd.Flags().GetInt("regs")
	mem, _ := cmd.Flags().GetInt("mem")
	noChecks, _ := cmd.Flags().GetBool("no-checks")
	return snx.Options{RegCount: regs, MemSize: mem, SkipStaticChecks: noChecks}
}

// compileFile compiles the named source file, prints diagnostics to
// stderr, and exits with the compile-error code when the program is bad.
func compileFile(cmd *cobra.Command, path string) *snx.CompileResult {
	src, err := os.ReadFile(path)
	if err != nil {
		log.Error(err)
		atexit.Exit(exitCompile)
	}

	res, err := snx.Compile(string(src), options(cmd))
	if err != nil {
		log.Error(err)
		atexit.Exit(exitCompile)
	}
	fmt.Fprint(os.Stderr, res.FormatDiagnostics())
	if res.HasErrors() {
		atexit.Exit(exitCompile)
	}
	return res
}

func runProgram(cmd *cobra.Command, path string) {
	res := compileFile(cmd, path)
	m, err := snx.NewMachine(res)
	if err != nil {
		log.Error(err)
		atexit.Exit(exitCompile)
	}

	if err := m.Run(); err != nil {
		log.Error(err)
		atexit.Exit(exitRuntime)
	}

	printTrace(m)
	printOutput(m)
}

// printTrace renders the execution trace the way the original classroom
// tool did: one row per step with the registers before the instruction.
func printTrace(m *cpu.Machine) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)

	header := table.Row{"PC", "Instruction"}
	for i := range m.Regs {
		header = append(header, fmt.Sprintf("$%d", i))
	}
	t.AppendHeader(header)

	for _, rec := range m.Trace {
		row := table.Row{rec.PC, rec.Text}
		for _, v := range rec.Regs {
			row = append(row, v)
		}
		t.AppendRow(row)
	}

	footer := table.Row{"", "final"}
	for _, v := range m.Regs {
		footer = append(footer, v)
	}
	t.AppendFooter(footer)
	t.Render()
}

func printOutput(m *cpu.Machine) {
	if len(m.Output) == 0 {
		return
	}
	fmt.Print("output:")
	for _, v := range m.Output {
		fmt.Printf(" %d", v)
	}
	fmt.Println()
}
