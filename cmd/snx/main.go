// Command snx assembles, checks, and runs SN/X assembly programs.
//
// Exit codes: 0 on success, 1 on compile errors, 2 on runtime errors.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// Version is set at link time with -ldflags "-X main.Version=..."; when it
// is empty the CLI reports "dev".
var Version string

const (
	exitOK      = 0
	exitCompile = 1
	exitRuntime = 2
)

var rootCmd = &cobra.Command{
	Use:     "snx [flags] file",
	Short:   "Simulate execution of SN/X assembly programs.",
	Long:    "Assemble an SN/X source file, report diagnostics, and run it on the simulator.",
	Args:    cobra.ExactArgs(1),
	Version: version(),
	PreRun:  configureLogging,
	Run: func(cmd *cobra.Command, args []string) {
		runProgram(cmd, args[0])
	},
}

func version() string {
	if Version != "" {
		return Version
	}
	return "dev"
}

func configureLogging(cmd *cobra.Command, _ []string) {
	log.SetOutput(os.Stderr)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "increase logging verbosity")
	rootCmd.PersistentFlags().Int("regs", 0, "number of registers (default 4)")
	rootCmd.PersistentFlags().Int("mem", 0, "data memory size in words (default 128)")
	rootCmd.PersistentFlags().Bool("no-checks", false, "skip the static analysis passes")

	rootCmd.AddCommand(asmCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(disCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(exitCompile)
	}
	atexit.Exit(exitOK)
}
