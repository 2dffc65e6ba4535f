// Command cyrexc compiles a single .cyrex source file to x86-64 NASM
// assembly: lex and parse, generate IR, build each function's CFG, lower
// to machine code, optionally run the peephole optimizer, then emit text.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/term"

	"github.com/cyrex-lang/cyrexc/pkg/alloc"
	"github.com/cyrex-lang/cyrexc/pkg/emit"
	"github.com/cyrex-lang/cyrexc/pkg/frontend"
	"github.com/cyrex-lang/cyrexc/pkg/ir"
	"github.com/cyrex-lang/cyrexc/pkg/irdump"
	"github.com/cyrex-lang/cyrexc/pkg/irgen"
	"github.com/cyrex-lang/cyrexc/pkg/lower"
	"github.com/cyrex-lang/cyrexc/pkg/optimizer"
)

var (
	outputFile string
	optimize   bool
	debug      bool
	dumpIR     bool
	emitMIR    string
	listPasses bool
	useColor   = term.IsTerminal(int(os.Stdout.Fd()))
)

var rootCmd = &cobra.Command{
	Use:   "cyrexc [source file]",
	Short: "cyrexc compiles .cyrex source to x86-64 NASM assembly",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if listPasses {
			for _, p := range optimizer.Passes {
				fmt.Println(p.Name())
			}
			return nil
		}
		if len(args) == 0 {
			return cmd.Help()
		}
		return compile(args[0])
	},
}

func init() {
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (default: input base name with .S)")
	rootCmd.Flags().BoolVarP(&optimize, "optimize", "O", false, "run the peephole optimizer")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "print each compilation stage and the allocation-strategy table to stderr")
	rootCmd.Flags().BoolVar(&dumpIR, "ir", false, "also write the generated IR to <stem>.ir alongside the normal output")
	rootCmd.Flags().StringVar(&emitMIR, "emit-mir", "", "write the CFG as Graphviz .dot to this path")
	rootCmd.Flags().BoolVar(&listPasses, "list-passes", false, "list optimizer passes and exit")
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(ir.InternalError); ok {
				fmt.Fprintf(os.Stderr, "%s\n", colorize("internal error: "+ie.Msg, 31))
				os.Exit(2)
			}
			panic(r)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", colorize(err.Error(), 31))
		os.Exit(1)
	}
}

// dumpAllocTable prints the allocation-strategy table to stderr ordered by
// opcode name, for --debug builds inspecting how pkg/alloc classifies each
// IR opcode.
func dumpAllocTable() {
	ops := maps.Keys(alloc.Table())
	sort.Slice(ops, func(i, j int) bool { return ops[i].String() < ops[j].String() })
	fmt.Fprintln(os.Stderr, "allocation-strategy table:")
	for _, op := range ops {
		strat := alloc.For(op)
		fmt.Fprintf(os.Stderr, "  %-10s hasResult=%-5v lifetime=%-10s consumes=%v\n",
			op, strat.HasResult, strat.ResultLifetime, strat.Consumes)
	}
}

func colorize(s string, code int) string {
	if !useColor {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", code, s)
}

func compile(sourceFile string) error {
	src, err := os.ReadFile(sourceFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", sourceFile, err)
	}

	if debug {
		fmt.Fprintf(os.Stderr, "parsing %s\n", sourceFile)
	}
	root, err := frontend.Parse(string(src))
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	if debug {
		fmt.Fprintln(os.Stderr, "generating IR")
	}
	mod, errs := irgen.Generate(root)
	if len(errs) > 0 {
		var b strings.Builder
		for _, e := range errs {
			fmt.Fprintf(&b, "%s\n", e)
		}
		return fmt.Errorf("%d error(s):\n%s", len(errs), b.String())
	}

	stem := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))

	if dumpIR {
		irFile := stem + ".ir"
		if err := os.WriteFile(irFile, []byte(irdump.Dump(mod)), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", irFile, err)
		}
		if debug {
			fmt.Fprintf(os.Stderr, "wrote %s\n", irFile)
		}
	}

	if emitMIR != "" {
		if err := os.WriteFile(emitMIR, []byte(irdump.Dot(mod)), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", emitMIR, err)
		}
		if debug {
			fmt.Fprintf(os.Stderr, "wrote CFG visualization to %s\n", emitMIR)
		}
	}

	if debug {
		dumpAllocTable()
		fmt.Fprintln(os.Stderr, "lowering to machine code")
	}
	prog := lower.Lower(mod)

	if optimize {
		if debug {
			fmt.Fprintln(os.Stderr, "running optimizer passes")
		}
		optimizer.Optimize(mod, prog)
	}

	asm := emit.Emit(mod, prog)

	if outputFile == "" {
		outputFile = stem + ".S"
	}
	if err := os.WriteFile(outputFile, []byte(asm), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outputFile, err)
	}
	if debug {
		fmt.Fprintf(os.Stderr, "wrote %s\n", outputFile)
	}
	return nil
}
