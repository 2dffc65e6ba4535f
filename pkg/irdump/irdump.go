// Package irdump renders a Module as human-readable text and as a
// Graphviz .dot control-flow graph, for inspecting what irgen and cfg
// produced without running the rest of the pipeline.
package irdump

import (
	"fmt"
	"strings"

	"github.com/cyrex-lang/cyrexc/pkg/ir"
)

// Dump renders every function's basic blocks as text, wrapped in a
// "function <name> { ... }" pair: one "BB<entryLabel>:" header per block,
// then one line per instruction -- "L<id>:" for a label,
// "v<id> : <type> = <op> operands..." for an instruction that produces a
// result (a const also prints its literal), "<op> operands..." for the
// rest -- and a closing "-> <successors>" line.
func Dump(mod *ir.Module) string {
	var b strings.Builder
	for _, name := range mod.Order {
		fn := mod.Functions[name]
		fmt.Fprintf(&b, "function %s {\n", fn.Name)
		for _, bb := range fn.Blocks {
			fmt.Fprintf(&b, "BB%d:\n", bb.EntryLabel)
			for _, inst := range bb.Insts {
				dumpInst(&b, mod, inst)
			}
			fmt.Fprintf(&b, "  -> %s\n", formatSuccessors(fn.Blocks, bb.Successors))
		}
		fmt.Fprintf(&b, "}\n")
	}
	return b.String()
}

func formatSuccessors(blocks []ir.BasicBlock, succ []int) string {
	if len(succ) == 0 {
		return "(none)"
	}
	parts := make([]string, len(succ))
	for i, s := range succ {
		parts[i] = fmt.Sprintf("BB%d", blocks[s].EntryLabel)
	}
	return strings.Join(parts, ", ")
}

func dumpInst(b *strings.Builder, mod *ir.Module, inst ir.Inst) {
	if inst.Opcode == ir.Label {
		fmt.Fprintf(b, "  L%d:\n", inst.Operands[0])
		return
	}

	operands := make([]string, len(inst.Operands))
	for i, id := range inst.Operands {
		operands[i] = operandText(mod, id)
	}
	if inst.Opcode == ir.Const {
		if il, ok := mod.Literals[inst.Result].(ir.IntLiteral); ok {
			operands = append(operands, fmt.Sprintf("%d", il.Value))
		}
	}

	if inst.Result != ir.NoValue {
		fmt.Fprintf(b, "  v%d : %s = %s %s\n", inst.Result, mod.Value(inst.Result).Type, inst.Opcode, strings.Join(operands, ", "))
		return
	}
	fmt.Fprintf(b, "  %s %s\n", inst.Opcode, strings.Join(operands, ", "))
}

func operandText(mod *ir.Module, id ir.ValueId) string {
	if id == ir.NoValue {
		return "_"
	}
	return fmt.Sprintf("v%d", id)
}

// Dot renders every function's CFG as a Graphviz digraph, one labeled
// cluster per function and one node per basic block.
func Dot(mod *ir.Module) string {
	var b strings.Builder
	b.WriteString("digraph cyrex_cfg {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  node [shape=box];\n\n")

	for fi, name := range mod.Order {
		fn := mod.Functions[name]
		fmt.Fprintf(&b, "  subgraph cluster_%d {\n", fi)
		fmt.Fprintf(&b, "    label=%q;\n", fn.Name)

		for bi, bb := range fn.Blocks {
			nodeID := fmt.Sprintf("f%d_bb%d", fi, bi)
			var label strings.Builder
			fmt.Fprintf(&label, "BB%d:\\n", bi)
			for _, inst := range bb.Insts {
				fmt.Fprintf(&label, "%s\\n", instLabel(mod, inst))
			}
			color := "lightblue"
			if bi == 0 {
				color = "lightgreen"
			} else if bi == fn.EpilogueBlockIndex() {
				color = "lightcoral"
			}
			fmt.Fprintf(&b, "    %q [label=%q, style=filled, fillcolor=%s];\n", nodeID, label.String(), color)
		}
		for bi, bb := range fn.Blocks {
			from := fmt.Sprintf("f%d_bb%d", fi, bi)
			for _, s := range bb.Successors {
				to := fmt.Sprintf("f%d_bb%d", fi, s)
				fmt.Fprintf(&b, "    %q -> %q;\n", from, to)
			}
		}
		b.WriteString("  }\n\n")
	}

	b.WriteString("}\n")
	return b.String()
}

func instLabel(mod *ir.Module, inst ir.Inst) string {
	if inst.Opcode == ir.Label {
		return fmt.Sprintf("L%d:", inst.Operands[0])
	}
	operands := make([]string, len(inst.Operands))
	for i, id := range inst.Operands {
		operands[i] = operandText(mod, id)
	}
	if inst.Result != ir.NoValue {
		return fmt.Sprintf("v%d = %s %s", inst.Result, inst.Opcode, strings.Join(operands, ", "))
	}
	return fmt.Sprintf("%s %s", inst.Opcode, strings.Join(operands, ", "))
}
