// Package emit renders a lowered, optimized Program as NASM-flavored
// x86-64 assembly text -- the final stage of the pipeline, with no
// further analysis of its own: every decision about what instruction
// goes where was made upstream.
package emit

import (
	"fmt"
	"strings"

	"github.com/cyrex-lang/cyrexc/pkg/ir"
	"github.com/cyrex-lang/cyrexc/pkg/lower"
	"github.com/cyrex-lang/cyrexc/pkg/mc"
)

// Emit renders every function in prog as one NASM source file. mod
// supplies the per-value types emit needs to size memory operands.
func Emit(mod *ir.Module, prog *lower.Program) string {
	var b strings.Builder
	b.WriteString("bits 64\n")
	b.WriteString("section .text\n")
	for _, fn := range prog.Functions {
		fmt.Fprintf(&b, "global %s\n", fn.Name)
	}
	for _, fn := range prog.Functions {
		fmt.Fprintf(&b, "%s:\n", fn.Name)
		emitFunction(&b, mod, fn)
	}
	return b.String()
}

func emitFunction(b *strings.Builder, mod *ir.Module, fn *lower.Function) {
	for _, in := range fn.Insts {
		emitInst(b, mod, in)
	}
}

func operandText(mod *ir.Module, o mc.Operand) string {
	return o.String()
}

// movText renders a mov, adding NASM's required size keyword whenever
// the destination is memory: "mov dst, src" is ambiguous when src is an
// immediate and dst is a bare address, so every memory destination gets
// one, sized from the IR value that operand was allocated for.
func movText(mod *ir.Module, dst, src mc.Operand) string {
	if dst.Kind == mc.OpMem && dst.Origin != ir.NoValue {
		size := mc.SizeDirective(mc.SizeOf(mod.Value(dst.Origin).Type))
		return fmt.Sprintf("\tmov %s %s, %s\n", size, operandText(mod, dst), operandText(mod, src))
	}
	return fmt.Sprintf("\tmov %s, %s\n", operandText(mod, dst), operandText(mod, src))
}

func emitInst(b *strings.Builder, mod *ir.Module, in mc.Inst) {
	switch {
	case in.Opcode == mc.LABEL:
		fmt.Fprintf(b, ".L%d:\n", in.Label)
		return
	case in.Opcode == mc.MOV:
		b.WriteString(movText(mod, in.Args[0], in.Args[1]))
		return
	case in.Opcode == mc.MOVZX:
		fmt.Fprintf(b, "\tmovzx %s, %s\n", operandText(mod, in.Args[0]), operandText(mod, in.Args[1]))
		return
	case in.Opcode == mc.PUSH:
		fmt.Fprintf(b, "\tpush %s\n", operandText(mod, in.Args[0]))
		return
	case in.Opcode == mc.POP:
		fmt.Fprintf(b, "\tpop %s\n", operandText(mod, in.Args[0]))
		return
	case in.Opcode == mc.INC || in.Opcode == mc.DEC:
		fmt.Fprintf(b, "\t%s %s\n", in.Opcode, operandText(mod, in.Args[0]))
		return
	case mc.IsBinaryMath(in.Opcode) || in.Opcode == mc.TEST:
		fmt.Fprintf(b, "\t%s %s, %s\n", in.Opcode, operandText(mod, in.Args[0]), operandText(mod, in.Args[1]))
		return
	case mc.IsSetCC(in.Opcode):
		fmt.Fprintf(b, "\t%s %s\n", in.Opcode, operandText(mod, in.Args[0]))
		return
	case in.Opcode == mc.JMP || mc.IsConditionalJump(in.Opcode):
		fmt.Fprintf(b, "\t%s .L%d\n", in.Opcode, in.Label)
		return
	case in.Opcode == mc.RET:
		b.WriteString("\tret\n")
		return
	case in.Opcode == mc.NOP:
		b.WriteString("\tnop\n")
		return
	default:
		ir.Fail("emit: unhandled machine opcode %s", in.Opcode)
	}
}
