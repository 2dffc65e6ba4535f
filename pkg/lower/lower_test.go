package lower

import (
	"testing"

	"github.com/cyrex-lang/cyrexc/pkg/ir"
	"github.com/cyrex-lang/cyrexc/pkg/mc"
)

// buildReturnConst builds a one-block function that returns a constant:
//
//	L0: v0 = const 42
//	    ret v0
func buildReturnConst(v int64) *ir.Module {
	mod := ir.NewModule()
	lf := &ir.LinearFunction{Name: "f", PrologueLabel: 0, EpilogueLabel: 1}
	lf.EmitLabel(0)
	lf.Emit(ir.Const, ir.ValueId(0))
	lf.Emit(ir.Return, ir.NoValue, ir.ValueId(0))
	lf.EmitLabel(1)
	lf.Emit(ir.Return, ir.NoValue, ir.NoValue)

	mod.Values = []ir.Value{{Type: ir.Type{Name: "int"}}}
	mod.Literals = map[ir.ValueId]ir.Literal{0: ir.IntLiteral{Value: v}}

	cfgBuild := func() *ir.CFGFunction {
		// Inline cfg.Build would create an import cycle risk in this test
		// helper's header comment only -- it's safe here since pkg/lower
		// already imports pkg/ir, not pkg/cfg; build the two blocks by hand.
		return &ir.CFGFunction{
			Name: "f",
			Blocks: []ir.BasicBlock{
				{EntryLabel: 0, Insts: []ir.Inst{
					{Opcode: ir.Label, Operands: []ir.ValueId{0}},
					{Opcode: ir.Const, Result: 0},
					{Opcode: ir.Return, Result: ir.NoValue, Operands: []ir.ValueId{0}},
				}, Successors: []int{1}},
				{EntryLabel: 1, Insts: []ir.Inst{
					{Opcode: ir.Label, Operands: []ir.ValueId{1}},
					{Opcode: ir.Return, Result: ir.NoValue, Operands: []ir.ValueId{ir.NoValue}},
				}},
			},
		}
	}
	mod.AddFunction("f", cfgBuild())
	return mod
}

func TestLowerReturnsOneFunctionPerModuleFunction(t *testing.T) {
	prog := Lower(buildReturnConst(42))
	if len(prog.Functions) != 1 {
		t.Fatalf("got %d functions, want 1", len(prog.Functions))
	}
	if prog.Functions[0].Name != "f" {
		t.Errorf("function name = %q, want %q", prog.Functions[0].Name, "f")
	}
}

func TestLowerEndsInRet(t *testing.T) {
	prog := Lower(buildReturnConst(42))
	insts := prog.Functions[0].Insts
	if len(insts) == 0 || insts[len(insts)-1].Opcode != mc.RET {
		t.Fatalf("last instruction = %+v, want RET", insts[len(insts)-1])
	}
}

func TestLowerMovesConstantIntoRaxBeforeReturn(t *testing.T) {
	prog := Lower(buildReturnConst(42))
	found := false
	for _, in := range prog.Functions[0].Insts {
		if in.Opcode == mc.MOV && len(in.Args) == 2 &&
			in.Args[0].Kind == mc.OpReg && mc.LargestOf(in.Args[0].Reg) == mc.RAX &&
			in.Args[1].Kind == mc.OpImm && in.Args[1].Imm == 42 {
			found = true
		}
	}
	if !found {
		t.Error("no \"mov rax, 42\" instruction found in lowered output")
	}
}

func TestLowerNoFrameWhenNoLocals(t *testing.T) {
	prog := Lower(buildReturnConst(7))
	for _, in := range prog.Functions[0].Insts {
		if in.Opcode == mc.PUSH || in.Opcode == mc.SUB {
			t.Errorf("unexpected frame-setup instruction %s for a function with no locals", in.Opcode)
		}
	}
}

func TestLowerFunctionWithNoBlocksPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for a function with no blocks")
		}
	}()
	mod := ir.NewModule()
	mod.AddFunction("empty", &ir.CFGFunction{Name: "empty"})
	Lower(mod)
}
