package optimizer

import (
	"reflect"
	"testing"

	"github.com/cyrex-lang/cyrexc/pkg/ast"
	"github.com/cyrex-lang/cyrexc/pkg/ir"
	"github.com/cyrex-lang/cyrexc/pkg/irgen"
	"github.com/cyrex-lang/cyrexc/pkg/lower"
	"github.com/cyrex-lang/cyrexc/pkg/mc"
	"github.com/cyrex-lang/cyrexc/pkg/refsim"
)

func TestRedundantSelfMovRemoved(t *testing.T) {
	insts := []mc.Inst{
		{Opcode: mc.MOV, Args: []mc.Operand{mc.RegOperand(mc.RAX), mc.RegOperand(mc.RAX)}},
		{Opcode: mc.RET},
	}
	out, changed := peephole(insts, nil)
	if !changed {
		t.Fatal("expected a change")
	}
	if len(out) != 1 || out[0].Opcode != mc.RET {
		t.Errorf("got %v, want just RET", out)
	}
}

func TestMoveChainElimination(t *testing.T) {
	insts := []mc.Inst{
		{Opcode: mc.MOV, Args: []mc.Operand{mc.RegOperand(mc.RAX), mc.ImmOperand(5)}},
		{Opcode: mc.MOV, Args: []mc.Operand{mc.RegOperand(mc.RCX), mc.RegOperand(mc.RAX)}},
	}
	out, changed := peephole(insts, nil)
	if !changed || len(out) != 1 {
		t.Fatalf("got %v, changed=%v", out, changed)
	}
	if out[0].Args[0].Reg != mc.RCX || out[0].Args[1].Imm != 5 {
		t.Errorf("folded mov = %+v, want mov rcx, 5", out[0])
	}
}

func TestMovZeroToXor(t *testing.T) {
	insts := []mc.Inst{
		{Opcode: mc.MOV, Args: []mc.Operand{mc.RegOperand(mc.RCX), mc.ImmOperand(0)}},
	}
	out, changed := peephole(insts, nil)
	if !changed || len(out) != 1 || out[0].Opcode != mc.XOR {
		t.Fatalf("got %v, changed=%v", out, changed)
	}
}

func TestDeadJumpAfterJump(t *testing.T) {
	insts := []mc.Inst{
		{Opcode: mc.JMP, Label: 1},
		{Opcode: mc.JL, Label: 2},
	}
	out, changed := peephole(insts, nil)
	if !changed || len(out) != 1 || out[0].Opcode != mc.JMP || out[0].Label != 1 {
		t.Fatalf("got %v, changed=%v", out, changed)
	}
}

func TestJumpToNextLabel(t *testing.T) {
	insts := []mc.Inst{
		{Opcode: mc.JMP, Label: 3},
		{Opcode: mc.LABEL, Label: 3},
	}
	out, changed := peephole(insts, nil)
	if !changed || len(out) != 1 || out[0].Opcode != mc.LABEL {
		t.Fatalf("got %v, changed=%v", out, changed)
	}
}

func TestBranchFusionCollapsesCompareSetccTestJcc(t *testing.T) {
	insts := []mc.Inst{
		{Opcode: mc.CMP, Args: []mc.Operand{mc.RegOperand(mc.RAX), mc.RegOperand(mc.RCX)}},
		{Opcode: mc.SETL, Args: []mc.Operand{mc.RegOperand(mc.AL)}},
		{Opcode: mc.MOVZX, Args: []mc.Operand{mc.RegOperand(mc.RAX), mc.RegOperand(mc.AL)}},
		{Opcode: mc.TEST, Args: []mc.Operand{mc.RegOperand(mc.RAX), mc.RegOperand(mc.RAX)}},
		{Opcode: mc.JNZ, Label: 1},
		{Opcode: mc.JZ, Label: 2},
	}
	out, changed := peephole(insts, nil)
	if !changed || len(out) != 3 {
		t.Fatalf("got %v, changed=%v", out, changed)
	}
	if out[0].Opcode != mc.CMP || out[1].Opcode != mc.JL || out[1].Label != 1 ||
		out[2].Opcode != mc.JGE || out[2].Label != 2 {
		t.Errorf("fused form = %v, want cmp; jl 1; jge 2", out)
	}
}

func TestConstantComparisonElimination(t *testing.T) {
	insts := []mc.Inst{
		{Opcode: mc.MOV, Args: []mc.Operand{mc.RegOperand(mc.RAX), mc.ImmOperand(10)}},
		{Opcode: mc.CMP, Args: []mc.Operand{mc.RegOperand(mc.RAX), mc.ImmOperand(5)}},
		{Opcode: mc.JL, Label: 1},
		{Opcode: mc.JGE, Label: 2},
	}
	out, changed := peephole(insts, nil)
	if !changed || len(out) != 2 {
		t.Fatalf("got %v, changed=%v", out, changed)
	}
	// 10 < 5 is false, so the resolved jump should go to the JGE arm's target.
	if out[1].Opcode != mc.JMP || out[1].Label != 2 {
		t.Errorf("resolved jump = %+v, want jmp 2", out[1])
	}
}

// fakeLiterals is a LiteralLookup stub naming exactly the ids it's told to.
type fakeLiterals map[ir.ValueId]bool

func (f fakeLiterals) IsLiteral(id ir.ValueId) bool { return f[id] }

func TestSelfXorCmpFoldRequiresLiteralOrigin(t *testing.T) {
	insts := []mc.Inst{
		{Opcode: mc.XOR, Args: []mc.Operand{{Kind: mc.OpReg, Reg: mc.RCX, Origin: 9}, {Kind: mc.OpReg, Reg: mc.RCX, Origin: 9}}},
		{Opcode: mc.CMP, Args: []mc.Operand{mc.RegOperand(mc.RAX), {Kind: mc.OpReg, Reg: mc.RCX, Origin: 9}}},
	}

	out, changed := peephole(insts, fakeLiterals{})
	if changed {
		t.Fatalf("fold fired without a literal origin: %v", out)
	}

	out, changed = peephole(insts, fakeLiterals{9: true})
	if !changed || len(out) != 2 {
		t.Fatalf("got %v, changed=%v, want the fold to fire with a literal origin", out, changed)
	}
	if out[1].Opcode != mc.CMP || !isImmVal(out[1].Args[1], 0) {
		t.Errorf("folded cmp = %+v, want cmp rax, 0", out[1])
	}
}

func TestOptimizeRunsPassesToFixpoint(t *testing.T) {
	fn := &lower.Function{Name: "f", Insts: []mc.Inst{
		{Opcode: mc.MOV, Args: []mc.Operand{mc.RegOperand(mc.RAX), mc.ImmOperand(0)}},
		{Opcode: mc.MOV, Args: []mc.Operand{mc.RegOperand(mc.RCX), mc.RegOperand(mc.RAX)}},
		{Opcode: mc.RET},
	}}
	prog := &lower.Program{Functions: []*lower.Function{fn}}
	Optimize(ir.NewModule(), prog)

	// move-chain-elimination sits ahead of mov-zero-to-xor in the pattern
	// table, so the first scan folds the two movs into "mov rcx, 0" and a
	// second scan turns that into "xor rcx, rcx"; the loop stops once a
	// scan changes nothing, leaving "xor rcx, rcx ; ret".
	if len(fn.Insts) == 0 || fn.Insts[len(fn.Insts)-1].Opcode != mc.RET {
		t.Fatalf("optimized instructions malformed: %v", fn.Insts)
	}
}

func intLit(v string) *ast.LiteralExpr {
	return &ast.LiteralExpr{Type: ast.Type{Name: "int"}, Value: v}
}

// buildIfFunction mirrors: fn f(): int { if (3 < 5) { return 1; } else { return
// 2; } } -- enough branching and comparison machinery to exercise most
// peephole patterns at once.
func buildIfFunction(t *testing.T) (*lower.Function, *ir.Module) {
	t.Helper()
	ifStmt := &ast.IfStmt{
		Condition: &ast.BinaryExpr{Kind: ast.Lesser, Left: intLit("3"), Right: intLit("5")},
		Then:      &ast.BlockStmt{Statements: []ast.Node{&ast.ReturnStmt{Expr: intLit("1")}}},
		Else:      &ast.BlockStmt{Statements: []ast.Node{&ast.ReturnStmt{Expr: intLit("2")}}},
	}
	root := &ast.Root{Functions: []*ast.Function{
		{Name: "f", ReturnType: ast.Type{Name: "int"}, Body: &ast.BlockStmt{Statements: []ast.Node{ifStmt}}},
	}}
	mod, errs := irgen.Generate(root)
	if len(errs) != 0 {
		t.Fatalf("unexpected generation errors: %v", errs)
	}
	prog := lower.Lower(mod)
	return prog.Functions[0], mod
}

// cloneInsts returns an independent copy, since Optimize rewrites
// fn.Insts in place.
func cloneInsts(in []mc.Inst) []mc.Inst {
	out := make([]mc.Inst, len(in))
	copy(out, in)
	return out
}

func TestOptimizerPreservesObservableResult(t *testing.T) {
	fn, mod := buildIfFunction(t)
	before := cloneInsts(fn.Insts)

	wantRax, err := refsim.Run(&lower.Function{Name: fn.Name, Insts: before})
	if err != nil {
		t.Fatalf("refsim on unoptimized code: %v", err)
	}

	prog := &lower.Program{Functions: []*lower.Function{fn}}
	Optimize(mod, prog)

	gotRax, err := refsim.Run(fn)
	if err != nil {
		t.Fatalf("refsim on optimized code: %v", err)
	}
	if gotRax != wantRax {
		t.Errorf("optimization changed the result: before=%d after=%d", wantRax, gotRax)
	}
}

func TestOptimizerIsIdempotent(t *testing.T) {
	fn, mod := buildIfFunction(t)
	prog := &lower.Program{Functions: []*lower.Function{fn}}
	Optimize(mod, prog)
	onceOptimized := cloneInsts(fn.Insts)

	Optimize(mod, prog)
	if len(fn.Insts) != len(onceOptimized) {
		t.Fatalf("second optimization pass changed instruction count: %d vs %d", len(fn.Insts), len(onceOptimized))
	}
	for i := range fn.Insts {
		if !reflect.DeepEqual(fn.Insts[i], onceOptimized[i]) {
			t.Errorf("instruction %d changed on a second optimization pass: %+v vs %+v", i, onceOptimized[i], fn.Insts[i])
		}
	}
}

func TestRemoveUnusedLabelsKeepsReferenced(t *testing.T) {
	insts := []mc.Inst{
		{Opcode: mc.LABEL, Label: 1},
		{Opcode: mc.LABEL, Label: 2},
		{Opcode: mc.JMP, Label: 1},
	}
	out, changed := removeUnusedLabels(insts)
	if !changed {
		t.Fatal("expected a change")
	}
	found1, found2 := false, false
	for _, in := range out {
		if in.Opcode == mc.LABEL && in.Label == 1 {
			found1 = true
		}
		if in.Opcode == mc.LABEL && in.Label == 2 {
			found2 = true
		}
	}
	if !found1 {
		t.Error("referenced label 1 was removed")
	}
	if found2 {
		t.Error("unreferenced label 2 was kept")
	}
}

func TestRemoveRedundantPushPop(t *testing.T) {
	fn := &lower.Function{Insts: []mc.Inst{
		{Opcode: mc.PUSH, Args: []mc.Operand{mc.RegOperand(mc.RBX)}},
		{Opcode: mc.MOV, Args: []mc.Operand{mc.RegOperand(mc.RAX), mc.ImmOperand(1)}},
		{Opcode: mc.POP, Args: []mc.Operand{mc.RegOperand(mc.RBX)}},
		{Opcode: mc.RET},
	}}
	removeRedundantPushPop(fn)
	for _, in := range fn.Insts {
		if in.Opcode == mc.PUSH || in.Opcode == mc.POP {
			t.Errorf("push/pop of an untouched register should have been removed, got %v", fn.Insts)
		}
	}
}

func TestRemoveRedundantPushPopKeepsUsedRegister(t *testing.T) {
	fn := &lower.Function{Insts: []mc.Inst{
		{Opcode: mc.PUSH, Args: []mc.Operand{mc.RegOperand(mc.RBX)}},
		{Opcode: mc.MOV, Args: []mc.Operand{mc.RegOperand(mc.RBX), mc.ImmOperand(1)}},
		{Opcode: mc.POP, Args: []mc.Operand{mc.RegOperand(mc.RBX)}},
		{Opcode: mc.RET},
	}}
	removeRedundantPushPop(fn)
	pushes, pops := 0, 0
	for _, in := range fn.Insts {
		if in.Opcode == mc.PUSH {
			pushes++
		}
		if in.Opcode == mc.POP {
			pops++
		}
	}
	if pushes != 1 || pops != 1 {
		t.Errorf("push/pop of a used register should be kept, got %d pushes %d pops", pushes, pops)
	}
}

func TestRemoveRedundantPushPopNeverTouchesRbp(t *testing.T) {
	fn := &lower.Function{Insts: []mc.Inst{
		{Opcode: mc.PUSH, Args: []mc.Operand{mc.RegOperand(mc.RBP)}},
		{Opcode: mc.MOV, Args: []mc.Operand{mc.RegOperand(mc.RBP), mc.RegOperand(mc.RSP)}},
		{Opcode: mc.POP, Args: []mc.Operand{mc.RegOperand(mc.RBP)}},
		{Opcode: mc.RET},
	}}
	removeRedundantPushPop(fn)
	pushes := 0
	for _, in := range fn.Insts {
		if in.Opcode == mc.PUSH {
			pushes++
		}
	}
	if pushes != 1 {
		t.Error("push rbp must never be treated as a redundant save")
	}
}
