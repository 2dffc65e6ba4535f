package cfg

import (
	"testing"

	"github.com/cyrex-lang/cyrexc/pkg/ir"
)

// buildIf returns the linear form of:
//
//	L0: branch v0, L1, L2
//	L1: jump L3
//	L2: jump L3
//	L3: return
func buildIf() *ir.LinearFunction {
	f := &ir.LinearFunction{Name: "f", PrologueLabel: 0, EpilogueLabel: 3}
	f.EmitLabel(0)
	f.Emit(ir.Branch, ir.NoValue, 99, 1, 2)
	f.EmitLabel(1)
	f.Emit(ir.Jump, ir.NoValue, 3)
	f.EmitLabel(2)
	f.Emit(ir.Jump, ir.NoValue, 3)
	f.EmitLabel(3)
	f.Emit(ir.Return, ir.NoValue, ir.NoValue)
	return f
}

func TestBuildSplitsOneBlockPerLabel(t *testing.T) {
	cfg := Build(buildIf())
	if len(cfg.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4", len(cfg.Blocks))
	}
	wantLabels := []ir.LabelId{0, 1, 2, 3}
	for i, want := range wantLabels {
		if cfg.Blocks[i].EntryLabel != want {
			t.Errorf("block %d EntryLabel = %d, want %d", i, cfg.Blocks[i].EntryLabel, want)
		}
	}
}

func TestBuildLinksBranchToBothArms(t *testing.T) {
	cfg := Build(buildIf())
	succ := cfg.Blocks[0].Successors
	if len(succ) != 2 || succ[0] != 1 || succ[1] != 2 {
		t.Errorf("branch block successors = %v, want [1 2]", succ)
	}
}

func TestBuildLinksArmJumpsToEpilogue(t *testing.T) {
	cfg := Build(buildIf())
	epilogueIdx := cfg.EpilogueBlockIndex()
	for _, i := range []int{1, 2} {
		succ := cfg.Blocks[i].Successors
		if len(succ) != 1 || succ[0] != epilogueIdx {
			t.Errorf("block %d successors = %v, want [%d]", i, succ, epilogueIdx)
		}
	}
}

func TestBuildEpilogueHasNoSuccessors(t *testing.T) {
	cfg := Build(buildIf())
	epilogueIdx := cfg.EpilogueBlockIndex()
	if succ := cfg.Blocks[epilogueIdx].Successors; len(succ) != 0 {
		t.Errorf("epilogue successors = %v, want none", succ)
	}
}

func TestBuildFallsThroughWithoutTerminator(t *testing.T) {
	// L0: (no terminator, just an unused alloc) L1: return
	f := &ir.LinearFunction{Name: "g", PrologueLabel: 0, EpilogueLabel: 1}
	f.EmitLabel(0)
	f.Emit(ir.Alloc, ir.ValueId(5))
	f.EmitLabel(1)
	f.Emit(ir.Return, ir.NoValue, ir.NoValue)

	cfg := Build(f)
	if succ := cfg.Blocks[0].Successors; len(succ) != 1 || succ[0] != 1 {
		t.Errorf("fallthrough successors = %v, want [1]", succ)
	}
	insts := cfg.Blocks[0].Insts
	last := insts[len(insts)-1]
	if !last.IsTerminator() {
		t.Fatalf("fallthrough block's last instruction = %s, want a terminator", last.Opcode)
	}
	if last.Opcode != ir.Jump || last.Operands[0] != cfg.Blocks[1].EntryLabel {
		t.Errorf("fallthrough terminator = %+v, want a Jump to block 1's entry label", last)
	}
}

func TestBuildMissingEpilogueLabelPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing epilogue block")
		}
	}()
	f := &ir.LinearFunction{Name: "bad", PrologueLabel: 0, EpilogueLabel: 7}
	f.EmitLabel(0)
	f.Emit(ir.Return, ir.NoValue, ir.NoValue)
	Build(f)
}
