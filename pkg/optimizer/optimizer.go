// Package optimizer rewrites a lowered function's machine code in place:
// a table of peephole patterns run to a fixpoint, a dead-label sweep,
// and a final push/pop cleanup pass that only makes sense once the
// first two have stabilized.
package optimizer

import (
	"github.com/cyrex-lang/cyrexc/pkg/ir"
	"github.com/cyrex-lang/cyrexc/pkg/lower"
	"github.com/cyrex-lang/cyrexc/pkg/mc"
)

// Pass is one optimization pass over a lowered function. Run reports
// whether it changed anything, so the driver can tell when to stop. mod
// is the owning module, borrowed read-only for passes that need to look
// up literal-ness; passes that don't care are free to ignore it.
type Pass interface {
	Name() string
	Run(fn *lower.Function, mod *ir.Module) bool
}

// Passes lists every registered pass in the order Optimize runs them.
var Passes = []Pass{peepholePass{}, deadLabelPass{}}

// Optimize rewrites every function in prog to a fixpoint: peephole and
// dead-label removal alternate until neither changes anything, then the
// push/pop cleanup runs once, since it only removes save/restore pairs
// that the other two passes' churn has already settled.
func Optimize(mod *ir.Module, prog *lower.Program) {
	for _, fn := range prog.Functions {
		for {
			changed := false
			for _, p := range Passes {
				if p.Run(fn, mod) {
					changed = true
				}
			}
			if !changed {
				break
			}
		}
		removeRedundantPushPop(fn)
	}
}

type peepholePass struct{}

func (peepholePass) Name() string { return "peephole" }
func (peepholePass) Run(fn *lower.Function, mod *ir.Module) bool {
	out, changed := peephole(fn.Insts, mod)
	fn.Insts = out
	return changed
}

type deadLabelPass struct{}

func (deadLabelPass) Name() string { return "unused-labels" }
func (deadLabelPass) Run(fn *lower.Function, mod *ir.Module) bool {
	out, changed := removeUnusedLabels(fn.Insts)
	fn.Insts = out
	return changed
}

// removeUnusedLabels drops every Label instruction whose id is never the
// target of a Jmp or conditional jump. The epilogue label gets no special
// treatment: once jump-to-next-label has folded the last "jmp epilogue"
// into the label itself, nothing references it and it is removed too.
func removeUnusedLabels(insts []mc.Inst) ([]mc.Inst, bool) {
	referenced := make(map[int]bool)
	for _, in := range insts {
		if in.Opcode == mc.JMP || mc.IsConditionalJump(in.Opcode) {
			referenced[int(in.Label)] = true
		}
	}

	changed := false
	out := make([]mc.Inst, 0, len(insts))
	for _, in := range insts {
		if in.Opcode == mc.LABEL && !referenced[int(in.Label)] {
			changed = true
			continue
		}
		out = append(out, in)
	}
	return out, changed
}

// removeRedundantPushPop drops a callee-saved push/pop pair whose
// register is never read or written between the two: the save and
// restore bracket nothing the function actually needed preserved. This
// scans once; it never needs to repeat since it only removes complete
// pairs once settled.
func removeRedundantPushPop(fn *lower.Function) {
	toRemove := make(map[mc.Reg]bool)
	seen := make(map[mc.Reg]bool)

	touches := func(in mc.Inst, r mc.Reg) bool {
		for _, a := range in.Args {
			if a.Kind == mc.OpReg && mc.LargestOf(a.Reg) == mc.LargestOf(r) {
				return true
			}
			if a.Kind == mc.OpMem && mc.LargestOf(a.Reg) == mc.LargestOf(r) {
				return true
			}
		}
		return false
	}

	for _, in := range fn.Insts {
		if in.Opcode == mc.PUSH && len(in.Args) == 1 && in.Args[0].Kind == mc.OpReg {
			r := in.Args[0].Reg
			if r == mc.RBP {
				continue
			}
			if !seen[r] {
				seen[r] = true
				toRemove[r] = true
			}
			continue
		}
		if in.Opcode == mc.POP {
			continue
		}
		for r := range toRemove {
			if touches(in, r) {
				delete(toRemove, r)
			}
		}
	}

	out := make([]mc.Inst, 0, len(fn.Insts))
	for _, in := range fn.Insts {
		if in.Opcode == mc.PUSH && len(in.Args) == 1 && in.Args[0].Kind == mc.OpReg && toRemove[in.Args[0].Reg] {
			continue
		}
		if in.Opcode == mc.POP && len(in.Args) == 1 && in.Args[0].Kind == mc.OpReg && toRemove[in.Args[0].Reg] {
			continue
		}
		out = append(out, in)
	}
	fn.Insts = out
}
