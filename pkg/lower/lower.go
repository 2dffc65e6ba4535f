// Package lower turns a Module's control-flow graphs into per-function
// x86-64 machine code: an on-demand register/stack allocator (allocator.go)
// backing a fixed per-opcode instruction template for each IR opcode,
// plus the prologue/epilogue framing a function needs once its stack
// usage is known.
package lower

import (
	"github.com/cyrex-lang/cyrexc/pkg/alloc"
	"github.com/cyrex-lang/cyrexc/pkg/ir"
	"github.com/cyrex-lang/cyrexc/pkg/mc"
)

// Function is one lowered function: prologue, body, and epilogue already
// concatenated into a single instruction stream, ready for the optimizer.
type Function struct {
	Name          string
	Insts         []mc.Inst
	EpilogueLabel ir.LabelId
}

// Program is every lowered function in module declaration order.
type Program struct {
	Functions []*Function
}

// Lower compiles every function in mod.
func Lower(mod *ir.Module) *Program {
	p := &Program{}
	for _, name := range mod.Order {
		p.Functions = append(p.Functions, lowerFunction(mod, mod.Functions[name]))
	}
	return p
}

func lowerFunction(mod *ir.Module, cf *ir.CFGFunction) *Function {
	a := newAllocator()
	epilogueIdx := cf.EpilogueBlockIndex()
	if epilogueIdx < 0 {
		ir.Fail("lower: function %q has no blocks", cf.Name)
	}
	epilogueLabel := cf.Blocks[epilogueIdx].EntryLabel

	var body []mc.Inst
	for _, b := range cf.Blocks {
		for _, inst := range b.Insts {
			body = append(body, lowerInst(mod, a, epilogueLabel, inst)...)
		}
	}

	prologue, epilogue := frame(a)
	insts := make([]mc.Inst, 0, len(prologue)+len(body)+len(epilogue))
	insts = append(insts, prologue...)
	insts = append(insts, body...)
	insts = append(insts, epilogue...)

	return &Function{Name: cf.Name, Insts: insts, EpilogueLabel: epilogueLabel}
}

// frame builds the prologue and epilogue around whatever stack and
// callee-saved registers the body ended up claiming. rbp is only pushed
// and based when the function actually needs a frame; a function with no
// locals and no spills needs no frame at all.
func frame(a *allocator) (prologue, epilogue []mc.Inst) {
	ss := a.frameSize()

	if ss > 0 {
		prologue = append(prologue,
			mc.Inst{Opcode: mc.PUSH, Args: []mc.Operand{mc.RegOperand(mc.RBP)}},
			mc.Inst{Opcode: mc.MOV, Args: []mc.Operand{mc.RegOperand(mc.RBP), mc.RegOperand(mc.RSP)}},
		)
	}
	for _, r := range a.regsToRestore {
		prologue = append(prologue, mc.Inst{Opcode: mc.PUSH, Args: []mc.Operand{mc.RegOperand(r)}})
	}
	if ss > 0 {
		prologue = append(prologue, mc.Inst{Opcode: mc.SUB, Args: []mc.Operand{mc.RegOperand(mc.RSP), mc.ImmOperand(int64(ss))}})
	}

	for i := len(a.regsToRestore) - 1; i >= 0; i-- {
		epilogue = append(epilogue, mc.Inst{Opcode: mc.POP, Args: []mc.Operand{mc.RegOperand(a.regsToRestore[i])}})
	}
	if ss > 0 {
		epilogue = append(epilogue,
			mc.Inst{Opcode: mc.POP, Args: []mc.Operand{mc.RegOperand(mc.RBP)}},
			mc.Inst{Opcode: mc.ADD, Args: []mc.Operand{mc.RegOperand(mc.RSP), mc.ImmOperand(int64(ss))}},
		)
	}
	epilogue = append(epilogue, mc.Inst{Opcode: mc.RET})
	return prologue, epilogue
}

// operand resolves a value id to its operand: its allocated location if
// it has one, otherwise the literal it names. A value with neither is a
// bug upstream -- irgen never emits a use of a value that wasn't either
// Alloc'd, computed, or loaded as a Const.
func operand(mod *ir.Module, a *allocator, id ir.ValueId) mc.Operand {
	if op, ok := a.located(id); ok {
		op.Origin = id
		return op
	}
	if lit, ok := mod.Literals[id]; ok {
		if n, ok := lit.(ir.IntLiteral); ok {
			return mc.Operand{Kind: mc.OpImm, Imm: n.Value, Origin: id}
		}
		ir.Fail("lower: unsupported literal kind for value %d", id)
	}
	ir.Fail("lower: value %d has no location and is not a literal", id)
	return mc.Operand{}
}

// lowerInst expands one IR instruction into its machine-code template,
// allocating a location for its result first (unless its strategy marks
// it Scratch, meaning it never gets one) and releasing consumed operands
// last, exactly the order the strategy table commits to.
func lowerInst(mod *ir.Module, a *allocator, epilogueLabel ir.LabelId, inst ir.Inst) []mc.Inst {
	strat := alloc.For(inst.Opcode)

	var result mc.Operand
	if strat.HasResult {
		t := mod.Value(inst.Result).Type
		switch strat.ResultLifetime {
		case ir.Scratch:
			// No location: every use substitutes the literal directly.
		case ir.Persistent:
			// Alloc'd locals always go straight to the stack -- never
			// compete for a register that a later Temporary might need.
			result = a.allocStack(inst.Result, t, ir.Persistent)
		default:
			result = a.allocOnDemand(inst.Result, t, strat.ResultLifetime)
		}
	}

	var out []mc.Inst
	emit := func(op mc.Opcode, args ...mc.Operand) {
		out = append(out, mc.Inst{Opcode: op, Args: args})
	}
	jump := func(op mc.Opcode, l ir.LabelId) {
		out = append(out, mc.Inst{Opcode: op, Label: l})
	}
	opnd := func(i int) mc.Operand { return operand(mod, a, inst.Operands[i]) }

	compare := func(setOp mc.Opcode) {
		emit(mc.MOV, mc.RegOperand(mc.RAX), opnd(0))
		emit(mc.CMP, mc.RegOperand(mc.RAX), opnd(1))
		emit(setOp, mc.RegOperand(mc.AL))
		emit(mc.MOVZX, mc.RegOperand(mc.RAX), mc.RegOperand(mc.AL))
		emit(mc.MOV, result, mc.RegOperand(mc.RAX))
	}

	switch inst.Opcode {
	case ir.Alloc:
		// Location already reserved above; nothing to do.
	case ir.Const:
		// No instructions: literals are substituted at every use site.
	case ir.Store:
		emit(mc.MOV, opnd(0), opnd(1))
	case ir.Load:
		emit(mc.MOV, mc.RegOperand(mc.RAX), opnd(0))
		emit(mc.MOV, result, mc.RegOperand(mc.RAX))
	case ir.Add:
		emit(mc.MOV, mc.RegOperand(mc.RAX), opnd(0))
		emit(mc.ADD, mc.RegOperand(mc.RAX), opnd(1))
		emit(mc.MOV, result, mc.RegOperand(mc.RAX))
	case ir.Sub:
		emit(mc.MOV, mc.RegOperand(mc.RAX), opnd(0))
		emit(mc.SUB, mc.RegOperand(mc.RAX), opnd(1))
		emit(mc.MOV, result, mc.RegOperand(mc.RAX))
	case ir.And:
		emit(mc.MOV, mc.RegOperand(mc.RAX), opnd(0))
		emit(mc.AND, mc.RegOperand(mc.RAX), opnd(1))
		emit(mc.MOV, result, mc.RegOperand(mc.RAX))
	case ir.Or:
		emit(mc.MOV, mc.RegOperand(mc.RAX), opnd(0))
		emit(mc.OR, mc.RegOperand(mc.RAX), opnd(1))
		emit(mc.MOV, result, mc.RegOperand(mc.RAX))
	case ir.Xor:
		emit(mc.MOV, mc.RegOperand(mc.RAX), opnd(0))
		emit(mc.XOR, mc.RegOperand(mc.RAX), opnd(1))
		emit(mc.MOV, result, mc.RegOperand(mc.RAX))
	case ir.Lesser:
		compare(mc.SETL)
	case ir.LesserOrEqual:
		compare(mc.SETLE)
	case ir.Greater:
		compare(mc.SETG)
	case ir.GreaterOrEqual:
		compare(mc.SETGE)
	case ir.Equal:
		compare(mc.SETE)
	case ir.NotEqual:
		compare(mc.SETNE)
	case ir.Label:
		out = append(out, mc.Inst{Opcode: mc.LABEL, Label: inst.Operands[0]})
	case ir.Branch:
		emit(mc.MOV, mc.RegOperand(mc.RAX), opnd(0))
		emit(mc.TEST, mc.RegOperand(mc.RAX), mc.RegOperand(mc.RAX))
		jump(mc.JNZ, inst.Operands[1])
		jump(mc.JZ, inst.Operands[2])
	case ir.Jump:
		jump(mc.JMP, inst.Operands[0])
	case ir.Return:
		if inst.Operands[0] != ir.NoValue {
			emit(mc.MOV, mc.RegOperand(mc.RAX), opnd(0))
		}
		jump(mc.JMP, epilogueLabel)
	default:
		ir.Fail("lower: unhandled opcode %s", inst.Opcode)
	}

	for i, consumed := range strat.Consumes {
		if consumed && i < len(inst.Operands) {
			a.consume(inst.Operands[i])
		}
	}

	return out
}
