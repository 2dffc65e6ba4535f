package lower

import (
	"github.com/cyrex-lang/cyrexc/pkg/ir"
	"github.com/cyrex-lang/cyrexc/pkg/mc"
)

// scratchOrder lists the volatile registers the allocator may hand out,
// in search order. rax itself is withheld -- every instruction template
// in lower.go uses it directly as scratch space, so handing it to the
// allocator would let a long-lived value collide with the next
// computation that needs rax for its own working state.
var scratchOrder = []mc.Reg{mc.RCX, mc.RDX, mc.RSI, mc.RDI, mc.R8, mc.R9, mc.R10, mc.R11}

// allocator assigns a location to every value that needs one: a register
// while one is free, a stack slot once they run out. It tracks just
// enough state to do that on demand, one value at a time, with no
// global liveness analysis -- matching the simple per-instruction
// allocation strategy it's grounded on.
type allocator struct {
	locations map[ir.ValueId]ir.ValueLocation
	claimed   map[mc.Reg]ir.ValueId // keyed by 64-bit family register

	// regsToRestore is every callee-saved register used by this function,
	// in the order it was first claimed -- the prologue pushes them in
	// this order and the epilogue pops them in reverse.
	regsToRestore []mc.Reg
	savedCallee   map[mc.Reg]bool

	stackSize int // running total of bytes reserved, grows as slots are claimed
}

func newAllocator() *allocator {
	return &allocator{
		locations:   make(map[ir.ValueId]ir.ValueLocation),
		claimed:     make(map[mc.Reg]ir.ValueId),
		savedCallee: make(map[mc.Reg]bool),
	}
}

// allocStack reserves a new slot sized to t and binds id to it.
func (a *allocator) allocStack(id ir.ValueId, t ir.Type, lifetime ir.Lifetime) mc.Operand {
	a.stackSize += mc.SizeOf(t)
	offset := -a.stackSize
	a.locations[id] = ir.ValueLocation{Kind: ir.OnStack, StackOffset: offset, Lifetime: lifetime}
	return mc.MemOperand(mc.RBP, offset)
}

func (a *allocator) allocReg(id ir.ValueId, r mc.Reg, lifetime ir.Lifetime) mc.Operand {
	if _, busy := a.claimed[r]; busy {
		ir.Fail("lower: register %s is already claimed", r)
	}
	a.claimed[r] = id
	a.locations[id] = ir.ValueLocation{Kind: ir.InRegister, Reg: int(r), Lifetime: lifetime}
	if mc.IsCalleeSaved(r) && !a.savedCallee[r] {
		a.savedCallee[r] = true
		a.regsToRestore = append(a.regsToRestore, r)
	}
	return mc.RegOperand(r)
}

// allocOnDemand finds a home for id the first time it's asked for:
// a free volatile register, then a free callee-saved one, then a stack
// slot. Lifetime is recorded as given but doesn't change the search --
// only Consume (which never frees a Persistent location) cares about it.
func (a *allocator) allocOnDemand(id ir.ValueId, t ir.Type, lifetime ir.Lifetime) mc.Operand {
	if loc, ok := a.locations[id]; ok {
		return a.operandFor(loc)
	}
	for _, r := range scratchOrder {
		if _, busy := a.claimed[r]; !busy {
			return a.allocReg(id, r, lifetime)
		}
	}
	for _, r := range mc.CalleeSavedOrder {
		if _, busy := a.claimed[r]; !busy {
			return a.allocReg(id, r, lifetime)
		}
	}
	return a.allocStack(id, t, lifetime)
}

// consume releases id's register, if it has one and its lifetime isn't
// Persistent. Persistent values (Alloc'd locals) live for the whole
// function and are never freed early.
func (a *allocator) consume(id ir.ValueId) {
	loc, ok := a.locations[id]
	if !ok || loc.Lifetime == ir.Persistent {
		return
	}
	if loc.Kind == ir.InRegister {
		delete(a.claimed, mc.Reg(loc.Reg))
	}
	delete(a.locations, id)
}

func (a *allocator) operandFor(loc ir.ValueLocation) mc.Operand {
	if loc.Kind == ir.InRegister {
		return mc.RegOperand(mc.Reg(loc.Reg))
	}
	return mc.MemOperand(mc.RBP, loc.StackOffset)
}

// located reports whether id currently has a location.
func (a *allocator) located(id ir.ValueId) (mc.Operand, bool) {
	loc, ok := a.locations[id]
	if !ok {
		return mc.Operand{}, false
	}
	return a.operandFor(loc), true
}

// frameSize is the 16-byte-aligned total stack this function needs.
func (a *allocator) frameSize() int {
	return (a.stackSize + 15) &^ 15
}
