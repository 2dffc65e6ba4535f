// Package alloc holds the static per-opcode allocation strategy table:
// for each IR opcode, how long its result's location should be held and
// which of its operands are consumed (their location freed) once the
// instruction has executed. pkg/lower's on-demand allocator consults this
// table instead of deriving the policy instruction by instruction.
package alloc

import "github.com/cyrex-lang/cyrexc/pkg/ir"

// Strategy describes one opcode's allocation behavior.
type Strategy struct {
	// HasResult is false for opcodes with no destination (Store, Label,
	// Branch, Jump, Return); ResultLifetime is meaningless in that case.
	HasResult      bool
	ResultLifetime ir.Lifetime

	// Consumes is indexed like the instruction's Operands slice. An entry
	// of true means that operand's current location is freed for reuse
	// immediately after this instruction; false means it must survive.
	Consumes []bool
}

var table = map[ir.Opcode]Strategy{
	ir.Alloc: {HasResult: true, ResultLifetime: ir.Persistent},

	// Const never gets a location at all: every use substitutes the
	// literal directly as an immediate operand, so its nominal lifetime
	// is Scratch -- the allocator skips it entirely rather than binding
	// a register or stack slot that would never be read back.
	ir.Const: {HasResult: true, ResultLifetime: ir.Scratch, Consumes: []bool{false}},

	ir.Store: {Consumes: []bool{false, false}},

	ir.Load: {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false}},

	ir.Add: {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false, false}},
	ir.Sub: {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false, false}},

	ir.Lesser:         {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false, false}},
	ir.LesserOrEqual:  {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false, false}},
	ir.Greater:        {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false, false}},
	ir.GreaterOrEqual: {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false, false}},
	ir.Equal:          {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false, false}},
	ir.NotEqual:       {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false, false}},
	ir.And:            {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false, false}},
	ir.Or:             {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false, false}},
	ir.Xor:            {HasResult: true, ResultLifetime: ir.Temporary, Consumes: []bool{false, false}},

	ir.Label: {Consumes: []bool{false}},
	ir.Jump:  {Consumes: []bool{false}},

	ir.Branch: {Consumes: []bool{false, false, false}},

	ir.Return: {Consumes: []bool{false}},
}

// For returns the strategy for op. Every opcode in ir.Opcode has an
// entry; a miss means this table fell out of sync with the IR's opcode
// set, an implementer bug rather than something a caller can recover from.
func For(op ir.Opcode) Strategy {
	s, ok := table[op]
	if !ok {
		ir.Fail("alloc: no strategy registered for opcode %s", op)
	}
	return s
}

// Table returns the full opcode-to-strategy table, for callers that want
// to inspect it wholesale (the --debug allocation dump in cmd/cyrexc).
func Table() map[ir.Opcode]Strategy {
	return table
}
