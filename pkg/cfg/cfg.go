// Package cfg splits a LinearFunction into a control-flow graph: an
// ordered list of basic blocks linked by successor indices. Construction
// runs in three passes -- split, index, link -- mirroring the way the
// backend this was ported from builds its block graph in one function.
//
// Every input here is assumed well-formed: irgen never emits a label
// target that doesn't exist, or a terminator with a malformed operand
// list. A mismatch is this package's own bug, not a user mistake, so it
// is reported with ir.Fail rather than a returned error.
package cfg

import "github.com/cyrex-lang/cyrexc/pkg/ir"

// Build lowers a linear instruction stream into a CFGFunction.
func Build(lf *ir.LinearFunction) *ir.CFGFunction {
	blocks := split(lf)
	index := indexLabels(blocks)
	epilogueIdx, ok := index[lf.EpilogueLabel]
	if !ok {
		ir.Fail("cfg: function %q has no block for its epilogue label", lf.Name)
	}
	link(blocks, index, epilogueIdx)

	return &ir.CFGFunction{
		Name:   lf.Name,
		Blocks: blocks,
	}
}

// split breaks the instruction stream into maximal straight-line runs. A
// new block starts at every Label instruction and immediately after every
// terminator; the two rules agree for the common case of a terminator
// immediately followed by its target's label.
func split(lf *ir.LinearFunction) []ir.BasicBlock {
	var blocks []ir.BasicBlock
	var cur *ir.BasicBlock

	closeBlock := func() {
		if cur != nil && len(cur.Insts) > 0 {
			blocks = append(blocks, *cur)
		}
		cur = nil
	}

	for _, inst := range lf.Insts {
		if inst.Opcode == ir.Label {
			closeBlock()
		}
		if cur == nil {
			cur = &ir.BasicBlock{}
			if inst.Opcode == ir.Label {
				cur.EntryLabel = inst.Operands[0]
			} else {
				ir.Fail("cfg: function %q has a block not starting with a label", lf.Name)
			}
		}
		cur.Insts = append(cur.Insts, inst)
		if inst.IsTerminator() {
			closeBlock()
		}
	}
	closeBlock()
	return blocks
}

// indexLabels maps each block's entry label to its position in blocks.
func indexLabels(blocks []ir.BasicBlock) map[ir.LabelId]int {
	index := make(map[ir.LabelId]int, len(blocks))
	for i, b := range blocks {
		index[b.EntryLabel] = i
	}
	return index
}

// link resolves every block's terminator into successor indices. A block
// that falls off the end without a terminator (the natural shape for an
// interior block split purely because the next label began a new block)
// falls through to the next block in order; the function's last block,
// the epilogue, ends the graph with no successors at all.
func link(blocks []ir.BasicBlock, index map[ir.LabelId]int, epilogueIdx int) {
	resolve := func(l ir.LabelId) int {
		idx, ok := index[l]
		if !ok {
			ir.Fail("cfg: jump to undefined label %d", l)
		}
		return idx
	}

	for i := range blocks {
		last := blocks[i].Insts[len(blocks[i].Insts)-1]
		switch last.Opcode {
		case ir.Jump:
			blocks[i].Successors = []int{resolve(last.Operands[0])}
		case ir.Branch:
			blocks[i].Successors = []int{resolve(last.Operands[1]), resolve(last.Operands[2])}
		case ir.Return:
			if i != epilogueIdx {
				blocks[i].Successors = []int{epilogueIdx}
			}
		default:
			if i+1 < len(blocks) {
				next := blocks[i+1].EntryLabel
				blocks[i].Insts = append(blocks[i].Insts, ir.Inst{
					Opcode:   ir.Jump,
					Result:   ir.NoValue,
					Operands: []ir.ValueId{next},
				})
				blocks[i].Successors = []int{i + 1}
			}
		}
	}
}
