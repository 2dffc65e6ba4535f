package optimizer

import (
	"github.com/cyrex-lang/cyrexc/pkg/ir"
	"github.com/cyrex-lang/cyrexc/pkg/mc"
)

// LiteralLookup is the read-only view into the IR generator's literal
// table that a rewrite borrows but never retains: "is this value id a
// Const?" One method, passed by reference, not a pointer graph into C2.
type LiteralLookup interface {
	IsLiteral(id ir.ValueId) bool
}

// PeepholePattern is one named rewrite: Match reports how many
// instructions starting at i it recognizes, Replace produces what they
// become. Keeping the two separate means a pattern can be read as "what
// shape am I looking for" next to "what do I turn it into" instead of
// one function doing both.
type PeepholePattern struct {
	Name    string
	Match   func(insts []mc.Inst, i int, lits LiteralLookup) (length int, ok bool)
	Replace func(insts []mc.Inst, i int, length int) []mc.Inst
}

func isReg(o mc.Operand) bool { return o.Kind == mc.OpReg }
func isMem(o mc.Operand) bool { return o.Kind == mc.OpMem }
func isImm(o mc.Operand) bool { return o.Kind == mc.OpImm }
func isImmVal(o mc.Operand, v int64) bool { return o.Kind == mc.OpImm && o.Imm == v }
func isRAX(o mc.Operand) bool { return o.Kind == mc.OpReg && mc.LargestOf(o.Reg) == mc.RAX }

// isArithmetic reports whether op is one of the dst-writing two-operand
// math ops -- add, sub, and, or, xor -- as opposed to cmp/test, which
// share the encoding but never write a destination.
func isArithmetic(op mc.Opcode) bool {
	switch op {
	case mc.ADD, mc.SUB, mc.AND, mc.OR, mc.XOR:
		return true
	default:
		return false
	}
}

func at(insts []mc.Inst, i, offset int) (mc.Inst, bool) {
	j := i + offset
	if j < 0 || j >= len(insts) {
		return mc.Inst{}, false
	}
	return insts[j], true
}

func holds(op mc.Opcode, l, r int64) bool {
	switch op {
	case mc.JL:
		return l < r
	case mc.JLE:
		return l <= r
	case mc.JG:
		return l > r
	case mc.JGE:
		return l >= r
	case mc.JE:
		return l == r
	case mc.JNE:
		return l != r
	default:
		return false
	}
}

var patterns = []PeepholePattern{
	{
		// mov X, X
		Name: "redundant-self-mov",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a := insts[i]
			if a.Opcode == mc.MOV && a.Args[0].Equal(a.Args[1]) {
				return 1, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst { return nil },
	},
	{
		// mov rax, 1 ; test rax, rax ; jcc L ; jcc' L' , jcc' == negate(jcc)
		// -> jmp L
		Name: "if-true-fold",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			c, ok3 := at(insts, i, 2)
			d, ok4 := at(insts, i, 3)
			if !ok1 || !ok2 || !ok3 || !ok4 {
				return 0, false
			}
			if a.Opcode == mc.MOV && isRAX(a.Args[0]) && isImmVal(a.Args[1], 1) &&
				b.Opcode == mc.TEST && isRAX(b.Args[0]) && isRAX(b.Args[1]) &&
				mc.IsConditionalJump(c.Opcode) && mc.IsConditionalJump(d.Opcode) &&
				d.Opcode == mc.Negate(c.Opcode) {
				return 4, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			return []mc.Inst{{Opcode: mc.JMP, Label: insts[i+2].Label}}
		},
	},
	{
		// xor rax, rax ; test rax, rax ; jcc L ; jcc' L' , jcc' == negate(jcc)
		// -> jmp L' (the branch that fires when the tested value is zero)
		Name: "if-false-fold",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			c, ok3 := at(insts, i, 2)
			d, ok4 := at(insts, i, 3)
			if !ok1 || !ok2 || !ok3 || !ok4 {
				return 0, false
			}
			if a.Opcode == mc.XOR && isRAX(a.Args[0]) && isRAX(a.Args[1]) &&
				b.Opcode == mc.TEST && isRAX(b.Args[0]) && isRAX(b.Args[1]) &&
				mc.IsConditionalJump(c.Opcode) && mc.IsConditionalJump(d.Opcode) &&
				d.Opcode == mc.Negate(c.Opcode) {
				return 4, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			return []mc.Inst{{Opcode: mc.JMP, Label: insts[i+3].Label}}
		},
	},
	{
		// mov rax, X ; mov Y, rax -> mov Y, X
		Name: "move-chain-elimination",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			if !ok1 || !ok2 {
				return 0, false
			}
			if a.Opcode == mc.MOV && b.Opcode == mc.MOV && a.Args[0].Equal(b.Args[1]) {
				return 2, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			return []mc.Inst{{Opcode: mc.MOV, Args: []mc.Operand{insts[i+1].Args[0], insts[i].Args[1]}}}
		},
	},
	{
		// mov A, C ; <math> A, B ; mov C, A -> <math> C, B
		Name: "math-shuffle-elimination",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			c, ok3 := at(insts, i, 2)
			if !ok1 || !ok2 || !ok3 {
				return 0, false
			}
			if a.Opcode == mc.MOV && isArithmetic(b.Opcode) && c.Opcode == mc.MOV &&
				a.Args[0].Equal(b.Args[0]) && a.Args[0].Equal(c.Args[1]) && a.Args[1].Equal(c.Args[0]) {
				return 3, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			b := insts[i+1]
			c := insts[i+2]
			return []mc.Inst{{Opcode: b.Opcode, Args: []mc.Operand{c.Args[0], b.Args[1]}}}
		},
	},
	{
		// mov R, V ; <math> dst, R -> <math> dst, V
		Name: "operand-const-elimination",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			if !ok1 || !ok2 {
				return 0, false
			}
			if a.Opcode == mc.MOV && isArithmetic(b.Opcode) && isReg(a.Args[0]) && a.Args[0].Equal(b.Args[1]) {
				return 2, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			a := insts[i]
			b := insts[i+1]
			return []mc.Inst{{Opcode: b.Opcode, Args: []mc.Operand{b.Args[0], a.Args[1]}}}
		},
	},
	{
		// xor rax, rax ; mov Y, rax -> xor Y, Y
		Name: "xor-mov-fold",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			if !ok1 || !ok2 {
				return 0, false
			}
			if a.Opcode == mc.XOR && a.Args[0].Equal(a.Args[1]) && b.Opcode == mc.MOV && b.Args[1].Equal(a.Args[0]) {
				return 2, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			d := insts[i+1].Args[0]
			return []mc.Inst{{Opcode: mc.XOR, Args: []mc.Operand{d, d}}}
		},
	},
	{
		// xor C, C ; cmp X, C -> cmp X, 0, but only when C originates from
		// a literal: the fold is sound for any C (xor always zeroes), but
		// the rewrite only fires in the one shape the reference restricts
		// it to, a register materializing a known-zero constant.
		Name: "self-xor-cmp-fold",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			if !ok1 || !ok2 {
				return 0, false
			}
			if a.Opcode == mc.XOR && a.Args[0].Equal(a.Args[1]) && b.Opcode == mc.CMP && isReg(b.Args[0]) && b.Args[1].Equal(a.Args[1]) &&
				lits != nil && lits.IsLiteral(a.Args[1].Origin) {
				return 2, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			return []mc.Inst{insts[i], {Opcode: mc.CMP, Args: []mc.Operand{insts[i+1].Args[0], mc.ImmOperand(0)}}}
		},
	},
	{
		// xor rax, rax ; cmp rax, 0 ; je L -> xor rax, rax ; jmp L
		Name: "known-zero-jump",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			c, ok3 := at(insts, i, 2)
			if !ok1 || !ok2 || !ok3 {
				return 0, false
			}
			if a.Opcode == mc.XOR && a.Args[0].Equal(a.Args[1]) &&
				b.Opcode == mc.CMP && b.Args[0].Equal(a.Args[1]) && isImmVal(b.Args[1], 0) &&
				c.Opcode == mc.JE {
				return 3, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			return []mc.Inst{insts[i], {Opcode: mc.JMP, Label: insts[i+2].Label}}
		},
	},
	{
		// xor rax, rax ; mov rax, reg -> mov rax, reg
		Name: "xor-elimination",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			if !ok1 || !ok2 {
				return 0, false
			}
			if a.Opcode == mc.XOR && a.Args[0].Equal(a.Args[1]) && b.Opcode == mc.MOV && b.Args[0].Equal(a.Args[1]) && isReg(b.Args[1]) {
				return 1, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst { return nil },
	},
	{
		// jmp LX ; jcc LY -> jmp LX
		Name: "dead-jump-after-jump",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			if !ok1 || !ok2 {
				return 0, false
			}
			if a.Opcode == mc.JMP && mc.IsConditionalJump(b.Opcode) {
				return 2, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst { return []mc.Inst{insts[i]} },
	},
	{
		// jmp LX ; LX: -> LX:
		Name: "jump-to-next-label",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			if !ok1 || !ok2 {
				return 0, false
			}
			if a.Opcode == mc.JMP && b.Opcode == mc.LABEL && a.Label == b.Label {
				return 2, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst { return []mc.Inst{insts[i+1]} },
	},
	{
		// mov dst, 0 (dst not memory) -> xor dst, dst
		Name: "mov-zero-to-xor",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a := insts[i]
			if a.Opcode == mc.MOV && isImmVal(a.Args[1], 0) && !isMem(a.Args[0]) {
				return 1, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			d := insts[i].Args[0]
			return []mc.Inst{{Opcode: mc.XOR, Args: []mc.Operand{d, d}}}
		},
	},
	{
		// cmp ; setcc ; movzx ; test ; jcc1 ; jcc2 (jcc2 == negate(jcc1))
		// -> cmp ; jump-equivalent-of-setcc to jcc1's target ; negated to jcc2's target
		Name: "branch-fusion",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			c, ok3 := at(insts, i, 2)
			d, ok4 := at(insts, i, 3)
			e, ok5 := at(insts, i, 4)
			f, ok6 := at(insts, i, 5)
			if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
				return 0, false
			}
			if a.Opcode == mc.CMP && mc.IsSetCC(b.Opcode) && c.Opcode == mc.MOVZX &&
				d.Opcode == mc.TEST && mc.IsConditionalJump(e.Opcode) && mc.IsConditionalJump(f.Opcode) {
				return 6, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			setcc := insts[i+1].Opcode
			trueJ := mc.SetCCToJump(setcc)
			return []mc.Inst{
				insts[i],
				{Opcode: trueJ, Label: insts[i+4].Label},
				{Opcode: mc.Negate(trueJ), Label: insts[i+5].Label},
			}
		},
	},
	{
		// cmp ; setcc ; movzx ; test ; jcc -> cmp ; jump-equivalent-of-setcc
		Name: "redundant-setcc-elimination",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			c, ok3 := at(insts, i, 2)
			d, ok4 := at(insts, i, 3)
			e, ok5 := at(insts, i, 4)
			if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
				return 0, false
			}
			if a.Opcode == mc.CMP && mc.IsSetCC(b.Opcode) && c.Opcode == mc.MOVZX &&
				d.Opcode == mc.TEST && mc.IsConditionalJump(e.Opcode) {
				return 5, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			setcc := insts[i+1].Opcode
			return []mc.Inst{insts[i], {Opcode: mc.SetCCToJump(setcc), Label: insts[i+4].Label}}
		},
	},
	{
		// mov rax, L ; cmp rax, R ; jTrue A ; jFalse B, both L and R immediates
		// -> mov rax, L ; jmp (whichever target the constant comparison resolves to)
		Name: "constant-comparison-elimination",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			c, ok3 := at(insts, i, 2)
			d, ok4 := at(insts, i, 3)
			if !ok1 || !ok2 || !ok3 || !ok4 {
				return 0, false
			}
			if a.Opcode == mc.MOV && isRAX(a.Args[0]) && isImm(a.Args[1]) &&
				b.Opcode == mc.CMP && isRAX(b.Args[0]) && isImm(b.Args[1]) &&
				mc.IsConditionalJump(c.Opcode) && mc.IsConditionalJump(d.Opcode) {
				return 4, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			l := insts[i].Args[1].Imm
			r := insts[i+1].Args[1].Imm
			trueJ := insts[i+2]
			falseJ := insts[i+3]
			target := falseJ.Label
			if holds(trueJ.Opcode, l, r) {
				target = trueJ.Label
			}
			return []mc.Inst{insts[i], {Opcode: mc.JMP, Label: target}}
		},
	},
	{
		// mov R, V ; mov dst, R -> mov dst, V (V immediate)
		Name: "constant-propagation",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			if !ok1 || !ok2 {
				return 0, false
			}
			if a.Opcode == mc.MOV && b.Opcode == mc.MOV && isImm(a.Args[1]) && isReg(a.Args[0]) && b.Args[1].Equal(a.Args[0]) {
				return 2, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			return []mc.Inst{{Opcode: mc.MOV, Args: []mc.Operand{insts[i+1].Args[0], insts[i].Args[1]}}}
		},
	},
	{
		// mov rax, X ; cmp rax, Y -> cmp X, Y
		Name: "rax-cmp-elimination",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			if !ok1 || !ok2 {
				return 0, false
			}
			if a.Opcode == mc.MOV && isRAX(a.Args[0]) && b.Opcode == mc.CMP && isRAX(b.Args[0]) {
				return 2, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			return []mc.Inst{{Opcode: mc.CMP, Args: []mc.Operand{insts[i].Args[1], insts[i+1].Args[1]}}}
		},
	},
	{
		// cmp ; jTrue Ltrue ; jFalse Lfalse ; Ltrue: -> cmp ; jFalse Lfalse ; Ltrue:
		Name: "redundant-jcc-before-fallthrough-label",
		Match: func(insts []mc.Inst, i int, lits LiteralLookup) (int, bool) {
			a, ok1 := at(insts, i, 0)
			b, ok2 := at(insts, i, 1)
			c, ok3 := at(insts, i, 2)
			d, ok4 := at(insts, i, 3)
			if !ok1 || !ok2 || !ok3 || !ok4 {
				return 0, false
			}
			if a.Opcode == mc.CMP && mc.IsConditionalJump(b.Opcode) && c.Opcode == mc.Negate(b.Opcode) &&
				d.Opcode == mc.LABEL && d.Label == b.Label {
				return 4, true
			}
			return 0, false
		},
		Replace: func(insts []mc.Inst, i, n int) []mc.Inst {
			return []mc.Inst{insts[i], insts[i+2], insts[i+3]}
		},
	},
}

// peephole runs one left-to-right scan over insts, applying the first
// matching pattern at each position and continuing after its
// replacement. Repeated calls (via Run, looped by Optimize) converge to
// a fixpoint the same way the scan-and-restart this is grounded on does.
// lits is the literal-origin lookup rewrite 8 gates on; it may be nil in
// tests that don't exercise that pattern.
func peephole(insts []mc.Inst, lits LiteralLookup) ([]mc.Inst, bool) {
	out := make([]mc.Inst, 0, len(insts))
	changed := false
	i := 0
	for i < len(insts) {
		matched := false
		for _, p := range patterns {
			if n, ok := p.Match(insts, i, lits); ok {
				out = append(out, p.Replace(insts, i, n)...)
				i += n
				changed = true
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, insts[i])
			i++
		}
	}
	return out, changed
}
