// Package refsim is a minimal reference interpreter for the pkg/mc
// instruction set: a named register file, flat memory, and a fetch/step
// loop, the same shape as a cycle-accurate processor emulator but
// simplified to what this backend actually emits (no real encoding, no
// interrupts, no I/O). It exists so pkg/optimizer's tests can run a
// function's machine code before and after optimization and compare the
// result instead of only inspecting instruction shape.
package refsim

import (
	"fmt"

	"github.com/cyrex-lang/cyrexc/pkg/ir"
	"github.com/cyrex-lang/cyrexc/pkg/lower"
	"github.com/cyrex-lang/cyrexc/pkg/mc"
)

const maxSteps = 1_000_000

// familyIndex maps any width variant of a register to its 0-15 family
// slot (mc.Reg is laid out four variants per family, narrowest first).
func familyIndex(r mc.Reg) int { return int(r) / 4 }

// Registers holds the 16 general-purpose register families' full 64-bit
// values for inspection after a run. Every narrower operation this
// backend emits (SETcc into al, movzx back out of al) happens in one
// immediate sequence, so simulating only at 64-bit granularity per
// family never loses information this backend's own code depends on.
type Registers struct {
	Values [16]int64
}

// Get returns the value of r's register family.
func (r Registers) Get(reg mc.Reg) int64 {
	return r.Values[familyIndex(reg)]
}

// Machine is one interpreter instance: a register file, a byte-addressed
// memory map keyed by absolute stack offset (rbp is fixed at 0, so a
// [rbp-8] operand addresses key -8), and an explicit push/pop stack
// standing in for the real one since no two functions ever call each
// other here.
type Machine struct {
	regs  [16]int64
	mem   map[int64]int64
	stack []int64

	lastCmpL, lastCmpR int64
	lastTestNonzero    bool
}

// New creates a zeroed machine.
func New() *Machine {
	return &Machine{mem: make(map[int64]int64)}
}

// Registers snapshots the current register file.
func (m *Machine) Registers() Registers {
	return Registers{Values: m.regs}
}

// Run executes fn's instructions from the top and returns the value left
// in rax once a RET is reached. maxSteps bounds runaway execution (a
// malformed jump graph looping forever) the way a real test harness needs
// a timeout.
func Run(fn *lower.Function) (int64, error) {
	m := New()
	labels := indexLabels(fn.Insts)

	pc := 0
	for steps := 0; ; steps++ {
		if steps > maxSteps {
			return 0, fmt.Errorf("refsim: %s exceeded %d steps without returning", fn.Name, maxSteps)
		}
		if pc < 0 || pc >= len(fn.Insts) {
			return 0, fmt.Errorf("refsim: %s: program counter %d ran off the end", fn.Name, pc)
		}
		in := fn.Insts[pc]
		if in.Opcode == mc.RET {
			return m.regs[familyIndex(mc.RAX)], nil
		}
		next, err := m.step(in, labels)
		if err != nil {
			return 0, fmt.Errorf("refsim: %s: %w", fn.Name, err)
		}
		if next == -1 {
			pc++
		} else {
			pc = next
		}
	}
}

func indexLabels(insts []mc.Inst) map[ir.LabelId]int {
	idx := make(map[ir.LabelId]int)
	for i, in := range insts {
		if in.Opcode == mc.LABEL {
			idx[in.Label] = i
		}
	}
	return idx
}

// step executes one instruction and returns the next program counter, or
// -1 to mean "advance by one" (the common case).
func (m *Machine) step(in mc.Inst, labels map[ir.LabelId]int) (int, error) {
	switch {
	case in.Opcode == mc.LABEL:
		return -1, nil
	case in.Opcode == mc.MOV:
		m.store(in.Args[0], m.load(in.Args[1]))
		return -1, nil
	case in.Opcode == mc.MOVZX:
		m.store(in.Args[0], m.load(in.Args[1])&0xFF)
		return -1, nil
	case in.Opcode == mc.ADD:
		m.store(in.Args[0], m.load(in.Args[0])+m.load(in.Args[1]))
		return -1, nil
	case in.Opcode == mc.SUB:
		m.store(in.Args[0], m.load(in.Args[0])-m.load(in.Args[1]))
		return -1, nil
	case in.Opcode == mc.INC:
		m.store(in.Args[0], m.load(in.Args[0])+1)
		return -1, nil
	case in.Opcode == mc.DEC:
		m.store(in.Args[0], m.load(in.Args[0])-1)
		return -1, nil
	case in.Opcode == mc.AND:
		m.store(in.Args[0], m.load(in.Args[0])&m.load(in.Args[1]))
		return -1, nil
	case in.Opcode == mc.OR:
		m.store(in.Args[0], m.load(in.Args[0])|m.load(in.Args[1]))
		return -1, nil
	case in.Opcode == mc.XOR:
		m.store(in.Args[0], m.load(in.Args[0])^m.load(in.Args[1]))
		return -1, nil
	case in.Opcode == mc.NOP:
		return -1, nil
	case in.Opcode == mc.CMP:
		m.lastCmpL, m.lastCmpR = m.load(in.Args[0]), m.load(in.Args[1])
		return -1, nil
	case in.Opcode == mc.TEST:
		m.lastTestNonzero = m.load(in.Args[0])&m.load(in.Args[1]) != 0
		return -1, nil
	case mc.IsSetCC(in.Opcode):
		m.store(in.Args[0], boolToInt(m.evalSetCC(in.Opcode)))
		return -1, nil
	case in.Opcode == mc.PUSH:
		m.stack = append(m.stack, m.load(in.Args[0]))
		return -1, nil
	case in.Opcode == mc.POP:
		n := len(m.stack)
		if n == 0 {
			return 0, fmt.Errorf("pop with empty stack")
		}
		m.store(in.Args[0], m.stack[n-1])
		m.stack = m.stack[:n-1]
		return -1, nil
	case in.Opcode == mc.JMP:
		return jumpTarget(labels, in.Label)
	case mc.IsConditionalJump(in.Opcode):
		if m.evalJump(in.Opcode) {
			return jumpTarget(labels, in.Label)
		}
		return -1, nil
	default:
		return 0, fmt.Errorf("unhandled opcode %s", in.Opcode)
	}
}

func jumpTarget(labels map[ir.LabelId]int, l ir.LabelId) (int, error) {
	idx, ok := labels[l]
	if !ok {
		return 0, fmt.Errorf("jump to undefined label %d", l)
	}
	return idx, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (m *Machine) evalSetCC(op mc.Opcode) bool {
	l, r := m.lastCmpL, m.lastCmpR
	switch op {
	case mc.SETE:
		return l == r
	case mc.SETNE:
		return l != r
	case mc.SETL:
		return l < r
	case mc.SETLE:
		return l <= r
	case mc.SETG:
		return l > r
	case mc.SETGE:
		return l >= r
	default:
		return false
	}
}

func (m *Machine) evalJump(op mc.Opcode) bool {
	switch op {
	case mc.JZ:
		return !m.lastTestNonzero
	case mc.JNZ:
		return m.lastTestNonzero
	case mc.JE:
		return m.lastCmpL == m.lastCmpR
	case mc.JNE:
		return m.lastCmpL != m.lastCmpR
	case mc.JL:
		return m.lastCmpL < m.lastCmpR
	case mc.JLE:
		return m.lastCmpL <= m.lastCmpR
	case mc.JG:
		return m.lastCmpL > m.lastCmpR
	case mc.JGE:
		return m.lastCmpL >= m.lastCmpR
	default:
		return false
	}
}

func (m *Machine) load(o mc.Operand) int64 {
	switch o.Kind {
	case mc.OpReg:
		return m.regs[familyIndex(o.Reg)]
	case mc.OpMem:
		return m.mem[int64(o.Offset)]
	case mc.OpImm:
		return o.Imm
	default:
		return 0
	}
}

func (m *Machine) store(o mc.Operand, v int64) {
	switch o.Kind {
	case mc.OpReg:
		m.regs[familyIndex(o.Reg)] = v
	case mc.OpMem:
		m.mem[int64(o.Offset)] = v
	}
}
