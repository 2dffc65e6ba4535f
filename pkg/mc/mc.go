// Package mc defines the x86-64 machine-code model that pkg/lower
// produces, pkg/optimizer rewrites, and pkg/emit renders to text: the
// register file, the tagged Operand union, and the machine opcode set.
package mc

import (
	"fmt"

	"github.com/cyrex-lang/cyrexc/pkg/ir"
)

// Reg enumerates every width variant of the 16 general-purpose registers
// -- 64 values total, four per register family, ordered narrowest-first
// within a family so WithWidth and LargestOf are simple index arithmetic.
type Reg int

const (
	AL Reg = iota
	AX
	EAX
	RAX
	BL
	BX
	EBX
	RBX
	CL
	CX
	ECX
	RCX
	DL
	DX
	EDX
	RDX
	SIL
	SI
	ESI
	RSI
	DIL
	DI
	EDI
	RDI
	BPL
	BP
	EBP
	RBP
	SPL
	SP
	ESP
	RSP
	R8B
	R8W
	R8D
	R8
	R9B
	R9W
	R9D
	R9
	R10B
	R10W
	R10D
	R10
	R11B
	R11W
	R11D
	R11
	R12B
	R12W
	R12D
	R12
	R13B
	R13W
	R13D
	R13
	R14B
	R14W
	R14D
	R14
	R15B
	R15W
	R15D
	R15
)

var regNames = [16][4]string{
	{"al", "ax", "eax", "rax"},
	{"bl", "bx", "ebx", "rbx"},
	{"cl", "cx", "ecx", "rcx"},
	{"dl", "dx", "edx", "rdx"},
	{"sil", "si", "esi", "rsi"},
	{"dil", "di", "edi", "rdi"},
	{"bpl", "bp", "ebp", "rbp"},
	{"spl", "sp", "esp", "rsp"},
	{"r8b", "r8w", "r8d", "r8"},
	{"r9b", "r9w", "r9d", "r9"},
	{"r10b", "r10w", "r10d", "r10"},
	{"r11b", "r11w", "r11d", "r11"},
	{"r12b", "r12w", "r12d", "r12"},
	{"r13b", "r13w", "r13d", "r13"},
	{"r14b", "r14w", "r14d", "r14"},
	{"r15b", "r15w", "r15d", "r15"},
}

// family groups (index into regNames): 0 RAX 1 RBX 2 RCX 3 RDX 4 RSI
// 5 RDI 6 RBP 7 RSP 8 R8 ... 15 R15.
const (
	famRAX = iota
	famRBX
	famRCX
	famRDX
	famRSI
	famRDI
	famRBP
	famRSP
	famR8
	famR9
	famR10
	famR11
	famR12
	famR13
	famR14
	famR15
)

func (r Reg) family() int { return int(r) / 4 }
func (r Reg) widthIdx() int { return int(r) % 4 }

func (r Reg) String() string {
	f, w := r.family(), r.widthIdx()
	if f < 0 || f >= 16 {
		return fmt.Sprintf("reg(%d)", int(r))
	}
	return regNames[f][w]
}

// LargestOf collapses any width variant of a register to its 64-bit
// form, the identity the allocator tracks liveness against: writing al
// and writing rax alias the same physical register.
func LargestOf(r Reg) Reg {
	return Reg(r.family()*4 + 3)
}

// WithWidth returns the variant of r's family sized to byteWidth (1, 2,
// 4, or 8 bytes).
func WithWidth(r Reg, byteWidth int) Reg {
	var idx int
	switch byteWidth {
	case 1:
		idx = 0
	case 2:
		idx = 1
	case 4:
		idx = 2
	case 8:
		idx = 3
	default:
		ir.Fail("mc: unsupported operand width %d", byteWidth)
	}
	return Reg(r.family()*4 + idx)
}

var volatileFamilies = map[int]bool{
	famRAX: true, famRCX: true, famRDX: true, famRSI: true, famRDI: true,
	famR8: true, famR9: true, famR10: true, famR11: true,
}

var calleeSavedFamilies = map[int]bool{
	famRBX: true, famR12: true, famR13: true, famR14: true, famR15: true,
}

// IsVolatile reports whether r's family is caller-saved: a call may
// clobber it, so it costs nothing extra to use across one.
func IsVolatile(r Reg) bool { return volatileFamilies[r.family()] }

// IsCalleeSaved reports whether r's family must be preserved across
// calls by whoever uses it -- using one means saving and restoring it in
// the prologue and epilogue.
func IsCalleeSaved(r Reg) bool { return calleeSavedFamilies[r.family()] }

// VolatileOrder and CalleeSavedOrder list the volatile and callee-saved
// registers in a fixed order, with rsp and rbp in neither since they're
// reserved for the stack frame. The on-demand allocator in pkg/lower walks
// its own scratchOrder (VolatileOrder without rax) first, then
// CalleeSavedOrder (each costs a save/restore pair).
var VolatileOrder = []Reg{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}
var CalleeSavedOrder = []Reg{RBX, R12, R13, R14, R15}

// OperandKind tags an Operand's variant.
type OperandKind int

const (
	OpReg OperandKind = iota
	OpMem
	OpImm
)

// Operand is a tagged machine operand: a register, a [rbp+offset]
// memory reference, or an immediate. Origin records which IR value (if
// any) produced this operand; pkg/emit sizes memory destinations from it
// and the optimizer's self-xor-cmp-fold checks it for literal-ness. Equal
// ignores it, so two operands referring to the same physical location
// compare equal regardless of which value put them there.
type Operand struct {
	Kind   OperandKind
	Reg    Reg // Kind == OpReg, or the base register of Kind == OpMem
	Offset int // Kind == OpMem: byte offset from Reg
	Imm    int64
	Origin ir.ValueId
}

func RegOperand(r Reg) Operand { return Operand{Kind: OpReg, Reg: r, Origin: ir.NoValue} }
func MemOperand(base Reg, offset int) Operand {
	return Operand{Kind: OpMem, Reg: base, Offset: offset, Origin: ir.NoValue}
}
func ImmOperand(v int64) Operand { return Operand{Kind: OpImm, Imm: v, Origin: ir.NoValue} }

// Equal compares two operands by location, ignoring Origin.
func (o Operand) Equal(other Operand) bool {
	if o.Kind != other.Kind {
		return false
	}
	switch o.Kind {
	case OpReg:
		return o.Reg == other.Reg
	case OpMem:
		return o.Reg == other.Reg && o.Offset == other.Offset
	case OpImm:
		return o.Imm == other.Imm
	default:
		return false
	}
}

func (o Operand) String() string {
	switch o.Kind {
	case OpReg:
		return o.Reg.String()
	case OpMem:
		if o.Offset == 0 {
			return fmt.Sprintf("[%s]", o.Reg)
		}
		if o.Offset < 0 {
			return fmt.Sprintf("[%s - %d]", o.Reg, -o.Offset)
		}
		return fmt.Sprintf("[%s + %d]", o.Reg, o.Offset)
	case OpImm:
		return fmt.Sprintf("%d", o.Imm)
	default:
		return "?"
	}
}

// Opcode enumerates the machine instruction mnemonics this backend
// emits, grounded on the original backend's MC::Opcode enum.
type Opcode int

const (
	MOV Opcode = iota
	MOVZX
	PUSH
	POP
	ADD
	SUB
	INC
	DEC
	AND
	OR
	XOR
	CMP
	TEST
	SETE
	SETNE
	SETL
	SETLE
	SETG
	SETGE
	JMP
	JE
	JNE
	JZ
	JNZ
	JL
	JLE
	JG
	JGE
	LABEL
	RET
	NOP
)

func (o Opcode) String() string {
	switch o {
	case MOV:
		return "mov"
	case MOVZX:
		return "movzx"
	case PUSH:
		return "push"
	case POP:
		return "pop"
	case ADD:
		return "add"
	case SUB:
		return "sub"
	case INC:
		return "inc"
	case DEC:
		return "dec"
	case AND:
		return "and"
	case OR:
		return "or"
	case XOR:
		return "xor"
	case CMP:
		return "cmp"
	case TEST:
		return "test"
	case SETE:
		return "sete"
	case SETNE:
		return "setne"
	case SETL:
		return "setl"
	case SETLE:
		return "setle"
	case SETG:
		return "setg"
	case SETGE:
		return "setge"
	case JMP:
		return "jmp"
	case JE:
		return "je"
	case JNE:
		return "jne"
	case JZ:
		return "jz"
	case JNZ:
		return "jnz"
	case JL:
		return "jl"
	case JLE:
		return "jle"
	case JG:
		return "jg"
	case JGE:
		return "jge"
	case LABEL:
		return ""
	case RET:
		return "ret"
	case NOP:
		return "nop"
	default:
		return fmt.Sprintf("opcode(%d)", int(o))
	}
}

// IsBinaryMath reports whether op takes the "op dst, src" two-operand
// arithmetic/logic encoding shared by add, sub, and, or, xor, and cmp.
func IsBinaryMath(op Opcode) bool {
	switch op {
	case ADD, SUB, AND, OR, XOR, CMP:
		return true
	default:
		return false
	}
}

// IsSetCC reports whether op is one of the byte-setting condition codes.
func IsSetCC(op Opcode) bool {
	switch op {
	case SETE, SETNE, SETL, SETLE, SETG, SETGE:
		return true
	default:
		return false
	}
}

// IsConditionalJump reports whether op is a Jcc.
func IsConditionalJump(op Opcode) bool {
	switch op {
	case JE, JNE, JZ, JNZ, JL, JLE, JG, JGE:
		return true
	default:
		return false
	}
}

// Negate returns the condition that holds exactly when op's does not,
// for both SetCC and conditional-jump opcodes. It panics (implementer
// bug) if op is neither.
func Negate(op Opcode) Opcode {
	switch op {
	case SETE:
		return SETNE
	case SETNE:
		return SETE
	case SETL:
		return SETGE
	case SETGE:
		return SETL
	case SETLE:
		return SETG
	case SETG:
		return SETLE
	case JE:
		return JNE
	case JNE:
		return JE
	case JZ:
		return JNZ
	case JNZ:
		return JZ
	case JL:
		return JGE
	case JGE:
		return JL
	case JLE:
		return JG
	case JG:
		return JLE
	default:
		ir.Fail("mc: Negate called on non-conditional opcode %s", op)
		return op
	}
}

// SetCCToJump maps a byte-setting condition code to the conditional jump
// testing the same condition, used by the peephole optimizer to fuse a
// compare-and-test-and-branch sequence into a single Jcc.
func SetCCToJump(op Opcode) Opcode {
	switch op {
	case SETE:
		return JE
	case SETNE:
		return JNE
	case SETL:
		return JL
	case SETLE:
		return JLE
	case SETG:
		return JG
	case SETGE:
		return JGE
	default:
		ir.Fail("mc: SetCCToJump called on non-SetCC opcode %s", op)
		return JMP
	}
}

// SizeOf returns a type's size in bytes for stack slot accounting and
// for the size directive NASM requires on a memory operand (dword,
// qword, ...). Any type the frontend can produce falls into one of
// these buckets; an unrecognized base name defaults to a single byte,
// the same fallback the lowering this is grounded on used.
func SizeOf(t ir.Type) int {
	if t.IsPointer() {
		return 8
	}
	switch t.Name {
	case "char", "bool":
		return 1
	case "short":
		return 2
	case "int":
		return 4
	case "long":
		return 8
	default:
		return 1
	}
}

// SizeDirective returns the NASM size keyword for a byte width.
func SizeDirective(bytes int) string {
	switch bytes {
	case 1:
		return "byte"
	case 2:
		return "word"
	case 4:
		return "dword"
	case 8:
		return "qword"
	default:
		return "byte"
	}
}

// Inst is one machine instruction. LABEL and the jump opcodes carry their
// label id in the Label field and leave Args empty; every other opcode's
// Args holds its operands in destination-first order where the
// distinction applies.
type Inst struct {
	Opcode Opcode
	Args   []Operand
	Label  ir.LabelId // meaningful only when Opcode == LABEL or a jump target
}
