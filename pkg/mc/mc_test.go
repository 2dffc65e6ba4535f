package mc

import (
	"testing"

	"github.com/cyrex-lang/cyrexc/pkg/ir"
)

func TestLargestOfCollapsesWidthVariants(t *testing.T) {
	for _, variant := range []Reg{AL, AX, EAX, RAX} {
		if got := LargestOf(variant); got != RAX {
			t.Errorf("LargestOf(%s) = %s, want rax", variant, got)
		}
	}
}

func TestWithWidth(t *testing.T) {
	tests := []struct {
		width int
		want  Reg
	}{
		{1, BL}, {2, BX}, {4, EBX}, {8, RBX},
	}
	for _, tt := range tests {
		if got := WithWidth(RBX, tt.width); got != tt.want {
			t.Errorf("WithWidth(rbx, %d) = %s, want %s", tt.width, got, tt.want)
		}
	}
}

func TestWithWidthUnsupportedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for an unsupported width")
		}
	}()
	WithWidth(RAX, 3)
}

func TestRegisterStrings(t *testing.T) {
	tests := map[Reg]string{AL: "al", RAX: "rax", R8B: "r8b", R15: "r15", RBP: "rbp", RSP: "rsp"}
	for reg, want := range tests {
		if got := reg.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", reg, got, want)
		}
	}
}

func TestVolatileAndCalleeSaved(t *testing.T) {
	if !IsVolatile(RAX) || IsCalleeSaved(RAX) {
		t.Error("rax should be volatile, not callee-saved")
	}
	if IsVolatile(RBX) || !IsCalleeSaved(RBX) {
		t.Error("rbx should be callee-saved, not volatile")
	}
	if IsVolatile(RBP) || IsCalleeSaved(RBP) {
		t.Error("rbp is reserved for the frame pointer, neither volatile nor callee-saved")
	}
}

func TestOperandEqualIgnoresOrigin(t *testing.T) {
	a := Operand{Kind: OpReg, Reg: RAX, Origin: 1}
	b := Operand{Kind: OpReg, Reg: RAX, Origin: 2}
	if !a.Equal(b) {
		t.Error("operands naming the same register should compare equal regardless of Origin")
	}
	c := Operand{Kind: OpReg, Reg: RBX}
	if a.Equal(c) {
		t.Error("operands naming different registers should not compare equal")
	}
}

func TestOperandString(t *testing.T) {
	tests := []struct {
		o    Operand
		want string
	}{
		{RegOperand(RAX), "rax"},
		{MemOperand(RBP, -8), "[rbp - 8]"},
		{MemOperand(RBP, 0), "[rbp]"},
		{MemOperand(RBP, 16), "[rbp + 16]"},
		{ImmOperand(42), "42"},
	}
	for _, tt := range tests {
		if got := tt.o.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestNegateIsInvolution(t *testing.T) {
	pairs := []Opcode{SETE, SETNE, SETL, SETGE, SETLE, SETG, JE, JNE, JZ, JNZ, JL, JGE, JLE, JG}
	for _, op := range pairs {
		if got := Negate(Negate(op)); got != op {
			t.Errorf("Negate(Negate(%s)) = %s, want %s", op, got, op)
		}
	}
}

func TestNegateNonConditionalPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic negating a non-conditional opcode")
		}
	}()
	Negate(MOV)
}

func TestSetCCToJumpMatchesCondition(t *testing.T) {
	tests := map[Opcode]Opcode{SETE: JE, SETNE: JNE, SETL: JL, SETLE: JLE, SETG: JG, SETGE: JGE}
	for set, jump := range tests {
		if got := SetCCToJump(set); got != jump {
			t.Errorf("SetCCToJump(%s) = %s, want %s", set, got, jump)
		}
	}
}

func TestSizeOf(t *testing.T) {
	tests := []struct {
		typ  ir.Type
		want int
	}{
		{ir.Type{Name: "char"}, 1},
		{ir.Type{Name: "bool"}, 1},
		{ir.Type{Name: "short"}, 2},
		{ir.Type{Name: "int"}, 4},
		{ir.Type{Name: "long"}, 8},
		{ir.Type{Name: "int", Qualifiers: []ir.Qualifier{{Kind: ir.QualPointer}}}, 8},
	}
	for _, tt := range tests {
		if got := SizeOf(tt.typ); got != tt.want {
			t.Errorf("SizeOf(%s) = %d, want %d", tt.typ, got, tt.want)
		}
	}
}

func TestSizeDirective(t *testing.T) {
	tests := map[int]string{1: "byte", 2: "word", 4: "dword", 8: "qword"}
	for bytes, want := range tests {
		if got := SizeDirective(bytes); got != want {
			t.Errorf("SizeDirective(%d) = %q, want %q", bytes, got, want)
		}
	}
}

func TestIsSetCCAndIsConditionalJump(t *testing.T) {
	if !IsSetCC(SETL) || IsSetCC(JL) {
		t.Error("IsSetCC misclassified SETL/JL")
	}
	if !IsConditionalJump(JL) || IsConditionalJump(SETL) {
		t.Error("IsConditionalJump misclassified JL/SETL")
	}
	if IsConditionalJump(JMP) {
		t.Error("unconditional jmp should not be reported as conditional")
	}
}
