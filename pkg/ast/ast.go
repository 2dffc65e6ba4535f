// Package ast declares the AST node contract the backend consumes. The
// frontend that produces these nodes (lexer, parser, semantic walker) is
// an external collaborator; this package only fixes the shape it hands
// the backend, grounded on the node kinds enumerated by the language
// specification.
package ast

import "github.com/cyrex-lang/cyrexc/pkg/ir"

// Node is implemented by every AST node kind the backend accepts. It
// carries no behavior of its own; the irgen package dispatches on the
// concrete type with a type switch.
type Node interface {
	isNode()
}

// Root is the AST root: a module's ordered list of function declarations.
type Root struct {
	Functions []*Function
}

func (*Root) isNode() {}

// Type names a source-level type the way the frontend reports it: a name
// plus an ordered list of qualifiers. This mirrors ir.Type but lives in
// ast so the frontend never needs to import the backend's ir package.
type Type struct {
	Name       string
	Qualifiers []ir.Qualifier
}

// ToIR converts a frontend Type into the backend's ir.Type.
func (t Type) ToIR() ir.Type {
	return ir.Type{Name: t.Name, Qualifiers: t.Qualifiers}
}

// Parameter is one entry in a Function's parameter list.
type Parameter struct {
	Name string
	Type Type
}

// Function is a top-level function declaration.
type Function struct {
	Name       string
	ReturnType Type
	Parameters []Parameter
	Body       *BlockStmt
}

func (*Function) isNode() {}

// BlockStmt is a brace-delimited sequence of statements introducing a new
// lexical scope.
type BlockStmt struct {
	Statements []Node
}

func (*BlockStmt) isNode() {}

// ReturnStmt optionally carries a value expression.
type ReturnStmt struct {
	Expr Node // nil if bare `return`
}

func (*ReturnStmt) isNode() {}

// VariableStmt declares a local, optionally with an initializer.
type VariableStmt struct {
	Name        string
	Type        Type
	Initializer Node // nil if uninitialized
}

func (*VariableStmt) isNode() {}

// WhileStmt is a pretest loop with no result value.
type WhileStmt struct {
	Condition Node
	Body      *BlockStmt
}

func (*WhileStmt) isNode() {}

// IfStmt is a conditional with an optional else branch.
type IfStmt struct {
	Condition Node
	Then      Node
	Else      Node // nil if no else branch
}

func (*IfStmt) isNode() {}

// LiteralExpr is a literal constant. Value holds the literal's textual
// form; the generator parses it according to Type.
type LiteralExpr struct {
	Type  Type
	Value string
}

func (*LiteralExpr) isNode() {}

// IdentifierExpr references a previously bound name.
type IdentifierExpr struct {
	Name string
}

func (*IdentifierExpr) isNode() {}

// BinaryExprKind enumerates the binary operator kinds the frontend may
// produce, 1:1 with the backend's arithmetic/comparison/logic opcodes.
type BinaryExprKind int

const (
	Lesser BinaryExprKind = iota
	LesserOrEqual
	Greater
	GreaterOrEqual
	Equal
	NotEqual
	And
	Or
	Xor
	BinAdd
	BinSub
)

// BinaryExpr is a two-operand expression.
type BinaryExpr struct {
	Kind  BinaryExprKind
	Left  Node
	Right Node
}

func (*BinaryExpr) isNode() {}

// AssignExpr stores expr's value into left, yielding left as its result.
type AssignExpr struct {
	Left Node
	Expr Node
}

func (*AssignExpr) isNode() {}

// WhileExpr is a while-loop used in expression position: its value is the
// result of evaluating Returns once, after the loop exits.
type WhileExpr struct {
	Condition Node
	Body      *BlockStmt
	Returns   Node
}

func (*WhileExpr) isNode() {}

// IfExpr is an if/else used in expression position; both arms must
// produce a value.
type IfExpr struct {
	Condition Node
	Then      Node
	Else      Node
}

func (*IfExpr) isNode() {}
