// Package irgen lowers an AST into the backend's linear IR, one
// LinearFunction per source function, then hands each off to pkg/cfg to
// produce the Module the rest of the pipeline consumes.
//
// Generation is best-effort: a malformed program accumulates errors in
// place of aborting at the first one, so a single compile reports every
// mistake it can find. The driver decides whether an error list is fatal.
package irgen

import (
	"fmt"

	"github.com/cyrex-lang/cyrexc/pkg/ast"
	"github.com/cyrex-lang/cyrexc/pkg/cfg"
	"github.com/cyrex-lang/cyrexc/pkg/ir"
)

// ErrorKind classifies a user-facing generation error.
type ErrorKind int

const (
	Duplicate ErrorKind = iota
	Redeclaration
	Undefined
	Unsupported
)

// GenError is a user-facing error produced while lowering a well-formed
// AST into IR: redeclared names, unknown identifiers, literal forms this
// backend doesn't carry. It is never panicked; it is accumulated.
type GenError struct {
	Kind ErrorKind
	Msg  string
}

func (e *GenError) Error() string { return e.Msg }

func newErr(kind ErrorKind, format string, args ...interface{}) *GenError {
	return &GenError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// scope binds names to the value that currently holds them.
type scope map[string]ir.ValueId

// Generator walks an ast.Root and produces a Module. Its value table is a
// single dense namespace shared across every function in the module, not
// reset per function: a ValueId is unique module-wide, so later stages
// never need to know which function a value belongs to beyond the block
// that actually uses it.
type Generator struct {
	values   []ir.Value
	literals map[ir.ValueId]ir.Literal

	errors []error

	linear    map[string]*ir.LinearFunction
	order     []string
	nextLabel ir.LabelId

	scopes []scope
	cur    *ir.LinearFunction
}

// New creates an empty Generator.
func New() *Generator {
	return &Generator{
		literals: make(map[ir.ValueId]ir.Literal),
		linear:   make(map[string]*ir.LinearFunction),
	}
}

// Value returns the value record behind id. It panics with ir.InternalError
// if id was never allocated -- a bug in the caller, not a user error.
func (g *Generator) Value(id ir.ValueId) ir.Value {
	if id < 0 || int(id) >= len(g.values) {
		ir.Fail("irgen: value %d out of range", id)
	}
	return g.values[id]
}

// Literal returns the constant recorded for id, if id names a Const
// result. ok is false for every other value.
func (g *Generator) Literal(id ir.ValueId) (lit ir.Literal, ok bool) {
	lit, ok = g.literals[id]
	return
}

func (g *Generator) newValue(t ir.Type) ir.ValueId {
	id := ir.ValueId(len(g.values))
	g.values = append(g.values, ir.Value{Type: t})
	return id
}

func (g *Generator) newLabel() ir.LabelId {
	l := g.nextLabel
	g.nextLabel++
	return l
}

func (g *Generator) pushError(err *GenError) {
	g.errors = append(g.errors, err)
}

func (g *Generator) pushScope() {
	g.scopes = append(g.scopes, make(scope))
}

func (g *Generator) popScope() {
	g.scopes = g.scopes[:len(g.scopes)-1]
}

// bind declares name in the innermost scope. A name already bound in that
// same scope is a Redeclaration error; shadowing an outer scope is fine.
func (g *Generator) bind(name string, id ir.ValueId) {
	innermost := g.scopes[len(g.scopes)-1]
	if _, exists := innermost[name]; exists {
		g.pushError(newErr(Redeclaration, "redeclaration of %q in this scope", name))
		return
	}
	innermost[name] = id
}

// resolve searches scopes from innermost to outermost, so an inner
// declaration shadows an outer one of the same name.
func (g *Generator) resolve(name string) (ir.ValueId, bool) {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if id, ok := g.scopes[i][name]; ok {
			return id, true
		}
	}
	return ir.NoValue, false
}

// Generate lowers root into a Module. It always returns a Module (possibly
// with functions missing or malformed) alongside every error found, so a
// caller can print all of them before deciding whether to stop.
func Generate(root *ast.Root) (*ir.Module, []error) {
	g := New()
	for _, fn := range root.Functions {
		g.function(fn)
	}

	mod := ir.NewModule()
	for _, name := range g.order {
		lf := g.linear[name]
		mod.AddFunction(name, cfg.Build(lf))
	}
	mod.Literals = g.literals
	mod.Values = g.values
	return mod, g.errors
}

func (g *Generator) function(fn *ast.Function) {
	if _, exists := g.linear[fn.Name]; exists {
		g.pushError(newErr(Duplicate, "function %q already defined", fn.Name))
		return
	}

	lf := &ir.LinearFunction{
		Name:          fn.Name,
		PrologueLabel: g.newLabel(),
		EpilogueLabel: g.newLabel(),
	}
	g.linear[fn.Name] = lf
	g.order = append(g.order, fn.Name)

	prev := g.cur
	g.cur = lf
	g.pushScope()

	g.cur.EmitLabel(g.cur.PrologueLabel)
	for _, p := range fn.Parameters {
		g.parameter(p)
	}
	g.block(fn.Body)
	g.cur.EmitLabel(g.cur.EpilogueLabel)

	g.popScope()
	g.cur = prev
}

// parameter binds an incoming argument the same way a VariableStmt binds a
// local: an Alloc'd slot, no calling convention wired to populate it. This
// backend emits only leaf-shaped functions (see pkg/lower); a parameter's
// value exists so the body can reference it by name, without claiming an
// ABI this backend doesn't implement.
func (g *Generator) parameter(p ast.Parameter) {
	id := g.newValue(p.Type.ToIR())
	g.cur.Emit(ir.Alloc, id)
	g.bind(p.Name, id)
}

func (g *Generator) block(b *ast.BlockStmt) {
	g.pushScope()
	for _, stmt := range b.Statements {
		g.statement(stmt)
	}
	g.popScope()
}

func (g *Generator) statement(n ast.Node) {
	switch s := n.(type) {
	case *ast.BlockStmt:
		g.block(s)
	case *ast.ReturnStmt:
		g.returnStmt(s)
	case *ast.VariableStmt:
		g.variableStmt(s)
	case *ast.IfStmt:
		g.ifStmt(s)
	case *ast.WhileStmt:
		g.whileStmt(s)
	default:
		// Expression statement: evaluate for effect, discard the result.
		g.expr(n)
	}
}

// returnStmt always emits a Return with exactly one operand slot, using
// NoValue as an explicit sentinel for a bare `return` rather than
// omitting the operand -- lowering indexes Operands[0] unconditionally.
func (g *Generator) returnStmt(s *ast.ReturnStmt) {
	if s.Expr == nil {
		g.cur.Emit(ir.Return, ir.NoValue, ir.NoValue)
		return
	}
	v := g.expr(s.Expr)
	g.cur.Emit(ir.Return, ir.NoValue, v)
}

func (g *Generator) variableStmt(s *ast.VariableStmt) {
	id := g.newValue(s.Type.ToIR())
	g.cur.Emit(ir.Alloc, id)
	if s.Initializer != nil {
		v := g.expr(s.Initializer)
		g.cur.Emit(ir.Store, ir.NoValue, id, v)
	}
	g.bind(s.Name, id)
}

// ifStmt lowers a conditional used as a statement: no merged value, so
// there's nothing for the then/else arms to produce.
//
// A trailing jump to lDone is only emitted when the preceding branch
// didn't already end in a terminator (e.g. a return). Emitting it
// unconditionally, as a literal control-flow diagram would, leaves a
// block of dead code after the real terminator; suppressing it here is a
// deliberate deviation, not an oversight. lFalse itself is always
// emitted, with or without an else-part, matching the literal algorithm.
func (g *Generator) ifStmt(s *ast.IfStmt) {
	cond := g.expr(s.Condition)
	lThen := g.newLabel()
	lFalse := g.newLabel()
	lDone := g.newLabel()

	g.cur.Emit(ir.Branch, ir.NoValue, cond, lThen, lFalse)

	g.cur.EmitLabel(lThen)
	g.statement(s.Then)
	if s.Else != nil {
		if !g.lastIsTerminator() {
			g.cur.Emit(ir.Jump, ir.NoValue, lDone)
		}
		g.cur.EmitLabel(lFalse)
		g.statement(s.Else)
	} else {
		g.cur.EmitLabel(lFalse)
	}
	if !g.lastIsTerminator() {
		g.cur.Emit(ir.Jump, ir.NoValue, lDone)
	}
	g.cur.EmitLabel(lDone)
}

// lastIsTerminator reports whether the most recently emitted instruction
// already ends a block, so a synthetic jump to the join label would be
// unreachable.
func (g *Generator) lastIsTerminator() bool {
	insts := g.cur.Insts
	if len(insts) == 0 {
		return false
	}
	return insts[len(insts)-1].IsTerminator()
}

func (g *Generator) whileStmt(s *ast.WhileStmt) {
	lCond := g.newLabel()
	lBody := g.newLabel()
	lDone := g.newLabel()

	g.cur.EmitLabel(lCond)
	cond := g.expr(s.Condition)
	g.cur.Emit(ir.Branch, ir.NoValue, cond, lBody, lDone)

	g.cur.EmitLabel(lBody)
	g.block(s.Body)
	if !g.lastIsTerminator() {
		g.cur.Emit(ir.Jump, ir.NoValue, lCond)
	}

	g.cur.EmitLabel(lDone)
}

// expr lowers an expression and returns the value id holding its result.
// A malformed expression (undefined name, unsupported literal) still
// returns a value id -- backed by a synthetic zero constant -- so that the
// surrounding expression tree can keep lowering and surface every error
// in one pass instead of stopping at the first.
func (g *Generator) expr(n ast.Node) ir.ValueId {
	switch e := n.(type) {
	case *ast.LiteralExpr:
		return g.literalExpr(e)
	case *ast.IdentifierExpr:
		return g.identifierExpr(e)
	case *ast.BinaryExpr:
		return g.binaryExpr(e)
	case *ast.AssignExpr:
		return g.assignExpr(e)
	case *ast.IfExpr:
		return g.ifExpr(e)
	case *ast.WhileExpr:
		return g.whileExpr(e)
	default:
		ir.Fail("irgen: unexpected node in expression position: %T", n)
		return ir.NoValue
	}
}

func (g *Generator) literalExpr(e *ast.LiteralExpr) ir.ValueId {
	t := e.Type.ToIR()
	if t.Name != "int" || t.IsPointer() {
		g.pushError(newErr(Unsupported, "unsupported literal type %q", t.String()))
		return g.zero()
	}
	var n int64
	if _, err := fmt.Sscanf(e.Value, "%d", &n); err != nil {
		g.pushError(newErr(Unsupported, "malformed integer literal %q", e.Value))
		return g.zero()
	}
	id := g.newValue(t)
	g.literals[id] = ir.IntLiteral{Value: n}
	g.cur.Emit(ir.Const, id)
	return id
}

func (g *Generator) zero() ir.ValueId {
	id := g.newValue(ir.Type{Name: "int"})
	g.literals[id] = ir.IntLiteral{Value: 0}
	g.cur.Emit(ir.Const, id)
	return id
}

func (g *Generator) identifierExpr(e *ast.IdentifierExpr) ir.ValueId {
	id, ok := g.resolve(e.Name)
	if !ok {
		g.pushError(newErr(Undefined, "undefined identifier %q", e.Name))
		return g.zero()
	}
	result := g.newValue(g.Value(id).Type)
	g.cur.Emit(ir.Load, result, id)
	return result
}

var binaryOpcode = map[ast.BinaryExprKind]ir.Opcode{
	ast.Lesser:          ir.Lesser,
	ast.LesserOrEqual:   ir.LesserOrEqual,
	ast.Greater:         ir.Greater,
	ast.GreaterOrEqual:  ir.GreaterOrEqual,
	ast.Equal:           ir.Equal,
	ast.NotEqual:        ir.NotEqual,
	ast.And:             ir.And,
	ast.Or:              ir.Or,
	ast.Xor:             ir.Xor,
	ast.BinAdd:          ir.Add,
	ast.BinSub:          ir.Sub,
}

func (g *Generator) binaryExpr(e *ast.BinaryExpr) ir.ValueId {
	lhs := g.expr(e.Left)
	rhs := g.expr(e.Right)
	op, ok := binaryOpcode[e.Kind]
	if !ok {
		ir.Fail("irgen: unknown binary operator kind %d", e.Kind)
	}
	result := g.newValue(g.Value(lhs).Type)
	g.cur.Emit(op, result, lhs, rhs)
	return result
}

// assignExpr stores Expr's value into Left and yields Left's slot re-read,
// matching assignment-as-expression semantics (the assigned value, not a
// stale copy, is what the surrounding expression sees).
func (g *Generator) assignExpr(e *ast.AssignExpr) ir.ValueId {
	ident, ok := e.Left.(*ast.IdentifierExpr)
	if !ok {
		g.pushError(newErr(Unsupported, "left-hand side of assignment must be an identifier"))
		return g.zero()
	}
	slot, ok := g.resolve(ident.Name)
	if !ok {
		g.pushError(newErr(Undefined, "undefined identifier %q", ident.Name))
		return g.zero()
	}
	v := g.expr(e.Expr)
	g.cur.Emit(ir.Store, ir.NoValue, slot, v)

	result := g.newValue(g.Value(slot).Type)
	g.cur.Emit(ir.Load, result, slot)
	return result
}

// ifExpr lowers a conditional in expression position. Both arms must
// produce a value; the two results are merged into a fresh slot written
// from whichever arm actually ran, since the IR has no phi node.
func (g *Generator) ifExpr(e *ast.IfExpr) ir.ValueId {
	cond := g.expr(e.Condition)
	lThen := g.newLabel()
	lElse := g.newLabel()
	lDone := g.newLabel()

	merge := g.newValue(ir.Type{Name: "int"})
	g.cur.Emit(ir.Alloc, merge)

	g.cur.Emit(ir.Branch, ir.NoValue, cond, lThen, lElse)

	g.cur.EmitLabel(lThen)
	thenVal := g.expr(e.Then)
	g.cur.Emit(ir.Store, ir.NoValue, merge, thenVal)
	if !g.lastIsTerminator() {
		g.cur.Emit(ir.Jump, ir.NoValue, lDone)
	}

	g.cur.EmitLabel(lElse)
	elseVal := g.expr(e.Else)
	g.cur.Emit(ir.Store, ir.NoValue, merge, elseVal)
	if !g.lastIsTerminator() {
		g.cur.Emit(ir.Jump, ir.NoValue, lDone)
	}

	g.cur.EmitLabel(lDone)
	result := g.newValue(g.Value(thenVal).Type)
	g.cur.Emit(ir.Load, result, merge)
	return result
}

// whileExpr lowers a while-loop used in expression position: the loop
// body runs for effect, Returns is evaluated after the final (or zeroth)
// iteration and becomes the expression's value.
func (g *Generator) whileExpr(e *ast.WhileExpr) ir.ValueId {
	lCond := g.newLabel()
	lBody := g.newLabel()
	lDone := g.newLabel()

	g.cur.EmitLabel(lCond)
	cond := g.expr(e.Condition)
	g.cur.Emit(ir.Branch, ir.NoValue, cond, lBody, lDone)

	g.cur.EmitLabel(lBody)
	g.block(e.Body)
	if !g.lastIsTerminator() {
		g.cur.Emit(ir.Jump, ir.NoValue, lCond)
	}

	g.cur.EmitLabel(lDone)
	return g.expr(e.Returns)
}
