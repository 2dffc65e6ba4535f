package frontend

import (
	"fmt"

	"github.com/cyrex-lang/cyrexc/pkg/ast"
	"github.com/cyrex-lang/cyrexc/pkg/ir"
)

// parseError is panicked internally on a syntax error and recovered at
// Parse's boundary, turning it into a normal returned error. Unlike
// irgen's best-effort accumulation, a malformed token stream generally
// can't be recovered from well enough to keep parsing meaningfully, so
// the first syntax error stops the parse.
type parseError struct{ msg string }

func (e parseError) Error() string { return e.msg }

func fail(t token, format string, args ...interface{}) {
	panic(parseError{msg: fmt.Sprintf("%d:%d: %s", t.line, t.col, fmt.Sprintf(format, args...))})
}

type parser struct {
	lex *lexer
	tok token
}

// Parse lexes and parses src into an AST root.
func Parse(src string) (root *ast.Root, err error) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(parseError); ok {
				err = pe
				return
			}
			panic(r)
		}
	}()

	p := &parser{lex: newLexer(src)}
	p.advance()
	root = p.parseRoot()
	return root, nil
}

func (p *parser) advance() {
	p.tok = p.lex.next()
}

func (p *parser) expect(k tokenKind, what string) token {
	if p.tok.kind != k {
		fail(p.tok, "expected %s, got %q", what, p.tok.val)
	}
	t := p.tok
	p.advance()
	return t
}

func (p *parser) parseRoot() *ast.Root {
	root := &ast.Root{}
	for p.tok.kind != tokEOF {
		root.Functions = append(root.Functions, p.parseFunction())
	}
	return root
}

func (p *parser) parseFunction() *ast.Function {
	p.expect(tokFn, "'fn'")
	name := p.expect(tokIdent, "function name").val

	p.expect(tokLParen, "'('")
	var params []ast.Parameter
	for p.tok.kind != tokRParen {
		pname := p.expect(tokIdent, "parameter name").val
		p.expect(tokColon, "':'")
		ptype := p.parseType()
		params = append(params, ast.Parameter{Name: pname, Type: ptype})
		if p.tok.kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	p.expect(tokRParen, "')'")

	p.expect(tokColon, "':'")
	retType := p.parseType()

	body := p.parseBlock()
	return &ast.Function{Name: name, ReturnType: retType, Parameters: params, Body: body}
}

func (p *parser) parseType() ast.Type {
	name := p.expect(tokIdent, "type name").val
	t := ast.Type{Name: name}
	for p.tok.kind == tokStar {
		p.advance()
		t.Qualifiers = append(t.Qualifiers, ir.Qualifier{Kind: ir.QualPointer})
	}
	return t
}

func (p *parser) parseBlock() *ast.BlockStmt {
	p.expect(tokLBrace, "'{'")
	block := &ast.BlockStmt{}
	for p.tok.kind != tokRBrace {
		block.Statements = append(block.Statements, p.parseStatement())
	}
	p.expect(tokRBrace, "'}'")
	return block
}

func (p *parser) parseStatement() ast.Node {
	switch p.tok.kind {
	case tokLBrace:
		return p.parseBlock()
	case tokReturn:
		return p.parseReturn()
	case tokVar:
		return p.parseVar()
	case tokIf:
		return p.parseIf()
	case tokWhile:
		return p.parseWhile()
	default:
		expr := p.parseExpr()
		p.expect(tokSemicolon, "';'")
		return expr
	}
}

func (p *parser) parseReturn() *ast.ReturnStmt {
	p.expect(tokReturn, "'return'")
	if p.tok.kind == tokSemicolon {
		p.advance()
		return &ast.ReturnStmt{}
	}
	expr := p.parseExpr()
	p.expect(tokSemicolon, "';'")
	return &ast.ReturnStmt{Expr: expr}
}

func (p *parser) parseVar() *ast.VariableStmt {
	p.expect(tokVar, "'var'")
	name := p.expect(tokIdent, "variable name").val
	p.expect(tokColon, "':'")
	typ := p.parseType()

	var init ast.Node
	if p.tok.kind == tokAssign {
		p.advance()
		init = p.parseExpr()
	}
	p.expect(tokSemicolon, "';'")
	return &ast.VariableStmt{Name: name, Type: typ, Initializer: init}
}

func (p *parser) parseIf() *ast.IfStmt {
	p.expect(tokIf, "'if'")
	p.expect(tokLParen, "'('")
	cond := p.parseExpr()
	p.expect(tokRParen, "')'")
	then := p.parseBlock()

	var elseBranch ast.Node
	if p.tok.kind == tokElse {
		p.advance()
		if p.tok.kind == tokIf {
			elseBranch = p.parseIf()
		} else {
			elseBranch = p.parseBlock()
		}
	}
	return &ast.IfStmt{Condition: cond, Then: then, Else: elseBranch}
}

func (p *parser) parseWhile() *ast.WhileStmt {
	p.expect(tokWhile, "'while'")
	p.expect(tokLParen, "'('")
	cond := p.parseExpr()
	p.expect(tokRParen, "')'")
	body := p.parseBlock()
	return &ast.WhileStmt{Condition: cond, Body: body}
}

// Expression grammar, loosest to tightest:
//
//	assignment  := logicOr ( '=' assignment )?
//	logicOr     := logicAnd ( '||' logicAnd )*
//	logicAnd    := bitXor ( '&&' bitXor )*
//	bitXor      := equality ( '^' equality )*
//	equality    := relational ( ('==' | '!=') relational )*
//	relational  := additive ( ('<' | '<=' | '>' | '>=') additive )*
//	additive    := primary ( ('+' | '-') primary )*
func (p *parser) parseExpr() ast.Node { return p.parseAssignment() }

func (p *parser) parseAssignment() ast.Node {
	left := p.parseLogicOr()
	if p.tok.kind == tokAssign {
		p.advance()
		right := p.parseAssignment()
		return &ast.AssignExpr{Left: left, Expr: right}
	}
	return left
}

func (p *parser) parseLogicOr() ast.Node {
	left := p.parseLogicAnd()
	for p.tok.kind == tokOrOr {
		p.advance()
		left = &ast.BinaryExpr{Kind: ast.Or, Left: left, Right: p.parseLogicAnd()}
	}
	return left
}

func (p *parser) parseLogicAnd() ast.Node {
	left := p.parseBitXor()
	for p.tok.kind == tokAndAnd {
		p.advance()
		left = &ast.BinaryExpr{Kind: ast.And, Left: left, Right: p.parseBitXor()}
	}
	return left
}

func (p *parser) parseBitXor() ast.Node {
	left := p.parseEquality()
	for p.tok.kind == tokCaret {
		p.advance()
		left = &ast.BinaryExpr{Kind: ast.Xor, Left: left, Right: p.parseEquality()}
	}
	return left
}

func (p *parser) parseEquality() ast.Node {
	left := p.parseRelational()
	for p.tok.kind == tokEqEq || p.tok.kind == tokNotEq {
		kind := ast.Equal
		if p.tok.kind == tokNotEq {
			kind = ast.NotEqual
		}
		p.advance()
		left = &ast.BinaryExpr{Kind: kind, Left: left, Right: p.parseRelational()}
	}
	return left
}

func (p *parser) parseRelational() ast.Node {
	left := p.parseAdditive()
	for {
		var kind ast.BinaryExprKind
		switch p.tok.kind {
		case tokLess:
			kind = ast.Lesser
		case tokLessEq:
			kind = ast.LesserOrEqual
		case tokGreater:
			kind = ast.Greater
		case tokGreaterEq:
			kind = ast.GreaterOrEqual
		default:
			return left
		}
		p.advance()
		left = &ast.BinaryExpr{Kind: kind, Left: left, Right: p.parseAdditive()}
	}
}

func (p *parser) parseAdditive() ast.Node {
	left := p.parsePrimary()
	for p.tok.kind == tokPlus || p.tok.kind == tokMinus {
		kind := ast.BinAdd
		if p.tok.kind == tokMinus {
			kind = ast.BinSub
		}
		p.advance()
		left = &ast.BinaryExpr{Kind: kind, Left: left, Right: p.parsePrimary()}
	}
	return left
}

func (p *parser) parsePrimary() ast.Node {
	switch p.tok.kind {
	case tokInt:
		v := p.tok.val
		p.advance()
		return &ast.LiteralExpr{Type: ast.Type{Name: "int"}, Value: v}
	case tokIdent:
		name := p.tok.val
		p.advance()
		return &ast.IdentifierExpr{Name: name}
	case tokLParen:
		p.advance()
		expr := p.parseExpr()
		p.expect(tokRParen, "')'")
		return expr
	case tokMinus:
		p.advance()
		zero := &ast.LiteralExpr{Type: ast.Type{Name: "int"}, Value: "0"}
		return &ast.BinaryExpr{Kind: ast.BinSub, Left: zero, Right: p.parsePrimary()}
	default:
		fail(p.tok, "expected expression, got %q", p.tok.val)
		return nil
	}
}
