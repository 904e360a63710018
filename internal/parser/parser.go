// Package parser builds a surface ast.Module from a TILT token stream
// (spec §6). Like the lexer, this is the external-collaborator front end:
// narrow, recursive-descent, and deliberately unambitious next to the IR,
// lowering, VM and JIT.
package parser

import (
	"strconv"

	"tilt/internal/ast"
	"tilt/internal/diag"
	"tilt/internal/token"
)

type Parser struct {
	file string
	toks []token.Token
	pos  int
	errs []*diag.Error
}

func New(file string, toks []token.Token) *Parser {
	return &Parser{file: file, toks: toks}
}

// Parse consumes the whole token stream, returning the parsed module and
// any parse errors. Parsing stops at the first error inside a construct but
// resumes at the next top-level `fn`/`import` so one pass can surface more
// than one mistake.
func (p *Parser) Parse() (*ast.Module, []*diag.Error) {
	mod := &ast.Module{}
	for !p.check(token.EOF) {
		switch {
		case p.check(token.Import):
			if imp := p.parseImport(); imp != nil {
				mod.Imports = append(mod.Imports, imp)
			} else {
				p.syncToTopLevel()
			}
		case p.check(token.Fn):
			if fn := p.parseFunc(); fn != nil {
				mod.Funcs = append(mod.Funcs, fn)
			} else {
				p.syncToTopLevel()
			}
		default:
			p.errorf("expected 'fn' or 'import', got %q", p.cur().Lexeme)
			p.advance()
			p.syncToTopLevel()
		}
	}
	return mod, p.errs
}

func (p *Parser) syncToTopLevel() {
	for !p.check(token.EOF) && !p.check(token.Fn) && !p.check(token.Import) {
		p.advance()
	}
}

func (p *Parser) parseImport() *ast.Import {
	line := p.cur().Line
	p.advance() // 'import'
	mod, ok := p.expectString()
	if !ok {
		return nil
	}
	name, ok := p.expectString()
	if !ok {
		return nil
	}
	cc := ""
	if p.check(token.String) {
		cc = p.cur().Lexeme
		p.advance()
	}
	if !p.expect(token.LParen) {
		return nil
	}
	params, ok := p.parseParams()
	if !ok {
		return nil
	}
	if !p.expect(token.RParen) || !p.expect(token.Arrow) {
		return nil
	}
	retType, ok := p.expectType()
	if !ok {
		return nil
	}
	return &ast.Import{Module: mod, Name: name, CC: cc, Params: params, RetType: retType, Line: line}
}

func (p *Parser) parseFunc() *ast.Func {
	line := p.cur().Line
	p.advance() // 'fn'
	name, ok := p.expectIdent()
	if !ok {
		return nil
	}
	if !p.expect(token.LParen) {
		return nil
	}
	params, ok := p.parseParams()
	if !ok {
		return nil
	}
	if !p.expect(token.RParen) || !p.expect(token.Arrow) {
		return nil
	}
	retType, ok := p.expectType()
	if !ok {
		return nil
	}
	if !p.expect(token.LBrace) {
		return nil
	}
	var blocks []*ast.Block
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		b := p.parseBlock()
		if b == nil {
			return nil
		}
		blocks = append(blocks, b)
	}
	if !p.expect(token.RBrace) {
		return nil
	}
	return &ast.Func{Name: name, Params: params, RetType: retType, Blocks: blocks, Line: line}
}

func (p *Parser) parseParams() ([]ast.Param, bool) {
	var params []ast.Param
	if p.check(token.RParen) {
		return params, true
	}
	for {
		name, ok := p.expectIdent()
		if !ok {
			return nil, false
		}
		if !p.expect(token.Colon) {
			return nil, false
		}
		ty, ok := p.expectType()
		if !ok {
			return nil, false
		}
		params = append(params, ast.Param{Name: name, Type: ty})
		if p.check(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	return params, true
}

func (p *Parser) parseBlock() *ast.Block {
	line := p.cur().Line
	label, ok := p.expectIdent()
	if !ok {
		return nil
	}
	var params []ast.Param
	if p.check(token.LParen) {
		p.advance()
		params, ok = p.parseParams()
		if !ok {
			return nil
		}
		if !p.expect(token.RParen) {
			return nil
		}
	}
	if !p.expect(token.Colon) {
		return nil
	}
	var stmts []ast.Stmt
	for !p.isTerminatorStart() && !p.check(token.RBrace) && !p.check(token.EOF) {
		s, ok := p.parseStmt()
		if !ok {
			return nil
		}
		stmts = append(stmts, s)
	}
	term := p.parseTerm()
	if term == nil {
		return nil
	}
	return &ast.Block{Label: label, Params: params, Instrs: stmts, Term: term, Line: line}
}

func (p *Parser) isTerminatorStart() bool {
	return p.check(token.Ret) || p.check(token.Br) || p.check(token.BrIf)
}

// parseStmt parses `name:T = expr` or `expr`. The two forms are
// distinguished on the fly: an identifier or type keyword directly followed
// by ':' starts an assignment; anything else is a void statement.
func (p *Parser) parseStmt() (ast.Stmt, bool) {
	line := p.cur().Line
	if (p.check(token.Ident) || p.check(token.TypeKeyword)) && p.peekKind(1) == token.Colon {
		dest := p.cur().Lexeme
		p.advance()
		p.advance() // ':'
		ty, ok := p.expectType()
		if !ok {
			return ast.Stmt{}, false
		}
		if !p.expect(token.Equal) {
			return ast.Stmt{}, false
		}
		expr, ok := p.parseExpr()
		if !ok {
			return ast.Stmt{}, false
		}
		return ast.Stmt{IsAssign: true, Dest: dest, DestType: ty, Expr: expr, Line: line}, true
	}
	expr, ok := p.parseExpr()
	if !ok {
		return ast.Stmt{}, false
	}
	return ast.Stmt{IsAssign: false, Expr: expr, Line: line}, true
}

// parseExpr parses a literal, an identifier, `call name(args)`, or a dotted
// op `op(args)` -- all flat, per spec §4.1/§9.
func (p *Parser) parseExpr() (ast.Expr, bool) {
	line := p.cur().Line
	if p.check(token.Number) {
		n, err := strconv.ParseInt(p.cur().Lexeme, 10, 64)
		if err != nil {
			p.errorf("invalid integer literal %q", p.cur().Lexeme)
			return ast.Expr{}, false
		}
		p.advance()
		return ast.Expr{Kind: ast.ExprLiteral, Literal: n, Line: line}, true
	}
	if p.check(token.Call) {
		p.advance()
		callee, ok := p.expectIdent()
		if !ok {
			return ast.Expr{}, false
		}
		if !p.expect(token.LParen) {
			return ast.Expr{}, false
		}
		args, ok := p.parseArgs()
		if !ok {
			return ast.Expr{}, false
		}
		if !p.expect(token.RParen) {
			return ast.Expr{}, false
		}
		return ast.Expr{Kind: ast.ExprCall, Name: callee, Args: args, Line: line}, true
	}
	if p.check(token.Ident) || p.check(token.TypeKeyword) {
		name := p.cur().Lexeme
		p.advance()
		if p.check(token.LParen) {
			p.advance()
			args, ok := p.parseArgs()
			if !ok {
				return ast.Expr{}, false
			}
			if !p.expect(token.RParen) {
				return ast.Expr{}, false
			}
			return ast.Expr{Kind: ast.ExprOp, Name: name, Args: args, Line: line}, true
		}
		return ast.Expr{Kind: ast.ExprIdent, Ident: name, Line: line}, true
	}
	p.errorf("expected expression, got %q", p.cur().Lexeme)
	return ast.Expr{}, false
}

func (p *Parser) parseArgs() ([]ast.Arg, bool) {
	var args []ast.Arg
	if p.check(token.RParen) {
		return args, true
	}
	for {
		a, ok := p.parseArg()
		if !ok {
			return nil, false
		}
		args = append(args, a)
		if p.check(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	return args, true
}

func (p *Parser) parseArg() (ast.Arg, bool) {
	line := p.cur().Line
	if p.check(token.Number) {
		n, err := strconv.ParseInt(p.cur().Lexeme, 10, 64)
		if err != nil {
			p.errorf("invalid integer literal %q", p.cur().Lexeme)
			return ast.Arg{}, false
		}
		p.advance()
		return ast.Arg{IsLiteral: true, Literal: n, Line: line}, true
	}
	if p.check(token.Ident) {
		name := p.cur().Lexeme
		p.advance()
		return ast.Arg{Ident: name, Line: line}, true
	}
	p.errorf("expected literal or identifier argument, got %q", p.cur().Lexeme)
	return ast.Arg{}, false
}

func (p *Parser) parseTerm() *ast.Term {
	line := p.cur().Line
	switch {
	case p.check(token.Ret):
		p.advance()
		if p.check(token.LParen) {
			p.advance()
			v, ok := p.parseArg()
			if !ok {
				return nil
			}
			if !p.expect(token.RParen) {
				return nil
			}
			return &ast.Term{Kind: ast.TermRet, Value: v, Line: line}
		}
		return &ast.Term{Kind: ast.TermRetVoid, Line: line}
	case p.check(token.Br):
		p.advance()
		target, ok := p.parseTarget()
		if !ok {
			return nil
		}
		return &ast.Term{Kind: ast.TermBr, To: target, Line: line}
	case p.check(token.BrIf):
		p.advance()
		cond, ok := p.parseArg()
		if !ok {
			return nil
		}
		if !p.expect(token.Comma) {
			return nil
		}
		t, ok := p.parseTarget()
		if !ok {
			return nil
		}
		if !p.expect(token.Comma) {
			return nil
		}
		f, ok := p.parseTarget()
		if !ok {
			return nil
		}
		return &ast.Term{Kind: ast.TermBrIf, Cond: cond, True: t, False: f, Line: line}
	default:
		p.errorf("expected terminator ('ret', 'br' or 'br_if'), got %q", p.cur().Lexeme)
		return nil
	}
}

func (p *Parser) parseTarget() (ast.Target, bool) {
	label, ok := p.expectIdent()
	if !ok {
		return ast.Target{}, false
	}
	var args []ast.Arg
	if p.check(token.LParen) {
		p.advance()
		args, ok = p.parseArgs()
		if !ok {
			return ast.Target{}, false
		}
		if !p.expect(token.RParen) {
			return ast.Target{}, false
		}
	}
	return ast.Target{Label: label, Args: args}, true
}

// --- token helpers ---

func (p *Parser) cur() token.Token { return p.toks[p.pos] }

func (p *Parser) peekKind(n int) token.Kind {
	if p.pos+n >= len(p.toks) {
		return token.EOF
	}
	return p.toks[p.pos+n].Kind
}

func (p *Parser) check(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k token.Kind) bool {
	if p.check(k) {
		p.advance()
		return true
	}
	p.errorf("expected %q, got %q", k, p.cur().Lexeme)
	return false
}

func (p *Parser) expectIdent() (string, bool) {
	if p.check(token.Ident) {
		s := p.cur().Lexeme
		p.advance()
		return s, true
	}
	p.errorf("expected identifier, got %q", p.cur().Lexeme)
	return "", false
}

func (p *Parser) expectType() (string, bool) {
	if p.check(token.TypeKeyword) {
		s := p.cur().Lexeme
		p.advance()
		return s, true
	}
	p.errorf("expected type keyword, got %q", p.cur().Lexeme)
	return "", false
}

func (p *Parser) expectString() (string, bool) {
	if p.check(token.String) {
		s := p.cur().Lexeme
		p.advance()
		return s, true
	}
	p.errorf("expected string literal, got %q", p.cur().Lexeme)
	return "", false
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errs = append(p.errs, diag.At(diag.ParseError,
		diag.Pos{File: p.file, Line: p.cur().Line, Column: p.cur().Column}, format, args...))
}
