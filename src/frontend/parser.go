// parser.go implements the precedence-climbing parser. The parser pulls
// the token slice produced by the lexer and builds the syntax tree of
// ir.Expr and ir.Stmt values, desugaring as it goes: all for-loop forms
// lower to while, compound assignment lowers to plain assignment, and
// chained comparisons collapse into a single ChainedCmp node. Parse errors
// are structured diag values with spans; the first error aborts.

package frontend

import (
	"fmt"
	"strconv"
	"strings"

	"brix/src/diag"
	"brix/src/ir"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// parser holds the token stream and the cursor of the descent.
type parser struct {
	toks []item
	pos  int
	src  string
	tmp  int // Counter for synthesised loop temporaries.
}

// ---------------------
// ----- functions -----
// ---------------------

// Parse lexes and parses src into a program.
func Parse(src string) (*ir.Program, *diag.Error) {
	p := &parser{toks: tokenize(src), src: src}
	if last := p.toks[len(p.toks)-1]; last.typ == itemError {
		return nil, diag.Lexf(last.span, "%s", last.val)
	}

	prog := &ir.Program{}
	for p.skipSemis(); !p.check(itemEOF); p.skipSemis() {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, s)
	}
	return prog, nil
}

// TokenStream returns a tabular dump of the token stream of src, used by
// the -ts compiler flag.
func TokenStream(src string) (string, *diag.Error) {
	sb := strings.Builder{}
	sb.WriteString("Value\tType\tBytes\n")
	for _, t := range tokenize(src) {
		if t.typ == itemError {
			return sb.String(), diag.Lexf(t.span, "%s", t.val)
		}
		if t.typ == itemEOF {
			break
		}
		sb.WriteString(fmt.Sprintf("%q\t%s\t%d:%d\n", t.val, t.typ, t.span.Start, t.span.End))
	}
	return sb.String(), nil
}

// ----------------------------
// ----- Cursor functions -----
// ----------------------------

func (p *parser) current() item {
	return p.toks[p.pos]
}

func (p *parser) peekTyp() itemType {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1].typ
	}
	return itemEOF
}

func (p *parser) advance() item {
	t := p.toks[p.pos]
	if t.typ != itemEOF {
		p.pos++
	}
	return t
}

func (p *parser) check(typ itemType) bool {
	return p.current().typ == typ
}

// match consumes the current token if it has the given type.
func (p *parser) match(typ itemType) bool {
	if p.check(typ) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(typ itemType) (item, *diag.Error) {
	if p.check(typ) {
		return p.advance(), nil
	}
	t := p.current()
	return t, diag.Parsef(t.span, "expected %s, got %s", typ, describe(t))
}

// describe renders a token for error messages.
func describe(t item) string {
	switch t.typ {
	case itemEOF:
		return "end of file"
	case IDENTIFIER, INTEGER, FLOAT, IMAGINARY, STRING, FSTRING, ATOM:
		return fmt.Sprintf("%s %q", t.typ, t.val)
	}
	return fmt.Sprintf("%q", t.val)
}

// skipSemis consumes any statement separators.
func (p *parser) skipSemis() {
	for p.match(SEMICOLON) {
	}
}

// nextTmp returns a fresh synthesised binding name for loop desugaring.
func (p *parser) nextTmp(prefix string) string {
	p.tmp++
	return fmt.Sprintf("__%s%d", prefix, p.tmp)
}

// ------------------------
// ----- Statements -------
// ------------------------

func (p *parser) parseStmt() (ir.Stmt, *diag.Error) {
	var s ir.Stmt
	var err *diag.Error
	switch p.current().typ {
	case VAR:
		s, err = p.parseVarDecl(true)
	case CONST:
		s, err = p.parseVarDecl(false)
	case IF:
		s, err = p.parseIf()
	case WHILE:
		s, err = p.parseWhile()
	case FOR:
		s, err = p.parseFor()
	case RETURN:
		s, err = p.parseReturn()
	case FUNCTION:
		s, err = p.parseFunctionDef()
	case IMPORT:
		s, err = p.parseImport()
	case LBRACE:
		s, err = p.parseBlock()
	default:
		s, err = p.parseSimpleStmt()
	}
	if err != nil {
		return nil, err
	}
	p.skipSemis()
	return s, nil
}

// parseVarDecl parses var/const declarations, including tuple
// destructuring: var a, b := f().
func (p *parser) parseVarDecl(mut bool) (ir.Stmt, *diag.Error) {
	kw := p.advance() // var or const
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}

	if p.check(COMMA) {
		// Destructuring declaration.
		names := []string{name.val}
		for p.match(COMMA) {
			n, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			names = append(names, n.val)
		}
		if _, err := p.expect(DECLARE); err != nil {
			return nil, err
		}
		init, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !mut {
			return nil, diag.Parsef(kw.span, "const destructuring declarations are not supported")
		}
		return &ir.DestructuringDecl{
			Names: names,
			Init:  init,
			Pos:   kw.span.Merge(init.Span()),
		}, nil
	}

	decl := &ir.VarDecl{Name: name.val, Mut: mut, Pos: kw.span.Merge(name.span)}
	switch {
	case p.match(COLON):
		// Annotated form: var x: T = e.
		tname, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		typ, ok := ir.TypeFromName(tname.val)
		if !ok {
			return nil, diag.Parsef(tname.span, "unknown type name %q", tname.val)
		}
		decl.Annot = typ
		decl.HasAnnot = true
		decl.Pos = decl.Pos.Merge(tname.span)
		if p.match(ASSIGN) {
			init, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			decl.Init = init
			decl.Pos = decl.Pos.Merge(init.Span())
		}
	case p.match(DECLARE):
		// Inferred form: var x := e.
		init, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		decl.Init = init
		decl.Pos = decl.Pos.Merge(init.Span())
	default:
		t := p.current()
		return nil, diag.Parsef(t.span, "expected := or : in declaration, got %s", describe(t))
	}

	if !mut && decl.Init == nil {
		return nil, diag.Parsef(decl.Pos, "const declaration requires an initialiser")
	}
	return decl, nil
}

func (p *parser) parseIf() (ir.Stmt, *diag.Error) {
	kw := p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &ir.If{Cond: cond, Then: then, Pos: kw.span.Merge(then.Pos)}
	if p.match(ELSE) {
		var els ir.Stmt
		if p.check(IF) {
			els, err = p.parseIf()
		} else {
			els, err = p.parseBlock()
		}
		if err != nil {
			return nil, err
		}
		stmt.Else = els
		stmt.Pos = stmt.Pos.Merge(els.Span())
	}
	return stmt, nil
}

func (p *parser) parseWhile() (ir.Stmt, *diag.Error) {
	kw := p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ir.While{Cond: cond, Body: body, Pos: kw.span.Merge(body.Pos)}, nil
}

// parseFor parses every for-loop form and desugars it to a while loop:
//
//	for i in a:b      -> var i := a; while i <= end { ...; i = i + 1 }
//	for i in a:s:b    -> same with step s, evaluated once
//	for v in arr      -> linear index traversal over rows*cols elements
//	for x, y in m     -> row-wise traversal binding columns 0 and 1
func (p *parser) parseFor() (ir.Stmt, *diag.Error) {
	kw := p.advance()
	v1, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	var v2 *item
	if p.match(COMMA) {
		t, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		v2 = &t
	}
	if _, err := p.expect(IN); err != nil {
		return nil, err
	}

	// The iterable parses at logic-or level so that the range colon is
	// available to this production.
	first, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	var rng *ir.RangeExpr
	if p.check(COLON) {
		p.advance()
		second, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		rng = &ir.RangeExpr{Start: first, End: second, Pos: first.Span().Merge(second.Span())}
		if p.match(COLON) {
			third, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			rng.Step = second
			rng.End = third
			rng.Pos = rng.Pos.Merge(third.Span())
		}
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	sp := kw.span.Merge(body.Pos)

	if rng != nil {
		if v2 != nil {
			return nil, diag.Parsef(sp, "range iteration binds a single variable")
		}
		return p.desugarRangeFor(v1.val, rng, body, sp), nil
	}
	if v2 != nil {
		return p.desugarPairFor(v1.val, v2.val, first, body, sp), nil
	}
	return p.desugarElemFor(v1.val, first, body, sp), nil
}

// desugarRangeFor lowers for v in a[:s]:b into a while loop. The end and
// step expressions are hoisted into synthesised bindings so they evaluate
// exactly once.
func (p *parser) desugarRangeFor(v string, rng *ir.RangeExpr, body *ir.Block, sp ir.Span) ir.Stmt {
	endName := p.nextTmp("end")
	stmts := []ir.Stmt{
		&ir.VarDecl{Name: v, Init: rng.Start, Mut: true, Pos: rng.Start.Span()},
		&ir.VarDecl{Name: endName, Init: rng.End, Mut: true, Pos: rng.End.Span()},
	}

	var step ir.Expr = &ir.IntLit{Value: 1, Pos: rng.Pos}
	if rng.Step != nil {
		stepName := p.nextTmp("step")
		stmts = append(stmts, &ir.VarDecl{Name: stepName, Init: rng.Step, Mut: true, Pos: rng.Step.Span()})
		step = &ir.Ident{Name: stepName, Pos: rng.Step.Span()}
	}

	inc := &ir.AssignStmt{
		Name:  v,
		Value: &ir.Binary{Op: "+", LHS: &ir.Ident{Name: v, Pos: sp}, RHS: step, Pos: sp},
		Pos:   sp,
	}
	loop := &ir.While{
		Cond: &ir.Binary{Op: "<=", LHS: &ir.Ident{Name: v, Pos: sp}, RHS: &ir.Ident{Name: endName, Pos: sp}, Pos: sp},
		Body: &ir.Block{Stmts: append(body.Stmts, inc), Pos: body.Pos},
		Pos:  sp,
	}
	return &ir.Block{Stmts: append(stmts, loop), Pos: sp}
}

// desugarElemFor lowers for v in arr into a linear index traversal over
// the matrix's rows*cols elements.
func (p *parser) desugarElemFor(v string, iter ir.Expr, body *ir.Block, sp ir.Span) ir.Stmt {
	arr := p.nextTmp("it")
	idx := p.nextTmp("i")
	n := p.nextTmp("n")
	arrRef := func() ir.Expr { return &ir.Ident{Name: arr, Pos: iter.Span()} }
	idxRef := func() ir.Expr { return &ir.Ident{Name: idx, Pos: sp} }

	inner := append([]ir.Stmt{
		&ir.VarDecl{Name: v, Init: &ir.Index{Target: arrRef(), Indices: []ir.Expr{idxRef()}, Pos: sp}, Mut: true, Pos: sp},
	}, body.Stmts...)
	inner = append(inner, &ir.AssignStmt{
		Name:  idx,
		Value: &ir.Binary{Op: "+", LHS: idxRef(), RHS: &ir.IntLit{Value: 1, Pos: sp}, Pos: sp},
		Pos:   sp,
	})

	return &ir.Block{Stmts: []ir.Stmt{
		&ir.VarDecl{Name: arr, Init: iter, Mut: true, Pos: iter.Span()},
		&ir.VarDecl{Name: idx, Init: &ir.IntLit{Value: 0, Pos: sp}, Mut: true, Pos: sp},
		&ir.VarDecl{Name: n, Init: &ir.Binary{
			Op:  "*",
			LHS: &ir.Field{Target: arrRef(), Name: "rows", Pos: sp},
			RHS: &ir.Field{Target: arrRef(), Name: "cols", Pos: sp},
			Pos: sp,
		}, Mut: true, Pos: sp},
		&ir.While{
			Cond: &ir.Binary{Op: "<", LHS: idxRef(), RHS: &ir.Ident{Name: n, Pos: sp}, Pos: sp},
			Body: &ir.Block{Stmts: inner, Pos: body.Pos},
			Pos:  sp,
		},
	}, Pos: sp}
}

// desugarPairFor lowers for x, y in zip(a, b) into a row-wise traversal of
// the pair matrix, binding columns 0 and 1.
func (p *parser) desugarPairFor(x, y string, iter ir.Expr, body *ir.Block, sp ir.Span) ir.Stmt {
	z := p.nextTmp("zip")
	idx := p.nextTmp("i")
	zRef := func() ir.Expr { return &ir.Ident{Name: z, Pos: iter.Span()} }
	idxRef := func() ir.Expr { return &ir.Ident{Name: idx, Pos: sp} }

	inner := append([]ir.Stmt{
		&ir.VarDecl{Name: x, Init: &ir.Index{
			Target:  zRef(),
			Indices: []ir.Expr{idxRef(), &ir.IntLit{Value: 0, Pos: sp}},
			Pos:     sp,
		}, Mut: true, Pos: sp},
		&ir.VarDecl{Name: y, Init: &ir.Index{
			Target:  zRef(),
			Indices: []ir.Expr{idxRef(), &ir.IntLit{Value: 1, Pos: sp}},
			Pos:     sp,
		}, Mut: true, Pos: sp},
	}, body.Stmts...)
	inner = append(inner, &ir.AssignStmt{
		Name:  idx,
		Value: &ir.Binary{Op: "+", LHS: idxRef(), RHS: &ir.IntLit{Value: 1, Pos: sp}, Pos: sp},
		Pos:   sp,
	})

	return &ir.Block{Stmts: []ir.Stmt{
		&ir.VarDecl{Name: z, Init: iter, Mut: true, Pos: iter.Span()},
		&ir.VarDecl{Name: idx, Init: &ir.IntLit{Value: 0, Pos: sp}, Mut: true, Pos: sp},
		&ir.While{
			Cond: &ir.Binary{Op: "<", LHS: idxRef(), RHS: &ir.Field{Target: zRef(), Name: "rows", Pos: sp}, Pos: sp},
			Body: &ir.Block{Stmts: inner, Pos: body.Pos},
			Pos:  sp,
		},
	}, Pos: sp}
}

func (p *parser) parseReturn() (ir.Stmt, *diag.Error) {
	kw := p.advance()
	ret := &ir.Return{Pos: kw.span}
	// A bare return is followed by a separator, a closing brace or EOF.
	if !p.check(SEMICOLON) && !p.check(RBRACE) && !p.check(itemEOF) {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ret.Value = v
		ret.Pos = ret.Pos.Merge(v.Span())
	}
	return ret, nil
}

func (p *parser) parseFunctionDef() (ir.Stmt, *diag.Error) {
	kw := p.advance()
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	var params []ir.Param
	for !p.check(RPAREN) {
		pn, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		tn, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		typ, ok := ir.TypeFromName(tn.val)
		if !ok {
			return nil, diag.Parsef(tn.span, "unknown type name %q", tn.val)
		}
		param := ir.Param{Name: pn.val, Type: typ, Pos: pn.span.Merge(tn.span)}
		if p.match(ASSIGN) {
			def, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			param.Default = def
		}
		params = append(params, param)
		if !p.match(COMMA) {
			break
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	retType := ir.T(ir.Void)
	if p.match(ARROW) {
		if p.match(LPAREN) {
			// Tuple return annotation: -> (T1, T2).
			var elems []ir.Type
			for {
				tn, err := p.expect(IDENTIFIER)
				if err != nil {
					return nil, err
				}
				typ, ok := ir.TypeFromName(tn.val)
				if !ok {
					return nil, diag.Parsef(tn.span, "unknown type name %q", tn.val)
				}
				elems = append(elems, typ)
				if !p.match(COMMA) {
					break
				}
			}
			if _, err := p.expect(RPAREN); err != nil {
				return nil, err
			}
			retType = ir.TupleOf(elems...)
		} else {
			tn, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			typ, ok := ir.TypeFromName(tn.val)
			if !ok {
				return nil, diag.Parsef(tn.span, "unknown type name %q", tn.val)
			}
			retType = typ
		}
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ir.FunctionDef{
		Name:    name.val,
		Params:  params,
		RetType: retType,
		Body:    body,
		Pos:     kw.span.Merge(body.Pos),
	}, nil
}

func (p *parser) parseImport() (ir.Stmt, *diag.Error) {
	kw := p.advance()
	mod, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	imp := &ir.Import{Module: mod.val, Alias: mod.val, Pos: kw.span.Merge(mod.span)}
	if p.match(AS) {
		alias, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		imp.Alias = alias.val
		imp.Pos = imp.Pos.Merge(alias.span)
	}
	return imp, nil
}

func (p *parser) parseBlock() (*ir.Block, *diag.Error) {
	lb, err := p.expect(LBRACE)
	if err != nil {
		return nil, err
	}
	blk := &ir.Block{Pos: lb.span}
	for p.skipSemis(); !p.check(RBRACE) && !p.check(itemEOF); p.skipSemis() {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		blk.Stmts = append(blk.Stmts, s)
	}
	rb, err := p.expect(RBRACE)
	if err != nil {
		return nil, err
	}
	blk.Pos = blk.Pos.Merge(rb.span)
	return blk, nil
}

// parseSimpleStmt parses an expression statement or an assignment. The
// left-hand side is parsed as an expression first; what follows decides
// the statement form. Compound assignment desugars to x = x op e.
func (p *parser) parseSimpleStmt() (ir.Stmt, *diag.Error) {
	lhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	var op string
	switch p.current().typ {
	case ASSIGN:
		op = ""
	case PLUSEQ:
		op = "+"
	case MINUSEQ:
		op = "-"
	case STAREQ:
		op = "*"
	case SLASHEQ:
		op = "/"
	default:
		return &ir.ExprStmt{X: lhs, Pos: lhs.Span()}, nil
	}
	eq := p.advance()

	rhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if op != "" {
		rhs = &ir.Binary{Op: op, LHS: lhs, RHS: rhs, Pos: lhs.Span().Merge(rhs.Span())}
	}

	switch target := lhs.(type) {
	case *ir.Ident:
		return &ir.AssignStmt{Name: target.Name, Value: rhs, Pos: lhs.Span().Merge(rhs.Span())}, nil
	case *ir.Index:
		return &ir.IndexAssign{
			Target:  target.Target,
			Indices: target.Indices,
			Value:   rhs,
			Pos:     lhs.Span().Merge(rhs.Span()),
		}, nil
	}
	return nil, diag.Parsef(eq.span, "left-hand side of assignment must be a name or an element")
}

// -------------------------
// ----- Expressions -------
// -------------------------

func (p *parser) parseExpr() (ir.Expr, *diag.Error) {
	return p.parseTernary()
}

// parseTernary parses cond ? then : else. The branches parse at logic-or
// level so the ternary colon is never confused with a range colon; the
// else branch re-enters at ternary level for right associativity.
func (p *parser) parseTernary() (ir.Expr, *diag.Error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.match(QUESTION) {
		return cond, nil
	}
	then, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &ir.Ternary{Cond: cond, Then: then, Else: els, Pos: cond.Span().Merge(els.Span())}, nil
}

func (p *parser) parseOr() (ir.Expr, *diag.Error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.check(OROR) || p.check(OR) {
		p.advance()
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = &ir.Binary{Op: "||", LHS: lhs, RHS: rhs, Pos: lhs.Span().Merge(rhs.Span())}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (ir.Expr, *diag.Error) {
	lhs, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.check(ANDAND) || p.check(AND) {
		p.advance()
		rhs, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		lhs = &ir.Binary{Op: "&&", LHS: lhs, RHS: rhs, Pos: lhs.Span().Merge(rhs.Span())}
	}
	return lhs, nil
}

// cmpOp returns the comparison operator lexeme for the token, or "".
func cmpOp(t itemType) string {
	switch t {
	case EQ:
		return "=="
	case NEQ:
		return "!="
	case LT:
		return "<"
	case LEQ:
		return "<="
	case GT:
		return ">"
	case GEQ:
		return ">="
	}
	return ""
}

// parseComparison parses comparison chains. Two terms build a plain Binary
// node; three or more collapse into one ChainedCmp so codegen can evaluate
// every intermediate term exactly once.
func (p *parser) parseComparison() (ir.Expr, *diag.Error) {
	first, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	terms := []ir.Expr{first}
	var ops []string
	for {
		op := cmpOp(p.current().typ)
		if op == "" {
			break
		}
		p.advance()
		next, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
		ops = append(ops, op)
	}
	switch len(ops) {
	case 0:
		return first, nil
	case 1:
		return &ir.Binary{Op: ops[0], LHS: terms[0], RHS: terms[1], Pos: terms[0].Span().Merge(terms[1].Span())}, nil
	}
	return &ir.ChainedCmp{
		Terms: terms,
		Ops:   ops,
		Pos:   terms[0].Span().Merge(terms[len(terms)-1].Span()),
	}, nil
}

// Bitwise operators follow C's relative precedence among themselves:
// | binds loosest, then ^, then &.
func (p *parser) parseBitOr() (ir.Expr, *diag.Error) {
	lhs, err := p.parseBitXor()
	if err != nil {
		return nil, err
	}
	for p.check(PIPE) {
		p.advance()
		rhs, err := p.parseBitXor()
		if err != nil {
			return nil, err
		}
		lhs = &ir.Binary{Op: "|", LHS: lhs, RHS: rhs, Pos: lhs.Span().Merge(rhs.Span())}
	}
	return lhs, nil
}

func (p *parser) parseBitXor() (ir.Expr, *diag.Error) {
	lhs, err := p.parseBitAnd()
	if err != nil {
		return nil, err
	}
	for p.check(CARET) {
		p.advance()
		rhs, err := p.parseBitAnd()
		if err != nil {
			return nil, err
		}
		lhs = &ir.Binary{Op: "^", LHS: lhs, RHS: rhs, Pos: lhs.Span().Merge(rhs.Span())}
	}
	return lhs, nil
}

func (p *parser) parseBitAnd() (ir.Expr, *diag.Error) {
	lhs, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.check(AMP) {
		p.advance()
		rhs, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		lhs = &ir.Binary{Op: "&", LHS: lhs, RHS: rhs, Pos: lhs.Span().Merge(rhs.Span())}
	}
	return lhs, nil
}

func (p *parser) parseAdditive() (ir.Expr, *diag.Error) {
	lhs, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.check(PLUS) || p.check(MINUS) {
		op := "+"
		if p.advance().typ == MINUS {
			op = "-"
		}
		rhs, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		lhs = &ir.Binary{Op: op, LHS: lhs, RHS: rhs, Pos: lhs.Span().Merge(rhs.Span())}
	}
	return lhs, nil
}

func (p *parser) parseMultiplicative() (ir.Expr, *diag.Error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.check(STAR) || p.check(SLASH) || p.check(PERCENT) {
		var op string
		switch p.advance().typ {
		case STAR:
			op = "*"
		case SLASH:
			op = "/"
		default:
			op = "%"
		}
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = &ir.Binary{Op: op, LHS: lhs, RHS: rhs, Pos: lhs.Span().Merge(rhs.Span())}
	}
	return lhs, nil
}

func (p *parser) parseUnary() (ir.Expr, *diag.Error) {
	var op string
	switch p.current().typ {
	case BANG, NOT:
		op = "!"
	case MINUS:
		op = "-"
	case INC:
		op = "++"
	case DEC:
		op = "--"
	default:
		return p.parsePower()
	}
	t := p.advance()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if op == "++" || op == "--" {
		if !isLValue(operand) {
			return nil, diag.Parsef(t.span.Merge(operand.Span()), "%s requires a variable or element operand", op)
		}
	}
	return &ir.Unary{Op: op, Operand: operand, Pos: t.span.Merge(operand.Span())}, nil
}

// parsePower parses the right-associative ** operator. The exponent
// re-enters at unary level so 2**-3 and 2**3**2 both parse.
func (p *parser) parsePower() (ir.Expr, *diag.Error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if !p.match(POW) {
		return base, nil
	}
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &ir.Binary{Op: "**", LHS: base, RHS: exp, Pos: base.Span().Merge(exp.Span())}, nil
}

// isLValue reports whether e may appear as an increment/decrement or
// assignment target.
func isLValue(e ir.Expr) bool {
	switch e.(type) {
	case *ir.Ident, *ir.Index:
		return true
	}
	return false
}

// parsePostfix parses the left-to-right postfix chain: field access,
// indexing, calls and postfix increment/decrement, each appending to the
// previous result. A float literal or parenthesised expression directly
// followed by the keyword im becomes an implicit multiplication by the
// imaginary unit.
func (p *parser) parsePostfix() (ir.Expr, *diag.Error) {
	e, paren, err := p.parseAtomExpr()
	if err != nil {
		return nil, err
	}

	for {
		switch p.current().typ {
		case DOT:
			p.advance()
			name, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			e = &ir.Field{Target: e, Name: name.val, Pos: e.Span().Merge(name.span)}
		case LBRACKET:
			p.advance()
			var indices []ir.Expr
			for {
				idx, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				indices = append(indices, idx)
				if !p.match(COMMA) {
					break
				}
			}
			rb, err := p.expect(RBRACKET)
			if err != nil {
				return nil, err
			}
			if len(indices) > 2 {
				return nil, diag.Parsef(e.Span().Merge(rb.span), "at most two indices are supported")
			}
			e = &ir.Index{Target: e, Indices: indices, Pos: e.Span().Merge(rb.span)}
		case LPAREN:
			p.advance()
			var args []ir.Expr
			for !p.check(RPAREN) {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if !p.match(COMMA) {
					break
				}
			}
			rp, err := p.expect(RPAREN)
			if err != nil {
				return nil, err
			}
			e = &ir.Call{Callee: e, Args: args, Pos: e.Span().Merge(rp.span)}
		case INC, DEC:
			t := p.advance()
			op := "++"
			if t.typ == DEC {
				op = "--"
			}
			if !isLValue(e) {
				return nil, diag.Parsef(e.Span().Merge(t.span), "%s requires a variable or element operand", op)
			}
			e = &ir.Unary{Op: op, Operand: e, Postfix: true, Pos: e.Span().Merge(t.span)}
		case IM:
			// Implicit imaginary-unit multiplication binds only to float or
			// imaginary literals and parenthesised expressions.
			if !paren {
				switch e.(type) {
				case *ir.FloatLit, *ir.ImagLit:
				default:
					return e, nil
				}
			}
			t := p.advance()
			e = &ir.Binary{
				Op:  "*",
				LHS: e,
				RHS: &ir.ImagLit{Value: 1, Pos: t.span},
				Pos: e.Span().Merge(t.span),
			}
		default:
			return e, nil
		}
		paren = false
	}
}

// parseAtomExpr parses the highest-precedence forms. The second return
// reports whether the expression was parenthesised, which the postfix
// parser needs for implicit im multiplication.
func (p *parser) parseAtomExpr() (ir.Expr, bool, *diag.Error) {
	t := p.current()
	switch t.typ {
	case INTEGER:
		p.advance()
		v, err := strconv.ParseInt(t.val, 10, 64)
		if err != nil {
			return nil, false, diag.Parsef(t.span, "invalid integer literal %q", t.val)
		}
		return &ir.IntLit{Value: v, Pos: t.span}, false, nil
	case FLOAT:
		p.advance()
		v, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, false, diag.Parsef(t.span, "invalid float literal %q", t.val)
		}
		return &ir.FloatLit{Value: v, Pos: t.span}, false, nil
	case IMAGINARY:
		p.advance()
		v, err := strconv.ParseFloat(strings.TrimSuffix(t.val, "i"), 64)
		if err != nil {
			return nil, false, diag.Parsef(t.span, "invalid imaginary literal %q", t.val)
		}
		return &ir.ImagLit{Value: v, Pos: t.span}, false, nil
	case STRING:
		p.advance()
		return &ir.StrLit{Value: t.val, Pos: t.span}, false, nil
	case FSTRING:
		p.advance()
		e, err := p.parseFStringBody(t)
		return e, false, err
	case ATOM:
		p.advance()
		return &ir.AtomLit{Name: t.val, Pos: t.span}, false, nil
	case TRUE:
		p.advance()
		return &ir.BoolLit{Value: true, Pos: t.span}, false, nil
	case FALSE:
		p.advance()
		return &ir.BoolLit{Value: false, Pos: t.span}, false, nil
	case NIL:
		p.advance()
		return &ir.NilLit{Pos: t.span}, false, nil
	case IM:
		p.advance()
		return &ir.ImagLit{Value: 1, Pos: t.span}, false, nil
	case IDENTIFIER:
		// Static-init forms int[n] and float[r, c] take priority over
		// indexing an identifier of the same name.
		if (t.val == "int" || t.val == "float") && p.peekTyp() == LBRACKET {
			return p.parseStaticInit()
		}
		p.advance()
		return &ir.Ident{Name: t.val, Pos: t.span}, false, nil
	case LPAREN:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, false, err
		}
		if p.check(COMMA) {
			// Tuple literal: (a, b).
			elems := []ir.Expr{e}
			for p.match(COMMA) {
				next, err := p.parseExpr()
				if err != nil {
					return nil, false, err
				}
				elems = append(elems, next)
			}
			rp, err := p.expect(RPAREN)
			if err != nil {
				return nil, false, err
			}
			return &ir.TupleLit{Elems: elems, Pos: t.span.Merge(rp.span)}, false, nil
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, false, err
		}
		return e, true, nil
	case LBRACKET:
		e, err := p.parseArrayOrComp()
		return e, false, err
	case MATCH:
		e, err := p.parseMatch()
		return e, false, err
	}
	return nil, false, diag.Parsef(t.span, "unexpected %s in expression", describe(t))
}

// parseStaticInit parses int[n] and float[r, c].
func (p *parser) parseStaticInit() (ir.Expr, bool, *diag.Error) {
	name := p.advance()
	p.advance() // [
	var dims []ir.Expr
	for {
		d, err := p.parseExpr()
		if err != nil {
			return nil, false, err
		}
		dims = append(dims, d)
		if !p.match(COMMA) {
			break
		}
	}
	rb, err := p.expect(RBRACKET)
	if err != nil {
		return nil, false, err
	}
	if len(dims) > 2 {
		return nil, false, diag.Parsef(name.span.Merge(rb.span), "static initialiser takes one or two dimensions")
	}
	kind := ir.Int
	if name.val == "float" {
		kind = ir.Float
	}
	return &ir.StaticInit{Kind: kind, Dims: dims, Pos: name.span.Merge(rb.span)}, false, nil
}

// parseArrayOrComp parses [..] literals and list comprehensions.
func (p *parser) parseArrayOrComp() (ir.Expr, *diag.Error) {
	lb := p.advance()
	if p.check(RBRACKET) {
		rb := p.advance()
		return &ir.ArrayLit{Pos: lb.span.Merge(rb.span)}, nil
	}

	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.check(FOR) {
		return p.parseListComp(lb, first)
	}

	elems := []ir.Expr{first}
	for p.match(COMMA) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	rb, err := p.expect(RBRACKET)
	if err != nil {
		return nil, err
	}
	return &ir.ArrayLit{Elems: elems, Pos: lb.span.Merge(rb.span)}, nil
}

// parseListComp parses [body for v in iter ... if cond ...]. Generators
// nest outer-to-inner in source order.
func (p *parser) parseListComp(lb item, body ir.Expr) (ir.Expr, *diag.Error) {
	comp := &ir.ListComp{Body: body}
	for p.check(FOR) {
		kw := p.advance()
		v, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(IN); err != nil {
			return nil, err
		}
		iter, err := p.parseCompIter()
		if err != nil {
			return nil, err
		}
		comp.Gens = append(comp.Gens, ir.CompGen{Var: v.val, Iter: iter, Pos: kw.span.Merge(iter.Span())})

		for p.match(IF) {
			cond, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			comp.Conds = append(comp.Conds, cond)
		}
	}
	rb, err := p.expect(RBRACKET)
	if err != nil {
		return nil, err
	}
	comp.Pos = lb.span.Merge(rb.span)
	return comp, nil
}

// parseCompIter parses a comprehension generator iterable, which may be a
// range.
func (p *parser) parseCompIter() (ir.Expr, *diag.Error) {
	first, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.match(COLON) {
		return first, nil
	}
	second, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	rng := &ir.RangeExpr{Start: first, End: second, Pos: first.Span().Merge(second.Span())}
	if p.match(COLON) {
		third, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		rng.Step = second
		rng.End = third
		rng.Pos = rng.Pos.Merge(third.Span())
	}
	return rng, nil
}

// parseMatch parses match scrutinee { pattern [| pattern]... [if guard] -> expr, ... }.
func (p *parser) parseMatch() (ir.Expr, *diag.Error) {
	kw := p.advance()
	scrut, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}

	m := &ir.MatchExpr{Scrutinee: scrut}
	for !p.check(RBRACE) && !p.check(itemEOF) {
		arm := ir.MatchArm{Pos: p.current().span}

		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		arm.Patterns = append(arm.Patterns, pat)
		for p.match(PIPE) {
			alt, err := p.parsePattern()
			if err != nil {
				return nil, err
			}
			arm.Patterns = append(arm.Patterns, alt)
		}

		if p.match(IF) {
			guard, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			arm.Guard = guard
		}

		if _, err := p.expect(ARROW); err != nil {
			return nil, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		arm.Body = body
		arm.Pos = arm.Pos.Merge(body.Span())
		m.Arms = append(m.Arms, arm)

		if !p.match(COMMA) {
			break
		}
	}
	rb, err := p.expect(RBRACE)
	if err != nil {
		return nil, err
	}
	if len(m.Arms) == 0 {
		return nil, diag.Parsef(kw.span.Merge(rb.span), "match expression requires at least one arm")
	}
	m.Pos = kw.span.Merge(rb.span)
	return m, nil
}

// parsePattern parses a single scalar pattern: a literal, the wildcard _,
// or a binding name.
func (p *parser) parsePattern() (ir.Pattern, *diag.Error) {
	t := p.current()
	switch t.typ {
	case IDENTIFIER:
		p.advance()
		if t.val == "_" {
			return ir.Pattern{Wildcard: true, Pos: t.span}, nil
		}
		return ir.Pattern{Binding: t.val, Pos: t.span}, nil
	case MINUS:
		// Negative numeric literal pattern.
		p.advance()
		n := p.current()
		switch n.typ {
		case INTEGER:
			p.advance()
			v, err := strconv.ParseInt(n.val, 10, 64)
			if err != nil {
				return ir.Pattern{}, diag.Parsef(n.span, "invalid integer literal %q", n.val)
			}
			return ir.Pattern{Lit: &ir.IntLit{Value: -v, Pos: t.span.Merge(n.span)}, Pos: t.span.Merge(n.span)}, nil
		case FLOAT:
			p.advance()
			v, err := strconv.ParseFloat(n.val, 64)
			if err != nil {
				return ir.Pattern{}, diag.Parsef(n.span, "invalid float literal %q", n.val)
			}
			return ir.Pattern{Lit: &ir.FloatLit{Value: -v, Pos: t.span.Merge(n.span)}, Pos: t.span.Merge(n.span)}, nil
		}
		return ir.Pattern{}, diag.Parsef(n.span, "expected numeric literal after - in pattern")
	case INTEGER, FLOAT, STRING, ATOM, TRUE, FALSE, NIL:
		lit, _, err := p.parseAtomExpr()
		if err != nil {
			return ir.Pattern{}, err
		}
		return ir.Pattern{Lit: lit, Pos: lit.Span()}, nil
	}
	return ir.Pattern{}, diag.Parsef(t.span, "expected pattern, got %s", describe(t))
}

// parseFStringBody splits the raw f-string body into literal and
// interpolated parts. Interpolation sources are re-lexed with spans offset
// into the enclosing source buffer so diagnostics point at the original
// text.
func (p *parser) parseFStringBody(tok item) (ir.Expr, *diag.Error) {
	body := tok.val
	// The raw body starts after the opening f" of the literal.
	base := tok.span.Start + 2

	fs := &ir.FStringLit{Pos: tok.span}
	lit := strings.Builder{}
	for i1 := 0; i1 < len(body); i1++ {
		c := body[i1]
		switch {
		case c == '\\' && i1+1 < len(body):
			lit.WriteByte(c)
			i1++
			lit.WriteByte(body[i1])
		case c == '{':
			end := strings.IndexByte(body[i1:], '}')
			if end < 0 {
				return nil, diag.Parsef(ir.Span{Start: base + i1, End: base + i1 + 1}, "unterminated interpolation in f-string")
			}
			end += i1
			if lit.Len() > 0 {
				fs.Parts = append(fs.Parts, ir.FStringPart{Text: unescape(lit.String())})
				lit.Reset()
			}

			inner := body[i1+1 : end]
			format := ""
			if c1 := strings.LastIndexByte(inner, ':'); c1 >= 0 && validFormat(inner[c1+1:]) {
				format = inner[c1+1:]
				inner = inner[:c1]
			}
			if strings.TrimSpace(inner) == "" {
				return nil, diag.Parsef(ir.Span{Start: base + i1, End: base + end + 1}, "empty interpolation in f-string")
			}

			expr, err := parseSubExpr(inner, base+i1+1, p.src)
			if err != nil {
				return nil, err
			}
			fs.Parts = append(fs.Parts, ir.FStringPart{Interp: expr, Format: format})
			i1 = end
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		fs.Parts = append(fs.Parts, ir.FStringPart{Text: unescape(lit.String())})
	}
	return fs, nil
}

// validFormat reports whether s is a printf-style interpolation format
// suffix: d, x, X, o, e, g, f, with an optional .N precision prefix.
func validFormat(s string) bool {
	if len(s) == 0 {
		return false
	}
	if s[0] == '.' {
		i1 := 1
		for i1 < len(s)-1 && s[i1] >= '0' && s[i1] <= '9' {
			i1++
		}
		if i1 == 1 || i1 != len(s)-1 {
			return false
		}
		s = s[i1:]
	}
	if len(s) != 1 {
		return false
	}
	switch s[0] {
	case 'd', 'x', 'X', 'o', 'e', 'g', 'f':
		return true
	}
	return false
}

// parseSubExpr parses an interpolation source that lives at byte offset
// off inside the full source buffer.
func parseSubExpr(sub string, off int, fullSrc string) (ir.Expr, *diag.Error) {
	toks := tokenize(sub)
	for i1 := range toks {
		toks[i1].span.Start += off
		toks[i1].span.End += off
	}
	if last := toks[len(toks)-1]; last.typ == itemError {
		return nil, diag.Lexf(last.span, "%s", last.val)
	}
	sp := &parser{toks: toks, src: fullSrc}
	e, err := sp.parseExpr()
	if err != nil {
		return nil, err
	}
	if !sp.check(itemEOF) {
		t := sp.current()
		return nil, diag.Parsef(t.span, "unexpected %s in interpolation", describe(t))
	}
	return e, nil
}
