package ir

import (
	"sdynjit/internal/ast"
	"sdynjit/internal/diag"
	"sdynjit/internal/values"
)

// binding is the identity-comparable box an environment entry points to,
// per spec §4.1: "A reference-counted-style box wraps the index so that
// two environment copies can be detected as 'still pointing at the same
// definition' by identity comparison" — used below to elide UNIFY
// instructions for names whose binding didn't actually diverge across a
// branch.
type binding struct{ idx int }

type env map[string]*binding

func (e env) clone() env {
	c := make(env, len(e))
	for k, v := range e {
		c[k] = v
	}
	return c
}

// builder implements spec §4.1's recursive parse-tree traversal.
type builder struct {
	fn *Function
}

// Build lowers one FUNDECL parse-tree node into a flat IR sequence. It
// recovers diag.Fatal panics (parse-tree misuse, per spec §7) into a
// returned error.
func Build(node *ast.Node) (fn *Function, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = diag.Recover(r)
		}
	}()
	if node.Kind != ast.FunDecl {
		diag.Fatal(diag.CompileErrorKind, node.Kind.String(), "Build expects a FUNDECL node")
	}
	b := &builder{fn: &Function{Name: node.Lexeme}}
	b.buildFunDecl(node)
	return b.fn, nil
}

func (b *builder) emit(op Op, kind values.Kind, line int, left, right, third int, imm int64, imms string) int {
	return b.fn.Append(&Instr{Op: op, Kind: kind, Line: line, Left: left, Right: right, Third: third, Imm: imm, ImmS: imms})
}

func (b *builder) buildFunDecl(node *ast.Node) {
	line := node.Line
	b.emit(OpAlloca, values.Nil, line, 0, 0, 0, 0, "")
	b.emit(OpPAlloca, values.Nil, line, 0, 0, 0, 0, "")

	params := node.Children[0]
	varDecls := node.Children[1]
	statements := node.Children[2]

	e := env{}
	thisIdx := b.emit(OpParam, values.Boxed, line, 0, 0, 0, 0, "this")
	e["this"] = &binding{idx: thisIdx}
	b.fn.ParamNames = append(b.fn.ParamNames, "this")

	for i, p := range params.Children {
		idx := b.emit(OpParam, values.Boxed, p.Line, 0, 0, 0, int64(i+1), p.Lexeme)
		e[p.Lexeme] = &binding{idx: idx}
		b.fn.ParamNames = append(b.fn.ParamNames, p.Lexeme)
	}

	for _, vd := range varDecls.Children {
		idx := b.emit(OpNil, values.Undefined, vd.Line, 0, 0, 0, 0, "")
		e[vd.Lexeme] = &binding{idx: idx}
	}

	b.buildStatements(statements, e)

	nilIdx := b.emit(OpNil, values.Undefined, line, 0, 0, 0, 0, "")
	b.emit(OpReturn, values.Nil, line, nilIdx, 0, 0, 0, "")
	b.emit(OpPPopA, values.Nil, line, 0, 0, 0, 0, "")
	b.emit(OpPopA, values.Nil, line, 0, 0, 0, 0, "")
}

func (b *builder) buildStatements(node *ast.Node, e env) {
	for _, stmt := range node.Children {
		b.buildStatement(stmt, e)
	}
}

func (b *builder) buildStatement(node *ast.Node, e env) {
	switch node.Kind {
	case ast.If:
		b.buildIf(node, e)
	case ast.While:
		b.buildWhile(node, e)
	case ast.Return:
		v := b.buildExpr(node.Children[0], e)
		b.emit(OpReturn, values.Nil, node.Line, v, 0, 0, 0, "")
	default:
		// Expression statement: evaluate and discard.
		b.buildExpr(node, e)
	}
}

func (b *builder) buildIf(node *ast.Node, e env) {
	cond := b.buildExpr(node.Children[0], e)
	ifIdx := b.emit(OpIf, values.Nil, node.Line, cond, 0, 0, 0, "")

	thenEnv := e.clone()
	b.buildStatements(node.Children[1], thenEnv)
	ifElseIdx := b.emit(OpIfElse, values.Nil, node.Line, ifIdx, 0, 0, 0, "")

	elseEnv := e.clone()
	if elseClause := node.Children[2]; elseClause != nil {
		b.buildStatements(elseClause, elseEnv)
	}
	b.emit(OpIfEnd, values.Nil, node.Line, ifElseIdx, 0, 0, 0, "")

	b.mergeEnvs(e, thenEnv, elseEnv, node.Line)
}

func (b *builder) buildWhile(node *ast.Node, e env) {
	whileIdx := b.emit(OpWhile, values.Nil, node.Line, 0, 0, 0, 0, "")

	loopEnv := e.clone()
	cond := b.buildExpr(node.Children[0], loopEnv)
	wcondIdx := b.emit(OpWCond, values.Nil, node.Line, cond, 0, 0, 0, "")

	b.buildStatements(node.Children[1], loopEnv)
	b.emit(OpWEnd, values.Nil, node.Line, whileIdx, wcondIdx, 0, 0, "")

	b.mergeEnvs(e, loopEnv, e, node.Line)

	// Keep every binding preserved across the loop live at the back-edge,
	// per spec §4.1's "emit a NOP on the loop-entry binding after the WEND".
	for name, bind := range e {
		if orig, ok := loopEnv[name]; ok && orig == bind {
			b.emit(OpNop, values.Nil, node.Line, bind.idx, 0, 0, 0, "")
		}
	}
}

// mergeEnvs folds thenEnv and elseEnv back into base: any name whose
// binding pointer diverged between the two branches gets a UNIFY
// instruction; names that didn't diverge are inherited unchanged. This is
// the builder's phi-elision, per spec §4.1.
func (b *builder) mergeEnvs(base, thenEnv, elseEnv env, line int) {
	for name := range base {
		t, tok := thenEnv[name]
		f, fok := elseEnv[name]
		if !tok || !fok {
			continue
		}
		if t == f {
			base[name] = t
			continue
		}
		idx := b.emit(OpUnify, values.Nil, line, t.idx, f.idx, 0, 0, "")
		base[name] = &binding{idx: idx}
	}
}

// buildExpr lowers an expression node and returns the IR index holding its
// value. Variable references that are already bound return that index
// directly (no new instruction, per spec §4.1).
func (b *builder) buildExpr(node *ast.Node, e env) int {
	line := node.Line
	switch node.Kind {
	case ast.VarRef:
		if bind, ok := e[node.Lexeme]; ok {
			return bind.idx
		}
		top := b.emit(OpTop, values.Object, line, 0, 0, 0, 0, "")
		return b.emit(OpMember, values.Boxed, line, top, 0, 0, 0, node.Lexeme)

	case ast.Num:
		return b.emit(OpNum, values.Int, line, 0, 0, 0, parseIntLiteral(node.Lexeme), "")

	case ast.Str:
		return b.emit(OpStr, values.String, line, 0, 0, 0, 0, node.Lexeme)

	case ast.True:
		return b.emit(OpTrue, values.Bool, line, 0, 0, 0, 0, "")

	case ast.False:
		return b.emit(OpFalse, values.Bool, line, 0, 0, 0, 0, "")

	case ast.Obj:
		return b.emit(OpObj, values.Object, line, 0, 0, 0, 0, "")

	case ast.Not:
		v := b.buildExpr(node.Children[0], e)
		return b.emit(OpNot, values.Bool, line, v, 0, 0, 0, "")

	case ast.Typeof:
		v := b.buildExpr(node.Children[0], e)
		return b.emit(OpTypeof, values.String, line, v, 0, 0, 0, "")

	case ast.Add, ast.Sub, ast.Mul, ast.Mod, ast.Div,
		ast.Lt, ast.Gt, ast.Le, ast.Ge, ast.Eq, ast.Ne:
		l := b.buildExpr(node.Children[0], e)
		r := b.buildExpr(node.Children[1], e)
		return b.emit(binaryOp(node.Kind), values.Boxed, line, l, r, 0, 0, "")

	case ast.Or:
		return b.buildShortCircuit(node, e, true)

	case ast.And:
		return b.buildShortCircuit(node, e, false)

	case ast.Assign:
		return b.buildAssign(node, e)

	case ast.Member:
		obj := b.buildExpr(node.Children[0], e)
		return b.emit(OpMember, values.Boxed, line, obj, 0, 0, 0, node.Lexeme)

	case ast.Index:
		obj := b.buildExpr(node.Children[0], e)
		idx := b.buildExpr(node.Children[1], e)
		return b.emit(OpIndex, values.Boxed, line, obj, idx, 0, 0, "")

	case ast.Call:
		return b.buildCall(node, e)

	case ast.IntrinsicCall:
		return b.buildIntrinsicCall(node, e)

	default:
		diag.Fatal(diag.CompileErrorKind, node.Kind.String(), "builder encountered unexpected node kind")
		return 0
	}
}

// buildShortCircuit desugars && / || into IF/IFELSE/IFEND, per spec §4.1.
func (b *builder) buildShortCircuit(node *ast.Node, e env, isOr bool) int {
	line := node.Line
	left := b.buildExpr(node.Children[0], e)

	var cond int
	if isOr {
		// `a || b`: if a is truthy, skip b and take a's value; otherwise
		// evaluate and take b. Encoded as `if (!a)`.
		cond = b.emit(OpNot, values.Bool, line, left, 0, 0, 0, "")
	} else {
		cond = left
	}
	ifIdx := b.emit(OpIf, values.Nil, line, cond, 0, 0, 0, "")

	takenEnv := e.clone()
	right := b.buildExpr(node.Children[1], takenEnv)
	ifElseIdx := b.emit(OpIfElse, values.Nil, line, ifIdx, 0, 0, 0, "")

	skipEnv := e.clone()
	b.emit(OpIfEnd, values.Nil, line, ifElseIdx, 0, 0, 0, "")
	_ = skipEnv

	return b.emit(OpUnify, values.Boxed, line, right, left, 0, 0, "")
}

func (b *builder) buildAssign(node *ast.Node, e env) int {
	line := node.Line
	target := node.Children[0]
	rhs := b.buildExpr(node.Children[1], e)

	switch target.Kind {
	case ast.VarRef:
		if _, ok := e[target.Lexeme]; ok {
			idx := b.emit(OpAssign, values.Boxed, line, rhs, 0, 0, 0, "")
			e[target.Lexeme] = &binding{idx: idx}
			return idx
		}
		top := b.emit(OpTop, values.Object, line, 0, 0, 0, 0, "")
		return b.emit(OpAssignMember, values.Boxed, line, top, rhs, 0, 0, target.Lexeme)

	case ast.Member:
		obj := b.buildExpr(target.Children[0], e)
		return b.emit(OpAssignMember, values.Boxed, line, obj, rhs, 0, 0, target.Lexeme)

	case ast.Index:
		obj := b.buildExpr(target.Children[0], e)
		idxExpr := b.buildExpr(target.Children[1], e)
		return b.emit(OpAssignIndex, values.Boxed, line, obj, idxExpr, rhs, 0, "")

	default:
		diag.Fatal(diag.CompileErrorKind, target.Kind.String(), "invalid assignment target")
		return 0
	}
}

func (b *builder) buildCall(node *ast.Node, e env) int {
	line := node.Line
	callee := node.Children[0]

	var calleeIdx, receiverIdx int
	switch callee.Kind {
	case ast.Member:
		receiverIdx = b.buildExpr(callee.Children[0], e)
		calleeIdx = b.emit(OpMember, values.Boxed, callee.Line, receiverIdx, 0, 0, 0, callee.Lexeme)
	case ast.Index:
		receiverIdx = b.buildExpr(callee.Children[0], e)
		idxExpr := b.buildExpr(callee.Children[1], e)
		calleeIdx = b.emit(OpIndex, values.Boxed, callee.Line, receiverIdx, idxExpr, 0, 0, "")
	default:
		calleeIdx = b.buildExpr(callee, e)
		receiverIdx = b.emit(OpNil, values.Undefined, line, 0, 0, 0, 0, "")
	}

	// Every argument is fully evaluated before the first ARG is emitted,
	// so the ARG run immediately preceding CALL is always contiguous
	// (spec §3/§4.1: "the immediately preceding instructions with opcode
	// ARG are its arguments"). Emitting an ARG right after each
	// argument's own buildExpr, as a single interleaved loop would, lets
	// a non-trivial argument's sub-expression instructions land between
	// two ARGs.
	args := node.Children[1]
	argIdxs := make([]int, len(args.Children))
	for i, a := range args.Children {
		argIdxs[i] = b.buildExpr(a, e)
	}

	b.emit(OpArg, values.Nil, line, receiverIdx, 0, 0, 0, "")
	for i, v := range argIdxs {
		b.emit(OpArg, values.Nil, args.Children[i].Line, v, 0, 0, int64(i+1), "")
	}
	return b.emit(OpCall, values.Boxed, line, calleeIdx, 0, 0, 0, "")
}

func (b *builder) buildIntrinsicCall(node *ast.Node, e env) int {
	line := node.Line
	args := node.Children[0]

	// Same contiguity requirement as buildCall above: evaluate every
	// argument first, then emit the whole ARG run.
	argIdxs := make([]int, len(args.Children))
	for i, a := range args.Children {
		argIdxs[i] = b.buildExpr(a, e)
	}
	for i, v := range argIdxs {
		b.emit(OpArg, values.Nil, args.Children[i].Line, v, 0, 0, int64(i), "")
	}
	return b.emit(OpIntrinsicCall, values.Boxed, line, 0, 0, 0, int64(len(args.Children)), node.Lexeme)
}

func binaryOp(k ast.Kind) Op {
	switch k {
	case ast.Add:
		return OpAdd
	case ast.Sub:
		return OpSub
	case ast.Mul:
		return OpMul
	case ast.Mod:
		return OpMod
	case ast.Div:
		return OpDiv
	case ast.Lt:
		return OpLt
	case ast.Gt:
		return OpGt
	case ast.Le:
		return OpLe
	case ast.Ge:
		return OpGe
	case ast.Eq:
		return OpEq
	case ast.Ne:
		return OpNe
	default:
		diag.Fatal(diag.CompileErrorKind, k.String(), "not a binary operator")
		return OpNop
	}
}

// parseIntLiteral converts a NUM lexeme via the same leading-digit scan
// to_number uses (spec §4.5.1), since number literals are plain decimal
// text with no floating point (spec §1 "no floating point").
func parseIntLiteral(lexeme string) int64 {
	var v int64
	neg := false
	i := 0
	if i < len(lexeme) && (lexeme[i] == '-' || lexeme[i] == '+') {
		neg = lexeme[i] == '-'
		i++
	}
	for ; i < len(lexeme) && lexeme[i] >= '0' && lexeme[i] <= '9'; i++ {
		v = v*10 + int64(lexeme[i]-'0')
	}
	if neg {
		v = -v
	}
	return v
}
