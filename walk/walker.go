package walk

import (
	"rillc/ast"
	"rillc/report"
	"rillc/types"
)

// Walker is responsible for walking a compilation unit and performing
// semantic analysis on it: resolving every identifier to a symbol in the
// nearest enclosing scope, assigning or checking a type for every expression
// node, and validating pipeline stage compatibility.  The walker decorates
// the AST in place; the IR builder consumes it without re-resolving names.
type Walker struct {
	// The program being walked.
	prog *ast.Program

	// The global scope: function symbols by name.
	globalScope map[string]*ast.Symbol

	// The stack of local scopes used to look up symbols.
	localScopes []map[string]*ast.Symbol

	// The next scope identifier to hand out.
	nextScopeID int

	// The return type of the enclosing function.  If this is nil, then there
	// is no enclosing function: ie. return statements are not valid.
	enclosingReturnType types.Type

	// The number of loops between the current statement and the outermost
	// block of the enclosing function.
	loopDepth int
}

// WalkProgram semantically analyzes the given program.  Semantic diagnostics
// are raised and must be caught by the caller's CatchErrors.
func WalkProgram(prog *ast.Program) {
	w := &Walker{
		prog:        prog,
		globalScope: make(map[string]*ast.Symbol),
	}

	// Declare all functions up front so bodies can refer to one another and
	// recurse.
	for _, fn := range prog.Funcs {
		w.declareFunc(fn)
	}

	for _, fn := range prog.Funcs {
		w.walkFuncDef(fn)
	}

	// The entry block behaves as a unit-returning function over the runtime
	// argument environment.
	w.enclosingReturnType = types.PrimUnit
	w.pushScope()
	w.walkBlock(prog.Body)
	w.popScope()
}

// declareFunc declares a function symbol in the global scope.
func (w *Walker) declareFunc(fn *ast.FuncDef) {
	if _, ok := w.globalScope[fn.Name]; ok {
		report.Raise(report.PhaseSem, report.KindTypeMismatch, fn.Span(),
			"multiple definitions of function `%s`", fn.Name)
	}

	paramTypes := make([]types.Type, len(fn.Params))
	for i, param := range fn.Params {
		paramTypes[i] = param.Typ
	}

	fn.Sym = &ast.Symbol{
		Name:      fn.Name,
		Type:      &types.FuncType{Params: paramTypes, Return: fn.ReturnType},
		ScopeID:   0,
		Mutable:   false,
		FrameSlot: -1,
	}
	w.globalScope[fn.Name] = fn.Sym
}

// walkFuncDef walks a function definition.
func (w *Walker) walkFuncDef(fn *ast.FuncDef) {
	w.enclosingReturnType = fn.ReturnType
	w.loopDepth = 0

	w.pushScope()
	defer w.popScope()

	for _, param := range fn.Params {
		param.Sym = w.declare(param.Name, param.Typ, false, param.Span())
	}

	w.walkBlock(fn.Body)
}

// -----------------------------------------------------------------------------

// lookup looks up a symbol by name in all visible scopes.  If no symbol by
// the given name can be found, an unresolved-name diagnostic is raised.
func (w *Walker) lookup(name string, span *report.TextSpan) *ast.Symbol {
	// Traverse local scopes in reverse order to implement shadowing.
	for i := len(w.localScopes) - 1; i > -1; i-- {
		if sym, ok := w.localScopes[i][name]; ok {
			return sym
		}
	}

	if sym, ok := w.globalScope[name]; ok {
		return sym
	}

	report.Raise(report.PhaseSem, report.KindUnresolvedName, span,
		"undefined symbol: `%s`", name)
	return nil
}

// declare declares a new symbol in the current scope.  Shadowing an outer
// scope is permitted; redeclaring within the same scope is not.
func (w *Walker) declare(name string, typ types.Type, mutable bool, span *report.TextSpan) *ast.Symbol {
	scope := w.localScopes[len(w.localScopes)-1]

	if _, ok := scope[name]; ok {
		report.Raise(report.PhaseSem, report.KindUnresolvedName, span,
			"multiple definitions of symbol `%s` in the same scope", name)
	}

	sym := &ast.Symbol{
		Name:      name,
		Type:      typ,
		ScopeID:   w.nextScopeID,
		Mutable:   mutable,
		FrameSlot: -1,
	}
	scope[name] = sym

	return sym
}

// pushScope pushes a new local scope onto the scope stack.
func (w *Walker) pushScope() {
	w.nextScopeID++
	w.localScopes = append(w.localScopes, make(map[string]*ast.Symbol))
}

// popScope pops a local scope off the scope stack.
func (w *Walker) popScope() {
	w.localScopes = w.localScopes[:len(w.localScopes)-1]
}

// -----------------------------------------------------------------------------

// mustEqual raises a type-mismatch diagnostic unless the two types are
// compatible.  Deferred runtime-argument scalars pass every scalar check;
// the runtime enforces their concrete kinds.
func (w *Walker) mustEqual(expected, got types.Type, span *report.TextSpan) {
	if !types.Compatible(expected, got) {
		report.Raise(report.PhaseSem, report.KindTypeMismatch, span,
			"expected type `%s` but got `%s`", expected.Repr(), got.Repr())
	}
}
