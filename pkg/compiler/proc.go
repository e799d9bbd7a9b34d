package compiler

import (
	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/symbols"
	"github.com/xplshn/nhla/pkg/token"
	"github.com/xplshn/nhla/pkg/util"
)

// compileHeader compiles `proc <name>(<p0>,<p1>,...)`: the parameters become
// fresh locals filled from the parameter registers, then the procedure is
// registered so the body can call itself.
func (a *Assembler) compileHeader(toks []token.Token) error {
	n := len(toks)
	if n < 4 || toks[0].Type != token.Proc || toks[1].Type != token.Ident || toks[2].Type != token.LParen || toks[n-1].Type != token.RParen {
		return a.errorf(util.BadProcedureDefinition, "expected proc <name>(<parameters>)")
	}
	name := toks[1].Value

	params, err := a.parameterList(toks[3 : n-1])
	if err != nil {
		return err
	}
	if len(params) > a.cfg.MaxParams {
		return a.errorf(util.TooManyParameters, "procedure '%s' has %d parameters, at most %d allowed", name, len(params), a.cfg.MaxParams)
	}

	a.dict.DropLocals()
	a.cg.BeginProcedure(name, len(params))
	entry := a.cg.Address()

	paramBase := 0
	for i, p := range params {
		addr := a.cg.AllocSpace(1)
		if i == 0 {
			paramBase = addr
		}
		if err := a.add(symbols.NewVariable(p, addr)); err != nil {
			return err
		}
		a.cg.StoreParamRegister(i, addr)
	}
	return a.add(symbols.NewProcedure(name, entry, len(params), paramBase))
}

func (a *Assembler) parameterList(toks []token.Token) ([]string, error) {
	if len(toks) == 0 {
		return nil, nil
	}
	var params []string
	expectName := true
	for _, tok := range toks {
		if expectName {
			if tok.Type != token.Ident || token.IsGlobal(tok.Value) {
				return nil, a.errorf(util.BadParameter, "bad parameter '%s'", tok.Text())
			}
			params = append(params, tok.Value)
		} else if tok.Type != token.Comma {
			return nil, a.errorf(util.BadParameter, "expected ',' between parameters, found '%s'", tok.Text())
		}
		expectName = !expectName
	}
	if expectName {
		return nil, a.errorf(util.BadParameter, "missing parameter after ','")
	}
	return params, nil
}

// compileBody compiles the statements of one procedure.
func (a *Assembler) compileBody(toks []token.Token) error {
	a.resetStructures()
	if err := a.declareLocals(toks); err != nil {
		return err
	}

	returned, warned, sawEndproc := false, false, false
	for i := 0; i < len(toks); {
		tok := toks[i]
		switch tok.Type {
		case token.LineMark:
			a.line++
			i++
			continue
		case token.Colon:
			i++
			continue
		}

		if returned && !warned {
			a.warn.Warn(config.WarnUnreachableCode, a.line, "statement after endproc is never executed")
			warned = true
		}

		n, err := a.compileStatement(toks[i:])
		if err != nil {
			return err
		}
		if tok.Type == token.EndProc {
			sawEndproc = true
			returned = returned || a.depth() == 0
		}
		i += n
	}

	if a.depth() != 0 {
		top := a.structures[len(a.structures)-1]
		return a.errorf(util.UnclosedStructure, "%s is never closed", top.kind)
	}
	if !sawEndproc {
		a.warn.Warn(config.WarnMissingEndproc, a.line, "procedure has no endproc, it returns where the next one begins")
	}
	return nil
}

// compileStatement compiles the statement at toks[0] and returns how many
// tokens it used.
func (a *Assembler) compileStatement(toks []token.Token) (int, error) {
	switch toks[0].Type {
	case token.EndProc:
		a.cg.ReturnSubroutine()
		return 1, nil
	case token.EndIf:
		return 1, a.closeTest(structIf)
	case token.EndWhile:
		return 1, a.closeTest(structWhile)
	case token.EndFor:
		return 1, a.closeFor()
	case token.If, token.While, token.For:
		inner, n, err := a.parenthesized(toks)
		if err != nil {
			return 0, err
		}
		switch toks[0].Type {
		case token.If:
			return n, a.openTest(structIf, inner)
		case token.While:
			return n, a.openTest(structWhile, inner)
		default:
			return n, a.openFor(inner)
		}
	case token.Ident:
		if len(toks) > 1 && toks[1].Type == token.LParen {
			_, n, err := a.parenthesized(toks)
			if err != nil {
				return 0, err
			}
			return n, a.compileCall(toks[:n])
		}
	}

	n := statementLength(toks)
	return n, a.compileExpression(toks[:n])
}

// parenthesized returns the tokens between the parentheses following toks[0]
// and the length of the whole construct.
func (a *Assembler) parenthesized(toks []token.Token) ([]token.Token, int, error) {
	if len(toks) < 2 || toks[1].Type != token.LParen {
		return nil, 0, a.errorf(util.MalformedExpression, "expected '(' after '%s'", toks[0].Text())
	}
	for i := 2; i < len(toks); i++ {
		switch toks[i].Type {
		case token.RParen:
			return toks[2:i], i + 1, nil
		case token.LineMark, token.Colon, token.EOF, token.LParen:
			return nil, 0, a.errorf(util.MalformedExpression, "unbalanced parentheses after '%s'", toks[0].Text())
		}
	}
	return nil, 0, a.errorf(util.MalformedExpression, "missing ')' after '%s'", toks[0].Text())
}

// statementLength is the number of tokens up to the next separator or keyword.
func statementLength(toks []token.Token) int {
	for i, tok := range toks {
		switch {
		case tok.Type == token.LineMark, tok.Type == token.Colon, tok.Type == token.EOF:
			return i
		case tok.Type.IsKeyword() && i > 0:
			return i
		}
	}
	return len(toks)
}

// compileCall compiles `<name>(<args>)`. Arguments are constants or plain
// variables.
func (a *Assembler) compileCall(toks []token.Token) error {
	name := toks[0].Value
	proc, ok := a.dict.FindProcedure(name)
	if !ok {
		return a.errorf(util.UnknownProcedure, "unknown procedure '%s'", name)
	}

	args := toks[2 : len(toks)-1]
	type arg struct {
		isConst bool
		value   int
	}
	var values []arg
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) && args[i+1].Type != token.Comma {
			return a.errorf(util.MalformedExpression, "argument %d of '%s' must be a constant or a variable", len(values)+1, name)
		}
		isConst, v, err := a.parseOperand(args[i])
		if err != nil {
			return err
		}
		values = append(values, arg{isConst, v})
		if i+1 == len(args)-1 {
			return a.errorf(util.MalformedExpression, "missing argument after ',' in call to '%s'", name)
		}
	}

	if len(values) > a.cfg.MaxParams {
		return a.errorf(util.TooManyParameters, "call to '%s' passes %d arguments, at most %d allowed", name, len(values), a.cfg.MaxParams)
	}
	if len(values) != proc.ParamCount {
		a.warn.Warn(config.WarnArgCount, a.line, "'%s' takes %d arguments, %d given", name, proc.ParamCount, len(values))
	}

	for i, v := range values {
		a.cg.LoadParamRegister(i, v.isConst, v.value)
	}
	a.cg.CallSubroutine(proc.Value)
	return nil
}

// declareLocals allocates every local a body stores to directly (`>name`)
// before any of the body is compiled, so a local may be read before the
// statement that first assigns it.
func (a *Assembler) declareLocals(toks []token.Token) error {
	line := a.line
	for i, tok := range toks {
		if tok.Type == token.LineMark {
			line++
			continue
		}
		if tok.Type != token.Store || i+1 >= len(toks) {
			continue
		}
		target := toks[i+1]
		if target.Type != token.Ident || token.IsGlobal(target.Value) {
			continue
		}
		if i+2 < len(toks) {
			switch toks[i+2].Type {
			case token.LBracket, token.Word, token.Byte:
				continue
			}
		}
		if _, ok := a.dict.FindVariable(target.Value); ok {
			continue
		}
		if !a.cfg.IsFeatureEnabled(config.FeatImplicitLocals) {
			continue
		}
		if err := a.dict.Add(symbols.NewVariable(target.Value, a.cg.AllocSpace(1))); err != nil {
			return util.AtLine(err, line)
		}
		a.warn.Warn(config.WarnImplicitLocal, line, "'%s' declared by assignment", target.Value)
	}
	return nil
}
