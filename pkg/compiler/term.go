package compiler

import (
	"strconv"

	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/ir"
	"github.com/xplshn/nhla/pkg/token"
	"github.com/xplshn/nhla/pkg/util"
)

// Term is one operand of an expression after name resolution: a constant, a
// variable, or a variable indexed by a constant or variable offset.
type Term struct {
	IsConstant      bool
	Base            int
	Indexed         bool
	IndexIsConstant bool
	Index           int
	Width           ir.Width
}

// parseTerm resolves the term starting at toks[0] and returns it with the
// number of tokens it spans.
func (a *Assembler) parseTerm(toks []token.Token) (Term, int, error) {
	if len(toks) == 0 {
		return Term{}, 0, a.errorf(util.MalformedExpression, "missing term")
	}
	isConst, base, err := a.parseOperand(toks[0])
	if err != nil {
		return Term{}, 0, err
	}
	term := Term{IsConstant: isConst, Base: base}
	if len(toks) < 2 {
		return term, 1, nil
	}

	var n int
	switch toks[1].Type {
	case token.LBracket:
		if len(toks) < 4 || toks[3].Type != token.RBracket {
			return Term{}, 0, a.errorf(util.MalformedExpression, "unterminated index on '%s'", toks[0].Text())
		}
		term.Width, n = ir.Word, 4
	case token.Word:
		if len(toks) < 3 {
			return Term{}, 0, a.errorf(util.MalformedExpression, "missing offset after '!'")
		}
		term.Width, n = ir.Word, 3
	case token.Byte:
		if len(toks) < 3 {
			return Term{}, 0, a.errorf(util.MalformedExpression, "missing offset after '?'")
		}
		term.Width, n = ir.Byte, 3
	default:
		return term, 1, nil
	}

	if isConst {
		return Term{}, 0, a.errorf(util.MalformedExpression, "cannot index constant %s", toks[0].Text())
	}
	idxConst, idx, err := a.parseOperand(toks[2])
	if err != nil {
		return Term{}, 0, err
	}
	if !idxConst && !a.cfg.IsFeatureEnabled(config.FeatVariableOffsets) {
		return Term{}, 0, a.errorf(util.MalformedExpression, "variable offset '%s' not allowed", toks[2].Text())
	}
	term.Indexed, term.IndexIsConstant, term.Index = true, idxConst, idx
	return term, n, nil
}

// parseOperand resolves a single number or variable token.
func (a *Assembler) parseOperand(tok token.Token) (bool, int, error) {
	switch tok.Type {
	case token.Number:
		v, err := strconv.Atoi(tok.Value)
		if err != nil {
			return false, 0, a.errorf(util.MalformedExpression, "bad number '%s'", tok.Value)
		}
		return true, v, nil
	case token.Ident:
		id, ok := a.dict.FindVariable(tok.Value)
		if !ok {
			return false, 0, a.errorf(util.UndefinedVariable, "variable '%s' not defined", tok.Value)
		}
		return false, id.Value, nil
	}
	return false, 0, a.errorf(util.MalformedExpression, "expected a term, found '%s'", tok.Text())
}
