package compiler

import (
	"github.com/xplshn/nhla/pkg/ir"
	"github.com/xplshn/nhla/pkg/token"
	"github.com/xplshn/nhla/pkg/util"
)

var binOps = map[token.Type]ir.BinOp{
	token.Plus:  ir.Add,
	token.Minus: ir.Sub,
	token.Star:  ir.Mul,
	token.Slash: ir.Div,
	token.Rem:   ir.Rem,
	token.And:   ir.And,
	token.Or:    ir.Or,
	token.Xor:   ir.Xor,
}

type step struct {
	op   token.Type
	term Term
}

// compileExpression compiles term (op term)* strictly left to right into the
// accumulator. There is no precedence: 1+2*3 is (1+2)*3.
func (a *Assembler) compileExpression(toks []token.Token) error {
	first, n, err := a.parseTerm(toks)
	if err != nil {
		return err
	}

	var steps []step
	for i := n; i < len(toks); {
		op := toks[i]
		if !op.Type.IsOperator() && op.Type != token.Store {
			return a.errorf(util.MalformedExpression, "expected an operator, found '%s'", op.Text())
		}
		if i+1 >= len(toks) {
			return a.errorf(util.MalformedExpression, "operator '%s' has no right operand", op.Text())
		}
		term, n, err := a.parseTerm(toks[i+1:])
		if err != nil {
			return err
		}
		if op.Type == token.Store && term.IsConstant {
			return a.errorf(util.InvalidAssignmentTarget, "cannot assign to constant %s", toks[i+1].Text())
		}
		if op.Type != token.Store && term.Indexed {
			return a.errorf(util.MalformedExpression, "indexed term '%s' must come first", toks[i+1].Text())
		}
		steps = append(steps, step{op: op.Type, term: term})
		i += 1 + n
	}

	a.load(first)
	for _, s := range steps {
		if s.op == token.Store {
			a.store(s.term)
			continue
		}
		a.cg.BinaryOperation(binOps[s.op], s.term.IsConstant, s.term.Base)
	}
	return nil
}

func (a *Assembler) load(t Term) {
	if !t.Indexed {
		a.cg.LoadDirect(t.IsConstant, t.Base)
		return
	}
	a.cg.LoadDirect(false, t.Base)
	a.cg.BinaryOperation(ir.Add, t.IndexIsConstant, t.Index)
	a.cg.LoadIndirect(t.Width)
}

func (a *Assembler) store(t Term) {
	if !t.Indexed {
		a.cg.StoreDirect(t.Base)
		return
	}
	a.cg.CopyResultToTemp()
	a.cg.LoadDirect(false, t.Base)
	a.cg.BinaryOperation(ir.Add, t.IndexIsConstant, t.Index)
	a.cg.StoreIndirect(t.Width)
}
