package compiler

import (
	"strconv"

	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/ir"
	"github.com/xplshn/nhla/pkg/token"
	"github.com/xplshn/nhla/pkg/util"
)

type structKind int

const (
	structMarker structKind = iota
	structIf
	structWhile
	structFor
)

func (k structKind) String() string {
	switch k {
	case structIf:
		return "if"
	case structWhile:
		return "while"
	case structFor:
		return "for"
	}
	return "procedure start"
}

// structure is an open control block. PatchAddress is the address of the
// forward jump still waiting for its target.
type structure struct {
	kind         structKind
	loopAddress  int
	failTest     ir.Test
	patchAddress int
}

// failTests maps a header relation to the test that skips the block.
var failTests = map[token.Type]ir.Test{
	token.Hash: ir.IfZero,
	token.Eq:   ir.IfNonZero,
	token.Lt:   ir.IfNonNegative,
}

func (a *Assembler) resetStructures() {
	a.structures = append(a.structures[:0], structure{kind: structMarker})
}

func (a *Assembler) push(s structure) { a.structures = append(a.structures, s) }

func (a *Assembler) pop() structure {
	top := a.structures[len(a.structures)-1]
	a.structures = a.structures[:len(a.structures)-1]
	return top
}

// depth is the number of open blocks, not counting the sentinel.
func (a *Assembler) depth() int { return len(a.structures) - 1 }

// openTest compiles `if(<expr><rel>0)` or `while(<expr><rel>0)`. toks holds
// everything between the parentheses.
func (a *Assembler) openTest(kind structKind, toks []token.Token) error {
	n := len(toks)
	if n < 3 || !toks[n-2].Type.IsRelation() || toks[n-1].Type != token.Number {
		return a.errorf(util.MalformedExpression, "%s needs a test of the form (<expr>#0), (<expr>=0) or (<expr><0)", kind)
	}
	if v, _ := strconv.Atoi(toks[n-1].Value); v != 0 {
		return a.errorf(util.MalformedExpression, "%s test must compare against 0, not %s", kind, toks[n-1].Value)
	}
	test := failTests[toks[n-2].Type]

	loop := a.cg.Address()
	if err := a.compileExpression(toks[:n-2]); err != nil {
		return err
	}
	patch := a.cg.Address()
	a.cg.Jump(test, 0)
	a.push(structure{kind: kind, loopAddress: loop, failTest: test, patchAddress: patch})
	return nil
}

// closeTest compiles endif or endwhile.
func (a *Assembler) closeTest(kind structKind) error {
	top := a.pop()
	if top.kind != kind {
		return a.errorf(util.StructureMismatch, "end%s closes %s", kind, top.kind)
	}
	if kind == structWhile {
		a.cg.Jump(ir.Always, top.loopAddress)
	}
	a.cg.PatchJump(top.patchAddress, top.failTest, a.cg.Address())
	return nil
}

// openFor compiles `for(<expr>)`; the expression is the iteration count.
func (a *Assembler) openFor(toks []token.Token) error {
	if len(toks) == 0 {
		return a.errorf(util.MalformedExpression, "for needs an iteration count")
	}
	if err := a.compileExpression(toks); err != nil {
		return err
	}
	a.push(structure{kind: structFor, loopAddress: a.cg.Address()})
	a.cg.ForCode()
	if a.cfg.IsFeatureEnabled(config.FeatIndexVariable) {
		if index, ok := a.dict.FindVariable(a.cfg.IndexName); ok {
			a.cg.StoreDirect(index.Value)
		}
	}
	return nil
}

func (a *Assembler) closeFor() error {
	top := a.pop()
	if top.kind != structFor {
		return a.errorf(util.StructureMismatch, "endfor closes %s", top.kind)
	}
	a.cg.EndForCode(top.loopAddress)
	return nil
}
