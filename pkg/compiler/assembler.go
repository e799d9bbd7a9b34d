package compiler

import (
	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/lexer"
	"github.com/xplshn/nhla/pkg/symbols"
	"github.com/xplshn/nhla/pkg/token"
	"github.com/xplshn/nhla/pkg/util"
)

// Assembler compiles one module. It owns its dictionary and structure stack;
// an Assembler is not safe for concurrent use.
type Assembler struct {
	cg         CodeGenerator
	cfg        *config.Config
	warn       *util.Warner
	dict       *symbols.Dictionary
	line       int
	modules    int
	structures []structure
}

func New(cg CodeGenerator, cfg *config.Config, warn *util.Warner) *Assembler {
	return &Assembler{
		cg:   cg,
		cfg:  cfg,
		warn: warn,
		dict: symbols.NewDictionary(cfg.ResultName),
		line: 1,
	}
}

// Dictionary is the assembler's identifier dictionary. After Assemble it holds
// the module interface.
func (a *Assembler) Dictionary() *symbols.Dictionary { return a.dict }

// Line is the source line the assembler is currently at.
func (a *Assembler) Line() int { return a.line }

func (a *Assembler) errorf(kind util.ErrorKind, format string, args ...interface{}) error {
	return util.Errorf(kind, a.line, format, args...)
}

// add inserts id, tagging a duplicate error with the current line.
func (a *Assembler) add(id *symbols.Identifier) error {
	return util.AtLine(a.dict.Add(id), a.line)
}

// Assemble compiles the source lines of one module and returns the finalized
// dictionary. Calling it again compiles a further module that can call the
// exported procedures of the previous ones; their private procedures are
// dropped first and their names may be reused.
func (a *Assembler) Assemble(source []string) (*symbols.Dictionary, error) {
	a.line = 1
	if a.modules > 0 {
		a.dict.KeepExports()
	}
	a.modules++
	if _, ok := a.dict.FindVariable(a.cfg.ResultName); !ok {
		if err := a.add(symbols.NewVariable(a.cfg.ResultName, a.cg.AllocSpace(1))); err != nil {
			return nil, err
		}
	}

	toks, err := lexer.Preprocess(source, a.cg, a.cfg, a.warn)
	if err != nil {
		return nil, err
	}

	if err := a.declareGlobals(toks); err != nil {
		return nil, err
	}

	procs := splitProcedures(toks)
	for _, p := range procs {
		a.line = p.line
		if err := a.compileHeader(p.header); err != nil {
			return nil, err
		}
		if err := a.compileBody(p.body); err != nil {
			return nil, err
		}
	}

	a.dict.FinalizeModule()
	return a.dict, nil
}

// declareGlobals allocates every global variable used anywhere in the module
// and rejects statements before the first procedure header.
func (a *Assembler) declareGlobals(toks []token.Token) error {
	line := 1
	seenProc := false
	for i, tok := range toks {
		switch tok.Type {
		case token.LineMark:
			line++
			continue
		case token.Proc:
			seenProc = true
		}
		if !seenProc && tok.Type != token.Colon && tok.Type != token.EOF {
			return util.Errorf(util.CodeOutsideProcedure, line, "'%s' before the first procedure", tok.Text())
		}
		if tok.Type != token.Ident || !token.IsGlobal(tok.Value) {
			continue
		}
		if i+1 < len(toks) && toks[i+1].Type == token.LParen {
			continue
		}
		if i > 0 && toks[i-1].Type == token.Proc {
			continue
		}
		if _, ok := a.dict.FindVariable(tok.Value); ok {
			continue
		}
		if err := a.dict.Add(symbols.NewVariable(tok.Value, a.cg.AllocSpace(1))); err != nil {
			return util.AtLine(err, line)
		}
	}
	return nil
}

// Module is the interface of a compiled module.
type Module struct {
	Dictionary *symbols.Dictionary
	Exports    []*symbols.Identifier
}

// Compile assembles source into cg and returns the module interface.
func Compile(cg CodeGenerator, cfg *config.Config, warn *util.Warner, source []string) (*Module, error) {
	dict, err := New(cg, cfg, warn).Assemble(source)
	if err != nil {
		return nil, err
	}
	return &Module{Dictionary: dict, Exports: dict.Exports()}, nil
}

type procSource struct {
	header []token.Token
	body   []token.Token
	line   int
}

// splitProcedures cuts the stream at each "proc" keyword. A header runs to the
// first closing parenthesis on its line; the body runs to the next header.
func splitProcedures(toks []token.Token) []procSource {
	var procs []procSource
	line := 1
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if tok.Type == token.LineMark {
			line++
			continue
		}
		if tok.Type != token.Proc {
			continue
		}
		p := procSource{line: line}
		j := i
		for j < len(toks) && toks[j].Type != token.RParen && toks[j].Type != token.LineMark && toks[j].Type != token.EOF {
			j++
		}
		if j < len(toks) && toks[j].Type == token.RParen {
			j++
		}
		p.header = toks[i:j]
		k := j
		for k < len(toks) && toks[k].Type != token.Proc && toks[k].Type != token.EOF {
			k++
		}
		p.body = toks[j:k]
		for _, t := range p.body {
			if t.Type == token.LineMark {
				line++
			}
		}
		procs = append(procs, p)
		i = k - 1
	}
	return procs
}
