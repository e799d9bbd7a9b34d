package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/ir"
	"github.com/xplshn/nhla/pkg/symbols"
	"github.com/xplshn/nhla/pkg/util"
)

// recorder is a CodeGenerator that logs every call. Each code operation
// takes one address.
type recorder struct {
	pc    int
	data  int
	calls []string
}

func newRecorder() *recorder {
	return &recorder{pc: 0x1000, data: 0x2000}
}

func (r *recorder) log(format string, args ...interface{}) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	r.pc++
}

func (r *recorder) Address() int  { return r.pc }
func (r *recorder) WordSize() int { return 2 }

func (r *recorder) AllocSpace(count int) int {
	addr := r.data
	r.data += 2 * count
	return addr
}

func (r *recorder) CreateStringConstant(text string) int {
	addr := r.data
	r.data += len(text) + 1
	return addr
}

func (r *recorder) BeginProcedure(name string, paramCount int) {
	r.calls = append(r.calls, fmt.Sprintf("proc %s/%d", name, paramCount))
}

func (r *recorder) LoadDirect(isConstant bool, value int) { r.log("load %s", operandText(isConstant, value)) }
func (r *recorder) LoadIndirect(width ir.Width)           { r.log("loadind %s", width) }
func (r *recorder) BinaryOperation(op ir.BinOp, isConstant bool, value int) {
	r.log("%s %s", op, operandText(isConstant, value))
}
func (r *recorder) StoreDirect(address int)      { r.log("store $%04x", address) }
func (r *recorder) StoreIndirect(width ir.Width) { r.log("storeind %s", width) }
func (r *recorder) CopyResultToTemp()            { r.log("copytemp") }
func (r *recorder) LoadParamRegister(index int, isConstant bool, value int) {
	r.log("loadparam %d %s", index, operandText(isConstant, value))
}
func (r *recorder) StoreParamRegister(index, address int) { r.log("storeparam %d $%04x", index, address) }

func (r *recorder) Jump(test ir.Test, target int) {
	r.log("jump%s $%04x", test, target)
}

func (r *recorder) PatchJump(at int, test ir.Test, target int) {
	r.calls = append(r.calls, fmt.Sprintf("patch $%04x jump%s $%04x", at, test, target))
}

func (r *recorder) ForCode()                    { r.log("for"); r.pc++ }
func (r *recorder) EndForCode(startAddress int) { r.log("endfor $%04x", startAddress) }
func (r *recorder) CallSubroutine(address int)  { r.log("call $%04x", address) }
func (r *recorder) ReturnSubroutine()           { r.log("ret") }

func operandText(isConstant bool, value int) string {
	if isConstant {
		return fmt.Sprintf("#%d", value)
	}
	return fmt.Sprintf("$%04x", value)
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func assemble(t *testing.T, src string, cfg *config.Config) (*recorder, *symbols.Dictionary, error) {
	t.Helper()
	if cfg == nil {
		cfg = config.NewConfig()
	}
	rec := newRecorder()
	dict, err := New(rec, cfg, nil).Assemble(strings.Split(src, "\n"))
	return rec, dict, err
}

func TestParameterLimit(t *testing.T) {
	headers := []string{"p()", "p(a)", "p(a,b)", "p(a,b,c)", "p(a,b,c,d)"}
	for n, h := range headers {
		t.Run(h, func(t *testing.T) {
			rec, dict, err := assemble(t, "proc "+h+"\nendproc", nil)
			be.Err(t, err, nil)
			p, ok := dict.FindProcedure("p")
			be.True(t, ok)
			be.Equal(t, p.ParamCount, n)
			be.Equal(t, rec.count("storeparam"), n)
		})
	}

	_, _, err := assemble(t, "proc p(a,b,c,d,e)\nendproc", nil)
	be.True(t, util.IsKind(err, util.TooManyParameters))
}

func TestOperatorsAreLeftToRight(t *testing.T) {
	rec, _, err := assemble(t, "proc a(x)\n  x+1-2*3/x%5&6|7^8\nendproc", nil)
	be.Err(t, err, nil)
	be.Equal(t, rec.count("load "), 1)
	be.Equal(t, len(rec.calls)-rec.count("proc")-rec.count("storeparam")-rec.count("load ")-rec.count("ret"), 8)

	want := []string{"load $2002", "+ #1", "- #2", "* #3", "/ $2002", "% #5", "& #6", "| #7", "^ #8"}
	be.Equal(t, rec.calls[2:11], want)
}

func TestEndToEndCallSequence(t *testing.T) {
	rec, dict, err := assemble(t, "proc demo(a,b): a+b>$total endproc", nil)
	be.Err(t, err, nil)

	want := []string{
		"proc demo/2",
		"storeparam 0 $2004",
		"storeparam 1 $2006",
		"load $2004",
		"+ $2006",
		"store $2002",
		"ret",
	}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	be.Equal(t, dict.Keys(), []string{"$return", "demo("})

	ret, ok := dict.FindVariable("$return")
	be.True(t, ok)
	be.Equal(t, ret.Value, 0x2000)
	demo, ok := dict.FindProcedure("demo")
	be.True(t, ok)
	be.Equal(t, demo.Value, 0x1000)
	be.Equal(t, demo.ParamBase, 0x2004)
}

func TestIfAndWhilePatching(t *testing.T) {
	src := "proc a(n)\n  while(n#0)\n    if(n<0)\n      0>n\n    endif\n    n-1>n\n  endwhile\nendproc"
	rec, _, err := assemble(t, src, nil)
	be.Err(t, err, nil)

	want := []string{
		"proc a/1",
		"storeparam 0 $2002", // $1000
		"load $2002",         // $1001 while loop address
		"jumpz $0000",        // $1002
		"load $2002",         // $1003
		"jumpp $0000",        // $1004
		"load #0",            // $1005
		"store $2002",        // $1006
		"patch $1004 jumpp $1007",
		"load $2002",  // $1007
		"- #1",        // $1008
		"store $2002", // $1009
		"jump $1001",  // $100a
		"patch $1002 jumpz $100b",
		"ret", // $100b
	}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestForLoop(t *testing.T) {
	rec, _, err := assemble(t, "proc a(n)\n  0>index\n  for(n)\n    index>$return\n  endfor\nendproc", nil)
	be.Err(t, err, nil)
	want := []string{
		"proc a/1",
		"storeparam 0 $2002", // $1000
		"load #0",            // $1001
		"store $2004",        // $1002
		"load $2002",         // $1003
		"for",                // $1004, $1005
		"store $2004",        // $1006
		"load $2004",         // $1007
		"store $2000",        // $1008
		"endfor $1004",       // $1009
		"ret",
	}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestIndirection(t *testing.T) {
	rec, _, err := assemble(t, "proc a(p,i)\n  p[i]+1>p?2\nendproc", nil)
	be.Err(t, err, nil)
	want := []string{
		"load $2002", "+ $2004", "loadind word",
		"+ #1",
		"copytemp", "load $2002", "+ #2", "storeind byte",
	}
	be.Equal(t, rec.calls[3:11], want)
}

func TestCalls(t *testing.T) {
	rec, _, err := assemble(t, "proc f(a,b)\nendproc\nproc g()\n  f(7,$x)\nendproc", nil)
	be.Err(t, err, nil)
	be.Equal(t, rec.calls[len(rec.calls)-4:], []string{"loadparam 0 #7", "loadparam 1 $2002", "call $1000", "ret"})
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind util.ErrorKind
		line int
	}{
		{"endwhile closes if", "proc a()\n  if(1#0)\n  endwhile\nendproc", util.StructureMismatch, 3},
		{"endif at top", "proc a()\n  endif\nendproc", util.StructureMismatch, 2},
		{"unclosed while", "proc a()\n  while(1#0)\nendproc", util.UnclosedStructure, 3},
		{"variable is not a procedure", "proc a()\n  1>f\n  f()\nendproc", util.UnknownProcedure, 3},
		{"procedure is not a variable", "proc f()\nendproc\nproc a()\n  f+1\nendproc", util.UndefinedVariable, 4},
		{"forward call", "proc a()\n  b()\nendproc\nproc b()\nendproc", util.UnknownProcedure, 2},
		{"code before proc", "\n\n1>$x\nproc a()\nendproc", util.CodeOutsideProcedure, 3},
		{"bare global before proc", "$x\nproc a()\nendproc", util.CodeOutsideProcedure, 1},
		{"bad header", "proc (a)\nendproc", util.BadProcedureDefinition, 1},
		{"global parameter", "proc a($x)\nendproc", util.BadParameter, 1},
		{"constant parameter", "proc a(1)\nendproc", util.BadParameter, 1},
		{"trailing comma", "proc a(x,)\nendproc", util.BadParameter, 1},
		{"duplicate procedure", "proc a()\nendproc\nproc a()\nendproc", util.DuplicateIdentifier, 3},
		{"store to constant", "proc a()\n  1>2\nendproc", util.InvalidAssignmentTarget, 2},
		{"dangling operator", "proc a(x)\n  x+\nendproc", util.MalformedExpression, 2},
		{"bad relation", "proc a(x)\n  if(x>0)\n  endif\nendproc", util.MalformedExpression, 2},
		{"nonzero comparison", "proc a(x)\n  if(x#1)\n  endif\nendproc", util.MalformedExpression, 2},
		{"indexed constant", "proc a()\n  5[1]>$return\nendproc", util.MalformedExpression, 2},
		{"unterminated string", "proc a()\n  \"oops>$x\nendproc", util.MalformedLiteral, 2},
		{"unknown character", "proc a()\n  1@2\nendproc", util.MalformedExpression, 2},
		{"too many arguments", "proc f()\nendproc\nproc a()\n  f(1,2,3,4,5)\nendproc", util.TooManyParameters, 4},
		{"indexed argument", "proc f(x)\nendproc\nproc a(p)\n  f(p[0])\nendproc", util.MalformedExpression, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := assemble(t, tt.src, nil)
			be.True(t, err != nil)
			be.True(t, util.IsKind(err, tt.kind))
			be.True(t, strings.HasPrefix(err.Error(), fmt.Sprintf("line %d: ", tt.line)))
		})
	}
}

func TestVariableOffsetsFeature(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatVariableOffsets, false)
	_, _, err := assemble(t, "proc a(p,i)\n  p?i>$return\nendproc", cfg)
	be.True(t, util.IsKind(err, util.MalformedExpression))

	_, _, err = assemble(t, "proc a(p)\n  p?3>$return\nendproc", cfg)
	be.Err(t, err, nil)
}

func TestGlobalsAreDeclaredForTheWholeModule(t *testing.T) {
	rec, dict, err := assemble(t, "proc a()\n  $later>$return\nendproc\nproc b()\n  1>$later\nendproc", nil)
	be.Err(t, err, nil)
	be.Equal(t, rec.calls[1:3], []string{"load $2002", "store $2000"})
	_, ok := dict.FindVariable("$later")
	be.Equal(t, ok, false)
}

func TestLocalsAreDropped(t *testing.T) {
	_, _, err := assemble(t, "proc a(x)\nendproc\nproc b()\n  x>$return\nendproc", nil)
	be.True(t, util.IsKind(err, util.UndefinedVariable))
}

func TestSecondModuleSeesExports(t *testing.T) {
	cfg := config.NewConfig()
	rec := newRecorder()
	asm := New(rec, cfg, nil)

	_, err := asm.Assemble([]string{"proc $lib(a)", "  a*2>$return", "endproc"})
	be.Err(t, err, nil)
	dict, err := asm.Assemble([]string{"proc $main()", "  $lib(21)", "endproc"})
	be.Err(t, err, nil)

	be.Equal(t, dict.Keys(), []string{"$lib(", "$main(", "$return"})
	be.Equal(t, rec.calls[len(rec.calls)-3:], []string{"loadparam 0 #21", "call $1000", "ret"})
}

func TestPrivateProceduresStayInTheirModule(t *testing.T) {
	asm := New(newRecorder(), config.NewConfig(), nil)
	_, err := asm.Assemble([]string{"proc lib()", "endproc", "proc $a()", "  lib()", "endproc"})
	be.Err(t, err, nil)

	_, err = asm.Assemble([]string{"proc $b()", "  lib()", "endproc"})
	be.True(t, util.IsKind(err, util.UnknownProcedure))

	asm = New(newRecorder(), config.NewConfig(), nil)
	_, err = asm.Assemble([]string{"proc helper()", "endproc", "proc $a()", "  helper()", "endproc"})
	be.Err(t, err, nil)
	dict, err := asm.Assemble([]string{"proc helper()", "endproc", "proc $b()", "  helper()", "  $a()", "endproc"})
	be.Err(t, err, nil)
	be.Equal(t, dict.Keys(), []string{"$a(", "$b(", "$return", "helper("})

	helper, _ := dict.FindProcedure("helper")
	be.Equal(t, helper.Value, 0x1003)
}

func TestWarnings(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnImplicitLocal, true)
	warn := util.NewWarner(cfg, nil, nil)
	src := []string{
		"proc f(a)",
		"  1>b",
		"endproc",
		"proc g()",
		"  f()",
		"endproc",
		"  2>$return",
		"proc h()",
		"  70000>$return",
	}
	_, err := New(newRecorder(), cfg, warn).Assemble(src)
	be.Err(t, err, nil)

	var got []string
	for _, w := range warn.Issued {
		got = append(got, fmt.Sprintf("%d %s", w.Line, cfg.Warnings[w.Warning].Name))
	}
	// Constants are checked while tokenizing, before any procedure compiles.
	be.Equal(t, got, []string{"9 overflow", "2 implicit-local", "5 arg-count", "7 unreachable-code", "9 missing-endproc"})
}

func TestIfAndWhileShareTheirTest(t *testing.T) {
	ifRec, _, err := assemble(t, "proc p(a,x,y)\n  if(a#0) x>y endif\nendproc", nil)
	be.Err(t, err, nil)
	whileRec, _, err := assemble(t, "proc p(a,x,y)\n  while(a#0) x>y endwhile\nendproc", nil)
	be.Err(t, err, nil)

	shared := []string{"load $2002", "jumpz $0000", "load $2004", "store $2006"}
	be.Equal(t, ifRec.calls[4:8], shared)
	be.Equal(t, whileRec.calls[4:8], shared)
	be.Equal(t, ifRec.calls[8:], []string{"patch $1004 jumpz $1007", "ret"})
	be.Equal(t, whileRec.calls[8:], []string{"jump $1003", "patch $1004 jumpz $1008", "ret"})
}
