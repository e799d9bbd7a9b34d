package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/nhla/pkg/compiler"
	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/ir"
)

var _ compiler.CodeGenerator = (*Emitter)(nil)

func compile(t *testing.T, src string) (*ir.Program, *config.Config) {
	t.Helper()
	cfg := config.NewConfig()
	e := NewEmitter(cfg)
	_, err := compiler.Compile(e, cfg, nil, strings.Split(src, "\n"))
	be.Err(t, err, nil)
	return e.Program(), cfg
}

func TestStringConstantsAreShared(t *testing.T) {
	e := NewEmitter(config.NewConfig())
	be.Equal(t, e.CreateStringConstant("hi"), 0x2000)
	be.Equal(t, e.CreateStringConstant("ho"), 0x2003)
	be.Equal(t, e.CreateStringConstant("hi"), 0x2000)
	be.Equal(t, e.AllocSpace(1), 0x2006)
	be.Equal(t, string(e.Program().Data), "hi\x00ho\x00\x00\x00")
}

func TestPatchJump(t *testing.T) {
	e := NewEmitter(config.NewConfig())
	at := e.Address()
	e.Jump(ir.IfZero, 0)
	e.ReturnSubroutine()
	e.PatchJump(at, ir.IfNonNegative, e.Address())

	ins := e.Program().At(at)
	be.Equal(t, ins.Test, ir.IfNonNegative)
	be.Equal(t, ins.Target, 0x1002)

	defer func() {
		be.True(t, recover() != nil)
	}()
	e.PatchJump(at+1, ir.Always, 0)
}

func TestForLoopLayout(t *testing.T) {
	prog, _ := compile(t, "proc a(n)\n  for(n)\n  endfor\nendproc")

	var got []string
	for _, ins := range prog.Code {
		got = append(got, ins.Op.String())
	}
	be.Equal(t, got, []string{"storeparam", "load", "for", "index", "next", "ret"})
	be.Equal(t, prog.At(0x1002).Target, 0x1005)
	be.Equal(t, prog.At(0x1004).Target, 0x1003)
}

func TestListing(t *testing.T) {
	prog, cfg := compile(t, "proc demo(a,b): a+b>$total endproc\nproc $main()\n  demo(1,\"ok\")\nendproc")
	text, err := NewListingBackend().GenerateIR(prog, cfg)
	be.Err(t, err, nil)

	want := `; demo(2)
$001000  str  r0,($2007)
$001001  str  r1,($2009)
$001002  lda  ($2007)
$001003  add  ($2009)
$001004  sta  ($2005)
$001005  rts
; $main(0)
$001006  ldr  r0,#$0001
$001007  ldr  r1,#$2002
$001008  jsr  $001000
$001009  rts
; data
$002000  dw   $0000
$002002  db   "ok",0
$002005  dw   $0000
$002007  dw   $0000
$002009  dw   $0000
`
	if diff := cmp.Diff(strings.Split(want, "\n"), strings.Split(text, "\n")); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}
}

func TestQBE(t *testing.T) {
	prog, cfg := compile(t, "proc demo(a,b): a+b>$total endproc\nproc $main()\n  demo(1,2)\nendproc")
	text, err := NewQBEBackend().GenerateIR(prog, cfg)
	be.Err(t, err, nil)

	for _, line := range []string{
		"export data $mem = align 8 { z 8192, b 0 0 0 0 0 0 0 0, z 57336 }",
		"function w $p_1000(w %r0, w %r1, w %r2, w %r3) {",
		"export function w $main(w %r0, w %r1, w %r2, w %r3) {",
		"\t%acc =w call $p_1000(w %a0, w %a1, w %a2, w %a3)",
		"\t%acc =w extsh %acc",
		"@a1006",
		"\tret %acc",
	} {
		be.True(t, strings.Contains(text, line+"\n"))
	}
	be.Equal(t, strings.Count(text, "function w $"), 2)
}

func TestQBELoopAndBranches(t *testing.T) {
	prog, cfg := compile(t, "proc $f(n)\n  if(n<0)\n    0>n\n  endif\n  for(n)\n    $return+1>$return\n  endfor\nendproc")
	text, err := NewQBEBackend().GenerateIR(prog, cfg)
	be.Err(t, err, nil)
	be.True(t, strings.Contains(text, "=w csgew %acc, 0\n"))
	be.True(t, strings.Contains(text, "%for"))
	be.True(t, strings.Contains(text, "=w csgtw %acc, 0\n"))
}

func TestQBERejectsByteWords(t *testing.T) {
	cfg := config.NewConfig()
	cfg.WordSize = 1
	e := NewEmitter(cfg)
	_, err := compiler.Compile(e, cfg, nil, []string{"proc a()", "endproc"})
	be.Err(t, err, nil)
	_, err = NewQBEBackend().GenerateIR(e.Program(), cfg)
	be.Err(t, err)
}

func TestSelectBackend(t *testing.T) {
	for _, name := range []string{"", "listing", "qbe"} {
		b, err := SelectBackend(name)
		be.Err(t, err, nil)
		be.True(t, b != nil)
	}
	_, err := SelectBackend("gas")
	be.Err(t, err, "unsupported backend 'gas'")
}
