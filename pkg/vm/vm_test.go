package vm_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/nhla/pkg/codegen"
	"github.com/xplshn/nhla/pkg/compiler"
	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/symbols"
	"github.com/xplshn/nhla/pkg/vm"
)

func load(t *testing.T, src string) (*vm.Machine, *symbols.Dictionary) {
	t.Helper()
	cfg := config.NewConfig()
	e := codegen.NewEmitter(cfg)
	mod, err := compiler.Compile(e, cfg, nil, strings.Split(src, "\n"))
	be.Err(t, err, nil)
	return vm.New(e.Program()), mod.Dictionary
}

func TestArithmeticIsLeftToRight(t *testing.T) {
	m, _ := load(t, "proc $f(a,b)\n  a+2*b>$return\nendproc")
	got, err := m.Call("$f", 1, 3)
	be.Err(t, err, nil)
	be.Equal(t, got, 9)
	be.Equal(t, m.Word(0x2000), 9)
}

func TestWordsWrap(t *testing.T) {
	m, _ := load(t, "proc $f(a)\n  a*2>$return\nendproc")
	got, err := m.Call("$f", 20000)
	be.Err(t, err, nil)
	be.Equal(t, got, -25536)
}

func TestDivisionByZeroYieldsZero(t *testing.T) {
	m, _ := load(t, "proc $f(a,b)\n  a/b>x\n  a%b+x>$return\nendproc")
	got, err := m.Call("$f", 7, 0)
	be.Err(t, err, nil)
	be.Equal(t, got, 0)
}

func TestTests(t *testing.T) {
	m, _ := load(t, `proc $sign(n)
  0>$return
  if(n#0)
    1>$return
    if(n<0)
      0-1>$return
    endif
  endif
  $return>r
endproc`)
	for _, tc := range []struct{ in, want int }{{0, 0}, {5, 1}, {-5, -1}} {
		got, err := m.Call("$sign", tc.in)
		be.Err(t, err, nil)
		be.Equal(t, got, tc.want)
	}
}

func TestLoops(t *testing.T) {
	m, _ := load(t, `proc $sum(n)
  0>s
  0>index
  for(n)
    s+index>s
  endfor
  s>$return
endproc
proc $count(n)
  0>c
  while(n#0)
    n-1>n
    c+1>c
  endwhile
  c>$return
endproc`)
	got, err := m.Call("$sum", 4)
	be.Err(t, err, nil)
	be.Equal(t, got, 6)

	got, err = m.Call("$sum", -3)
	be.Err(t, err, nil)
	be.Equal(t, got, 0)

	got, err = m.Call("$count", 7)
	be.Err(t, err, nil)
	be.Equal(t, got, 7)
}

func TestMemoryAccess(t *testing.T) {
	m, _ := load(t, `proc $poke(p,v)
  v>p[0]
  v>p?2
  p[0]>$return
endproc`)
	got, err := m.Call("$poke", 0x3000, 0x1234)
	be.Err(t, err, nil)
	be.Equal(t, got, 0x1234)
	be.Equal(t, m.Word(0x3000), 0x1234)
	be.Equal(t, m.Byte(0x3002), 0x34)
}

func TestStrings(t *testing.T) {
	m, _ := load(t, "proc $greet()\n  \"Hello\">$return\nendproc")
	addr, err := m.Call("$greet")
	be.Err(t, err, nil)
	be.Equal(t, m.String(addr), "Hello")
}

func TestCalls(t *testing.T) {
	m, _ := load(t, `proc double(x)
  x*2>$return
endproc
proc $quad(n)
  double(n)
  double($return)
endproc`)
	got, err := m.Call("$quad", 5)
	be.Err(t, err, nil)
	be.Equal(t, got, 20)
	be.Equal(t, m.Steps() > 0, true)
}

func TestStepLimit(t *testing.T) {
	m, _ := load(t, "proc $spin()\n  while(1#0)\n  endwhile\nendproc")
	m.MaxSteps = 100
	_, err := m.Call("$spin")
	be.True(t, errors.Is(err, vm.ErrStepLimit))
}

func TestUnknownProcedure(t *testing.T) {
	m, _ := load(t, "proc a()\nendproc")
	_, err := m.Call("b")
	be.Err(t, err, "no procedure 'b'")
}

func TestMissingEndprocReturnsAtNextProcedure(t *testing.T) {
	m, _ := load(t, "proc $first()\n  1>$return\nproc $second()\n  2>$return\nendproc")
	got, err := m.Call("$first")
	be.Err(t, err, nil)
	be.Equal(t, got, 1)
	be.Equal(t, m.Word(0x2000), 1)

	got, err = m.Call("$second")
	be.Err(t, err, nil)
	be.Equal(t, got, 2)
}
