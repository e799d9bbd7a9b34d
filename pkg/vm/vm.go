// Package vm runs an ir.Program on the abstract accumulator machine the
// compiler targets. Words are signed and wrap at the program's word size.
package vm

import (
	"errors"
	"fmt"

	"github.com/xplshn/nhla/pkg/ir"
)

const (
	MemorySize      = 0x10000
	DefaultMaxSteps = 1_000_000
	maxCallDepth    = 1024
)

var (
	ErrStepLimit     = errors.New("step limit exceeded")
	ErrStackOverflow = errors.New("call stack overflow")
)

// frame is one active call. end is where the callee's code stops; reaching
// it returns, as a missing endproc does in compiled code.
type frame struct {
	ret   int
	end   int
	loops []int
}

// Machine holds the registers and memory of one run. Memory persists across
// calls, so a test can call procedures in sequence.
type Machine struct {
	prog     *ir.Program
	Memory   []byte
	MaxSteps int

	acc    int
	temp   int
	params []int
	frames []frame
	steps  int
}

// New loads the program's data image into a fresh 64K memory.
func New(prog *ir.Program) *Machine {
	m := &Machine{
		prog:     prog,
		Memory:   make([]byte, MemorySize),
		MaxSteps: DefaultMaxSteps,
		params:   make([]int, prog.MaxParams),
	}
	copy(m.Memory[prog.DataBase&0xffff:], prog.Data)
	return m
}

func (m *Machine) Acc() int   { return m.acc }
func (m *Machine) Steps() int { return m.steps }

func (m *Machine) wrap(v int) int {
	if m.prog.WordSize == 1 {
		return int(int8(v))
	}
	return int(int16(v))
}

// Word reads the signed word at addr.
func (m *Machine) Word(addr int) int {
	addr &= 0xffff
	if m.prog.WordSize == 1 {
		return int(int8(m.Memory[addr]))
	}
	return int(int16(uint16(m.Memory[addr]) | uint16(m.Memory[(addr+1)&0xffff])<<8))
}

func (m *Machine) SetWord(addr, v int) {
	addr &= 0xffff
	m.Memory[addr] = byte(v)
	if m.prog.WordSize > 1 {
		m.Memory[(addr+1)&0xffff] = byte(v >> 8)
	}
}

func (m *Machine) Byte(addr int) int { return int(m.Memory[addr&0xffff]) }

// String reads the zero-terminated string at addr.
func (m *Machine) String(addr int) string {
	var buf []byte
	for a := addr & 0xffff; a < MemorySize && m.Memory[a] != 0; a++ {
		buf = append(buf, m.Memory[a])
	}
	return string(buf)
}

// Call runs the named procedure with args in the parameter registers and
// returns the accumulator when it returns.
func (m *Machine) Call(name string, args ...int) (int, error) {
	proc, ok := m.prog.ProcedureNamed(name)
	if !ok {
		return 0, fmt.Errorf("no procedure '%s'", name)
	}
	return m.CallAt(proc.Entry, args...)
}

// CallAt is Call for a procedure entry address.
func (m *Machine) CallAt(entry int, args ...int) (int, error) {
	if len(args) > len(m.params) {
		return 0, fmt.Errorf("%d arguments, at most %d allowed", len(args), len(m.params))
	}
	for i, a := range args {
		m.params[i] = m.wrap(a)
	}
	m.frames = append(m.frames[:0], frame{ret: -1, end: m.prog.EndOf(entry)})
	m.steps = 0
	if err := m.run(entry); err != nil {
		return 0, err
	}
	return m.acc, nil
}

func (m *Machine) value(o ir.Operand) int {
	if o.IsConst {
		return m.wrap(o.Value)
	}
	return m.Word(o.Value)
}

func (m *Machine) top() *frame { return &m.frames[len(m.frames)-1] }

func (m *Machine) run(pc int) error {
	for {
		if pc == m.top().end {
			done, ret := m.ret()
			if done {
				return nil
			}
			pc = ret
			continue
		}
		ins := m.prog.At(pc)
		if ins == nil {
			return fmt.Errorf("pc $%04x outside the program", pc)
		}
		m.steps++
		if m.MaxSteps > 0 && m.steps > m.MaxSteps {
			return fmt.Errorf("at $%04x: %w", pc, ErrStepLimit)
		}

		next := pc + 1
		switch ins.Op {
		case ir.OpLoad:
			m.acc = m.value(ins.Operand)
		case ir.OpLoadInd:
			if ins.Width == ir.Byte {
				m.acc = m.Byte(m.acc)
			} else {
				m.acc = m.Word(m.acc)
			}
		case ir.OpBinary:
			m.acc = m.wrap(ins.Bin.Apply(m.acc, m.value(ins.Operand)))
		case ir.OpStore:
			m.SetWord(ins.Target, m.acc)
		case ir.OpStoreInd:
			if ins.Width == ir.Byte {
				m.Memory[m.acc&0xffff] = byte(m.temp)
			} else {
				m.SetWord(m.acc, m.temp)
			}
			m.acc = m.temp
		case ir.OpCopyTemp:
			m.temp = m.acc
		case ir.OpLoadParam:
			m.params[ins.Reg] = m.value(ins.Operand)
		case ir.OpStoreParam:
			m.SetWord(ins.Target, m.params[ins.Reg])
		case ir.OpJump:
			if ins.Test.Taken(m.acc) {
				next = ins.Target
			}
		case ir.OpFor:
			if m.acc <= 0 {
				next = ins.Target
			} else {
				f := m.top()
				f.loops = append(f.loops, m.acc)
			}
		case ir.OpIndex:
			f := m.top()
			if len(f.loops) == 0 {
				return fmt.Errorf("at $%04x: index outside a loop", pc)
			}
			m.acc = f.loops[len(f.loops)-1] - 1
		case ir.OpNext:
			f := m.top()
			if len(f.loops) == 0 {
				return fmt.Errorf("at $%04x: next outside a loop", pc)
			}
			f.loops[len(f.loops)-1]--
			if f.loops[len(f.loops)-1] > 0 {
				next = ins.Target
			} else {
				f.loops = f.loops[:len(f.loops)-1]
			}
		case ir.OpCall:
			if len(m.frames) >= maxCallDepth {
				return fmt.Errorf("at $%04x: %w", pc, ErrStackOverflow)
			}
			m.frames = append(m.frames, frame{ret: next, end: m.prog.EndOf(ins.Target)})
			next = ins.Target
		case ir.OpRet:
			done, ret := m.ret()
			if done {
				return nil
			}
			next = ret
		default:
			return fmt.Errorf("at $%04x: unknown instruction %s", pc, ins.Op)
		}
		pc = next
	}
}

// ret pops a frame. It reports true when the outermost call has returned.
func (m *Machine) ret() (bool, int) {
	f := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	if len(m.frames) == 0 {
		return true, 0
	}
	return false, f.ret
}
