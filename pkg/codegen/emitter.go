package codegen

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/ir"
)

// Emitter is a code generator that records every operation it is asked for
// into an ir.Program. Each instruction occupies one code address; data is laid
// out in a little-endian image starting at the configured data base.
type Emitter struct {
	prog    *ir.Program
	strings map[uint64][]int
}

func NewEmitter(cfg *config.Config) *Emitter {
	return &Emitter{
		prog: &ir.Program{
			CodeBase:  cfg.CodeBase,
			DataBase:  cfg.DataBase,
			WordSize:  cfg.WordSize,
			MaxParams: cfg.MaxParams,
			Strings:   make(map[int]string),
		},
		strings: make(map[uint64][]int),
	}
}

// Program returns the program recorded so far.
func (e *Emitter) Program() *ir.Program { return e.prog }

func (e *Emitter) emit(ins *ir.Instruction) int {
	addr := e.Address()
	e.prog.Code = append(e.prog.Code, ins)
	return addr
}

func (e *Emitter) Address() int { return e.prog.End() }

func (e *Emitter) WordSize() int { return e.prog.WordSize }

func (e *Emitter) AllocSpace(count int) int {
	addr := e.prog.DataBase + len(e.prog.Data)
	e.prog.Data = append(e.prog.Data, make([]byte, count*e.prog.WordSize)...)
	return addr
}

// CreateStringConstant stores text zero-terminated in the data image. Equal
// strings share one copy.
func (e *Emitter) CreateStringConstant(text string) int {
	h := xxhash.Sum64String(text)
	for _, addr := range e.strings[h] {
		if e.prog.Strings[addr] == text {
			return addr
		}
	}
	addr := e.prog.DataBase + len(e.prog.Data)
	e.prog.Data = append(e.prog.Data, text...)
	e.prog.Data = append(e.prog.Data, 0)
	e.prog.Strings[addr] = text
	e.strings[h] = append(e.strings[h], addr)
	return addr
}

func (e *Emitter) BeginProcedure(name string, paramCount int) {
	e.prog.Procedures = append(e.prog.Procedures, ir.Procedure{Name: name, Entry: e.Address(), ParamCount: paramCount})
}

func operand(isConstant bool, value int) ir.Operand {
	if isConstant {
		return ir.Const(value)
	}
	return ir.Var(value)
}

func (e *Emitter) LoadDirect(isConstant bool, value int) {
	e.emit(&ir.Instruction{Op: ir.OpLoad, Operand: operand(isConstant, value)})
}

func (e *Emitter) LoadIndirect(width ir.Width) {
	e.emit(&ir.Instruction{Op: ir.OpLoadInd, Width: width})
}

func (e *Emitter) BinaryOperation(op ir.BinOp, isConstant bool, value int) {
	e.emit(&ir.Instruction{Op: ir.OpBinary, Bin: op, Operand: operand(isConstant, value)})
}

func (e *Emitter) StoreDirect(address int) {
	e.emit(&ir.Instruction{Op: ir.OpStore, Target: address})
}

func (e *Emitter) StoreIndirect(width ir.Width) {
	e.emit(&ir.Instruction{Op: ir.OpStoreInd, Width: width})
}

func (e *Emitter) CopyResultToTemp() {
	e.emit(&ir.Instruction{Op: ir.OpCopyTemp})
}

func (e *Emitter) LoadParamRegister(index int, isConstant bool, value int) {
	e.emit(&ir.Instruction{Op: ir.OpLoadParam, Reg: index, Operand: operand(isConstant, value)})
}

func (e *Emitter) StoreParamRegister(index, address int) {
	e.emit(&ir.Instruction{Op: ir.OpStoreParam, Reg: index, Target: address})
}

func (e *Emitter) Jump(test ir.Test, target int) {
	e.emit(&ir.Instruction{Op: ir.OpJump, Test: test, Target: target})
}

// PatchJump retargets the jump emitted at address at.
func (e *Emitter) PatchJump(at int, test ir.Test, target int) {
	ins := e.prog.At(at)
	if ins == nil || ins.Op != ir.OpJump {
		panic(fmt.Sprintf("codegen: no jump at $%04x to patch", at))
	}
	ins.Test, ins.Target = test, target
}

// ForCode emits the loop head: the count in the accumulator becomes the loop
// counter, and the accumulator is then set to the current index. The exit
// target is filled in by EndForCode.
func (e *Emitter) ForCode() {
	e.emit(&ir.Instruction{Op: ir.OpFor})
	e.emit(&ir.Instruction{Op: ir.OpIndex})
}

// EndForCode closes the loop whose head was emitted at startAddress.
func (e *Emitter) EndForCode(startAddress int) {
	head := e.prog.At(startAddress)
	if head == nil || head.Op != ir.OpFor {
		panic(fmt.Sprintf("codegen: no loop head at $%04x", startAddress))
	}
	e.emit(&ir.Instruction{Op: ir.OpNext, Target: startAddress + 1})
	head.Target = e.Address()
}

func (e *Emitter) CallSubroutine(address int) {
	e.emit(&ir.Instruction{Op: ir.OpCall, Target: address})
}

func (e *Emitter) ReturnSubroutine() {
	e.emit(&ir.Instruction{Op: ir.OpRet})
}
