package ir

import "fmt"

type Op int

const (
	OpLoad      Op = iota // acc = operand
	OpLoadInd             // acc = mem[acc]
	OpBinary              // acc = acc <bin> operand
	OpStore               // mem[Target] = acc
	OpStoreInd            // mem[acc] = temp; acc = temp
	OpCopyTemp            // temp = acc
	OpLoadParam           // param[Reg] = operand
	OpStoreParam          // mem[Target] = param[Reg]
	OpJump                // if Test(acc) goto Target
	OpFor                 // push counter = acc; if acc <= 0 goto Target
	OpIndex               // acc = counter - 1
	OpNext                // counter--; if counter > 0 goto Target, else pop
	OpCall                // call Target
	OpRet
)

var opNames = map[Op]string{
	OpLoad: "load", OpLoadInd: "loadind", OpBinary: "binary", OpStore: "store",
	OpStoreInd: "storeind", OpCopyTemp: "copytemp", OpLoadParam: "loadparam",
	OpStoreParam: "storeparam", OpJump: "jump", OpFor: "for", OpIndex: "index",
	OpNext: "next", OpCall: "call", OpRet: "ret",
}

func (o Op) String() string { return opNames[o] }

// BinOp is an accumulator operator.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Rem
	And
	Or
	Xor
)

var binNames = [...]string{"+", "-", "*", "/", "%", "&", "|", "^"}

func (b BinOp) String() string { return binNames[b] }

// Apply evaluates the operator on two words. Division by zero yields zero.
func (b BinOp) Apply(x, y int) int {
	switch b {
	case Add:
		return x + y
	case Sub:
		return x - y
	case Mul:
		return x * y
	case Div:
		if y == 0 {
			return 0
		}
		return x / y
	case Rem:
		if y == 0 {
			return 0
		}
		return x % y
	case And:
		return x & y
	case Or:
		return x | y
	case Xor:
		return x ^ y
	}
	panic(fmt.Sprintf("ir: unknown operator %d", int(b)))
}

// Test is the condition under which a jump is taken.
type Test int

const (
	Always Test = iota
	IfZero
	IfNonZero
	IfNonNegative
)

var testNames = [...]string{"", "z", "nz", "p"}

func (t Test) String() string { return testNames[t] }

// Taken reports whether a jump with this test is taken for acc.
func (t Test) Taken(acc int) bool {
	switch t {
	case IfZero:
		return acc == 0
	case IfNonZero:
		return acc != 0
	case IfNonNegative:
		return acc >= 0
	default:
		return true
	}
}

type Width int

const (
	Word Width = iota
	Byte
)

func (w Width) String() string {
	if w == Byte {
		return "byte"
	}
	return "word"
}

// Operand is a constant or the address of a variable.
type Operand struct {
	IsConst bool
	Value   int
}

func Const(v int) Operand { return Operand{IsConst: true, Value: v} }
func Var(addr int) Operand { return Operand{Value: addr} }

type Instruction struct {
	Op      Op
	Bin     BinOp
	Test    Test
	Width   Width
	Operand Operand
	Reg     int
	Target  int
}

// Procedure marks where a procedure's code begins.
type Procedure struct {
	Name       string
	Entry      int
	ParamCount int
}

type Program struct {
	Code       []*Instruction
	CodeBase   int
	Data       []byte
	DataBase   int
	WordSize   int
	MaxParams  int
	Procedures []Procedure
	Strings    map[int]string
}

// At returns the instruction at a code address, or nil.
func (p *Program) At(addr int) *Instruction {
	i := addr - p.CodeBase
	if i < 0 || i >= len(p.Code) {
		return nil
	}
	return p.Code[i]
}

// End is the address one past the last instruction.
func (p *Program) End() int { return p.CodeBase + len(p.Code) }

// FindProcedure returns the procedure whose entry is addr.
func (p *Program) FindProcedure(addr int) (Procedure, bool) {
	for _, proc := range p.Procedures {
		if proc.Entry == addr {
			return proc, true
		}
	}
	return Procedure{}, false
}

// ProcedureNamed returns the procedure with the given name.
func (p *Program) ProcedureNamed(name string) (Procedure, bool) {
	for _, proc := range p.Procedures {
		if proc.Name == name {
			return proc, true
		}
	}
	return Procedure{}, false
}

// ProcedureEnd returns the address one past the code of the procedure at idx.
func (p *Program) ProcedureEnd(idx int) int {
	if idx+1 < len(p.Procedures) {
		return p.Procedures[idx+1].Entry
	}
	return p.End()
}

// EndOf returns the address one past the code of the procedure whose entry is
// addr, or End when no procedure starts there.
func (p *Program) EndOf(addr int) int {
	for i, proc := range p.Procedures {
		if proc.Entry == addr {
			return p.ProcedureEnd(i)
		}
	}
	return p.End()
}

// SizeOf returns the size in bytes of a memory access of the given width.
func (p *Program) SizeOf(w Width) int {
	if w == Byte {
		return 1
	}
	return p.WordSize
}

// JumpTargets returns every code address some instruction can transfer to.
func (p *Program) JumpTargets() map[int]bool {
	targets := make(map[int]bool)
	for _, ins := range p.Code {
		switch ins.Op {
		case OpJump, OpFor, OpNext:
			targets[ins.Target] = true
		}
	}
	return targets
}
