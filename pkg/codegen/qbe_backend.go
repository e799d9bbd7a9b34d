package codegen

import (
	"fmt"
	"strings"

	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/ir"
)

// memSize is the size of the machine's address space.
const memSize = 0x10000

// qbeBackend lowers a program to QBE IL. The accumulator, the temp register
// and the parameter registers become QBE temporaries of each function; the
// whole address space is one exported data blob, $mem.
type qbeBackend struct {
	out       *strings.Builder
	prog      *ir.Program
	tempCount int
}

func NewQBEBackend() Backend { return &qbeBackend{} }

func (b *qbeBackend) GenerateIR(prog *ir.Program, cfg *config.Config) (string, error) {
	var qbeIRBuilder strings.Builder
	b.out = &qbeIRBuilder
	b.prog = prog
	b.tempCount = 0

	if prog.WordSize != 2 {
		return "", fmt.Errorf("qbe backend needs a word size of 2, not %d", prog.WordSize)
	}
	if err := b.gen(); err != nil {
		return "", err
	}
	return qbeIRBuilder.String(), nil
}

func (b *qbeBackend) gen() error {
	if err := b.genMemory(); err != nil {
		return err
	}
	for i := range b.prog.Procedures {
		if err := b.genFunc(i); err != nil {
			return err
		}
	}
	return nil
}

func (b *qbeBackend) genMemory() error {
	end := b.prog.DataBase + len(b.prog.Data)
	if b.prog.DataBase < 0 || end > memSize {
		return fmt.Errorf("data image $%04x-$%04x does not fit in 64K", b.prog.DataBase, end)
	}

	var items []string
	if b.prog.DataBase > 0 {
		items = append(items, fmt.Sprintf("z %d", b.prog.DataBase))
	}
	if len(b.prog.Data) > 0 {
		var sb strings.Builder
		sb.WriteString("b")
		for _, v := range b.prog.Data {
			fmt.Fprintf(&sb, " %d", v)
		}
		items = append(items, sb.String())
	}
	if rest := memSize - end; rest > 0 {
		items = append(items, fmt.Sprintf("z %d", rest))
	}
	fmt.Fprintf(b.out, "export data $mem = align 8 { %s }\n", strings.Join(items, ", "))
	return nil
}

// FuncName is the QBE symbol of a procedure. Procedures carrying the export
// sigil keep their name; the others are named after their entry address.
func FuncName(proc ir.Procedure) string {
	if !strings.HasPrefix(proc.Name, "$") {
		return fmt.Sprintf("p_%04x", proc.Entry)
	}
	return strings.NewReplacer("$", "", ".", "_").Replace(proc.Name)
}

func (b *qbeBackend) newTemp() string {
	b.tempCount++
	return fmt.Sprintf("%%t%d", b.tempCount)
}

func (b *qbeBackend) genFunc(idx int) error {
	proc := b.prog.Procedures[idx]
	end := b.prog.ProcedureEnd(idx)

	linkage := ""
	if strings.HasPrefix(proc.Name, "$") {
		linkage = "export "
	}
	params := make([]string, b.prog.MaxParams)
	for i := range params {
		params[i] = fmt.Sprintf("w %%r%d", i)
	}
	fmt.Fprintf(b.out, "\n%sfunction w $%s(%s) {\n", linkage, FuncName(proc), strings.Join(params, ", "))
	b.out.WriteString("@start\n")
	b.out.WriteString("\t%acc =w copy 0\n")
	b.out.WriteString("\t%tmp =w copy 0\n")
	for i := 0; i < b.prog.MaxParams; i++ {
		fmt.Fprintf(b.out, "\t%%a%d =w copy 0\n", i)
	}
	for addr := proc.Entry; addr < end; addr++ {
		if b.prog.At(addr).Op == ir.OpFor {
			fmt.Fprintf(b.out, "\t%%for%x =w copy 0\n", addr)
		}
	}

	for addr := proc.Entry; addr < end; addr++ {
		fmt.Fprintf(b.out, "@a%x\n", addr)
		if err := b.genInstr(addr, proc.Entry, end); err != nil {
			return fmt.Errorf("procedure '%s': %w", proc.Name, err)
		}
	}
	fmt.Fprintf(b.out, "@a%x\n", end)
	b.out.WriteString("\tret %acc\n")
	b.out.WriteString("}\n")
	return nil
}

func (b *qbeBackend) label(target, entry, end int) (string, error) {
	if target < entry || target > end {
		return "", fmt.Errorf("jump to $%04x leaves the procedure", target)
	}
	return fmt.Sprintf("@a%x", target), nil
}

// pointerTo emits the pointer to a fixed address.
func (b *qbeBackend) pointerTo(addr int) string {
	ptr := b.newTemp()
	fmt.Fprintf(b.out, "\t%s =l add $mem, %d\n", ptr, addr&0xffff)
	return ptr
}

// pointer emits the pointer to the address held in a temporary.
func (b *qbeBackend) pointer(addr string) string {
	masked := b.newTemp()
	fmt.Fprintf(b.out, "\t%s =w and %s, 65535\n", masked, addr)
	wide := b.newTemp()
	fmt.Fprintf(b.out, "\t%s =l extuw %s\n", wide, masked)
	ptr := b.newTemp()
	fmt.Fprintf(b.out, "\t%s =l add $mem, %s\n", ptr, wide)
	return ptr
}

func (b *qbeBackend) load(ptr string, width ir.Width) string {
	t := b.newTemp()
	if width == ir.Byte {
		fmt.Fprintf(b.out, "\t%s =w loadub %s\n", t, ptr)
	} else {
		fmt.Fprintf(b.out, "\t%s =w loadsh %s\n", t, ptr)
	}
	return t
}

func (b *qbeBackend) store(value, ptr string, width ir.Width) {
	if width == ir.Byte {
		fmt.Fprintf(b.out, "\tstoreb %s, %s\n", value, ptr)
	} else {
		fmt.Fprintf(b.out, "\tstoreh %s, %s\n", value, ptr)
	}
}

// operand returns a QBE value holding o.
func (b *qbeBackend) operand(o ir.Operand) string {
	if o.IsConst {
		return fmt.Sprintf("%d", int16(o.Value))
	}
	return b.load(b.pointerTo(o.Value), ir.Word)
}

var qbeOps = map[ir.BinOp]string{
	ir.Add: "add", ir.Sub: "sub", ir.Mul: "mul", ir.Div: "div",
	ir.Rem: "rem", ir.And: "and", ir.Or: "or", ir.Xor: "xor",
}

func (b *qbeBackend) genBinary(ins *ir.Instruction) {
	rhs := b.operand(ins.Operand)
	switch ins.Bin {
	case ir.Div, ir.Rem:
		// x/0 and x%0 are 0: divide by 1 instead and mask the result.
		isZero := b.newTemp()
		fmt.Fprintf(b.out, "\t%s =w ceqw %s, 0\n", isZero, rhs)
		divisor := b.newTemp()
		fmt.Fprintf(b.out, "\t%s =w add %s, %s\n", divisor, rhs, isZero)
		q := b.newTemp()
		fmt.Fprintf(b.out, "\t%s =w %s %%acc, %s\n", q, qbeOps[ins.Bin], divisor)
		keep := b.newTemp()
		fmt.Fprintf(b.out, "\t%s =w sub %s, 1\n", keep, isZero)
		fmt.Fprintf(b.out, "\t%%acc =w and %s, %s\n", q, keep)
	default:
		fmt.Fprintf(b.out, "\t%%acc =w %s %%acc, %s\n", qbeOps[ins.Bin], rhs)
	}
	b.out.WriteString("\t%acc =w extsh %acc\n")
}

func (b *qbeBackend) genInstr(addr, entry, end int) error {
	ins := b.prog.At(addr)
	next := fmt.Sprintf("@a%x", addr+1)

	switch ins.Op {
	case ir.OpLoad:
		fmt.Fprintf(b.out, "\t%%acc =w copy %s\n", b.operand(ins.Operand))
	case ir.OpLoadInd:
		v := b.load(b.pointer("%acc"), ins.Width)
		fmt.Fprintf(b.out, "\t%%acc =w copy %s\n", v)
	case ir.OpBinary:
		b.genBinary(ins)
	case ir.OpStore:
		b.store("%acc", b.pointerTo(ins.Target), ir.Word)
	case ir.OpStoreInd:
		b.store("%tmp", b.pointer("%acc"), ins.Width)
		b.out.WriteString("\t%acc =w copy %tmp\n")
	case ir.OpCopyTemp:
		b.out.WriteString("\t%tmp =w copy %acc\n")
	case ir.OpLoadParam:
		if ins.Reg >= b.prog.MaxParams {
			return fmt.Errorf("parameter register %d out of range", ins.Reg)
		}
		fmt.Fprintf(b.out, "\t%%a%d =w copy %s\n", ins.Reg, b.operand(ins.Operand))
	case ir.OpStoreParam:
		if ins.Reg >= b.prog.MaxParams {
			return fmt.Errorf("parameter register %d out of range", ins.Reg)
		}
		b.store(fmt.Sprintf("%%r%d", ins.Reg), b.pointerTo(ins.Target), ir.Word)
	case ir.OpJump:
		target, err := b.label(ins.Target, entry, end)
		if err != nil {
			return err
		}
		switch ins.Test {
		case ir.Always:
			fmt.Fprintf(b.out, "\tjmp %s\n", target)
		case ir.IfZero:
			fmt.Fprintf(b.out, "\tjnz %%acc, %s, %s\n", next, target)
		case ir.IfNonZero:
			fmt.Fprintf(b.out, "\tjnz %%acc, %s, %s\n", target, next)
		case ir.IfNonNegative:
			c := b.newTemp()
			fmt.Fprintf(b.out, "\t%s =w csgew %%acc, 0\n", c)
			fmt.Fprintf(b.out, "\tjnz %s, %s, %s\n", c, target, next)
		}
	case ir.OpFor:
		exit, err := b.label(ins.Target, entry, end)
		if err != nil {
			return err
		}
		fmt.Fprintf(b.out, "\t%%for%x =w copy %%acc\n", addr)
		c := b.newTemp()
		fmt.Fprintf(b.out, "\t%s =w csgtw %%acc, 0\n", c)
		fmt.Fprintf(b.out, "\tjnz %s, %s, %s\n", c, next, exit)
	case ir.OpIndex:
		fmt.Fprintf(b.out, "\t%%acc =w sub %%for%x, 1\n", addr-1)
	case ir.OpNext:
		body, err := b.label(ins.Target, entry, end)
		if err != nil {
			return err
		}
		counter := fmt.Sprintf("%%for%x", ins.Target-1)
		fmt.Fprintf(b.out, "\t%s =w sub %s, 1\n", counter, counter)
		c := b.newTemp()
		fmt.Fprintf(b.out, "\t%s =w csgtw %s, 0\n", c, counter)
		fmt.Fprintf(b.out, "\tjnz %s, %s, %s\n", c, body, next)
	case ir.OpCall:
		callee, ok := b.prog.FindProcedure(ins.Target)
		if !ok {
			return fmt.Errorf("call to $%04x which is not a procedure entry", ins.Target)
		}
		args := make([]string, b.prog.MaxParams)
		for i := range args {
			args[i] = fmt.Sprintf("w %%a%d", i)
		}
		fmt.Fprintf(b.out, "\t%%acc =w call $%s(%s)\n", FuncName(callee), strings.Join(args, ", "))
	case ir.OpRet:
		b.out.WriteString("\tret %acc\n")
	default:
		return fmt.Errorf("unknown instruction %s", ins.Op)
	}
	return nil
}
