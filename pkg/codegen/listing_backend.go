package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/ir"
)

// listingBackend prints the program as an assembly listing for an idealised
// accumulator machine, one instruction per code address.
type listingBackend struct {
	out  *strings.Builder
	prog *ir.Program
}

func NewListingBackend() Backend { return &listingBackend{} }

var listingOps = map[ir.BinOp]string{
	ir.Add: "add", ir.Sub: "sub", ir.Mul: "mul", ir.Div: "div",
	ir.Rem: "mod", ir.And: "and", ir.Or: "ora", ir.Xor: "xor",
}

func (b *listingBackend) GenerateIR(prog *ir.Program, cfg *config.Config) (string, error) {
	var sb strings.Builder
	b.out = &sb
	b.prog = prog

	b.genCode()
	b.genData()
	return sb.String(), nil
}

func (b *listingBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	text, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}
	return bytes.NewBufferString(text), nil
}

func (b *listingBackend) genCode() {
	for i, ins := range b.prog.Code {
		addr := b.prog.CodeBase + i
		if proc, ok := b.prog.FindProcedure(addr); ok {
			fmt.Fprintf(b.out, "; %s(%d)\n", proc.Name, proc.ParamCount)
		}
		mnemonic, arg := b.formatInstr(ins)
		line := fmt.Sprintf("$%06x  %-4s %s", addr, mnemonic, arg)
		b.out.WriteString(strings.TrimRight(line, " "))
		b.out.WriteString("\n")
	}
}

func (b *listingBackend) formatInstr(ins *ir.Instruction) (string, string) {
	switch ins.Op {
	case ir.OpLoad:
		return "lda", formatOperand(ins.Operand)
	case ir.OpLoadInd:
		if ins.Width == ir.Byte {
			return "ldb", "[a]"
		}
		return "lda", "[a]"
	case ir.OpBinary:
		return listingOps[ins.Bin], formatOperand(ins.Operand)
	case ir.OpStore:
		return "sta", fmt.Sprintf("($%04x)", ins.Target)
	case ir.OpStoreInd:
		if ins.Width == ir.Byte {
			return "stb", "[a]"
		}
		return "sta", "[a]"
	case ir.OpCopyTemp:
		return "tab", ""
	case ir.OpLoadParam:
		return "ldr", fmt.Sprintf("r%d,%s", ins.Reg, formatOperand(ins.Operand))
	case ir.OpStoreParam:
		return "str", fmt.Sprintf("r%d,($%04x)", ins.Reg, ins.Target)
	case ir.OpJump:
		if ins.Test == ir.Always {
			return "jmp", fmt.Sprintf("$%06x", ins.Target)
		}
		return "j" + ins.Test.String(), fmt.Sprintf("$%06x", ins.Target)
	case ir.OpFor:
		return "for", fmt.Sprintf("$%06x", ins.Target)
	case ir.OpIndex:
		return "idx", ""
	case ir.OpNext:
		return "next", fmt.Sprintf("$%06x", ins.Target)
	case ir.OpCall:
		return "jsr", fmt.Sprintf("$%06x", ins.Target)
	case ir.OpRet:
		return "rts", ""
	}
	return "???", ""
}

func formatOperand(o ir.Operand) string {
	if o.IsConst {
		return fmt.Sprintf("#$%04x", o.Value&0xffff)
	}
	return fmt.Sprintf("($%04x)", o.Value)
}

// genData dumps the data image: string constants as db, everything else as
// words.
func (b *listingBackend) genData() {
	if len(b.prog.Data) == 0 {
		return
	}
	b.out.WriteString("; data\n")
	data := b.prog.Data
	for off := 0; off < len(data); {
		addr := b.prog.DataBase + off
		if s, ok := b.prog.Strings[addr]; ok {
			fmt.Fprintf(b.out, "$%06x  db   \"%s\",0\n", addr, s)
			off += len(s) + 1
			continue
		}
		if b.prog.WordSize == 2 && off+1 < len(data) {
			fmt.Fprintf(b.out, "$%06x  dw   $%04x\n", addr, int(data[off])|int(data[off+1])<<8)
			off += 2
			continue
		}
		fmt.Fprintf(b.out, "$%06x  db   $%02x\n", addr, data[off])
		off++
	}
}
