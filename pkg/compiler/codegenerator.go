package compiler

import "github.com/xplshn/nhla/pkg/ir"

// CodeGenerator is the target side of the compiler. Calls are synchronous and
// their order is the order of the emitted code. Addresses are whatever the
// generator hands out; the compiler never computes one itself.
type CodeGenerator interface {
	// Address is the current code emission position.
	Address() int
	WordSize() int
	// AllocSpace reserves count contiguous words of storage.
	AllocSpace(count int) int
	CreateStringConstant(text string) int

	// BeginProcedure is called before a procedure's entry address is taken.
	BeginProcedure(name string, paramCount int)

	LoadDirect(isConstant bool, value int)
	LoadIndirect(width ir.Width)
	BinaryOperation(op ir.BinOp, isConstant bool, value int)
	StoreDirect(address int)
	// StoreIndirect writes the temporary through the address in the
	// accumulator, leaving the stored value in the accumulator.
	StoreIndirect(width ir.Width)
	CopyResultToTemp()

	LoadParamRegister(index int, isConstant bool, value int)
	StoreParamRegister(index int, address int)

	// Jump emits a jump taken when test holds for the accumulator.
	Jump(test ir.Test, target int)
	// PatchJump retargets the jump previously emitted at address at.
	PatchJump(at int, test ir.Test, target int)

	ForCode()
	EndForCode(startAddress int)

	CallSubroutine(address int)
	ReturnSubroutine()
}
