package metadata

import (
	"fmt"
	"strconv"
)

// OpCode identifies a stack-machine instruction.
type OpCode byte

const (
	OP_NOP OpCode = iota

	// Arguments and locals
	OP_LDARG
	OP_LDARGA
	OP_STARG
	OP_LDLOC
	OP_LDLOCA
	OP_STLOC

	// Constants
	OP_LDC_I4
	OP_LDSTR
	OP_LDNULL

	// Fields
	OP_LDFLD
	OP_STFLD

	// Calls
	OP_CALL
	OP_CALLVIRT
	OP_NEWOBJ
	OP_RET

	// Stack
	OP_POP
	OP_DUP

	// Type operations
	OP_BOX
	OP_UNBOX_ANY
	OP_INITOBJ
	OP_CASTCLASS
	OP_CONSTRAINED

	// Arithmetic and comparison
	OP_ADD
	OP_SUB
	OP_MUL
	OP_CEQ
	OP_CGT
	OP_CLT

	// Control flow
	OP_BR
	OP_BRTRUE
	OP_BRFALSE
)

// OperandKind tells what an instruction's operand holds.
type OperandKind byte

const (
	OperandNone OperandKind = iota
	OperandInt
	OperandString
	OperandType
	OperandMethod
	OperandField
	OperandBranch
)

type opInfo struct {
	name    string
	operand OperandKind
}

var opTable = map[OpCode]opInfo{
	OP_NOP:         {"nop", OperandNone},
	OP_LDARG:       {"ldarg", OperandInt},
	OP_LDARGA:      {"ldarga", OperandInt},
	OP_STARG:       {"starg", OperandInt},
	OP_LDLOC:       {"ldloc", OperandInt},
	OP_LDLOCA:      {"ldloca", OperandInt},
	OP_STLOC:       {"stloc", OperandInt},
	OP_LDC_I4:      {"ldc.i4", OperandInt},
	OP_LDSTR:       {"ldstr", OperandString},
	OP_LDNULL:      {"ldnull", OperandNone},
	OP_LDFLD:       {"ldfld", OperandField},
	OP_STFLD:       {"stfld", OperandField},
	OP_CALL:        {"call", OperandMethod},
	OP_CALLVIRT:    {"callvirt", OperandMethod},
	OP_NEWOBJ:      {"newobj", OperandMethod},
	OP_RET:         {"ret", OperandNone},
	OP_POP:         {"pop", OperandNone},
	OP_DUP:         {"dup", OperandNone},
	OP_BOX:         {"box", OperandType},
	OP_UNBOX_ANY:   {"unbox.any", OperandType},
	OP_INITOBJ:     {"initobj", OperandType},
	OP_CASTCLASS:   {"castclass", OperandType},
	OP_CONSTRAINED: {"constrained.", OperandType},
	OP_ADD:         {"add", OperandNone},
	OP_SUB:         {"sub", OperandNone},
	OP_MUL:         {"mul", OperandNone},
	OP_CEQ:         {"ceq", OperandNone},
	OP_CGT:         {"cgt", OperandNone},
	OP_CLT:         {"clt", OperandNone},
	OP_BR:          {"br", OperandBranch},
	OP_BRTRUE:      {"brtrue", OperandBranch},
	OP_BRFALSE:     {"brfalse", OperandBranch},
}

var opByName = func() map[string]OpCode {
	m := make(map[string]OpCode, len(opTable))
	for op, info := range opTable {
		m[info.name] = op
	}
	return m
}()

func (op OpCode) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return "op(" + strconv.Itoa(int(op)) + ")"
}

// OperandKind reports the operand the opcode expects.
func (op OpCode) OperandKind() OperandKind {
	return opTable[op].operand
}

// LookupOpCode maps a mnemonic to its opcode.
func LookupOpCode(name string) (OpCode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// Instruction is one opcode with its operand. Operand holds an int, a
// string, a TypeRef, a MethodOperand, a *FieldRef or a branch target
// *Instruction, according to the opcode's OperandKind.
type Instruction struct {
	OpCode  OpCode
	Operand any
}

// Create builds an instruction, checking the operand against the opcode.
func Create(op OpCode, operand any) (*Instruction, error) {
	ok := false
	switch op.OperandKind() {
	case OperandNone:
		ok = operand == nil
	case OperandInt:
		_, ok = operand.(int)
	case OperandString:
		_, ok = operand.(string)
	case OperandType:
		_, ok = operand.(TypeRef)
	case OperandMethod:
		_, ok = operand.(MethodOperand)
	case OperandField:
		_, ok = operand.(*FieldRef)
	case OperandBranch:
		_, ok = operand.(*Instruction)
	}
	if !ok {
		return nil, fmt.Errorf("invalid operand %T for %s", operand, op)
	}
	return &Instruction{OpCode: op, Operand: operand}, nil
}

// MustCreate is Create for statically known instructions.
func MustCreate(op OpCode, operand any) *Instruction {
	ins, err := Create(op, operand)
	if err != nil {
		panic(err)
	}
	return ins
}

// Variable is a method local.
type Variable struct {
	Index int
	Type  TypeRef
}

// Body is a method's locals and instruction stream.
type Body struct {
	Variables    []*Variable
	Instructions []*Instruction
	InitLocals   bool
}

// AddVariable appends a local of type t and returns it.
func (b *Body) AddVariable(t TypeRef) *Variable {
	v := &Variable{Index: len(b.Variables), Type: t}
	b.Variables = append(b.Variables, v)
	return v
}

// Append adds instructions at the end of the stream.
func (b *Body) Append(ins ...*Instruction) {
	b.Instructions = append(b.Instructions, ins...)
}

// IndexOf returns the position of ins in the stream, or -1.
func (b *Body) IndexOf(ins *Instruction) int {
	for i, cur := range b.Instructions {
		if cur == ins {
			return i
		}
	}
	return -1
}

// Previous returns the instruction before ins, or nil.
func (b *Body) Previous(ins *Instruction) *Instruction {
	if i := b.IndexOf(ins); i > 0 {
		return b.Instructions[i-1]
	}
	return nil
}

// InsertBefore places ins right before target.
func (b *Body) InsertBefore(target, ins *Instruction) error {
	i := b.IndexOf(target)
	if i < 0 {
		return fmt.Errorf("instruction %s is not part of the body", target)
	}
	b.insertAt(i, ins)
	return nil
}

// InsertAfter places ins right after target.
func (b *Body) InsertAfter(target, ins *Instruction) error {
	i := b.IndexOf(target)
	if i < 0 {
		return fmt.Errorf("instruction %s is not part of the body", target)
	}
	b.insertAt(i+1, ins)
	return nil
}

func (b *Body) insertAt(i int, ins *Instruction) {
	b.Instructions = append(b.Instructions, nil)
	copy(b.Instructions[i+1:], b.Instructions[i:])
	b.Instructions[i] = ins
}

// Replace swaps target for ins. Branches that targeted the old instruction
// are pointed at the new one.
func (b *Body) Replace(target, ins *Instruction) error {
	i := b.IndexOf(target)
	if i < 0 {
		return fmt.Errorf("instruction %s is not part of the body", target)
	}
	b.Instructions[i] = ins
	b.retarget(target, ins)
	return nil
}

// Remove deletes target. Branches that targeted it move to its successor.
func (b *Body) Remove(target *Instruction) error {
	i := b.IndexOf(target)
	if i < 0 {
		return fmt.Errorf("instruction %s is not part of the body", target)
	}
	b.Instructions = append(b.Instructions[:i], b.Instructions[i+1:]...)
	if i < len(b.Instructions) {
		b.retarget(target, b.Instructions[i])
	}
	return nil
}

func (b *Body) retarget(from, to *Instruction) {
	for _, cur := range b.Instructions {
		if cur.Operand == from {
			cur.Operand = to
		}
	}
}

func (ins *Instruction) String() string {
	switch op := ins.Operand.(type) {
	case nil:
		return ins.OpCode.String()
	case int:
		return ins.OpCode.String() + " " + strconv.Itoa(op)
	case string:
		return ins.OpCode.String() + " " + strconv.Quote(op)
	case *Instruction:
		return ins.OpCode.String() + " -> " + op.OpCode.String()
	case fmt.Stringer:
		return ins.OpCode.String() + " " + op.String()
	}
	return ins.OpCode.String() + " ?"
}
