package metadata

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble returns a human-readable listing of every type declared by
// the module, in top-level order. Nested types follow their declaring type.
func Disassemble(m *Module) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("== module %s ==\n", m.Name))
	for _, t := range m.Types() {
		// Generated nested clones are listed under their declaring type.
		if t.DeclaringType != nil {
			continue
		}
		disassembleType(&sb, t, 0)
	}

	return sb.String()
}

// DisassembleMethod returns the listing of a single method.
func DisassembleMethod(m *MethodDef) string {
	var sb strings.Builder
	disassembleMethod(&sb, m, "")
	return sb.String()
}

func disassembleType(sb *strings.Builder, t *TypeDef, depth int) {
	indent := strings.Repeat("  ", depth)

	sb.WriteString(indent)
	sb.WriteString(".class ")
	if flags := t.Attributes.Names(); len(flags) > 0 {
		sb.WriteString(strings.Join(flags, " "))
		sb.WriteByte(' ')
	}
	sb.WriteString(t.FullName())
	if t.HasGenericParams() {
		sb.WriteString("<" + paramNames(t.GenericParams) + ">")
	}
	if t.BaseType != nil {
		sb.WriteString(" extends " + t.BaseType.String())
	}
	if len(t.Interfaces) > 0 {
		sb.WriteString(" implements " + joinRefs(t.Interfaces, TypeRef.String))
	}
	sb.WriteByte('\n')

	for _, ca := range t.CustomAttributes {
		sb.WriteString(indent + "  .custom " + ca.Type.FullName())
		if len(ca.Args) > 0 {
			args := make([]string, len(ca.Args))
			for i, a := range ca.Args {
				args[i] = attributeArgString(a)
			}
			sb.WriteString("(" + strings.Join(args, ", ") + ")")
		}
		sb.WriteByte('\n')
	}
	for _, f := range t.Fields {
		sb.WriteString(indent + "  .field ")
		if f.Static {
			sb.WriteString("static ")
		}
		sb.WriteString(refString(f.Type) + " " + f.Name + "\n")
	}
	for _, m := range t.Methods {
		disassembleMethod(sb, m, indent+"  ")
	}
	for _, n := range t.NestedTypes {
		disassembleType(sb, n, depth+1)
	}
	// Clones generated under a specialized parent are only reachable through
	// the module's top-level list.
	if t.Module != nil {
		for _, other := range t.Module.Types() {
			if other.DeclaringType == t && !containsType(t.NestedTypes, other) {
				disassembleType(sb, other, depth+1)
			}
		}
	}
}

func disassembleMethod(sb *strings.Builder, m *MethodDef, indent string) {
	sb.WriteString(indent + ".method ")
	if flags := m.Attributes.Names(); len(flags) > 0 {
		sb.WriteString(strings.Join(flags, " "))
		sb.WriteByte(' ')
	}
	sb.WriteString(refString(m.ReturnType) + " " + m.Name)
	if len(m.GenericParams) > 0 {
		sb.WriteString("<" + paramNames(m.GenericParams) + ">")
	}
	sb.WriteString("(" + joinRefs(m.ParamTypes(), TypeRef.String) + ")")
	if m.Native != "" {
		sb.WriteString(" native " + strconv.Quote(m.Native))
	}
	sb.WriteByte('\n')
	if m.Body == nil {
		return
	}

	for _, v := range m.Body.Variables {
		sb.WriteString(fmt.Sprintf("%s  .local %d %s\n", indent, v.Index, refString(v.Type)))
	}
	index := make(map[*Instruction]int, len(m.Body.Instructions))
	for i, ins := range m.Body.Instructions {
		index[ins] = i
	}
	for i, ins := range m.Body.Instructions {
		sb.WriteString(fmt.Sprintf("%s  %04d %s", indent, i, ins.OpCode))
		switch op := ins.Operand.(type) {
		case nil:
		case *Instruction:
			if target, ok := index[op]; ok {
				sb.WriteString(fmt.Sprintf(" %04d", target))
			} else {
				sb.WriteString(" ????")
			}
		case int:
			sb.WriteString(" " + strconv.Itoa(op))
		case string:
			sb.WriteString(" " + strconv.Quote(op))
		case fmt.Stringer:
			sb.WriteString(" " + op.String())
		}
		sb.WriteByte('\n')
	}
}

func attributeArgString(a any) string {
	switch v := a.(type) {
	case TypeRef:
		return "typeof(" + v.String() + ")"
	case string:
		return strconv.Quote(v)
	}
	return fmt.Sprint(a)
}

func paramNames(params []*GenericParam) string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

func containsType(list []*TypeDef, t *TypeDef) bool {
	for _, cur := range list {
		if cur == t {
			return true
		}
	}
	return false
}
