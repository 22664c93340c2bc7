package modfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/funvibe/funweave/internal/metadata"
)

// paramScope binds !n and !!n while parsing a type expression. Inside a
// body, !n names the enclosing type's parameters and !!n the method's. Inside
// a member reference signature, !n names the open declaring type's
// parameters and !!n the reference's own.
type paramScope struct {
	typeParams   []*metadata.GenericParam
	methodParams []*metadata.GenericParam
}

type syntaxParser struct {
	module *metadata.Module
}

// parseType parses Ns.Name, Outer/Nested, Name<A, B>, !n and !!n.
func (p *syntaxParser) parseType(s string, scope paramScope) (metadata.TypeRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty type")
	}

	if strings.HasPrefix(s, "!!") {
		n, err := strconv.Atoi(s[2:])
		if err != nil || n < 0 || n >= len(scope.methodParams) {
			return nil, fmt.Errorf("method type parameter %s out of range", s)
		}
		return scope.methodParams[n], nil
	}
	if strings.HasPrefix(s, "!") {
		n, err := strconv.Atoi(s[1:])
		if err != nil || n < 0 || n >= len(scope.typeParams) {
			return nil, fmt.Errorf("type parameter %s out of range", s)
		}
		return scope.typeParams[n], nil
	}

	// Generated names may embed a generic argument list, so the whole text
	// is tried as a name before it is split.
	if def := p.module.FindType(s); def != nil {
		return def, nil
	}
	for i := strings.IndexByte(s, '<'); i >= 0; {
		if matchingAngle(s[i:]) == len(s)-i-1 {
			if def := p.module.FindType(s[:i]); def != nil {
				return p.instance(def, s[i+1:len(s)-1], scope)
			}
		}
		next := strings.IndexByte(s[i+1:], '<')
		if next < 0 {
			break
		}
		i += next + 1
	}

	return p.lookup(s)
}

func (p *syntaxParser) instance(def *metadata.TypeDef, argText string, scope paramScope) (metadata.TypeRef, error) {
	parts, err := splitTopLevel(argText, ',')
	if err != nil {
		return nil, fmt.Errorf("%s<%s>: %w", def.FullName(), argText, err)
	}
	args := make([]metadata.TypeRef, len(parts))
	for j, part := range parts {
		if args[j], err = p.parseType(part, scope); err != nil {
			return nil, err
		}
	}
	return metadata.MakeGenericInstance(def, args...)
}

func (p *syntaxParser) lookup(name string) (*metadata.TypeDef, error) {
	name = strings.TrimSpace(name)
	if def := p.module.FindType(name); def != nil {
		return def, nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}

// parseMethodRef parses "Ret Decl::Name(params)", "Ret Decl::Name``N(params)"
// and the instantiated form "Ret Decl::Name<args>(params)".
func (p *syntaxParser) parseMethodRef(s string, body paramScope) (metadata.MethodOperand, error) {
	retText, rest, ok := cutTopLevel(strings.TrimSpace(s), ' ')
	if !ok {
		return nil, fmt.Errorf("method reference %q has no return type", s)
	}
	declText, member, ok := strings.Cut(rest, "::")
	if !ok {
		return nil, fmt.Errorf("method reference %q has no declaring type", s)
	}
	decl, err := p.parseType(declText, body)
	if err != nil {
		return nil, err
	}

	nameEnd := strings.IndexAny(member, "<`(")
	if nameEnd <= 0 || !strings.HasSuffix(member, ")") {
		return nil, fmt.Errorf("malformed method reference %q", s)
	}
	ref := &metadata.MethodRef{Name: member[:nameEnd], DeclaringType: decl}
	tail := member[nameEnd:]

	var instArgs []string
	arity := 0
	switch tail[0] {
	case '`':
		open := strings.IndexByte(tail, '(')
		if open < 0 {
			return nil, fmt.Errorf("malformed method reference %q", s)
		}
		if arity, err = strconv.Atoi(strings.TrimLeft(tail[:open], "`")); err != nil {
			return nil, fmt.Errorf("malformed generic arity in %q", s)
		}
		tail = tail[open:]
	case '<':
		end := matchingAngle(tail)
		if end < 0 {
			return nil, fmt.Errorf("unterminated generic arguments in %q", s)
		}
		if instArgs, err = splitTopLevel(tail[1:end], ','); err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		arity = len(instArgs)
		tail = tail[end+1:]
	}
	if !strings.HasPrefix(tail, "(") {
		return nil, fmt.Errorf("malformed method reference %q", s)
	}

	names := make([]string, arity)
	for i := range names {
		names[i] = "T" + strconv.Itoa(i)
	}
	ref.GenericParams = metadata.NewGenericParams(ref, names...)

	sig := paramScope{methodParams: ref.GenericParams}
	declDef := metadata.ElementDef(decl)
	if declDef != nil {
		sig.typeParams = declDef.GenericParams
	}
	if ref.ReturnType, err = p.parseType(retText, sig); err != nil {
		return nil, err
	}
	paramParts, err := splitTopLevel(tail[1:len(tail)-1], ',')
	if err != nil {
		return nil, fmt.Errorf("%q: %w", s, err)
	}
	for _, part := range paramParts {
		pt, err := p.parseType(part, sig)
		if err != nil {
			return nil, err
		}
		ref.Params = append(ref.Params, pt)
	}

	if declDef == nil {
		return nil, fmt.Errorf("method reference %q is declared on a type parameter", s)
	}
	def := metadata.FindMethod(declDef, ref)
	if def == nil {
		return nil, fmt.Errorf("unresolved method %s", ref)
	}
	ref.HasThis = !def.IsStatic()

	if instArgs == nil {
		return ref, nil
	}
	args := make([]metadata.TypeRef, len(instArgs))
	for i, a := range instArgs {
		if args[i], err = p.parseType(a, body); err != nil {
			return nil, err
		}
	}
	return metadata.MakeGenericInstanceMethod(ref, args...)
}

// parseFieldRef parses "FieldType Decl::name".
func (p *syntaxParser) parseFieldRef(s string, body paramScope) (*metadata.FieldRef, error) {
	typeText, rest, ok := cutTopLevel(strings.TrimSpace(s), ' ')
	if !ok {
		return nil, fmt.Errorf("field reference %q has no type", s)
	}
	declText, name, ok := strings.Cut(rest, "::")
	if !ok || name == "" {
		return nil, fmt.Errorf("field reference %q has no declaring type", s)
	}
	decl, err := p.parseType(declText, body)
	if err != nil {
		return nil, err
	}
	declDef := metadata.ElementDef(decl)
	if declDef == nil || declDef.Field(name) == nil {
		return nil, fmt.Errorf("unresolved field %s::%s", decl, name)
	}
	ft, err := p.parseType(typeText, paramScope{typeParams: declDef.GenericParams})
	if err != nil {
		return nil, err
	}
	return &metadata.FieldRef{Name: name, FieldType: ft, DeclaringType: decl}, nil
}

// parseInstruction parses one body line. Branch operands are returned as
// label names for the caller to patch.
func (p *syntaxParser) parseInstruction(line string, body paramScope) (*metadata.Instruction, string, error) {
	mnemonic, operand, _ := strings.Cut(strings.TrimSpace(line), " ")
	operand = strings.TrimSpace(operand)
	op, ok := metadata.LookupOpCode(mnemonic)
	if !ok {
		return nil, "", fmt.Errorf("unknown opcode %q", mnemonic)
	}

	var value any
	var err error
	switch op.OperandKind() {
	case metadata.OperandNone:
		if operand != "" {
			return nil, "", fmt.Errorf("%s takes no operand", op)
		}
	case metadata.OperandInt:
		value, err = strconv.Atoi(operand)
	case metadata.OperandString:
		value, err = strconv.Unquote(operand)
	case metadata.OperandType:
		value, err = p.parseType(operand, body)
	case metadata.OperandMethod:
		value, err = p.parseMethodRef(operand, body)
	case metadata.OperandField:
		value, err = p.parseFieldRef(operand, body)
	case metadata.OperandBranch:
		if operand == "" {
			return nil, "", fmt.Errorf("%s needs a label", op)
		}
		return &metadata.Instruction{OpCode: op}, operand, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	ins, err := metadata.Create(op, value)
	return ins, "", err
}

// parseAttributeArg parses typeof(T), a quoted string, an integer or a
// boolean.
func (p *syntaxParser) parseAttributeArg(s string) (any, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "typeof(") && strings.HasSuffix(s, ")"):
		return p.parseType(s[len("typeof("):len(s)-1], paramScope{})
	case strings.HasPrefix(s, `"`):
		return strconv.Unquote(s)
	case s == "true" || s == "false":
		return s == "true", nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("unsupported attribute argument %q", s)
	}
	return n, nil
}

// splitTopLevel splits s at sep outside of angle brackets and parentheses.
func splitTopLevel(s string, sep byte) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(':
			depth++
		case '>', ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced brackets")
			}
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets")
	}
	return append(parts, strings.TrimSpace(s[start:])), nil
}

// cutTopLevel cuts s around the first sep outside of brackets.
func cutTopLevel(s string, sep byte) (before, after string, found bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(':
			depth++
		case '>', ')':
			depth--
		case sep:
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}

// matchingAngle returns the index of the '>' closing the '<' at s[0].
func matchingAngle(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
