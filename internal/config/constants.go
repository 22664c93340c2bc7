package config

// Module file extensions.
const (
	TextModuleExt   = ".fwm.yaml"
	BinaryModuleExt = ".fwm"
)

// ModuleFileExtensions are all recognized module file extensions
var ModuleFileExtensions = []string{".fwm.yaml", ".fwm.yml", ".fwm"}

// IsTestMode indicates if the program is running in test mode.
// This is set once at startup in main.go when handling the check command;
// the pipeline then weaves without emitting.
var IsTestMode = false

// SpecializationDelimiter separates a specialized type's original name from
// the full name of its concrete argument.
const SpecializationDelimiter = "$specialized$"

// Weaver support library (markers and the resolution primitive)
const (
	SupportNamespace                = "Funweave"
	GenerateSpecializationAttribute = "Funweave.GenerateSpecializationAttribute"
	InjectSpecializationsAttribute  = "Funweave.InjectSpecializationsAttribute"
	TypeclassAttribute              = "Funweave.TypeclassAttribute"
	ImplicitlyTypeName              = "Funweave.Implicitly"
	ResolveMethodName               = "Resolve"
)

// Core library type names
const (
	CoreModuleName = "System.Private.CoreLib"
	ObjectTypeName = "System.Object"
	ValueTypeName  = "System.ValueType"
	VoidTypeName   = "System.Void"
	Int32TypeName  = "System.Int32"
	StringTypeName = "System.String"
	BoolTypeName   = "System.Boolean"
	ListTypeName   = "System.Collections.Generic.List"
	EnumerableName = "System.Collections.Generic.IEnumerable"
	AttributeName  = "System.Attribute"
)

// Special method names
const (
	ConstructorName = ".ctor"
	EqualsName      = "Equals"
	ToStringName    = "ToString"
)

// Pass names accepted in the weave configuration.
const (
	PassSpecialize = "specialize"
	PassInject     = "inject"
	PassImplicit   = "implicit"
)

// DefaultPasses is the order the passes run in when the configuration does
// not say otherwise.
var DefaultPasses = []string{PassSpecialize, PassInject, PassImplicit}

// TrimModuleExt removes a known module extension from path.
func TrimModuleExt(path string) string {
	for _, ext := range ModuleFileExtensions {
		if len(path) > len(ext) && path[len(path)-len(ext):] == ext {
			return path[:len(path)-len(ext)]
		}
	}
	return path
}
