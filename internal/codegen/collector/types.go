package collector

import "go/types"

// ParseKind says how a type is parsed from a single string.
type ParseKind int

const (
	ParseNone ParseKind = iota
	// ParseText uses the type's encoding.TextUnmarshaler implementation.
	ParseText
	// ParseFunc uses a package level Parse<Name> or TryParse<Name> function.
	ParseFunc
)

func (k ParseKind) String() string {
	switch k {
	case ParseText:
		return "text"
	case ParseFunc:
		return "func"
	}
	return "none"
}

// MarshalText renders the kind by name in manifests and inspect output.
func (k ParseKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseInfo describes the parser of one type.
type ParseInfo struct {
	Kind           ParseKind `json:"kind" yaml:"kind" toml:"kind"`
	Func           string    `json:"func,omitempty" yaml:"func,omitempty" toml:"func,omitempty"`
	ReturnsBool    bool      `json:"returnsBool,omitempty" yaml:"returnsBool,omitempty" toml:"returnsBool,omitempty"`
	ReturnsPointer bool      `json:"returnsPointer,omitempty" yaml:"returnsPointer,omitempty" toml:"returnsPointer,omitempty"`
}

// PropertyKind classifies a property's declared type.
type PropertyKind string

const (
	KindLeaf     PropertyKind = "leaf"
	KindParsable PropertyKind = "parsable"
	KindStruct   PropertyKind = "struct"
	KindSequence PropertyKind = "sequence"
	KindOpaque   PropertyKind = "opaque"
)

// PropertyDescriptor is one settable field of a described type.
type PropertyDescriptor struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	Key  string `json:"key" yaml:"key" toml:"key"`
	// Path is the selector path from the described type, through embedded
	// structs, to the field.
	Path         []string     `json:"path" yaml:"path" toml:"path"`
	DeclaredType string       `json:"declaredType" yaml:"declaredType" toml:"declaredType"`
	Kind         PropertyKind `json:"kind" yaml:"kind" toml:"kind"`
	// Element is the element identity of sequence properties.
	Element string `json:"element,omitempty" yaml:"element,omitempty" toml:"element,omitempty"`
	// Parse belongs to the scalar type, or to the element of a sequence.
	Parse      ParseInfo `json:"parse" yaml:"parse" toml:"parse"`
	IsPointer  bool      `json:"isPointer,omitempty" yaml:"isPointer,omitempty" toml:"isPointer,omitempty"`
	IsInitOnly bool      `json:"isInitOnly,omitempty" yaml:"isInitOnly,omitempty" toml:"isInitOnly,omitempty"`
	IsRequired bool      `json:"isRequired,omitempty" yaml:"isRequired,omitempty" toml:"isRequired,omitempty"`
	IsExcluded bool      `json:"isExcluded,omitempty" yaml:"isExcluded,omitempty" toml:"isExcluded,omitempty"`

	Type types.Type `json:"-" yaml:"-" toml:"-"`
}

// TypeDescriptor summarizes one type that needs runtime metadata.
type TypeDescriptor struct {
	Identity string `json:"identity" yaml:"identity" toml:"identity"`
	// Alias is the visit order index. Aliases are unique and increasing but
	// not dense.
	Alias       int       `json:"alias" yaml:"alias" toml:"alias"`
	Package     string    `json:"package" yaml:"package" toml:"package"`
	Name        string    `json:"name" yaml:"name" toml:"name"`
	IsValueType bool      `json:"isValueType" yaml:"isValueType" toml:"isValueType"`
	Parse       ParseInfo `json:"parse" yaml:"parse" toml:"parse"`
	// ConstructorArgumentCount is the smallest number of required arguments
	// among the New<Name> constructors, or 0 when a zero-argument one exists
	// or there is none.
	ConstructorArgumentCount  int                  `json:"constructorArgumentCount" yaml:"constructorArgumentCount" toml:"constructorArgumentCount"`
	Constructor               string               `json:"constructor,omitempty" yaml:"constructor,omitempty" toml:"constructor,omitempty"`
	ConstructorReturnsPointer bool                 `json:"-" yaml:"-" toml:"-"`
	Properties                []PropertyDescriptor `json:"properties" yaml:"properties" toml:"properties"`
	SkipObjectFactory         bool                 `json:"skipObjectFactory,omitempty" yaml:"skipObjectFactory,omitempty" toml:"skipObjectFactory,omitempty"`

	Type *types.Named `json:"-" yaml:"-" toml:"-"`
}
