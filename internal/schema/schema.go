// Package schema declares response shapes: the field names, kinds, enums and
// required-ness a stage expects back from the reasoning oracle. The same Shape
// constrains generation (oracle) and validates the answer (repair).
package schema

// Kind is the semantic type of a field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindStringList
	KindObjectList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindStringList:
		return "array<string>"
	case KindObjectList:
		return "array<object>"
	default:
		return "unknown"
	}
}

// Field describes one property of a response object.
type Field struct {
	Name        string
	Kind        Kind
	Required    bool
	Description string
	Enum        []string
	// Items is the element shape for KindObjectList.
	Items *Shape
	// Default replaces an invalid value of an object-list item field instead of
	// dropping the whole element. Ignored for top-level fields.
	Default any
}

// Shape is an object with an ordered list of fields.
type Shape struct {
	Fields []Field
}

// Object builds a shape from fields.
func Object(fields ...Field) Shape {
	return Shape{Fields: fields}
}

// Required returns the names of required fields in declaration order.
func (s Shape) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Field looks up a field by name.
func (s Shape) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// AllowsValue reports whether v satisfies the field's enum (always true when
// the field has no enum).
func (f Field) AllowsValue(v string) bool {
	if len(f.Enum) == 0 {
		return true
	}
	for _, e := range f.Enum {
		if e == v {
			return true
		}
	}
	return false
}

// Convenience constructors keep stage shape declarations short.

// String declares a string field.
func String(name, desc string, required bool) Field {
	return Field{Name: name, Kind: KindString, Required: required, Description: desc}
}

// Enum declares a string field restricted to values.
func Enum(name, desc string, required bool, values ...string) Field {
	return Field{Name: name, Kind: KindString, Required: required, Description: desc, Enum: values}
}

// Number declares a numeric field.
func Number(name, desc string, required bool) Field {
	return Field{Name: name, Kind: KindNumber, Required: required, Description: desc}
}

// Bool declares a boolean field.
func Bool(name, desc string, required bool) Field {
	return Field{Name: name, Kind: KindBool, Required: required, Description: desc}
}

// StringList declares an array of strings.
func StringList(name, desc string, required bool) Field {
	return Field{Name: name, Kind: KindStringList, Required: required, Description: desc}
}

// ObjectList declares an array of objects of the given shape.
func ObjectList(name, desc string, required bool, items Shape) Field {
	return Field{Name: name, Kind: KindObjectList, Required: required, Description: desc, Items: &items}
}

// WithDefault returns a copy of f that falls back to v when invalid.
func (f Field) WithDefault(v any) Field {
	f.Default = v
	return f
}
