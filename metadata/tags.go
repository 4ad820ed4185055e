package metadata

import (
	"reflect"
	"strings"
)

// TagKey is the struct tag consulted for aotkit property options.
const TagKey = "aot"

// FieldTag is the interpretation of a field's struct tags.
type FieldTag struct {
	// Key is the json name, or empty when the tag does not rename the field.
	Key      string
	Excluded bool
	Required bool
	InitOnly bool
}

// Skip reports whether the field is left out of the property list.
// Required wins over excluded.
func (f FieldTag) Skip() bool {
	return f.Excluded && !f.Required
}

// ParseFieldTag reads the json and aot options of a struct tag.
//
//	Secret string `json:"-" aot:"required"`
//	ID     string `json:"id" aot:"init"`
func ParseFieldTag(tag reflect.StructTag) FieldTag {
	var ft FieldTag
	if js, ok := tag.Lookup("json"); ok {
		name, _, _ := strings.Cut(js, ",")
		if name == "-" && !strings.HasPrefix(js, "-,") {
			ft.Excluded = true
		} else if name != "" {
			ft.Key = name
		}
	}
	for _, opt := range strings.Split(tag.Get(TagKey), ",") {
		switch strings.TrimSpace(opt) {
		case "required":
			ft.Required = true
		case "init":
			ft.InitOnly = true
		case "-":
			ft.Excluded = true
		}
	}
	return ft
}
