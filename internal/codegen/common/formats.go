package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

var extensions = map[string]string{
	"json": ".json",
	"yaml": ".yaml",
	"toml": ".toml",
}

// Formats returns the supported serialization formats, sorted.
func Formats() []string {
	out := make([]string, 0, len(extensions))
	for f := range extensions {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Extension returns the file extension of format, including the dot.
func Extension(format string) (string, error) {
	ext, ok := extensions[format]
	if !ok {
		return "", fmt.Errorf("unsupported format '%s' (supported: %v)", format, Formats())
	}
	return ext, nil
}

// Marshal encodes v as json, yaml or toml.
func Marshal(format string, v any) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "toml":
		return toml.Marshal(v)
	}
	_, err := Extension(format)
	return nil, err
}
