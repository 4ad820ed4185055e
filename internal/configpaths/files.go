package configpaths

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// Name is the base name used for config directories and files.
const Name = "aotkit"

// DefaultConfigDir returns the platform-specific configuration directory for aotkit.
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if appdata := os.Getenv("AppData"); appdata != "" {
			return filepath.Join(appdata, Name), nil
		}
		return "", errors.New("AppData not set")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, Name), nil
		}
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, ".config", Name), nil
		}
		return "", errors.New("HOME not set")
	}
}

// DefaultNamedConfigPath returns the default config file path for the given format and base name (e.g., "generate").
func DefaultNamedConfigPath(baseName, format string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, baseName+"."+Extension(format)), nil
}

// Extension maps a format name to its file extension, defaulting to json.
func Extension(format string) string {
	switch format {
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	}
	return "json"
}

// EnsureDir ensures the directory for a given file path exists.
func EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, 0o755)
}

// ConfigCandidatePaths builds candidate paths for config files per format.
// If userPath is provided, it is prioritized and routed to the matching loader by extension.
func ConfigCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	add := func(slice *[]string, p string) { *slice = append(*slice, p) }
	addBase := func(dir, base string) {
		add(&jsonPaths, filepath.Join(dir, base+".json"))
		add(&yamlPaths, filepath.Join(dir, base+".yaml"))
		add(&yamlPaths, filepath.Join(dir, base+".yml"))
		add(&tomlPaths, filepath.Join(dir, base+".toml"))
	}

	if userPath != "" {
		switch ext := filepath.Ext(userPath); ext {
		case ".json":
			add(&jsonPaths, userPath)
		case ".yaml", ".yml":
			add(&yamlPaths, userPath)
		case ".toml":
			add(&tomlPaths, userPath)
		default:
			add(&jsonPaths, userPath)
		}
	}

	// Working directory candidates
	wd, _ := os.Getwd()
	for _, base := range []string{"." + Name, Name} {
		addBase(wd, base)
	}

	// Config home
	if dir, err := DefaultConfigDir(); err == nil {
		for _, base := range []string{"config", "generate"} {
			addBase(dir, base)
		}
	}

	return
}
