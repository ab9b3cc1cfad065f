package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	// EnvConfigPath names an explicit config file
	EnvConfigPath = "PEERSCAN_CONFIG"
	// ConfigFileName is looked up in the working directory
	ConfigFileName = "peerscan.yaml"
	// ConfigDirName is the directory under the user and system config roots
	ConfigDirName = "peerscan"
	// EnvFileName holds KEY=value overrides
	EnvFileName = ".env"
)

// ErrConfigNotFound means $PEERSCAN_CONFIG names a file that does not exist
var ErrConfigNotFound = errors.New("config file not found")

// searchPaths lists the locations tried when $PEERSCAN_CONFIG is unset
func searchPaths() []string {
	paths := []string{ConfigFileName}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ConfigDirName, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// FindConfigPath returns the config file to load, or "" when none exists and
// defaults apply. An explicit $PEERSCAN_CONFIG must exist; it never falls
// through to the search paths.
func FindConfigPath(lookup LookupFunc) (string, error) {
	if path, ok := lookup(EnvConfigPath); ok && path != "" {
		if !fileExists(path) {
			return "", fmt.Errorf("%w: %s=%s", ErrConfigNotFound, EnvConfigPath, path)
		}
		return path, nil
	}

	for _, path := range searchPaths() {
		if !fileExists(path) {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs, nil
		}
		return path, nil
	}
	return "", nil
}

// envFiles lists the .env files read for configPath: the working
// directory's first, then the one beside the config file
func envFiles(configPath string) []string {
	files := []string{EnvFileName}
	if configPath == "" {
		return files
	}

	beside := filepath.Join(filepath.Dir(configPath), EnvFileName)
	cwd, err1 := filepath.Abs(EnvFileName)
	other, err2 := filepath.Abs(beside)
	if err1 == nil && err2 == nil && cwd == other {
		return files
	}
	return append(files, beside)
}

// EnvLookup reads the .env files for configPath and returns a LookupFunc
// over them. A non-empty process variable wins over any file, and earlier
// files win over later ones. The process environment is never modified, so
// calling it again picks up edited files.
func EnvLookup(configPath string) (LookupFunc, error) {
	vars := make(map[string]string)
	for _, file := range envFiles(configPath) {
		if !fileExists(file) {
			continue
		}
		read, err := godotenv.Read(file)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
		for k, v := range read {
			if _, seen := vars[k]; !seen {
				vars[k] = v
			}
		}
	}

	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}, nil
}

// EnsureConfigDir creates the directory holding configPath
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
