package roarconfig

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/roar-ml/roar/internal/rerr"
)

// EnvPath is where `roar env` persists variables, separate from
// config.toml so they can be sourced independently.
func EnvPath(roarDir string) string {
	return filepath.Join(roarDir, "env")
}

// LoadEnv reads the persisted env file; a missing file is an empty map.
func LoadEnv(roarDir string) (map[string]string, error) {
	path := EnvPath(roarDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindPreflight, "read .roar/env", err)
	}
	return vars, nil
}

// SetEnv sets or overwrites one variable and persists the whole map.
func SetEnv(roarDir, key, value string) error {
	vars, err := LoadEnv(roarDir)
	if err != nil {
		return err
	}
	vars[key] = value
	return saveEnv(roarDir, vars)
}

// UnsetEnv removes one variable and persists the remainder.
func UnsetEnv(roarDir, key string) error {
	vars, err := LoadEnv(roarDir)
	if err != nil {
		return err
	}
	delete(vars, key)
	return saveEnv(roarDir, vars)
}

// GetEnv returns one variable's value and whether it was set.
func GetEnv(roarDir, key string) (string, bool, error) {
	vars, err := LoadEnv(roarDir)
	if err != nil {
		return "", false, err
	}
	v, ok := vars[key]
	return v, ok, nil
}

func saveEnv(roarDir string, vars map[string]string) error {
	if err := os.MkdirAll(roarDir, 0o755); err != nil {
		return rerr.Wrap(rerr.KindPreflight, "create .roar directory", err)
	}
	content, err := godotenv.Marshal(vars)
	if err != nil {
		return rerr.Wrap(rerr.KindPreflight, "marshal .roar/env", err)
	}
	if err := os.WriteFile(EnvPath(roarDir), []byte(content+"\n"), 0o644); err != nil {
		return rerr.Wrap(rerr.KindPreflight, "write .roar/env", err)
	}
	return nil
}
