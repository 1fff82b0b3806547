package authz

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadRegoFiles reads all .rego files under dir into a name -> source map
// suitable for NewRegoHandler.
func LoadRegoFiles(dir string) (map[string]string, error) {
	modules := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		modules[rel] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rego dir %s: %w", dir, err)
	}
	return modules, nil
}
