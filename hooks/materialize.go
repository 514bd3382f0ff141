package hooks

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed docs/README.md docs/examples/*.sh
var docsFS embed.FS

// Materialize writes the bundled documentation (README.md) and example
// hooks (examples/*.sh) into
// <projectRoot>/.dmux-hooks/ on first use, skipping any file that already
// exists so a team's edits are never clobbered (spec.md §4.13 "first-use
// also materialises a documentation/example directory").
func Materialize(projectRoot string) error {
	root := filepath.Join(projectRoot, ".dmux-hooks")
	return fs.WalkDir(docsFS, "docs", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel("docs", path)
		if err != nil {
			return err
		}
		dest := filepath.Join(root, rel)
		if d.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		if _, err := os.Stat(dest); err == nil {
			return nil
		}
		data, err := docsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dest, data, 0o644)
	})
}
