package build

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/cbtml"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/templates"
)

// CheckTemplates compiles every theme template and validates each one's
// inheritance chain, without building anything. It returns the number of
// templates checked and every problem found.
func CheckTemplates(cfg *config.Config) (int, []error) {
	registry := templates.NewRegistry(cfg.Theme.Active)
	var problems []error
	checked := 0

	themes, err := os.ReadDir(cfg.Theme.Dir)
	if err != nil {
		return 0, []error{fmt.Errorf("read theme dir %s: %w", cfg.Theme.Dir, err)}
	}

	for _, theme := range themes {
		if !theme.IsDir() {
			continue
		}
		namespace := theme.Name()
		tmplDir := filepath.Join(cfg.Theme.Dir, namespace, "templates")
		if _, err := os.Stat(tmplDir); os.IsNotExist(err) {
			continue
		}

		walkErr := filepath.WalkDir(tmplDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, cbtml.Ext) {
				return nil
			}
			rel, err := filepath.Rel(tmplDir, path)
			if err != nil {
				return err
			}
			source, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			checked++
			if _, err := registry.Compile(namespace, filepath.ToSlash(rel), string(source)); err != nil {
				problems = append(problems, err)
			}
			return nil
		})
		if walkErr != nil {
			problems = append(problems, walkErr)
		}
	}

	for _, name := range registry.Names() {
		if _, err := registry.ResolveInheritance(name); err != nil {
			problems = append(problems, err)
		}
	}

	return checked, problems
}
