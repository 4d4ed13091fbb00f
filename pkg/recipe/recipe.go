package recipe

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/pkgmill/pkgmill/pkg/types"
)

// TemplateFile is the recipe filename inside each package directory.
const TemplateFile = "template"

// Loader reads package recipes out of the repository checkout.
type Loader struct {
	l hclog.Logger

	basePath  string
	recipeDir string
}

// NewLoader returns a loader rooted at the checkout.
func NewLoader(l hclog.Logger, basePath, recipeDir string) *Loader {
	return &Loader{
		l:         l.Named("recipe"),
		basePath:  basePath,
		recipeDir: recipeDir,
	}
}

// Exists checks whether a package directory with a template is
// present in the repository.
func (ld *Loader) Exists(name string) bool {
	_, err := os.Lstat(filepath.Join(ld.basePath, ld.recipeDir, name, TemplateFile))
	return !os.IsNotExist(err)
}

// All returns the names of every package the repository manages, in
// sorted order.
func (ld *Loader) All() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(ld.basePath, ld.recipeDir, "*"))
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, p := range paths {
		pinfo, err := os.Lstat(p)
		if err != nil || !pinfo.IsDir() {
			// We only care about the directories
			continue
		}
		name := filepath.Base(p)
		if !ld.Exists(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Load reads and parses a single package's recipe.
func (ld *Loader) Load(name string) (*types.Package, error) {
	f, err := os.Open(filepath.Join(ld.basePath, ld.recipeDir, name, TemplateFile))
	if err != nil {
		ld.l.Warn("Error opening recipe", "package", name, "error", err)
		return nil, types.ErrRecipe{Pkg: name, Detail: err.Error()}
	}
	defer f.Close()
	return Parse(name, f)
}

// TemplatePath returns the repository-relative path of a package's
// recipe, for matching against changed paths from source control.
func (ld *Loader) TemplatePath(name string) string {
	return ld.recipeDir + "/" + name + "/" + TemplateFile
}

// PackageForPath maps a changed repository path back to the package
// it belongs to, if any.
func (ld *Loader) PackageForPath(p string) (string, bool) {
	parts := strings.Split(p, "/")
	if len(parts) < 2 || parts[0] != ld.recipeDir {
		return "", false
	}
	return parts[1], true
}

// Parse reads a template and produces a typed package.  Templates
// are key:value tokens, one per line, with indented continuation
// lines folding into the previous key.  Dependency fields hold
// whitespace separated names, optionally suffixed with :target to
// name a specific sub-artifact.
func Parse(name string, r io.Reader) (*types.Package, error) {
	s := bufio.NewScanner(r)

	var key string
	tokens := make(map[string]string)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Line contains a colon, so must be a key
		if strings.Contains(line, ":") {
			parts := strings.SplitN(line, ":", 2)
			key = parts[0]
			if parts[1] == "" {
				continue
			}
			tokens[key] = parts[1]
		} else {
			// Does not contain a colon, is continuation of last key
			tokens[key] += (" " + line)
		}
	}
	if err := s.Err(); err != nil {
		return nil, types.ErrRecipe{Pkg: name, Detail: err.Error()}
	}

	version := strings.TrimSpace(tokens["version"])
	if version == "" {
		return nil, types.ErrRecipe{Pkg: name, Detail: "recipe declares no version"}
	}

	revision := 1
	if rv := strings.TrimSpace(tokens["revision"]); rv != "" {
		var err error
		revision, err = strconv.Atoi(rv)
		if err != nil {
			return nil, types.ErrRecipe{Pkg: name, Detail: "bad revision: " + rv}
		}
	}

	p := types.Package{
		Name:       name,
		Version:    version,
		Revision:   revision,
		BuildStyle: strings.TrimSpace(tokens["build_style"]),
	}

	// makedepends install before depends; within each field the
	// declaration order is preserved.
	for _, fld := range []string{"makedepends", "depends"} {
		for _, d := range strings.Fields(tokens[fld]) {
			p.Depends = append(p.Depends, parseDep(d))
		}
	}

	return &p, nil
}

// ParseRevision extracts just the revision counter from raw template
// bytes, for comparing a historical recipe against the checkout.
func ParseRevision(data []byte) (int, error) {
	p, err := Parse("historical", strings.NewReader(string(data)))
	if err != nil {
		return 0, err
	}
	return p.Revision, nil
}

func parseDep(s string) types.Dependency {
	if strings.Contains(s, ":") {
		parts := strings.SplitN(s, ":", 2)
		return types.Dependency{Name: parts[0], Target: parts[1]}
	}
	return types.Dependency{Name: s}
}
