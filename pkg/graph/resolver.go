package graph

import (
	"github.com/hashicorp/go-hclog"

	"github.com/pkgmill/pkgmill/pkg/types"
)

// SubjectLoadFailure is the notification subject used for packages
// that could not be resolved.
const SubjectLoadFailure = "recipe for %s failed to load"

// NewResolver returns a resolver over the given recipe source and
// artifact indexes.
func NewResolver(l hclog.Logger, recipes RecipeSource, idx Availability, rep Reporter) *Resolver {
	return &Resolver{
		l:        l.Named("resolver"),
		recipes:  recipes,
		idx:      idx,
		reporter: rep,
	}
}

// Resolve walks outward from the seed set, loading each package's
// declared dependencies and discovering transitively required
// packages not yet in the set.  Load failures are recorded and
// reported but do not abort resolution; a reference to a package
// missing from the repository is a hard error for the referencing
// package.
func (r *Resolver) Resolve(seeds []string) *Resolution {
	res := &Resolution{
		Pkgs:         make(map[string]*types.Package),
		BuildDeps:    make(map[string]map[string]struct{}),
		InstallDeps:  make(map[string][]types.Dependency),
		LoadFailures: make(map[string]string),
	}

	queue := append([]string{}, seeds...)
	visited := make(map[string]struct{})

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, ok := visited[name]; ok {
			continue
		}
		visited[name] = struct{}{}

		pkg, err := r.recipes.Load(name)
		if err != nil {
			r.l.Warn("Error loading package", "package", name, "error", err)
			res.LoadFailures[name] = err.Error()
			r.reporter.Report(name, err.Error(), SubjectLoadFailure)
			continue
		}
		res.Pkgs[name] = pkg

		deps := make([]types.Dependency, 0, len(pkg.Depends))
		bdeps := make(map[string]struct{})
		bad := ""
		for _, d := range pkg.Depends {
			if !r.recipes.Exists(d.Name) {
				// Stale or misspelled declaration; the
				// referencing package cannot build.
				bad = "depends on nonexistent package " + d.Name
				break
			}
			if r.alreadyAvailable(d) {
				d.Resolved = true
				deps = append(deps, d)
				continue
			}
			deps = append(deps, d)
			bdeps[d.Name] = struct{}{}
			if _, seen := visited[d.Name]; !seen {
				queue = append(queue, d.Name)
			}
		}
		if bad != "" {
			r.l.Warn("Package has invalid dependency", "package", name, "error", bad)
			delete(res.Pkgs, name)
			res.LoadFailures[name] = bad
			r.reporter.Report(name, bad, SubjectLoadFailure)
			continue
		}

		res.BuildDeps[name] = bdeps
		res.InstallDeps[name] = deps
	}

	r.l.Debug("Resolution complete", "packages", len(res.Pkgs), "failures", len(res.LoadFailures))
	return res
}

// alreadyAvailable checks the artifact indexes for the exact version
// the dependency's recipe currently declares.
func (r *Resolver) alreadyAvailable(d types.Dependency) bool {
	if r.idx == nil {
		return false
	}
	dp, err := r.recipes.Load(d.Name)
	if err != nil {
		return false
	}
	artifact := d.Name
	if d.Target != "" {
		artifact = d.Target
	}
	return r.idx.Available(artifact, dp.FullVersion())
}
