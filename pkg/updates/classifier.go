package updates

import (
	"github.com/hashicorp/go-hclog"

	"github.com/pkgmill/pkgmill/pkg/recipe"
	"github.com/pkgmill/pkgmill/pkg/types"
)

// Signals are the four independent inputs one classifier pass merges.
type Signals struct {
	// Updates and Unknown come from the version checker.
	Updates map[string]types.UpdateInfo
	Unknown map[string]struct{}

	// ChangedRecipes holds packages whose recipe changed in
	// source control since the last processed revision.
	ChangedRecipes map[string]struct{}

	// BumpedRevision holds packages whose recipe revision counter
	// increased across that same window.
	BumpedRevision map[string]struct{}
}

// A Classification is one merged build decision per package.
type Classification struct {
	// ToBuild is the union of every firing signal, minus
	// packages the version checker does not know.
	ToBuild map[string]struct{}

	// RevisionOnly marks packages rebuilt purely for a revision
	// bump.  These never update version bookkeeping.
	RevisionOnly map[string]struct{}

	// Unknown is passed through as a diagnostic for reporting.
	Unknown map[string]struct{}
}

// Classify merges the four update signals against the persisted
// failure record.  The signals compose independently: a package may
// qualify through several at once.
//
// A package in the failure record is retried for an upstream update
// only when the reported version differs from the one it last failed
// at; retrying the identical version needs a recipe change instead.
func Classify(l hclog.Logger, sig Signals, failures map[string]string) Classification {
	out := Classification{
		ToBuild:      make(map[string]struct{}),
		RevisionOnly: make(map[string]struct{}),
		Unknown:      sig.Unknown,
	}
	if out.Unknown == nil {
		out.Unknown = make(map[string]struct{})
	}

	// Signals 1 and 2: upstream changed, with the failure record
	// guarding against retrying a version known to be broken.
	for name, ui := range sig.Updates {
		failedAt, failing := failures[name]
		if failing && failedAt == ui.NewVer {
			l.Debug("Still failing at reported version", "package", name, "version", ui.NewVer)
			continue
		}
		out.ToBuild[name] = struct{}{}
	}

	// Signal 3: the recipe changed and the package is failing;
	// the fix might be in the recipe rather than upstream.
	for name := range sig.ChangedRecipes {
		if _, failing := failures[name]; failing {
			out.ToBuild[name] = struct{}{}
		}
	}

	// Signal 4: a deliberate revision bump rebuilds the exact
	// upstream version.
	for name := range sig.BumpedRevision {
		out.ToBuild[name] = struct{}{}
		out.RevisionOnly[name] = struct{}{}
	}

	for name := range out.Unknown {
		if _, ok := out.ToBuild[name]; ok {
			l.Warn("Package unknown to version checker", "package", name)
			delete(out.ToBuild, name)
			delete(out.RevisionOnly, name)
		}
	}

	l.Debug("Classified updates", "tobuild", len(out.ToBuild), "revisiononly", len(out.RevisionOnly))
	return out
}

// A FileSource can read a file as of a historical revision.
type FileSource interface {
	FileAt(rev, path string) ([]byte, error)
}

// BuildNumberChanged reports whether the revision counter of a
// package's recipe increased between the given revision and the
// current checkout.  A recipe that did not exist at the old revision
// is not a bump; brand new packages arrive through the checker
// signal instead.
func BuildNumberChanged(l hclog.Logger, fs FileSource, oldRev, tmplPath string, current int) bool {
	old, err := fs.FileAt(oldRev, tmplPath)
	if err != nil {
		l.Trace("No historical recipe", "path", tmplPath, "rev", oldRev)
		return false
	}
	oldRevision, err := recipe.ParseRevision(old)
	if err != nil {
		l.Warn("Error parsing historical recipe", "path", tmplPath, "error", err)
		return false
	}
	return current > oldRevision
}
