package config

// Config represents the complete application configuration that
// pkgmill supports.
type Config struct {
	// RepoPath is the local checkout of the package repository,
	// and RepoURL is where it is cloned from if absent.
	RepoPath string
	RepoURL  string

	// RecipeDir is the subdirectory of the checkout that holds
	// one directory per package.
	RecipeDir string

	// IndexURLs name the published artifact indexes consulted to
	// decide whether a dependency is already available.
	IndexURLs map[string]string

	// CheckerCommand and AckCommand are the external version
	// checker and its acknowledgement counterpart.
	CheckerCommand []string
	AckCommand     []string

	// BuildCommand is the toolchain invocation run inside the
	// checkout for each package, with the package name appended.
	BuildCommand []string

	// SignCommand is run over output artifacts after a
	// successful build.
	SignCommand []string

	// BindMounts are host paths exposed to every build, such as a
	// shared distfile cache.
	BindMounts []string

	// AckPolicy selects which set of packages gets acknowledged
	// to the version checker after a run: "succeeded" retries a
	// detected update until it builds, "detected" acknowledges
	// every detected update whether or not it built.
	AckPolicy string

	// DefaultBudgetMin and ShortBudgetMin are per-package build
	// time budgets in minutes.  ShortBudgetStyles lists the build
	// styles that get the short budget.
	DefaultBudgetMin  int
	ShortBudgetMin    int
	ShortBudgetStyles []string

	// Mail settings for failure notification.
	MailServer string
	MailFrom   string
	MailTo     string
	AdminTo    string

	LockPath string

	Bind           string
	RunIntervalMin int
}
