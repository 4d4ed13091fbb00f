package config

import (
	"encoding/json"
	"os"
	"time"
)

// NewConfig returns a config object with default structures
// initialized.  The config can be loaded from other sources to
// override the defaults.
func NewConfig() *Config {
	return &Config{
		RepoPath:  "packages",
		RecipeDir: "srcpkgs",
		IndexURLs: map[string]string{
			"local": "file://packages/hostdir/binpkgs/index",
		},
		CheckerCommand:    []string{"nvtool", "check"},
		AckCommand:        []string{"nvtool", "take"},
		BuildCommand:      []string{"./mill-src", "pkg"},
		AckPolicy:         "succeeded",
		DefaultBudgetMin:  60,
		ShortBudgetMin:    20,
		ShortBudgetStyles: []string{"haskell-stack"},
		MailServer:        "localhost:25",
		MailFrom:          "pkgmill@localhost",
		MailTo:            "packagers@localhost",
		AdminTo:           "root@localhost",
		LockPath:          "pkgmill.lock",
		Bind:              ":8080",
		RunIntervalMin:    60,
	}
}

// LoadFromFile does as the name suggests, and loads the config from a
// file
func (c *Config) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	return dec.Decode(c)
}

// DefaultBudget returns the default build time budget as a duration.
func (c *Config) DefaultBudget() time.Duration {
	return time.Duration(c.DefaultBudgetMin) * time.Minute
}

// ShortBudget returns the reduced budget used for build styles with
// poor failure signaling.
func (c *Config) ShortBudget() time.Duration {
	return time.Duration(c.ShortBudgetMin) * time.Minute
}
