package coordinator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgmill/pkgmill/pkg/builder"
	"github.com/pkgmill/pkgmill/pkg/config"
	"github.com/pkgmill/pkgmill/pkg/graph"
	"github.com/pkgmill/pkgmill/pkg/notify"
	"github.com/pkgmill/pkgmill/pkg/recipe"
	"github.com/pkgmill/pkgmill/pkg/runner"
	"github.com/pkgmill/pkgmill/pkg/source"
	"github.com/pkgmill/pkgmill/pkg/state"
	"github.com/pkgmill/pkgmill/pkg/types"
	"github.com/pkgmill/pkgmill/pkg/updates"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(k []byte) ([]byte, error) {
	v, ok := m.data[string(k)]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m *memStore) Put(k, v []byte) error {
	vc := make([]byte, len(v))
	copy(vc, v)
	m.data[string(k)] = vc
	return nil
}

func (m *memStore) Del(k []byte) error {
	delete(m.data, string(k))
	return nil
}

func (m *memStore) Keys(prefix []byte) ([][]byte, error) {
	out := [][]byte{}
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			out = append(out, []byte(k))
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

// fakeChecker knows the packages in updates and known; anything else
// requested comes back unknown, like a checker with no configuration
// for the name.
type fakeChecker struct {
	updates map[string]types.UpdateInfo
	known   map[string]struct{}
	taken   [][]string
}

func (f *fakeChecker) Check(names []string) (*updates.CheckResult, error) {
	res := updates.CheckResult{
		Updates:      make(map[string]types.UpdateInfo),
		Unknown:      make(map[string]struct{}),
		ConfigErrors: make(map[string]string),
	}
	for _, n := range names {
		if ui, ok := f.updates[n]; ok {
			res.Updates[n] = ui
			continue
		}
		if _, ok := f.known[n]; ok {
			continue
		}
		res.Unknown[n] = struct{}{}
	}
	return &res, nil
}

func (f *fakeChecker) MarkTaken(names []string) error {
	f.taken = append(f.taken, names)
	return nil
}

type fakeBuilder struct {
	fail  map[string]bool
	built []string
}

func (f *fakeBuilder) Build(ctx context.Context, req *builder.Request) (*types.Outcome, error) {
	f.built = append(f.built, req.Pkg.Name)
	if f.fail[req.Pkg.Name] {
		return nil, types.ErrBuildTool{Cmd: "mill-src", ExitCode: 1, Output: "no dice"}
	}
	return &types.Outcome{Status: types.OutcomeSuccess}, nil
}

type nullPublisher struct{}

func (nullPublisher) SignAndPublish([]string) error { return nil }

type fakeNotifier struct {
	reports []string
	admin   []string
}

func (f *fakeNotifier) Report(pkg, errInfo, subject string) {
	f.reports = append(f.reports, pkg)
}

func (f *fakeNotifier) ReportAdmin(subject, body string) {
	f.admin = append(f.admin, subject)
}

var _ notify.Notifier = (*fakeNotifier)(nil)

func writeTemplate(t *testing.T, base, name, contents string) {
	t.Helper()
	dir := filepath.Join(base, "srcpkgs", name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, recipe.TemplateFile), []byte(contents), 0644))
}

type harness struct {
	c  *Coordinator
	fb *fakeBuilder
	fc *fakeChecker
	fn *fakeNotifier
	st *state.Store
}

func newHarness(t *testing.T, base string, fb *fakeBuilder, fc *fakeChecker, extra ...Option) *harness {
	t.Helper()
	l := hclog.NewNullLogger()

	cfg := config.NewConfig()
	cfg.RepoPath = base
	cfg.LockPath = filepath.Join(t.TempDir(), "run.lock")

	st := state.New(l, newMemStore())
	fn := &fakeNotifier{}
	ld := recipe.NewLoader(l, base, "srcpkgs")

	opts := []Option{
		WithLogger(l),
		WithRecipes(ld),
		WithResolver(graph.NewResolver(l, ld, nil, fn)),
		WithChecker(fc),
		WithRunner(runner.New(l, fb, nullPublisher{}, fn)),
		WithNotifier(fn),
		WithState(st),
	}
	c := New(cfg, append(opts, extra...)...)
	return &harness{c: c, fb: fb, fc: fc, fn: fn, st: st}
}

// initSourceRepo turns base, already populated with templates, into a
// git checkout managed by a RepoMngr and returns the HEAD revision.
func initSourceRepo(t *testing.T, base string) (*source.RepoMngr, string) {
	t.Helper()

	repo, err := git.PlainInit(base, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("srcpkgs")
	require.NoError(t, err)
	head, err := wt.Commit("import templates", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@localhost", When: time.Now()},
	})
	require.NoError(t, err)

	rm := source.New(hclog.NewNullLogger())
	rm.Path = base
	require.NoError(t, rm.Bootstrap())
	return rm, head.String()
}

func TestRunManual_NoDependencyExpansion(t *testing.T) {
	base := t.TempDir()
	writeTemplate(t, base, "E", "version:1.0\ndepends:F\n")
	writeTemplate(t, base, "F", "version:1.0\n")

	h := newHarness(t, base, &fakeBuilder{}, &fakeChecker{})
	failed := h.c.Run(context.Background(), []string{"E"})

	assert.Empty(t, failed)
	assert.Equal(t, []string{"E"}, h.fb.built, "manual runs build exactly the named set")
}

func TestRunManual_FailureRecordRoundTrip(t *testing.T) {
	base := t.TempDir()
	writeTemplate(t, base, "flaky", "version:2.0\n")

	fb := &fakeBuilder{fail: map[string]bool{"flaky": true}}
	h := newHarness(t, base, fb, &fakeChecker{})

	failed := h.c.Run(context.Background(), []string{"flaky"})
	assert.Equal(t, map[string]string{"flaky": "2.0"}, failed)

	snap, err := h.st.Load()
	require.NoError(t, err)
	assert.Equal(t, "2.0", snap.Failures["flaky"], "a failing package enters the record at its attempted version")
	assert.Equal(t, []string{"flaky"}, h.fn.reports)

	// The fix lands; the same package now builds and leaves the
	// record.
	fb.fail["flaky"] = false
	failed = h.c.Run(context.Background(), []string{"flaky"})
	assert.Empty(t, failed)

	snap, err = h.st.Load()
	require.NoError(t, err)
	assert.NotContains(t, snap.Failures, "flaky")
}

func TestRunManual_UnknownPackage(t *testing.T) {
	base := t.TempDir()

	h := newHarness(t, base, &fakeBuilder{}, &fakeChecker{})
	failed := h.c.Run(context.Background(), []string{"phantom"})

	assert.Contains(t, failed, "phantom")
	assert.Empty(t, h.fb.built)
	assert.Equal(t, []string{"phantom"}, h.fn.reports)
}

func TestRunManual_AckSucceeded(t *testing.T) {
	base := t.TempDir()
	writeTemplate(t, base, "good", "version:1.0\n")

	fc := &fakeChecker{updates: map[string]types.UpdateInfo{
		"good": {OldVer: "0.9", NewVer: "1.0"},
	}}
	h := newHarness(t, base, &fakeBuilder{}, fc)
	h.c.Run(context.Background(), []string{"good"})

	require.Len(t, fc.taken, 1)
	assert.Equal(t, []string{"good"}, fc.taken[0])
}

func TestRunManual_AckOnlyCheckerReported(t *testing.T) {
	base := t.TempDir()
	writeTemplate(t, base, "good", "version:1.0\n")
	writeTemplate(t, base, "helper", "version:1.0\n")

	fc := &fakeChecker{
		updates: map[string]types.UpdateInfo{"good": {OldVer: "0.9", NewVer: "1.0"}},
		known:   map[string]struct{}{"helper": {}},
	}
	h := newHarness(t, base, &fakeBuilder{}, fc)
	h.c.Run(context.Background(), []string{"good", "helper"})

	require.Len(t, fc.taken, 1)
	assert.Equal(t, []string{"good"}, fc.taken[0], "a build the checker never reported is not acknowledged")
}

func TestRunAutomatic_EndToEnd(t *testing.T) {
	base := t.TempDir()
	writeTemplate(t, base, "app", "version:1.0\nrevision:1\ndepends:dep\n")
	writeTemplate(t, base, "dep", "version:2.0\nrevision:1\n")
	writeTemplate(t, base, "mystery", "version:3.0\nrevision:1\n")
	rm, head := initSourceRepo(t, base)

	// app has a pending update, dep is current upstream, and mystery
	// has no checker configuration at all.
	fc := &fakeChecker{
		updates: map[string]types.UpdateInfo{"app": {OldVer: "0.9", NewVer: "1.0"}},
		known:   map[string]struct{}{"dep": {}},
	}
	fb := &fakeBuilder{}
	h := newHarness(t, base, fb, fc, WithRepo(rm))

	failed := h.c.Run(context.Background(), nil)

	assert.Empty(t, failed)
	assert.Equal(t, []string{"dep", "app"}, fb.built, "the dependency builds first; mystery is withheld")
	require.Len(t, fc.taken, 1)
	assert.Equal(t, []string{"app"}, fc.taken[0], "dependency-only builds stay out of version bookkeeping")
	assert.Contains(t, h.fn.admin, "packages unknown to the version checker")

	snap, err := h.st.Load()
	require.NoError(t, err)
	assert.Equal(t, head, snap.LastRev)
}

func TestRunManual_BuildLogStored(t *testing.T) {
	base := t.TempDir()
	writeTemplate(t, base, "noisy", "version:1.0\n")

	fb := &fakeBuilder{fail: map[string]bool{"noisy": true}}
	h := newHarness(t, base, fb, &fakeChecker{})
	h.c.Run(context.Background(), []string{"noisy"})

	out, err := h.c.BuildLog("noisy")
	require.NoError(t, err)
	assert.Equal(t, "no dice", string(out))
}

func TestSummary(t *testing.T) {
	base := t.TempDir()
	writeTemplate(t, base, "one", "version:1.0\n")

	h := newHarness(t, base, &fakeBuilder{}, &fakeChecker{})
	require.Nil(t, h.c.LastRun())

	h.c.Run(context.Background(), []string{"one"})

	s := h.c.LastRun()
	require.NotNil(t, s)
	assert.True(t, s.Manual)
	assert.Equal(t, "succeeded", s.States["one"])
}
