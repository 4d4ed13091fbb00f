package state

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zstd"

	"github.com/pkgmill/pkgmill/pkg/storage"
)

var (
	keyRev      = []byte("state/rev")
	keyFailures = []byte("state/failures")

	logPrefix = "log/"
)

// A Snapshot is the durable cross-run state: the last source control
// revision fully processed and the failure record mapping package
// name to the version it last failed at.
type Snapshot struct {
	LastRev  string
	Failures map[string]string
}

// Store wraps a blobstore with the typed state pkgmill keeps between
// runs.  All mutation goes through Commit, which is called exactly
// once per run after the build loop concludes.
type Store struct {
	l hclog.Logger
	s storage.Storage
}

// New returns a state store on top of the provided blobstore.
func New(l hclog.Logger, s storage.Storage) *Store {
	return &Store{
		l: l.Named("state"),
		s: s,
	}
}

// Load reads the snapshot from durable storage.  A store with no
// prior state yields an empty snapshot, not an error.
func (st *Store) Load() (*Snapshot, error) {
	snap := Snapshot{
		Failures: make(map[string]string),
	}

	rev, err := st.s.Get(keyRev)
	if err != nil {
		st.l.Error("Error loading revision", "error", err)
		return nil, err
	}
	snap.LastRev = string(rev)

	fbytes, err := st.s.Get(keyFailures)
	if err != nil {
		st.l.Error("Error loading failure record", "error", err)
		return nil, err
	}
	if len(fbytes) > 0 {
		if err := json.Unmarshal(fbytes, &snap.Failures); err != nil {
			st.l.Error("Error decoding failure record", "error", err)
			return nil, err
		}
	}

	st.l.Debug("Loaded state", "rev", snap.LastRev, "failing", len(snap.Failures))
	return &snap, nil
}

// Commit writes the snapshot and the captured build logs in one
// pass.  Logs are compressed; each package keeps only the output of
// its most recent attempt.
func (st *Store) Commit(snap *Snapshot, logs map[string][]byte) error {
	fbytes, err := json.Marshal(snap.Failures)
	if err != nil {
		st.l.Error("Error encoding failure record", "error", err)
		return err
	}
	if err := st.s.Put(keyFailures, fbytes); err != nil {
		st.l.Error("Error writing failure record", "error", err)
		return err
	}
	if err := st.s.Put(keyRev, []byte(snap.LastRev)); err != nil {
		st.l.Error("Error writing revision", "error", err)
		return err
	}

	for pkg, out := range logs {
		if err := st.putLog(pkg, out); err != nil {
			st.l.Warn("Error writing build log", "package", pkg, "error", err)
		}
	}
	st.l.Debug("Committed state", "rev", snap.LastRev, "failing", len(snap.Failures), "logs", len(logs))
	return nil
}

// BuildLog returns the decompressed output of the most recent build
// of the named package, or nil if none is stored.
func (st *Store) BuildLog(pkg string) ([]byte, error) {
	v, err := st.s.Get([]byte(logPrefix + pkg))
	if err != nil || v == nil {
		return nil, err
	}

	d, err := zstd.NewReader(bytes.NewReader(v))
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return io.ReadAll(d)
}

// LoggedPackages returns the names of every package with a stored
// build log, in sorted order.
func (st *Store) LoggedPackages() ([]string, error) {
	keys, err := st.s.Keys([]byte(logPrefix))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(string(k), logPrefix))
	}
	sort.Strings(names)
	return names, nil
}

func (st *Store) putLog(pkg string, out []byte) error {
	buf := &bytes.Buffer{}
	e, err := zstd.NewWriter(buf)
	if err != nil {
		return err
	}
	if _, err := e.Write(out); err != nil {
		e.Close()
		return err
	}
	if err := e.Close(); err != nil {
		return err
	}
	return st.s.Put([]byte(logPrefix+pkg), buf.Bytes())
}
