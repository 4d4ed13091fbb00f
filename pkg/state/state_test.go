package state

import (
	"bytes"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestLoadEmpty(t *testing.T) {
	st := New(hclog.NewNullLogger(), newMemStore())

	snap, err := st.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.LastRev)
	assert.Empty(t, snap.Failures)
}

func TestCommitRoundTrip(t *testing.T) {
	st := New(hclog.NewNullLogger(), newMemStore())

	snap := &Snapshot{
		LastRev: "0ee5b487",
		Failures: map[string]string{
			"widget": "1.4.2",
		},
	}
	require.NoError(t, st.Commit(snap, nil))

	got, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "0ee5b487", got.LastRev)
	assert.Equal(t, snap.Failures, got.Failures)
}

func TestFailureRecordMutation(t *testing.T) {
	st := New(hclog.NewNullLogger(), newMemStore())

	require.NoError(t, st.Commit(&Snapshot{Failures: map[string]string{"a": "1.0", "b": "2.0"}}, nil))

	snap, err := st.Load()
	require.NoError(t, err)
	delete(snap.Failures, "a")
	snap.Failures["c"] = "3.0"
	require.NoError(t, st.Commit(snap, nil))

	got, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "2.0", "c": "3.0"}, got.Failures)
}

func TestBuildLogRoundTrip(t *testing.T) {
	st := New(hclog.NewNullLogger(), newMemStore())

	logs := map[string][]byte{
		"widget": []byte("configure: ok\nmake: error 2\n"),
	}
	require.NoError(t, st.Commit(&Snapshot{Failures: map[string]string{}}, logs))

	out, err := st.BuildLog("widget")
	require.NoError(t, err)
	assert.Equal(t, logs["widget"], out)

	none, err := st.BuildLog("other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestLoggedPackages(t *testing.T) {
	st := New(hclog.NewNullLogger(), newMemStore())

	logs := map[string][]byte{
		"zeta":  []byte("z"),
		"alpha": []byte("a"),
	}
	require.NoError(t, st.Commit(&Snapshot{Failures: map[string]string{}}, logs))

	names, err := st.LoggedPackages()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}
