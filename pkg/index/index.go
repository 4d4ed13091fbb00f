package index

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zstd"
	"howett.net/plist"
)

// An Entry is one published artifact in the binary index.
type Entry struct {
	Name    string `plist:"pkgname"`
	Version string `plist:"pkgver"`
}

// Service interrogates the published artifact indexes to answer
// whether a dependency is already satisfied without an in-run build.
type Service struct {
	l hclog.Logger

	artifacts map[string]*Entry
}

// NewService creates a Service with no indexes loaded.
func NewService(l hclog.Logger) *Service {
	is := Service{
		l:         l.Named("index"),
		artifacts: make(map[string]*Entry),
	}
	return &is
}

// LoadIndex retrieves an index by URL and merges its contents into
// the service.  Both file:// and http(s) schemes are supported.
func (is *Service) LoadIndex(path string) error {
	var indexBytes []byte
	var err error

	switch {
	case strings.HasPrefix(path, "http"):
		indexBytes, err = is.fetchHTTP(path)
	case strings.HasPrefix(path, "file"):
		indexBytes, err = is.fetchFile(path)
	default:
		err = errors.New("unknown index scheme")
		is.l.Error("Index scheme must be either file or http(s)")
	}
	if err != nil {
		return err
	}

	return is.parseIndex(indexBytes)
}

// ArtifactCount is a quick check of how many artifacts this service
// knows about.
func (is *Service) ArtifactCount() int {
	return len(is.artifacts)
}

// Available reports whether the named artifact is published at
// exactly the given version.  The index stores pkgver strings of the
// form name-version_revision, so the name is prepended before
// comparing.
func (is *Service) Available(artifact, version string) bool {
	e, ok := is.artifacts[artifact]
	if !ok {
		return false
	}
	return e.Version == artifact+"-"+version
}

func (is *Service) fetchHTTP(path string) ([]byte, error) {
	resp, err := http.Get(path)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (is *Service) fetchFile(path string) ([]byte, error) {
	return os.ReadFile(strings.TrimPrefix(path, "file://"))
}

// The index is a zstd compressed tarball holding an index.plist with
// the artifact listing inside.
func (is *Service) parseIndex(indexBytes []byte) error {
	ibr := bytes.NewReader(indexBytes)

	d, err := zstd.NewReader(ibr)
	if err != nil {
		return err
	}
	defer d.Close()

	tarchive := tar.NewReader(d)

	for {
		header, err := tarchive.Next()
		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}

		if header.Name != "index.plist" {
			continue
		}

		buf := &bytes.Buffer{}
		if _, err := buf.ReadFrom(tarchive); err != nil {
			return err
		}
		rs := bytes.NewReader(buf.Bytes())
		dec := plist.NewDecoder(rs)
		parsed := make(map[string]*Entry)
		if err := dec.Decode(&parsed); err != nil {
			return err
		}
		for name, e := range parsed {
			is.artifacts[name] = e
		}
		return nil
	}
}
