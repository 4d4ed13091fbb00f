package storage

// Storage is an interface for a generic blobstore.
type Storage interface {
	Get([]byte) ([]byte, error)
	Put([]byte, []byte) error
	Del([]byte) error

	Keys(prefix []byte) ([][]byte, error)

	Close() error
}
