package zombiezen

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
	"zombiezen.com/go/sqlite/sqlitex"
)

// NewPool opens the SQLite database at dbPath with one connection per CPU.
// The default pool flags create the file and enable WAL.
func NewPool(dbPath string) (*sqlitex.Pool, error) {
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:%s", dbPath), sqlitex.PoolOptions{
		PoolSize: runtime.NumCPU(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open run store %s", dbPath)
	}
	return pool, nil
}
