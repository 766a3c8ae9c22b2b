package zombiezen

import (
	"context"
	"embed"
	"path"

	"github.com/pkg/errors"
	"zombiezen.com/go/sqlite/sqlitex"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// CreateSchemas runs the embedded script sql/<schemaName>. The scripts only
// create missing tables, so it is safe on an existing database.
func CreateSchemas(pool *sqlitex.Pool, schemaName string) error {
	scriptPath := path.Join("sql", schemaName)
	script, err := sqlFiles.ReadFile(scriptPath)
	if err != nil {
		return errors.Wrapf(err, "read embedded sql file %s", scriptPath)
	}

	conn, err := pool.Take(context.TODO())
	if err != nil {
		return err
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, string(script), nil); err != nil {
		return errors.Wrapf(err, "execute script %s", schemaName)
	}
	return nil
}
