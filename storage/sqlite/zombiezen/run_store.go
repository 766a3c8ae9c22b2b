package zombiezen

import (
	"context"
	"time"

	"github.com/aSeaFood/STER/storage"
	"github.com/pkg/errors"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// RunStore keeps epoch and test records in SQLite.
type RunStore struct {
	pool *sqlitex.Pool
}

var _ storage.RunRepository = (*RunStore)(nil)

func NewRunStore(pool *sqlitex.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Open creates the database at dbPath if needed and returns a store on it.
// The caller closes the returned pool.
func Open(dbPath string) (*RunStore, *sqlitex.Pool, error) {
	pool, err := NewPool(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := CreateSchemas(pool, "runs.sql"); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return NewRunStore(pool), pool, nil
}

func stamp(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixNano()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// WriteEpoch inserts r, replacing an earlier record of the same run,
// variant and epoch.
func (s *RunStore) WriteEpoch(r storage.EpochRecord) error {
	conn, err := s.pool.Take(context.TODO())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT OR REPLACE INTO epochs
		(run, variant, epoch, loss, seq_p, seq_r, seq_f, triplet_f1, best, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []interface{}{r.Run, r.Variant, r.Epoch, r.Loss, r.SeqP, r.SeqR, r.SeqF, r.TripletF1, boolInt(r.Best), stamp(r.Created)},
	})
	return errors.Wrapf(err, "write epoch %d of %s/%s", r.Epoch, r.Run, r.Variant)
}

func (s *RunStore) WriteTest(r storage.TestRecord) error {
	conn, err := s.pool.Take(context.TODO())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO tests
		(run, variant, epoch, mode, correct, predicted, reference, precision, recall, f1, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []interface{}{r.Run, r.Variant, r.Epoch, r.Mode, r.Correct, r.Predicted, r.Reference, r.Precision, r.Recall, r.F1, stamp(r.Created)},
	})
	return errors.Wrapf(err, "write test of %s/%s", r.Run, r.Variant)
}

func (s *RunStore) Runs() ([]string, error) {
	conn, err := s.pool.Take(context.TODO())
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var runs []string
	err = sqlitex.Execute(conn, `SELECT run FROM (
			SELECT run, created FROM epochs UNION ALL SELECT run, created FROM tests
		) GROUP BY run ORDER BY MIN(created), run`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			runs = append(runs, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	return runs, nil
}

func (s *RunStore) Epochs(run string) ([]storage.EpochRecord, error) {
	conn, err := s.pool.Take(context.TODO())
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []storage.EpochRecord
	err = sqlitex.Execute(conn, `SELECT variant, epoch, loss, seq_p, seq_r, seq_f, triplet_f1, best, created
		FROM epochs WHERE run = ? ORDER BY epoch, variant`, &sqlitex.ExecOptions{
		Args: []interface{}{run},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, storage.EpochRecord{
				Run:       run,
				Variant:   stmt.ColumnText(0),
				Epoch:     stmt.ColumnInt(1),
				Loss:      stmt.ColumnFloat(2),
				SeqP:      stmt.ColumnFloat(3),
				SeqR:      stmt.ColumnFloat(4),
				SeqF:      stmt.ColumnFloat(5),
				TripletF1: stmt.ColumnFloat(6),
				Best:      stmt.ColumnInt(7) != 0,
				Created:   time.Unix(0, stmt.ColumnInt64(8)),
			})
			return nil
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read epochs of %s", run)
	}
	return out, nil
}

func (s *RunStore) Tests(run string) ([]storage.TestRecord, error) {
	conn, err := s.pool.Take(context.TODO())
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []storage.TestRecord
	err = sqlitex.Execute(conn, `SELECT variant, epoch, mode, correct, predicted, reference, precision, recall, f1, created
		FROM tests WHERE run = ? ORDER BY id`, &sqlitex.ExecOptions{
		Args: []interface{}{run},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, storage.TestRecord{
				Run:       run,
				Variant:   stmt.ColumnText(0),
				Epoch:     stmt.ColumnInt(1),
				Mode:      stmt.ColumnInt(2),
				Correct:   stmt.ColumnInt(3),
				Predicted: stmt.ColumnInt(4),
				Reference: stmt.ColumnInt(5),
				Precision: stmt.ColumnFloat(6),
				Recall:    stmt.ColumnFloat(7),
				F1:        stmt.ColumnFloat(8),
				Created:   time.Unix(0, stmt.ColumnInt64(9)),
			})
			return nil
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read tests of %s", run)
	}
	return out, nil
}
