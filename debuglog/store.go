package debuglog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/sarchlab/convpred/insts"
	"github.com/sarchlab/convpred/timing/predictor"
)

// ErrRunNotFound indicates the requested run doesn't exist.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	records    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	seq             INTEGER NOT NULL,
	inst_id         INTEGER NOT NULL,
	pc              INTEGER NOT NULL,
	next_pc         INTEGER NOT NULL,
	class           INTEGER NOT NULL,
	fetch_cycle     INTEGER NOT NULL,
	predict_cycle   INTEGER NOT NULL,
	execute_cycle   INTEGER NOT NULL,
	predicted       INTEGER,
	reference       INTEGER,
	resolved        INTEGER,
	src_regs        TEXT NOT NULL,
	dst_reg         INTEGER,
	mem_va          INTEGER NOT NULL,
	ghist           INTEGER NOT NULL,
	load_dependence INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS records_depth ON records(run_id, load_dependence);
`

// Run describes a persisted replay.
type Run struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	Records   int
}

// DepthRow summarizes the conditional branches of one dependence depth.
type DepthRow struct {
	Depth          int
	Branches       int
	Mispredictions int
}

// Store persists debug logs into a SQLite database.
type Store struct {
	db  *sql.DB
	log commonlog.Logger
}

// OpenStore opens (or creates) the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps in-memory databases coherent and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &Store{db: db, log: commonlog.GetLogger("convpred.debuglog")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun stores records under a fresh run id and returns it.
func (s *Store) SaveRun(ctx context.Context, name string, records []Record) (uuid.UUID, error) {
	id := uuid.New()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		"INSERT INTO runs (id, name, created_at, records) VALUES (?, ?, ?, ?)",
		id.String(), name, time.Now().UnixNano(), len(records))
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (
			run_id, seq, inst_id, pc, next_pc, class,
			fetch_cycle, predict_cycle, execute_cycle,
			predicted, reference, resolved,
			src_regs, dst_reg, mem_va, ghist, load_dependence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return uuid.Nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		_, err := stmt.ExecContext(ctx,
			id.String(), i, int64(r.ID), int64(r.PC), int64(r.NextPC), int(r.Class),
			int64(r.FetchCycle), int64(r.PredictCycle), int64(r.ExecuteCycle),
			nullableBool(r.Predicted), nullableBool(r.Reference), nullableBool(r.Resolved),
			insts.FormatRegs(r.SrcRegs), nullableReg(r.DstReg),
			int64(r.MemVA), int64(r.GHist), r.LoadDependence,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("inserting record %v: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.log.Debugf("saved run %s (%s) with %d records", id, name, len(records))
	return id, nil
}

// Run returns the metadata of a stored run.
func (s *Store) Run(ctx context.Context, id uuid.UUID) (Run, error) {
	var (
		run     Run
		rawID   string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, records FROM runs WHERE id = ?", id.String()).
		Scan(&rawID, &run.Name, &created, &run.Records)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return Run{}, fmt.Errorf("querying run: %w", err)
	}

	run.ID, err = uuid.Parse(rawID)
	if err != nil {
		return Run{}, fmt.Errorf("parsing run id: %w", err)
	}
	run.CreatedAt = time.Unix(0, created)

	return run, nil
}

// Runs lists every stored run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at, records FROM runs ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run     Run
			rawID   string
			created int64
		)
		if err := rows.Scan(&rawID, &run.Name, &created, &run.Records); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if run.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parsing run id: %w", err)
		}
		run.CreatedAt = time.Unix(0, created)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Records loads the records of a run in their stored order.
func (s *Store) Records(ctx context.Context, id uuid.UUID) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT inst_id, pc, next_pc, class,
			fetch_cycle, predict_cycle, execute_cycle,
			predicted, reference, resolved,
			src_regs, dst_reg, mem_va, ghist, load_dependence
		FROM records WHERE run_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			instID, pc, nextPC, memVA, ghist int64
			fetch, predict, execute          int64
			class                            int
			predicted, reference, resolved   sql.NullBool
			srcRegs                          string
			dstReg                           sql.NullInt64
			r                                Record
		)
		err := rows.Scan(&instID, &pc, &nextPC, &class,
			&fetch, &predict, &execute,
			&predicted, &reference, &resolved,
			&srcRegs, &dstReg, &memVA, &ghist, &r.LoadDependence)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}

		r.ID = predictor.InstID(instID)
		r.PC = uint64(pc)
		r.NextPC = uint64(nextPC)
		r.Class = insts.Class(class)
		r.FetchCycle = uint64(fetch)
		r.PredictCycle = uint64(predict)
		r.ExecuteCycle = uint64(execute)
		r.Predicted = optionalBool(predicted)
		r.Reference = optionalBool(reference)
		r.Resolved = optionalBool(resolved)
		r.MemVA = uint64(memVA)
		r.GHist = uint64(ghist)
		if dstReg.Valid {
			r.DstReg = insts.SomeReg(insts.RegID(dstReg.Int64))
		}
		if r.SrcRegs, err = parseRegs(srcRegs); err != nil {
			return nil, err
		}

		records = append(records, r)
	}

	return records, rows.Err()
}

// DepthSummary counts the resolved conditional branches of a run and their
// mispredictions per dependence depth.
func (s *Store) DepthSummary(ctx context.Context, id uuid.UUID) ([]DepthRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT load_dependence,
			COUNT(*),
			SUM(CASE WHEN predicted IS NOT NULL AND predicted != resolved THEN 1 ELSE 0 END)
		FROM records
		WHERE run_id = ? AND class = ? AND resolved IS NOT NULL
		GROUP BY load_dependence
		ORDER BY load_dependence`,
		id.String(), int(insts.ClassCondBranch))
	if err != nil {
		return nil, fmt.Errorf("querying depth summary: %w", err)
	}
	defer rows.Close()

	var summary []DepthRow
	for rows.Next() {
		var row DepthRow
		if err := rows.Scan(&row.Depth, &row.Branches, &row.Mispredictions); err != nil {
			return nil, fmt.Errorf("scanning depth summary: %w", err)
		}
		summary = append(summary, row)
	}

	return summary, rows.Err()
}

func nullableBool(b insts.OptionalBool) any {
	v, ok := b.Get()
	if !ok {
		return nil
	}
	if v {
		return 1
	}
	return 0
}

func nullableReg(r insts.OptionalReg) any {
	reg, ok := r.Get()
	if !ok {
		return nil
	}
	return int64(reg)
}

func optionalBool(b sql.NullBool) insts.OptionalBool {
	if !b.Valid {
		return insts.OptionalBool{}
	}
	return insts.SomeBool(b.Bool)
}

// parseRegs is the inverse of insts.FormatRegs.
func parseRegs(s string) ([]insts.RegID, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ";")
	regs := make([]insts.RegID, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing register list %q: %w", s, err)
		}
		regs[i] = insts.RegID(v)
	}
	return regs, nil
}
