package chunkdb

import (
	"context"
	"database/sql"
	"time"

	"voxelstream.ai/internal/stream/chunk"
)

type EventRow struct {
	RunID  string
	Stamp  uint64
	Type   string
	Coord  chunk.Coord
	From   string
	To     string
	Task   string
	Reason string
	At     time.Time
}

// RecordEvent queues e for the writer goroutine. It never blocks: when the
// writer falls behind the row is dropped and counted. The journal remains
// the source of truth.
func (s *Store) RecordEvent(e EventRow) {
	if s == nil || s.closed.Load() {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case s.ch <- e:
	default:
		s.eventDrops.Add(1)
	}
}

// Events returns the newest events, optionally only those of one type.
func (s *Store) Events(ctx context.Context, typ string, limit int) ([]EventRow, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stamp, type, cx, cy, cz, from_state, to_state, task, reason, at
		 FROM events WHERE (? = '' OR type = ?) ORDER BY id DESC LIMIT ?`, typ, typ, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EventRow
	for rows.Next() {
		var (
			e      EventRow
			stamp  int64
			task   sql.NullString
			reason sql.NullString
			at     string
		)
		if err := rows.Scan(&e.RunID, &stamp, &e.Type, &e.Coord.X, &e.Coord.Y, &e.Coord.Z, &e.From, &e.To, &task, &reason, &at); err != nil {
			return nil, err
		}
		e.Stamp = uint64(stamp)
		e.Task = task.String
		e.Reason = reason.String
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) loop() {
	ctx := context.Background()

	insert, _ := s.db.Prepare(`INSERT INTO events(run_id,stamp,type,cx,cy,cz,from_state,to_state,task,reason,at) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insert != nil {
			_ = insert.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for e := range s.ch {
		if insert == nil {
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		if _, err := tx.Stmt(insert).Exec(
			e.RunID,
			int64(e.Stamp),
			e.Type,
			e.Coord.X, e.Coord.Y, e.Coord.Z,
			e.From,
			e.To,
			e.Task,
			e.Reason,
			e.At.UTC().Format(time.RFC3339Nano),
		); err != nil {
			rollback()
			continue
		}
		opCount++
		// Commit when idle so readers see recent rows.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}
