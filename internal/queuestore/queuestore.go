package queuestore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/perch-social/satchel/internal/boot"
	"github.com/perch-social/satchel/internal/model"
)

// Store is the durable, insertion-ordered queue of actions still owed to the
// remote API. Status transitions are conditional updates so that a retried
// worker re-applying a transition is a no-op and terminal states are never
// overwritten.
type Store struct {
	db *sqlx.DB
}

func New(config *boot.Config) (*Store, error) {
	dbName := path.Join(config.DataDirectory, "queue.db")

	isCreating := false
	_, err := os.Stat(dbName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			isCreating = true
		}
	}

	db, err := sqlx.Connect("sqlite3", "file:"+dbName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &Store{db}
	if isCreating {
		if err := store.createTables(); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`create table actions(
		ID integer not null primary key autoincrement,
		ActionType text not null,
		Payload    text not null,
		EnqueuedAt DATETIME not null,
		RetryCount tinyint not null default 0,
		Status     tinyint not null default 0,
		LastError  text null
	)`)
	if err != nil {
		return fmt.Errorf("creating actions table: %w", err)
	}

	_, err = s.db.Exec(`create index idx_actions_status on actions(Status, EnqueuedAt)`)
	if err != nil {
		return fmt.Errorf("creating actions index: %w", err)
	}

	return nil
}

// Enqueue is a local-only write and always succeeds barring storage failure.
// The returned id is the FIFO ordering key.
func (s *Store) Enqueue(payload model.Payload) (int64, error) {
	data, err := model.EncodePayload(payload)
	if err != nil {
		return 0, err
	}

	res, err := s.db.Exec(`insert into actions
		(ActionType, Payload, EnqueuedAt, RetryCount, Status)
		values(?, ?, ?, 0, ?)`,
		payload.Type(), data, time.Now().UTC(), model.ActionStatusPending)
	if err != nil {
		return 0, fmt.Errorf("inserting action: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting action id: %w", err)
	}

	return id, nil
}

func (s *Store) Get(id int64) (*model.QueuedAction, error) {
	action := &model.QueuedAction{}
	err := s.db.Get(action, `select * from actions where ID = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorActionNotFound
		}
		return nil, fmt.Errorf("fetching action: %w", err)
	}
	return action, nil
}

// ListPending returns pending actions oldest first.
func (s *Store) ListPending() ([]model.QueuedAction, error) {
	actions := []model.QueuedAction{}
	err := s.db.Select(&actions, `select * from actions
		where Status = ?
		order by EnqueuedAt asc, ID asc`, model.ActionStatusPending)
	if err != nil {
		return nil, fmt.Errorf("listing pending actions: %w", err)
	}
	return actions, nil
}

func (s *Store) ListByStatus(status model.ActionStatus) ([]model.QueuedAction, error) {
	actions := []model.QueuedAction{}
	err := s.db.Select(&actions, `select * from actions
		where Status = ?
		order by EnqueuedAt asc, ID asc`, status)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	return actions, nil
}

func (s *Store) MarkInProgress(id int64) error {
	_, err := s.db.Exec(`update actions set Status = ?
		where ID = ? and Status in (?, ?)`,
		model.ActionStatusInProgress, id,
		model.ActionStatusPending, model.ActionStatusInProgress)
	if err != nil {
		return fmt.Errorf("marking action in progress: %w", err)
	}
	return nil
}

func (s *Store) MarkSucceeded(id int64) error {
	_, err := s.db.Exec(`update actions set Status = ?, LastError = null
		where ID = ? and Status <> ?`,
		model.ActionStatusSucceeded, id, model.ActionStatusFailed)
	if err != nil {
		return fmt.Errorf("marking action succeeded: %w", err)
	}
	return nil
}

// MarkRetry records a transient failure: the retry count goes up and the
// action returns to Pending for the next run.
func (s *Store) MarkRetry(id int64, actionError string) error {
	_, err := s.db.Exec(`update actions
		set Status = ?, RetryCount = RetryCount + 1, LastError = ?
		where ID = ? and Status in (?, ?)`,
		model.ActionStatusPending, actionError, id,
		model.ActionStatusPending, model.ActionStatusInProgress)
	if err != nil {
		return fmt.Errorf("marking action for retry: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure. Already-terminal rows are untouched.
func (s *Store) MarkFailed(id int64, actionError string) error {
	_, err := s.db.Exec(`update actions
		set Status = ?, RetryCount = RetryCount + 1, LastError = ?
		where ID = ? and Status in (?, ?)`,
		model.ActionStatusFailed, actionError, id,
		model.ActionStatusPending, model.ActionStatusInProgress)
	if err != nil {
		return fmt.Errorf("marking action failed: %w", err)
	}
	return nil
}

// RecoverStalled returns any action left InProgress by a crashed run to
// Pending. The outcome of its remote call is unknown, so it is re-driven.
func (s *Store) RecoverStalled() (int64, error) {
	res, err := s.db.Exec(`update actions set Status = ? where Status = ?`,
		model.ActionStatusPending, model.ActionStatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("recovering stalled actions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows, nil
}

// PurgeOlderThan garbage-collects Succeeded actions older than the retention
// window. Pending and Failed rows are never purged.
func (s *Store) PurgeOlderThan(age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	res, err := s.db.Exec(`delete from actions where Status = ? and EnqueuedAt < ?`,
		model.ActionStatusSucceeded, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging actions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows, nil
}
