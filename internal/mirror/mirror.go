package mirror

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

// Store holds the optimistic local copies of messages, posts and stories so
// reads never depend on network state. The sync worker is driven by the
// action queue, not by this mirror; the mirror only tracks per-record sync
// state for display and remote-id resolution.
type Store struct {
	db *sqlx.DB
}

func New(config *boot.Config) (*Store, error) {
	dbName := path.Join(config.DataDirectory, "mirror.db")

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
	_, err := s.db.Exec(`create table records(
		LocalID        text not null primary key,
		RemoteID       text null,
		Kind           text not null,
		SyncStatus     tinyint not null default 0,
		CreatedOffline tinyint not null default 0,
		ThreadKey      text not null,
		Body           text not null default '',
		MediaURL       text not null default '',
		MediaType      text not null default '',
		VanishMode     tinyint not null default 0,
		CreatedAt      DATETIME not null,
		ExpiresAt      DATETIME null
	)`)
	if err != nil {
		return fmt.Errorf("creating records table: %w", err)
	}

	_, err = s.db.Exec(`create index idx_records_thread on records(ThreadKey, CreatedAt)`)
	if err != nil {
		return fmt.Errorf("creating records index: %w", err)
	}

	return nil
}

// UpsertLocal inserts or replaces a record by LocalID.
func (s *Store) UpsertLocal(record *model.LocalRecord) error {
	_, err := s.db.NamedExec(`insert into records
		(LocalID, RemoteID, Kind, SyncStatus, CreatedOffline, ThreadKey, Body, MediaURL, MediaType, VanishMode, CreatedAt, ExpiresAt)
		values(:LocalID, :RemoteID, :Kind, :SyncStatus, :CreatedOffline, :ThreadKey, :Body, :MediaURL, :MediaType, :VanishMode, :CreatedAt, :ExpiresAt)
		on conflict(LocalID) do update set
			Body = excluded.Body,
			MediaURL = excluded.MediaURL,
			MediaType = excluded.MediaType,
			VanishMode = excluded.VanishMode,
			ExpiresAt = excluded.ExpiresAt`, record)
	if err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}
	return nil
}

func (s *Store) Get(localID string) (*model.LocalRecord, error) {
	record := &model.LocalRecord{}
	err := s.db.Get(record, `select * from records where LocalID = ?`, localID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorRecordNotFound
		}
		return nil, fmt.Errorf("fetching record: %w", err)
	}
	return record, nil
}

// QueryByAssociation returns the records of one thread or owner, oldest first.
func (s *Store) QueryByAssociation(threadKey string) ([]model.LocalRecord, error) {
	records := []model.LocalRecord{}
	err := s.db.Select(&records, `select * from records
		where ThreadKey = ?
		order by CreatedAt asc, LocalID asc`, threadKey)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	return records, nil
}

// MarkSynced backfills the remote id and flips the record to Synced. The
// conditional update makes a re-applied transition a no-op, so a retried run
// cannot backfill twice. Returns whether the transition applied.
func (s *Store) MarkSynced(localID string, remoteID string) (bool, error) {
	res, err := s.db.Exec(`update records
		set RemoteID = ?, SyncStatus = ?, CreatedOffline = 0
		where LocalID = ? and SyncStatus <> ?`,
		remoteID, model.SyncStatusSynced, localID, model.SyncStatusSynced)
	if err != nil {
		return false, fmt.Errorf("marking record synced: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows == 1, nil
}

func (s *Store) MarkSyncFailed(localID string) error {
	_, err := s.db.Exec(`update records set SyncStatus = ?
		where LocalID = ? and SyncStatus <> ?`,
		model.SyncStatusFailed, localID, model.SyncStatusSynced)
	if err != nil {
		return fmt.Errorf("marking record sync failed: %w", err)
	}
	return nil
}

// RemoteIDFor resolves a local id to its server-assigned id, or returns
// ErrorRemoteIDUnresolved when the creating action has not yet succeeded.
func (s *Store) RemoteIDFor(localID string) (string, error) {
	record, err := s.Get(localID)
	if err != nil {
		return "", err
	}
	if record.RemoteID == nil || *record.RemoteID == "" {
		return "", model.ErrorRemoteIDUnresolved
	}
	return *record.RemoteID, nil
}

func (s *Store) Delete(localID string) error {
	_, err := s.db.Exec(`delete from records where LocalID = ?`, localID)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// ListPendingForSync is a diagnostics view; the sync worker is driven by the
// action queue, never by this list.
func (s *Store) ListPendingForSync() ([]model.LocalRecord, error) {
	records := []model.LocalRecord{}
	err := s.db.Select(&records, `select * from records
		where SyncStatus = ?
		order by CreatedAt asc, LocalID asc`, model.SyncStatusPending)
	if err != nil {
		return nil, fmt.Errorf("listing pending records: %w", err)
	}
	return records, nil
}

// ExpireStories removes story records past their expiry.
func (s *Store) ExpireStories(now time.Time) (int64, error) {
	res, err := s.db.Exec(`delete from records
		where Kind = ? and ExpiresAt is not null and ExpiresAt < ?`,
		model.RecordKindStory, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("expiring stories: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows, nil
}
