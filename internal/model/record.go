package model

import "time"

type RecordKind string

const (
	RecordKindMessage RecordKind = "message"
	RecordKindPost    RecordKind = "post"
	RecordKindStory   RecordKind = "story"
)

type SyncStatus int

const (
	SyncStatusPending SyncStatus = iota
	SyncStatusSynced
	SyncStatusFailed
)

// LocalRecord is the optimistic local copy of a message, post or story.
// RemoteID is nil until the server acknowledges creation; a record with a nil
// RemoteID is never Synced. A record created offline stays CreatedOffline
// until its queued action succeeds and backfills the remote id.
type LocalRecord struct {
	LocalID        string     `db:"LocalID"`
	RemoteID       *string    `db:"RemoteID"`
	Kind           RecordKind `db:"Kind"`
	SyncStatus     SyncStatus `db:"SyncStatus"`
	CreatedOffline bool       `db:"CreatedOffline"`
	ThreadKey      string     `db:"ThreadKey"`
	Body           string     `db:"Body"`
	MediaURL       string     `db:"MediaURL"`
	MediaType      string     `db:"MediaType"`
	VanishMode     bool       `db:"VanishMode"`
	CreatedAt      time.Time  `db:"CreatedAt"`
	ExpiresAt      *time.Time `db:"ExpiresAt"`
}
