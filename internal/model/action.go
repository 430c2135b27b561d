package model

import "time"

// ActionType names a queued user mutation. The set is fixed; each type maps
// to exactly one remote endpoint.
type ActionType string

const (
	ActionSendMessage   ActionType = "send_message"
	ActionEditMessage   ActionType = "edit_message"
	ActionDeleteMessage ActionType = "delete_message"
	ActionCreatePost    ActionType = "create_post"
	ActionEditPost      ActionType = "edit_post"
	ActionDeletePost    ActionType = "delete_post"
	ActionCreateStory   ActionType = "create_story"
	ActionDeleteStory   ActionType = "delete_story"
	ActionLikePost      ActionType = "like_post"
	ActionCommentPost   ActionType = "comment_post"
	ActionFollowUser    ActionType = "follow_user"
	ActionUnfollowUser  ActionType = "unfollow_user"
)

type ActionStatus int

const (
	ActionStatusPending ActionStatus = iota
	ActionStatusInProgress
	ActionStatusSucceeded
	ActionStatusFailed
)

// QueuedAction is one row of the action queue. ID is the insertion-order key.
// Status only ever moves Pending -> InProgress -> {Succeeded, Pending, Failed};
// Succeeded and Failed are terminal.
type QueuedAction struct {
	ID         int64        `db:"ID"`
	ActionType ActionType   `db:"ActionType"`
	RawPayload []byte       `db:"Payload"`
	EnqueuedAt time.Time    `db:"EnqueuedAt"`
	RetryCount int          `db:"RetryCount"`
	Status     ActionStatus `db:"Status"`
	LastError  *string      `db:"LastError"`
}

func (a *QueuedAction) DecodePayload() (Payload, error) {
	return DecodePayload(a.ActionType, a.RawPayload)
}
