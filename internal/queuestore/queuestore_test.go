package queuestore

import (
	"testing"

	"github.com/perch-social/satchel/internal/boot"
	"github.com/perch-social/satchel/internal/model"
	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	config := &boot.Config{DataDirectory: t.TempDir()}
	store, err := New(config)
	if err != nil {
		t.Fatalf("creating store: %+v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestQueueOrdering(t *testing.T) {
	assert := assert.New(t)
	store := newTestStore(t)

	first, err := store.Enqueue(model.SendMessagePayload{LocalID: "m1", ReceiverID: "42", Text: "hi"})
	assert.Nil(err)
	second, err := store.Enqueue(model.EditMessagePayload{LocalID: "m1", Text: "hi there"})
	assert.Nil(err)
	third, err := store.Enqueue(model.FollowUserPayload{UserID: "99"})
	assert.Nil(err)

	assert.Less(first, second)
	assert.Less(second, third)

	pending, err := store.ListPending()
	assert.Nil(err)
	assert.Len(pending, 3)
	assert.Equal(first, pending[0].ID)
	assert.Equal(second, pending[1].ID)
	assert.Equal(third, pending[2].ID)
	assert.Equal(model.ActionSendMessage, pending[0].ActionType)

	payload, err := pending[0].DecodePayload()
	assert.Nil(err)
	assert.Equal(model.SendMessagePayload{LocalID: "m1", ReceiverID: "42", Text: "hi"}, payload)
}

func TestStatusTransitions(t *testing.T) {
	assert := assert.New(t)
	store := newTestStore(t)

	id, err := store.Enqueue(model.FollowUserPayload{UserID: "1"})
	assert.Nil(err)

	t.Run("Succeed", func(t *testing.T) {
		assert.Nil(store.MarkInProgress(id))
		assert.Nil(store.MarkSucceeded(id))

		action, err := store.Get(id)
		assert.Nil(err)
		assert.Equal(model.ActionStatusSucceeded, action.Status)
		assert.Equal(0, action.RetryCount)
	})

	t.Run("Succeeded is idempotent", func(t *testing.T) {
		assert.Nil(store.MarkSucceeded(id))

		action, err := store.Get(id)
		assert.Nil(err)
		assert.Equal(model.ActionStatusSucceeded, action.Status)
	})

	t.Run("Succeeded is immutable", func(t *testing.T) {
		assert.Nil(store.MarkRetry(id, "boom"))
		assert.Nil(store.MarkFailed(id, "boom"))
		assert.Nil(store.MarkInProgress(id))

		action, err := store.Get(id)
		assert.Nil(err)
		assert.Equal(model.ActionStatusSucceeded, action.Status)
		assert.Equal(0, action.RetryCount)
		assert.Nil(action.LastError)
	})
}

func TestRetryAndTerminalFailure(t *testing.T) {
	assert := assert.New(t)
	store := newTestStore(t)

	id, err := store.Enqueue(model.LikePostPayload{PostID: "p1", Liked: true})
	assert.Nil(err)

	t.Run("Retry returns to pending", func(t *testing.T) {
		assert.Nil(store.MarkInProgress(id))
		assert.Nil(store.MarkRetry(id, "connection refused"))

		action, err := store.Get(id)
		assert.Nil(err)
		assert.Equal(model.ActionStatusPending, action.Status)
		assert.Equal(1, action.RetryCount)
		if assert.NotNil(action.LastError) {
			assert.Equal("connection refused", *action.LastError)
		}
	})

	t.Run("Terminal failure", func(t *testing.T) {
		assert.Nil(store.MarkInProgress(id))
		assert.Nil(store.MarkRetry(id, "connection refused"))
		assert.Nil(store.MarkInProgress(id))
		assert.Nil(store.MarkFailed(id, "connection refused"))

		action, err := store.Get(id)
		assert.Nil(err)
		assert.Equal(model.ActionStatusFailed, action.Status)
		assert.Equal(3, action.RetryCount)
	})

	t.Run("Failed is immutable", func(t *testing.T) {
		assert.Nil(store.MarkSucceeded(id))
		assert.Nil(store.MarkFailed(id, "again"))

		action, err := store.Get(id)
		assert.Nil(err)
		assert.Equal(model.ActionStatusFailed, action.Status)
		assert.Equal(3, action.RetryCount)
	})
}

func TestRecoverStalled(t *testing.T) {
	assert := assert.New(t)
	store := newTestStore(t)

	id, err := store.Enqueue(model.FollowUserPayload{UserID: "7"})
	assert.Nil(err)
	done, err := store.Enqueue(model.UnfollowUserPayload{UserID: "8"})
	assert.Nil(err)

	// Simulate a crash mid-run: one action stuck InProgress, one finished.
	assert.Nil(store.MarkInProgress(id))
	assert.Nil(store.MarkInProgress(done))
	assert.Nil(store.MarkSucceeded(done))

	recovered, err := store.RecoverStalled()
	assert.Nil(err)
	assert.Equal(int64(1), recovered)

	pending, err := store.ListPending()
	assert.Nil(err)
	assert.Len(pending, 1)
	assert.Equal(id, pending[0].ID)

	action, err := store.Get(done)
	assert.Nil(err)
	assert.Equal(model.ActionStatusSucceeded, action.Status)
}

func TestPurgeOlderThan(t *testing.T) {
	assert := assert.New(t)
	store := newTestStore(t)

	succeeded, err := store.Enqueue(model.FollowUserPayload{UserID: "1"})
	assert.Nil(err)
	pending, err := store.Enqueue(model.FollowUserPayload{UserID: "2"})
	assert.Nil(err)
	failed, err := store.Enqueue(model.FollowUserPayload{UserID: "3"})
	assert.Nil(err)

	assert.Nil(store.MarkInProgress(succeeded))
	assert.Nil(store.MarkSucceeded(succeeded))
	assert.Nil(store.MarkInProgress(failed))
	assert.Nil(store.MarkFailed(failed, "boom"))

	// Zero retention: anything purgeable is purged, yet Pending and Failed
	// rows survive regardless of age.
	purged, err := store.PurgeOlderThan(0)
	assert.Nil(err)
	assert.Equal(int64(1), purged)

	_, err = store.Get(succeeded)
	assert.ErrorIs(err, model.ErrorActionNotFound)

	action, err := store.Get(pending)
	assert.Nil(err)
	assert.Equal(model.ActionStatusPending, action.Status)

	action, err = store.Get(failed)
	assert.Nil(err)
	assert.Equal(model.ActionStatusFailed, action.Status)
}
