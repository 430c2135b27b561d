package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/perch-social/satchel/internal/metrics"
	"github.com/perch-social/satchel/internal/model"
)

type QueueStore interface {
	Enqueue(payload model.Payload) (int64, error)
	ListByStatus(status model.ActionStatus) ([]model.QueuedAction, error)
	PurgeOlderThan(age time.Duration) (int64, error)
}

type MirrorStore interface {
	UpsertLocal(record *model.LocalRecord) error
	Get(localID string) (*model.LocalRecord, error)
	QueryByAssociation(threadKey string) ([]model.LocalRecord, error)
	ListPendingForSync() ([]model.LocalRecord, error)
}

type enqueueRequest struct {
	Type    model.ActionType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

type enqueueResponse struct {
	ActionID int64  `json:"action_id"`
	LocalID  string `json:"local_id,omitempty"`
}

// EnqueueAction accepts a user mutation, applies it optimistically to the
// local mirror and queues it for the sync worker. The write is local-only and
// succeeds regardless of network state.
func EnqueueAction(queue QueueStore, mirror MirrorStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		request := &enqueueRequest{}
		if err := c.Bind(request); err != nil {
			return err
		}

		payload, err := model.DecodePayload(request.Type, request.Payload)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		payload, localID, err := applyOptimistic(mirror, payload)
		if err != nil {
			return err
		}

		actionID, err := queue.Enqueue(payload)
		if err != nil {
			return err
		}
		metrics.ActionsEnqueued.WithLabelValues(string(request.Type)).Inc()

		return c.JSON(http.StatusAccepted, enqueueResponse{ActionID: actionID, LocalID: localID})
	}
}

// applyOptimistic gives entity-creating actions a local id and mirror record
// up front, and folds edits into the existing record so reads see the
// mutation before the server does.
func applyOptimistic(mirror MirrorStore, payload model.Payload) (model.Payload, string, error) {
	now := time.Now().UTC()

	switch p := payload.(type) {
	case model.SendMessagePayload:
		if p.LocalID == "" {
			p.LocalID = model.CreateID()
		}
		record := &model.LocalRecord{
			LocalID:        p.LocalID,
			Kind:           model.RecordKindMessage,
			SyncStatus:     model.SyncStatusPending,
			CreatedOffline: true,
			ThreadKey:      p.ReceiverID,
			Body:           p.Text,
			MediaURL:       p.MediaURL,
			MediaType:      p.MediaType,
			VanishMode:     p.Vanish,
			CreatedAt:      now,
		}
		return p, p.LocalID, mirror.UpsertLocal(record)

	case model.CreatePostPayload:
		if p.LocalID == "" {
			p.LocalID = model.CreateID()
		}
		record := &model.LocalRecord{
			LocalID:        p.LocalID,
			Kind:           model.RecordKindPost,
			SyncStatus:     model.SyncStatusPending,
			CreatedOffline: true,
			ThreadKey:      "posts",
			Body:           p.Caption,
			MediaURL:       p.MediaURL,
			MediaType:      p.MediaType,
			CreatedAt:      now,
		}
		return p, p.LocalID, mirror.UpsertLocal(record)

	case model.CreateStoryPayload:
		if p.LocalID == "" {
			p.LocalID = model.CreateID()
		}
		expiresAt := time.Unix(p.ExpiresAt, 0).UTC()
		record := &model.LocalRecord{
			LocalID:        p.LocalID,
			Kind:           model.RecordKindStory,
			SyncStatus:     model.SyncStatusPending,
			CreatedOffline: true,
			ThreadKey:      "stories",
			MediaURL:       p.MediaURL,
			MediaType:      p.MediaType,
			CreatedAt:      now,
			ExpiresAt:      &expiresAt,
		}
		return p, p.LocalID, mirror.UpsertLocal(record)

	case model.EditMessagePayload:
		record, err := mirror.Get(p.LocalID)
		if err != nil {
			return payload, "", echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		record.Body = p.Text
		return p, p.LocalID, mirror.UpsertLocal(record)

	case model.EditPostPayload:
		record, err := mirror.Get(p.LocalID)
		if err != nil {
			return payload, "", echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		record.Body = p.Caption
		return p, p.LocalID, mirror.UpsertLocal(record)

	default:
		// Deletes keep their record until the remote call succeeds: the
		// worker still needs it to resolve the remote id. Likes, comments
		// and follows have no local record at all.
		return payload, "", nil
	}
}

func ListActions(queue QueueStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		status, err := parseActionStatus(c.QueryParam("status"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		actions, err := queue.ListByStatus(status)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, actions)
	}
}

type purgeRequest struct {
	OlderThan string `json:"older_than"`
}

// PurgeActions garbage-collects Succeeded actions older than the given age.
// Pending and Failed actions are never purged.
func PurgeActions(queue QueueStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		request := &purgeRequest{}
		if err := c.Bind(request); err != nil {
			return err
		}
		age, err := time.ParseDuration(request.OlderThan)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("parsing older_than: %s", err))
		}
		purged, err := queue.PurgeOlderThan(age)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]int64{"purged": purged})
	}
}

func parseActionStatus(status string) (model.ActionStatus, error) {
	switch status {
	case "", "pending":
		return model.ActionStatusPending, nil
	case "in_progress":
		return model.ActionStatusInProgress, nil
	case "succeeded":
		return model.ActionStatusSucceeded, nil
	case "failed":
		return model.ActionStatusFailed, nil
	default:
		return 0, fmt.Errorf("unknown status: %s", status)
	}
}
