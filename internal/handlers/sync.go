package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/perch-social/satchel/internal/model"
)

type SyncService interface {
	TriggerSync()
}

type Reachability interface {
	IsOnline() bool
}

// ForceSync schedules a drain. If a run is already active the trigger
// coalesces with it rather than queueing a second run.
func ForceSync(service SyncService) echo.HandlerFunc {
	return func(c echo.Context) error {
		service.TriggerSync()
		return c.JSON(http.StatusAccepted, map[string]string{"status": "scheduled"})
	}
}

type syncStatus struct {
	Online         bool                 `json:"online"`
	PendingActions int                  `json:"pending_actions"`
	FailedActions  []model.QueuedAction `json:"failed_actions"`
	PendingRecords []model.LocalRecord  `json:"pending_records"`
}

// SyncStatus is the diagnostics view: what is still owed to the server and
// what failed permanently. Failed actions require explicit operator action;
// they are never retried or purged automatically.
func SyncStatus(queue QueueStore, mirror MirrorStore, reach Reachability) echo.HandlerFunc {
	return func(c echo.Context) error {
		pending, err := queue.ListByStatus(model.ActionStatusPending)
		if err != nil {
			return err
		}
		failed, err := queue.ListByStatus(model.ActionStatusFailed)
		if err != nil {
			return err
		}
		records, err := mirror.ListPendingForSync()
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, syncStatus{
			Online:         reach.IsOnline(),
			PendingActions: len(pending),
			FailedActions:  failed,
			PendingRecords: records,
		})
	}
}

func ListRecords(mirror MirrorStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		records, err := mirror.QueryByAssociation(c.Param("threadKey"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, records)
	}
}
