package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/perch-social/satchel/internal/metrics"
	"github.com/perch-social/satchel/internal/model"
	"github.com/perch-social/satchel/internal/netmon"
)

type Queue interface {
	ListPending() ([]model.QueuedAction, error)
	MarkInProgress(id int64) error
	MarkSucceeded(id int64) error
	MarkRetry(id int64, actionError string) error
	MarkFailed(id int64, actionError string) error
	RecoverStalled() (int64, error)
	PurgeOlderThan(age time.Duration) (int64, error)
}

type Mirror interface {
	MarkSynced(localID string, remoteID string) (bool, error)
	MarkSyncFailed(localID string) error
	RemoteIDFor(localID string) (string, error)
	Delete(localID string) error
	ExpireStories(now time.Time) (int64, error)
}

type RemoteAPI interface {
	SendMessage(ctx context.Context, payload model.SendMessagePayload) (string, error)
	EditMessage(ctx context.Context, messageID string, text string) error
	DeleteMessage(ctx context.Context, messageID string) error
	CreatePost(ctx context.Context, payload model.CreatePostPayload) (string, error)
	EditPost(ctx context.Context, postID string, caption string) error
	DeletePost(ctx context.Context, postID string) error
	CreateStory(ctx context.Context, payload model.CreateStoryPayload) (string, error)
	DeleteStory(ctx context.Context, storyID string) error
	LikePost(ctx context.Context, payload model.LikePostPayload) error
	CommentPost(ctx context.Context, payload model.CommentPostPayload) error
	FollowUser(ctx context.Context, userID string) error
	UnfollowUser(ctx context.Context, userID string) error
}

type TokenSource interface {
	Token() (string, error)
}

type Reachability interface {
	IsOnline() bool
	Subscribe() <-chan netmon.Event
}

type Config struct {
	Interval       time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	PurgeRetention time.Duration
}

// service drains the action queue against the remote API: one run at a time,
// strict FIFO, bounded retries, per-action failure isolation.
type service struct {
	cfg     Config
	queue   Queue
	mirror  Mirror
	remote  RemoteAPI
	creds   TokenSource
	reach   Reachability
	runSlot chan struct{}
	trigger chan struct{}

	// consecutive failed runs, touched only by the scheduler goroutine
	failures int
}

func New(cfg Config, queue Queue, mirror Mirror, remote RemoteAPI, creds TokenSource, reach Reachability) *service {
	s := &service{
		cfg:     cfg,
		queue:   queue,
		mirror:  mirror,
		remote:  remote,
		creds:   creds,
		reach:   reach,
		runSlot: make(chan struct{}, 1),
		trigger: make(chan struct{}, 1),
	}
	s.runSlot <- struct{}{}
	return s
}

// fatalError marks a storage failure that must abort the whole run rather
// than count against one action's retries.
type fatalError struct {
	err error
}

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

// Run executes one drain of the pending action list. Concurrent callers
// coalesce: if a run is already active the call is a no-op returning
// ErrorRunInProgress. Returns nil only if every processed action succeeded.
func (s *service) Run(ctx context.Context) error {
	select {
	case <-s.runSlot:
	default:
		metrics.SyncRuns.WithLabelValues(metrics.RunResultCoalesced).Inc()
		return model.ErrorRunInProgress
	}
	defer func() { s.runSlot <- struct{}{} }()

	// Actions left InProgress by a crashed run have unknown remote outcomes;
	// re-drive them.
	recovered, err := s.queue.RecoverStalled()
	if err != nil {
		return fmt.Errorf("recovering stalled actions: %w", err)
	}
	if recovered > 0 {
		log.Warnf("recovered %d stalled actions", recovered)
	}

	// A missing credential fails the run, not the actions: they stay Pending
	// for the next trigger.
	if _, err := s.creds.Token(); err != nil {
		metrics.SyncRuns.WithLabelValues(metrics.RunResultNoCredential).Inc()
		return fmt.Errorf("checking credential: %w", err)
	}

	actions, err := s.queue.ListPending()
	if err != nil {
		return fmt.Errorf("listing pending actions: %w", err)
	}

	var failed, retried int
	for i := range actions {
		action := &actions[i]

		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.queue.MarkInProgress(action.ID); err != nil {
			return err
		}

		err := s.dispatch(ctx, action)
		if err == nil {
			if err := s.queue.MarkSucceeded(action.ID); err != nil {
				return err
			}
			metrics.ActionsProcessed.WithLabelValues(string(action.ActionType), metrics.ActionResultSucceeded).Inc()
			continue
		}

		var fatal fatalError
		if errors.As(err, &fatal) {
			return fatal.err
		}
		if ctx.Err() != nil {
			// Cancelled mid-call; the action stays InProgress and is
			// recovered on the next run.
			return ctx.Err()
		}

		attempts := action.RetryCount + 1
		if attempts >= s.cfg.MaxRetries {
			if err := s.queue.MarkFailed(action.ID, err.Error()); err != nil {
				return err
			}
			if localID := payloadLocalID(action); localID != "" {
				if err := s.mirror.MarkSyncFailed(localID); err != nil {
					return err
				}
			}
			metrics.ActionsProcessed.WithLabelValues(string(action.ActionType), metrics.ActionResultFailed).Inc()
			log.Errorf("action %d (%s) failed permanently after %d attempts: %v", action.ID, action.ActionType, attempts, err)
			failed++
		} else {
			if err := s.queue.MarkRetry(action.ID, err.Error()); err != nil {
				return err
			}
			metrics.ActionsProcessed.WithLabelValues(string(action.ActionType), metrics.ActionResultRetried).Inc()
			log.Warnf("action %d (%s) failed, attempt %d of %d: %v", action.ID, action.ActionType, attempts, s.cfg.MaxRetries, err)
			retried++
		}
	}

	metrics.QueueDepth.Set(float64(retried))

	if failed > 0 || retried > 0 {
		metrics.SyncRuns.WithLabelValues(metrics.RunResultFailed).Inc()
		return fmt.Errorf("%d of %d actions did not complete", failed+retried, len(actions))
	}

	metrics.SyncRuns.WithLabelValues(metrics.RunResultOK).Inc()
	return nil
}

func (s *service) dispatch(ctx context.Context, action *model.QueuedAction) error {
	payload, err := action.DecodePayload()
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case model.SendMessagePayload:
		remoteID, err := s.remote.SendMessage(ctx, p)
		if err != nil {
			return err
		}
		return s.backfill(p.LocalID, remoteID)

	case model.EditMessagePayload:
		remoteID, err := s.resolveRemoteID(p.LocalID)
		if err != nil {
			return err
		}
		return s.remote.EditMessage(ctx, remoteID, p.Text)

	case model.DeleteMessagePayload:
		return s.deleteRecord(ctx, p.LocalID, s.remote.DeleteMessage)

	case model.CreatePostPayload:
		remoteID, err := s.remote.CreatePost(ctx, p)
		if err != nil {
			return err
		}
		return s.backfill(p.LocalID, remoteID)

	case model.EditPostPayload:
		remoteID, err := s.resolveRemoteID(p.LocalID)
		if err != nil {
			return err
		}
		return s.remote.EditPost(ctx, remoteID, p.Caption)

	case model.DeletePostPayload:
		return s.deleteRecord(ctx, p.LocalID, s.remote.DeletePost)

	case model.CreateStoryPayload:
		remoteID, err := s.remote.CreateStory(ctx, p)
		if err != nil {
			return err
		}
		return s.backfill(p.LocalID, remoteID)

	case model.DeleteStoryPayload:
		return s.deleteRecord(ctx, p.LocalID, s.remote.DeleteStory)

	case model.LikePostPayload:
		return s.remote.LikePost(ctx, p)

	case model.CommentPostPayload:
		return s.remote.CommentPost(ctx, p)

	case model.FollowUserPayload:
		return s.remote.FollowUser(ctx, p.UserID)

	case model.UnfollowUserPayload:
		return s.remote.UnfollowUser(ctx, p.UserID)

	default:
		return fmt.Errorf("%w: %s", model.ErrorUnknownActionType, action.ActionType)
	}
}

// backfill writes the server-assigned id into the mirror after a successful
// create. MarkSynced is conditional, so a re-driven action cannot apply it
// twice.
func (s *service) backfill(localID string, remoteID string) error {
	if localID == "" {
		return nil
	}
	applied, err := s.mirror.MarkSynced(localID, remoteID)
	if err != nil {
		if errors.Is(err, model.ErrorRecordNotFound) {
			log.Warnf("no mirror record %s to backfill", localID)
			return nil
		}
		return fatalError{fmt.Errorf("backfilling record %s: %w", localID, err)}
	}
	if !applied {
		log.Warnf("record %s already synced, skipping backfill", localID)
	}
	return nil
}

// resolveRemoteID maps a local entity id to its server id. The queue is
// drained in strict enqueue order, so the creating action is expected to have
// resolved the id by the time an edit or delete on the same entity runs; when
// it has not, the action fails and is retried like any other failure.
func (s *service) resolveRemoteID(localID string) (string, error) {
	remoteID, err := s.mirror.RemoteIDFor(localID)
	if err != nil {
		if errors.Is(err, model.ErrorRemoteIDUnresolved) || errors.Is(err, model.ErrorRecordNotFound) {
			return "", err
		}
		return "", fatalError{fmt.Errorf("resolving remote id for %s: %w", localID, err)}
	}
	return remoteID, nil
}

func (s *service) deleteRecord(ctx context.Context, localID string, remove func(context.Context, string) error) error {
	remoteID, err := s.resolveRemoteID(localID)
	if err != nil {
		return err
	}
	if err := remove(ctx, remoteID); err != nil {
		return err
	}
	if err := s.mirror.Delete(localID); err != nil {
		return fatalError{fmt.Errorf("deleting record %s: %w", localID, err)}
	}
	return nil
}

func payloadLocalID(action *model.QueuedAction) string {
	payload, err := action.DecodePayload()
	if err != nil {
		return ""
	}
	switch p := payload.(type) {
	case model.SendMessagePayload:
		return p.LocalID
	case model.CreatePostPayload:
		return p.LocalID
	case model.CreateStoryPayload:
		return p.LocalID
	default:
		return ""
	}
}
