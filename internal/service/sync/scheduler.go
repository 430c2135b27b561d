package sync

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/perch-social/satchel/internal/model"
	"github.com/perch-social/satchel/internal/netmon"
)

// TriggerSync requests a run from the scheduler. Non-blocking: if a trigger
// is already queued the new one coalesces with it. The queue is durable, so a
// dropped trigger only delays draining until the next one.
func (s *service) TriggerSync() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start launches the scheduler: a periodic timer, reachability transitions
// and manual triggers all race to start runs; Run itself serialises them.
// A failed run pushes the next attempt out with exponential backoff.
func (s *service) Start(ctx context.Context) {
	events := s.reach.Subscribe()

	go func() {
		timer := time.NewTimer(s.cfg.Interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-timer.C:
				if !s.reach.IsOnline() {
					log.Debugf("skipping scheduled sync, offline")
					timer.Reset(s.cfg.Interval)
					continue
				}

			case event := <-events:
				if event != netmon.BecameOnline {
					continue
				}
				log.Infof("network became reachable, starting sync")

			case <-s.trigger:
			}

			err := s.Run(ctx)
			next := s.cfg.Interval
			switch {
			case err == nil:
				s.failures = 0
				s.housekeep()
			case errors.Is(err, model.ErrorRunInProgress):
				// coalesced trigger, leave the schedule alone
			case ctx.Err() != nil:
				return
			default:
				s.failures++
				next = backoffDelay(s.failures, s.cfg.BackoffBase, s.cfg.BackoffMax)
				log.Warnf("sync run failed (%d in a row), next attempt in %s: %v", s.failures, next, err)
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(next)
		}
	}()
}

// housekeep garbage-collects after a clean run: Succeeded actions past the
// retention window and expired stories. Pending and Failed actions are never
// purged here.
func (s *service) housekeep() {
	if purged, err := s.queue.PurgeOlderThan(s.cfg.PurgeRetention); err != nil {
		log.Errorf("purging succeeded actions: %v", err)
	} else if purged > 0 {
		log.Infof("purged %d succeeded actions", purged)
	}

	if expired, err := s.mirror.ExpireStories(time.Now().UTC()); err != nil {
		log.Errorf("expiring stories: %v", err)
	} else if expired > 0 {
		log.Infof("expired %d stories", expired)
	}
}

// base * 2^(attempt-1), capped.
func backoffDelay(failures int, base time.Duration, max time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	exp := float64(failures - 1)
	delay := time.Duration(float64(base) * math.Pow(2, exp))
	if delay > max {
		return max
	}
	return delay
}
