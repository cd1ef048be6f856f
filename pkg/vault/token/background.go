/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/buun-ch/buun-stack/pkg/metrics"
	"github.com/buun-ch/buun-stack/shared/events"
	infraerrors "github.com/buun-ch/buun-stack/shared/infrastructure/errors"
)

// BackgroundRefresher periodically refreshes a session's credential so that
// an idle session still holds a valid token when it is next used.
//
// # Lifecycle
//
// A refresher is stopped until Start is called, and Start is a no-op while
// the loop is running. Stop signals the loop and waits up to StopTimeout for
// it to exit. A refresh already in flight is not interrupted: it completes or
// hits its own request timeout, and its result is recorded. A stopped
// refresher can be started again once its previous loop has exited.
//
// # Thread Safety
//
// All methods are thread-safe. The counters are written only by the loop
// goroutine and read through State.
type BackgroundRefresher struct {
	target    RefreshTarget
	cfg       *BackgroundConfig
	publisher EventPublisher
	log       logr.Logger

	mu            sync.Mutex
	running       bool
	stopCh        chan struct{}
	doneCh        chan struct{}
	refreshCount  int
	lastRefreshAt time.Time
	lastError     string
}

// NewBackgroundRefresher creates a stopped BackgroundRefresher for target.
func NewBackgroundRefresher(target RefreshTarget, cfg BackgroundConfig, publisher EventPublisher, log logr.Logger) *BackgroundRefresher {
	return &BackgroundRefresher{
		target:    target,
		cfg:       cfg.WithDefaults(),
		publisher: publisher,
		log:       log.WithName("background-refresher"),
	}
}

// Start launches the refresh loop if it is not already running. It fails
// while a previously stopped loop is still finishing a refresh.
func (r *BackgroundRefresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if r.doneCh != nil {
		select {
		case <-r.doneCh:
		default:
			return fmt.Errorf("background refresher is still stopping")
		}
	}

	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.loop(r.stopCh, r.doneCh)

	metrics.SetRefresherRunning(true)
	r.log.Info("started background refresher", "interval", r.cfg.Interval)
	return nil
}

// Stop signals the loop to exit and waits up to StopTimeout. It is safe to
// call when the refresher is not running.
func (r *BackgroundRefresher) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	done := r.doneCh
	r.mu.Unlock()

	metrics.SetRefresherRunning(false)

	select {
	case <-done:
		r.log.Info("stopped background refresher")
		return nil
	case <-time.After(r.cfg.StopTimeout):
		r.log.Info("background refresher did not stop in time", "timeout", r.cfg.StopTimeout)
		return fmt.Errorf("background refresher did not stop within %s", r.cfg.StopTimeout)
	}
}

// Running reports whether the loop is running.
func (r *BackgroundRefresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// State returns a snapshot of the refresher.
func (r *BackgroundRefresher) State() RefresherState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RefresherState{
		Running:       r.running,
		Interval:      r.cfg.Interval,
		RefreshCount:  r.refreshCount,
		LastRefreshAt: r.lastRefreshAt,
		LastError:     r.lastError,
	}
}

// loop runs until stop is closed. Refreshes use a context that Stop does not
// cancel; each call is bounded by the target's own timeouts.
func (r *BackgroundRefresher) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(r.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}

		r.refreshOnce(context.Background())

		timer.Reset(r.cfg.Interval)
	}
}

func (r *BackgroundRefresher) refreshOnce(ctx context.Context) {
	err := r.target.RefreshAndAuthenticate(ctx)
	if err != nil {
		metrics.IncrementRefresh(metrics.SourceBackground, false)
		r.mu.Lock()
		r.lastError = err.Error()
		r.mu.Unlock()

		r.log.Error(err, "background refresh failed")
		publish(ctx, r.publisher, r.log, events.NewTokenRefreshFailed(r.cfg.Identity, err.Error(), infraerrors.IsTerminalAuthError(err)))
		return
	}

	metrics.IncrementRefresh(metrics.SourceBackground, true)
	now := time.Now()
	r.mu.Lock()
	r.refreshCount++
	r.lastRefreshAt = now
	r.lastError = ""
	count := r.refreshCount
	r.mu.Unlock()

	var expiry time.Time
	if c, ok := r.target.(interface{ Credential() Credential }); ok {
		expiry = c.Credential().Expiry
	}

	r.log.Info("background refresh succeeded", "refreshCount", count)
	publish(ctx, r.publisher, r.log, events.NewTokenRefreshed(r.cfg.Identity, expiry, count))
}
