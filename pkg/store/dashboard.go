package store

import (
	"context"
	"slices"
	"time"

	"github.com/dhis2-sre/im-console/pkg/event"
	"github.com/dhis2-sre/im-console/pkg/gateway"
	"github.com/dhis2-sre/im-console/pkg/model"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const usageConcurrency = 4

// Run subscribes the store to connection and session events and refreshes it periodically while
// automatic refresh is enabled. It blocks until ctx is done.
func (s *Store) Run(ctx context.Context) {
	id := "store-" + uuid.NewString()
	events := s.registry.Subscribe(id)
	defer s.registry.Unsubscribe(id)

	s.mu.Lock()
	interval := s.state.Dashboard.RefreshInterval
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(ctx, e)
		case interval := <-s.intervals:
			ticker.Reset(interval)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Store) handleEvent(ctx context.Context, e event.Event) {
	switch e.Type {
	case event.TypeConnectionActivated:
		s.applyConnection(ctx, e.Connection, true)
	case event.TypeConnectionCleared:
		s.applyConnection(ctx, nil, true)
	case event.TypeSessionExpired:
		s.reconcileConnection(ctx)
		s.mu.Lock()
		list := &s.state.Containers
		list.Items = nil
		list.Phase = PhaseIdle
		list.Pending = map[string]model.Action{}
		s.settled = PhaseIdle
		s.generation++
		s.state.Selected = nil
		s.updateStatistics()
		s.notify(model.NotificationWarning, "Session expired", e.Message)
		s.mu.Unlock()
	}
}

// reconcileConnection makes the active connection of the store match the one of the registry.
func (s *Store) reconcileConnection(ctx context.Context) {
	active, err := s.registry.Active(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read active connection", "error", err)
		return
	}
	s.applyConnection(ctx, active, false)
}

func (s *Store) tick(ctx context.Context) {
	s.mu.Lock()
	enabled := s.state.Dashboard.AutoRefresh
	s.mu.Unlock()
	if !enabled {
		return
	}

	if err := s.Refresh(ctx).Wait(); err != nil {
		return
	}
	if err := s.RefreshUsage(ctx); err != nil {
		s.logger.WarnContext(ctx, "Failed to refresh resource usage", "error", err)
	}
}

// RefreshUsage samples the usage of every running container and appends the average as a new
// resource usage sample.
func (s *Store) RefreshUsage(ctx context.Context) error {
	ctx = s.withConnection(ctx)

	s.mu.Lock()
	var running []model.Container
	for _, c := range s.state.Containers.Items {
		if c.Status == model.StatusRunning {
			running = append(running, c)
		}
	}
	s.mu.Unlock()

	stats := make([]model.ContainerStats, len(running))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(usageConcurrency)
	for i, c := range running {
		i, c := i, c
		g.Go(func() error {
			id := c.ID
			if id == "" {
				id = c.Name
			}
			st, err := s.containers.Stats(gctx, id, c.Namespace)
			stats[i] = st
			return err
		})
	}
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	dashboard := &s.state.Dashboard
	if err != nil {
		if !gateway.IsCancelled(err) {
			dashboard.UsageError = message(err)
			s.notifyError(ctx, "Failed to refresh resource usage", err)
		}
		return err
	}

	sample := model.UsageSample{Timestamp: s.now(), Samples: len(stats)}
	for _, st := range stats {
		sample.CPU += st.CPU.UsagePercent
		sample.Memory += st.Memory.UsagePercent
	}
	if len(stats) > 0 {
		sample.CPU /= float64(len(stats))
		sample.Memory /= float64(len(stats))
	}

	dashboard.UsageError = ""
	dashboard.ResourceUsage = append(dashboard.ResourceUsage, sample)
	if n := len(dashboard.ResourceUsage); n > MaxUsageSamples {
		dashboard.ResourceUsage = dashboard.ResourceUsage[n-MaxUsageSamples:]
	}
	return nil
}

func (s *Store) updateStatistics() {
	statistics := model.Statistics{}
	namespaces := map[string]struct{}{}
	for _, c := range s.state.Containers.Items {
		statistics.TotalContainers++
		statistics.TotalRestartCounter += c.RestartCount
		namespaces[c.Namespace] = struct{}{}
		switch c.Status {
		case model.StatusRunning:
			statistics.RunningContainers++
		case model.StatusPending:
			statistics.PendingContainers++
		case model.StatusSucceeded:
			statistics.StoppedContainers++
		case model.StatusFailed:
			statistics.ErrorContainers++
		}
	}
	statistics.TotalNamespaces = len(namespaces)
	s.state.Dashboard.Statistics = statistics
}

// recordActivity prepends an activity for a mutation, keeping the newest MaxActivities.
func (s *Store) recordActivity(action, resource, namespace string, err error) {
	activity := model.Activity{
		ID:        uuid.NewString(),
		Action:    action,
		Resource:  resource,
		Namespace: namespace,
		Status:    model.ActivitySuccess,
		Timestamp: s.now(),
	}
	if err != nil {
		activity.Status = model.ActivityFailed
		activity.Details = message(err)
	}

	activities := append([]model.Activity{activity}, s.state.Dashboard.Activities...)
	if len(activities) > MaxActivities {
		activities = activities[:MaxActivities]
	}
	s.state.Dashboard.Activities = activities
}

// notify appends a notification, keeping the newest MaxNotifications.
func (s *Store) notify(t model.NotificationType, title, msg string) {
	notifications := append(s.state.Notifications, model.Notification{
		ID:        uuid.NewString(),
		Type:      t,
		Title:     title,
		Message:   msg,
		Timestamp: s.now(),
	})
	if n := len(notifications); n > MaxNotifications {
		notifications = slices.Clone(notifications[n-MaxNotifications:])
	}
	s.state.Notifications = notifications
}

// notifyError adds an error notification carrying the message of err. Cancellations aren't errors
// and are skipped.
func (s *Store) notifyError(ctx context.Context, title string, err error) {
	if gateway.IsCancelled(err) {
		return
	}
	s.logger.WarnContext(ctx, title, "error", err)
	s.notify(model.NotificationError, title, message(err))
}

func (s *Store) DismissNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.state.Notifications {
		if n.ID == id {
			s.state.Notifications = append(s.state.Notifications[:i], s.state.Notifications[i+1:]...)
			return
		}
	}
}

func (s *Store) ClearNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Notifications = nil
}
