package store

import (
	"context"
	"strconv"

	"github.com/dhis2-sre/im-console/pkg/container"
	"github.com/dhis2-sre/im-console/pkg/gateway"
	"github.com/dhis2-sre/im-console/pkg/model"
)

// Fetch is a container list fetch running in its own goroutine.
type Fetch struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Cancel aborts the fetch. The list returns to the phase it was in before the fetch and no error is
// recorded.
func (f *Fetch) Cancel() {
	f.cancel()
}

func (f *Fetch) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the fetch is done and returns its error.
func (f *Fetch) Wait() error {
	<-f.done
	return f.err
}

// FetchContainers fetches the container list using the current filter and pagination.
func (s *Store) FetchContainers(ctx context.Context) *Fetch {
	ctx = s.withConnection(ctx)

	s.mu.Lock()
	s.generation++
	generation := s.generation
	if s.state.Containers.Phase != PhaseLoading {
		s.settled = s.state.Containers.Phase
	}
	s.state.Containers.Phase = PhaseLoading
	params := s.listParams()
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	fetch := &Fetch{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(fetch.done)
		defer cancel()
		page, err := s.containers.List(ctx, params)
		fetch.err = err
		s.resolveContainers(ctx, generation, page, err)
	}()

	return fetch
}

// Refresh refetches the container list and records the time of the refresh.
func (s *Store) Refresh(ctx context.Context) *Fetch {
	s.mu.Lock()
	s.state.Dashboard.LastRefresh = s.now()
	s.mu.Unlock()

	return s.FetchContainers(ctx)
}

func (s *Store) listParams() container.ListParams {
	c := s.state.Containers
	params := container.ListParams{
		Page:     container.Ptr(c.Pagination.Page),
		PageSize: container.Ptr(c.Pagination.PageSize),
	}
	if c.Filter.Namespace != "" {
		params.Namespace = container.Ptr(c.Filter.Namespace)
	}
	if c.Filter.Status != "" {
		params.Status = container.Ptr(c.Filter.Status)
	}
	if c.Filter.Search != "" {
		params.Search = container.Ptr(c.Filter.Search)
	}
	if c.Filter.SortBy != "" {
		params.SortBy = container.Ptr(c.Filter.SortBy)
	}
	if c.Filter.SortOrder != "" {
		params.SortOrder = container.Ptr(c.Filter.SortOrder)
	}
	return params
}

func (s *Store) resolveContainers(ctx context.Context, generation uint64, page gateway.Page[model.Container], err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		s.logger.DebugContext(ctx, "Discarding stale container list", "generation", generation, "current", s.generation)
		return
	}

	list := &s.state.Containers
	switch {
	case gateway.IsCancelled(err):
		list.Phase = s.settled
	case err != nil:
		list.Phase = PhaseErrored
		list.Error = message(err)
		s.settled = PhaseErrored
		s.notifyError(ctx, "Failed to load containers", err)
	default:
		list.Phase = PhasePopulated
		list.Items = page.Items
		list.Error = ""
		list.Pagination.Total = page.Total
		s.settled = PhasePopulated
		s.updateStatistics()
	}
}

// SetFilter replaces the filter, goes back to the first page and refetches.
func (s *Store) SetFilter(ctx context.Context, filter Filter) *Fetch {
	s.mu.Lock()
	s.state.Containers.Filter = filter
	s.state.Containers.Pagination.Page = 1
	s.state.Containers.Error = ""
	s.mu.Unlock()

	return s.FetchContainers(ctx)
}

// SetPage moves to page and refetches. Pages start at 1.
func (s *Store) SetPage(ctx context.Context, page int) *Fetch {
	s.mu.Lock()
	s.state.Containers.Pagination.Page = max(page, 1)
	s.state.Containers.Error = ""
	s.mu.Unlock()

	return s.FetchContainers(ctx)
}

// SetPageSize changes the page size, goes back to the first page and refetches.
func (s *Store) SetPageSize(ctx context.Context, pageSize int) *Fetch {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	s.mu.Lock()
	s.state.Containers.Pagination.PageSize = pageSize
	s.state.Containers.Pagination.Page = 1
	s.state.Containers.Error = ""
	s.mu.Unlock()

	return s.FetchContainers(ctx)
}

// Query replaces filter and pagination at once and refetches.
func (s *Store) Query(ctx context.Context, filter Filter, page, pageSize int) *Fetch {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	s.mu.Lock()
	s.state.Containers.Filter = filter
	s.state.Containers.Pagination.Page = max(page, 1)
	s.state.Containers.Pagination.PageSize = pageSize
	s.state.Containers.Error = ""
	s.mu.Unlock()

	return s.FetchContainers(ctx)
}

// CreateContainer creates the container and inserts it into the list once the backend confirmed
// it.
func (s *Store) CreateContainer(ctx context.Context, request container.CreateRequest) (model.Container, error) {
	ctx = s.withConnection(ctx)

	created, err := s.containers.Create(ctx, request)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordActivity("create", request.Config.Name, request.Namespace, err)
	if err != nil {
		s.failMutation(ctx, "Failed to create container", err)
		return model.Container{}, err
	}

	s.upsert(created)
	s.notify(model.NotificationSuccess, "Container created", created.Name)
	return created, nil
}

func (s *Store) UpdateContainer(ctx context.Context, id string, config model.ContainerConfig, namespace string) (model.Container, error) {
	ctx = s.withConnection(ctx)

	updated, err := s.containers.Update(ctx, id, config, namespace)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordActivity("update", config.Name, namespace, err)
	if err != nil {
		s.failMutation(ctx, "Failed to update container", err)
		return model.Container{}, err
	}

	s.replace(id, updated)
	s.notify(model.NotificationSuccess, "Container updated", updated.Name)
	return updated, nil
}

// PerformAction applies action to the container with id. While the call is in flight the action is
// shown as pending. If the backend doesn't return the container it's fetched again, a destroyed
// container is removed.
func (s *Store) PerformAction(ctx context.Context, id string, action model.Action, namespace string) error {
	ctx = s.withConnection(ctx)

	s.mu.Lock()
	s.beginPending(id, action)
	s.mu.Unlock()

	updated, err := s.containers.PerformAction(ctx, id, action, namespace)
	if err == nil && updated == nil && action != model.ActionDestroy {
		fresh, getErr := s.containers.Get(ctx, id, namespace)
		if getErr != nil {
			s.logger.WarnContext(ctx, "Failed to get container after action", "id", id, "action", action, "error", getErr)
		} else {
			updated = &fresh
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.endPending(id)
	s.recordActivity(string(action), id, namespace, err)
	if err != nil {
		s.failMutation(ctx, "Failed to "+string(action)+" container", err)
		return err
	}

	switch {
	case action == model.ActionDestroy:
		s.remove(id)
	case updated != nil:
		s.replace(id, *updated)
	}
	s.updateStatistics()
	return nil
}

func (s *Store) DestroyContainer(ctx context.Context, id, namespace string) error {
	return s.PerformAction(ctx, id, model.ActionDestroy, namespace)
}

// Batch applies action to all ids. Destroyed containers are removed, for any other action the list
// is fetched again.
func (s *Store) Batch(ctx context.Context, ids []string, action model.Action, namespace string) error {
	ctx = s.withConnection(ctx)

	s.mu.Lock()
	for _, id := range ids {
		s.beginPending(id, action)
	}
	s.mu.Unlock()

	err := s.containers.Batch(ctx, ids, action, namespace)

	s.mu.Lock()
	for _, id := range ids {
		s.endPending(id)
	}
	s.recordActivity(string(action), "batch of "+strconv.Itoa(len(ids)), namespace, err)
	if err != nil {
		s.failMutation(ctx, "Batch "+string(action)+" failed", err)
		s.mu.Unlock()
		return err
	}
	if action == model.ActionDestroy {
		for _, id := range ids {
			s.remove(id)
		}
		s.updateStatistics()
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// the backend doesn't return the containers of a batch
	_ = s.FetchContainers(ctx).Wait()
	return nil
}

func (s *Store) beginPending(id string, action model.Action) {
	s.inflight[id]++
	s.state.Containers.Pending[id] = action
}

// endPending removes the overlay of id once no action on it is in flight anymore.
func (s *Store) endPending(id string) {
	if s.inflight[id] > 1 {
		s.inflight[id]--
		return
	}
	delete(s.inflight, id)
	delete(s.state.Containers.Pending, id)
}

// failMutation records a failed mutation. The list itself stays untouched.
func (s *Store) failMutation(ctx context.Context, title string, err error) {
	if gateway.IsCancelled(err) {
		return
	}
	s.state.Containers.Error = message(err)
	s.notifyError(ctx, title, err)
}

func (s *Store) upsert(c model.Container) {
	items := s.state.Containers.Items
	if i := indexOf(items, c.Key()); i >= 0 {
		items[i] = c
		return
	}
	s.state.Containers.Items = append(items, c)
	s.state.Containers.Pagination.Total++
	s.updateStatistics()
}

func (s *Store) replace(key string, c model.Container) {
	items := s.state.Containers.Items
	if i := indexOf(items, key); i >= 0 {
		items[i] = c
		if s.state.Selected != nil && (s.state.Selected.Key() == key || s.state.Selected.ID == key) {
			selected := c
			s.state.Selected = &selected
		}
	}
}

func (s *Store) remove(key string) {
	items := s.state.Containers.Items
	if i := indexOf(items, key); i >= 0 {
		s.state.Containers.Items = append(items[:i], items[i+1:]...)
		s.state.Containers.Pagination.Total = max(s.state.Containers.Pagination.Total-1, 0)
	}
	if s.state.Selected != nil && (s.state.Selected.Key() == key || s.state.Selected.ID == key) {
		s.state.Selected = nil
	}
}
