package store

import (
	"context"
	"slices"

	"github.com/dhis2-sre/im-console/pkg/model"
)

// LoadConnections mirrors the catalogue of the registry. A failure is kept in the error slot of the
// connection list.
func (s *Store) LoadConnections(ctx context.Context) {
	s.mu.Lock()
	s.state.Connections.Phase = PhaseLoading
	s.mu.Unlock()

	connections, err := s.registry.List(ctx)

	s.mu.Lock()
	if err != nil {
		s.state.Connections.Phase = PhaseErrored
		s.state.Connections.Error = message(err)
		s.notifyError(ctx, "Failed to load connections", err)
		s.mu.Unlock()
		return
	}
	s.state.Connections.Phase = PhasePopulated
	s.state.Connections.Items = connections
	s.state.Connections.Error = ""
	var active *model.Connection
	if i := slices.IndexFunc(connections, func(c model.Connection) bool { return c.IsActive }); i >= 0 {
		active = &connections[i]
	}
	s.mu.Unlock()

	s.applyConnection(ctx, active, false)
}

func (s *Store) CreateConnection(ctx context.Context, draft model.ConnectionDraft) (model.Connection, error) {
	created, err := s.registry.Create(ctx, draft)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state.Connections.Error = message(err)
		s.notifyError(ctx, "Failed to create connection", err)
		return model.Connection{}, err
	}
	s.state.Connections.Items = append(s.state.Connections.Items, created)
	s.state.Connections.Error = ""
	s.notify(model.NotificationSuccess, "Connection created", created.Name)
	return created, nil
}

// ActivateConnection activates the connection with id. The container list is reset to the default
// namespace of the connection and fetched again.
func (s *Store) ActivateConnection(ctx context.Context, id string) (*Fetch, error) {
	activated, err := s.registry.Activate(ctx, id)
	if err != nil {
		s.mu.Lock()
		s.state.Connections.Error = message(err)
		s.notifyError(ctx, "Failed to activate connection", err)
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.state.Connections.Error = ""
	s.notify(model.NotificationSuccess, "Connection activated", activated.Name)
	s.mu.Unlock()

	return s.applyConnection(ctx, &activated, true), nil
}

// DeleteConnection deletes the connection with id. Deleting the active connection clears the
// container list.
func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	if err := s.registry.Delete(ctx, id); err != nil {
		s.mu.Lock()
		s.state.Connections.Error = message(err)
		s.notifyError(ctx, "Failed to delete connection", err)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	items := s.state.Connections.Items
	wasActive := s.state.Connections.Active != nil && s.state.Connections.Active.ID == id
	s.state.Connections.Items = slices.DeleteFunc(items, func(c model.Connection) bool { return c.ID == id })
	s.state.Connections.Error = ""
	s.mu.Unlock()

	if wasActive {
		s.applyConnection(ctx, nil, true)
	}
	return nil
}

// applyConnection switches the store over to active. Filter, pagination and the container list are
// reset and responses of fetches issued for the previous connection are discarded. The list is
// fetched again if fetch is set and there is an active connection. Switching to the connection
// which is already active does nothing.
func (s *Store) applyConnection(ctx context.Context, active *model.Connection, fetch bool) *Fetch {
	s.mu.Lock()
	current := s.state.Connections.Active
	if sameConnection(current, active) {
		s.mu.Unlock()
		return nil
	}

	s.state.Connections.Active = clonePtr(active)
	for i := range s.state.Connections.Items {
		item := &s.state.Connections.Items[i]
		item.IsActive = active != nil && item.ID == active.ID
	}

	namespace := model.DefaultNamespace
	if active != nil {
		namespace = active.Namespace()
	}
	list := &s.state.Containers
	list.Filter = Filter{Namespace: namespace}
	list.Pagination = Pagination{Page: 1, PageSize: list.Pagination.PageSize}
	list.Items = nil
	list.Error = ""
	list.Phase = PhaseIdle
	list.Pending = map[string]model.Action{}
	s.state.Selected = nil
	s.settled = PhaseIdle
	s.generation++
	s.updateStatistics()
	s.mu.Unlock()

	if active == nil {
		s.logger.InfoContext(ctx, "Active connection cleared")
		return nil
	}
	s.logger.InfoContext(ctx, "Active connection changed", "id", active.ID, "namespace", namespace)
	if !fetch {
		return nil
	}
	return s.FetchContainers(ctx)
}

func sameConnection(a, b *model.Connection) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
