// Package store is the in-memory source of truth presentation reads from. State only changes
// through the methods of [Store] and readers get deep copies through [Store.Snapshot].
//
// Lists move through the phases idle, loading, populated and errored. Every fetch takes a new
// generation and a response belonging to an older generation is discarded, so the most recently
// issued fetch wins regardless of the order responses arrive in.
//
// Mutations are pessimistic: the backend is called first and the local state is only patched once
// the backend confirmed the change.
package store

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dhis2-sre/im-console/pkg/container"
	"github.com/dhis2-sre/im-console/pkg/event"
	"github.com/dhis2-sre/im-console/pkg/gateway"
	"github.com/dhis2-sre/im-console/pkg/model"
)

const (
	DefaultPageSize        = 20
	DefaultRefreshInterval = 30 * time.Second
	MaxActivities          = 100
	MaxNotifications       = 50
	MaxUsageSamples        = 60
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhasePopulated Phase = "populated"
	PhaseErrored   Phase = "errored"
)

type containerService interface {
	List(ctx context.Context, params container.ListParams) (gateway.Page[model.Container], error)
	Get(ctx context.Context, id, namespace string) (model.Container, error)
	Create(ctx context.Context, request container.CreateRequest) (model.Container, error)
	Update(ctx context.Context, id string, config model.ContainerConfig, namespace string) (model.Container, error)
	PerformAction(ctx context.Context, id string, action model.Action, namespace string) (*model.Container, error)
	Batch(ctx context.Context, ids []string, action model.Action, namespace string) error
	Stats(ctx context.Context, id, namespace string) (model.ContainerStats, error)
}

type connectionRegistry interface {
	List(ctx context.Context) ([]model.Connection, error)
	Create(ctx context.Context, draft model.ConnectionDraft) (model.Connection, error)
	Activate(ctx context.Context, id string) (model.Connection, error)
	Delete(ctx context.Context, id string) error
	Active(ctx context.Context) (*model.Connection, error)
	Subscribe(id string) <-chan event.Event
	Unsubscribe(id string)
}

type Filter struct {
	Namespace string
	Status    string
	Search    string
	SortBy    string
	SortOrder container.SortOrder
}

type Pagination struct {
	Page     int
	PageSize int
	Total    int
}

type ContainerList struct {
	Phase      Phase
	Items      []model.Container
	Error      string
	Filter     Filter
	Pagination Pagination
	// Pending holds the actions in flight keyed by container id. It's an overlay, the status of
	// the items is only ever changed by the backend.
	Pending map[string]model.Action
}

// Loading reports whether a fetch is in flight.
func (l ContainerList) Loading() bool {
	return l.Phase == PhaseLoading
}

type ConnectionList struct {
	Phase  Phase
	Items  []model.Connection
	Error  string
	Active *model.Connection
}

type Dashboard struct {
	Statistics      model.Statistics
	Activities      []model.Activity
	ResourceUsage   []model.UsageSample
	UsageError      string
	AutoRefresh     bool
	RefreshInterval time.Duration
	LastRefresh     time.Time
}

type State struct {
	Containers    ContainerList
	Connections   ConnectionList
	Dashboard     Dashboard
	Notifications []model.Notification
	Selected      *model.Container
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithRefreshInterval(interval time.Duration) Option {
	return func(s *Store) {
		s.state.Dashboard.RefreshInterval = interval
	}
}

func New(logger *slog.Logger, containers containerService, registry connectionRegistry, options ...Option) *Store {
	s := &Store{
		logger:     logger,
		containers: containers,
		registry:   registry,
		now:        time.Now,
		settled:    PhaseIdle,
		intervals:  make(chan time.Duration, 1),
		inflight:   map[string]int{},
		state: State{
			Containers: ContainerList{
				Phase:      PhaseIdle,
				Filter:     Filter{Namespace: model.DefaultNamespace},
				Pagination: Pagination{Page: 1, PageSize: DefaultPageSize},
				Pending:    map[string]model.Action{},
			},
			Connections: ConnectionList{Phase: PhaseIdle},
			Dashboard: Dashboard{
				AutoRefresh:     true,
				RefreshInterval: DefaultRefreshInterval,
			},
		},
	}
	for _, option := range options {
		option(s)
	}
	return s
}

type Store struct {
	logger     *slog.Logger
	containers containerService
	registry   connectionRegistry
	now        func() time.Time

	mu    sync.Mutex
	state State
	// generation of the most recently issued container fetch
	generation uint64
	// phase the container list returns to if the current fetch is cancelled
	settled   Phase
	intervals chan time.Duration
	// number of actions in flight per container id, Pending only shows the latest
	inflight map[string]int
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state
	state.Containers.Items = cloneContainers(s.state.Containers.Items)
	state.Containers.Pending = maps.Clone(s.state.Containers.Pending)
	state.Connections.Items = slices.Clone(s.state.Connections.Items)
	state.Connections.Active = clonePtr(s.state.Connections.Active)
	state.Dashboard.Activities = slices.Clone(s.state.Dashboard.Activities)
	state.Dashboard.ResourceUsage = slices.Clone(s.state.Dashboard.ResourceUsage)
	state.Notifications = slices.Clone(s.state.Notifications)
	if s.state.Selected != nil {
		selected := cloneContainer(*s.state.Selected)
		state.Selected = &selected
	}
	return state
}

// Select marks the container with given key as selected. An unknown key clears the selection.
func (s *Store) Select(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Selected = nil
	if i := indexOf(s.state.Containers.Items, key); i >= 0 {
		selected := s.state.Containers.Items[i]
		s.state.Selected = &selected
	}
}

func (s *Store) SetAutoRefresh(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Dashboard.AutoRefresh = enabled
}

// SetRefreshInterval changes the interval of the automatic refresh. Non positive intervals are
// ignored.
func (s *Store) SetRefreshInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	s.state.Dashboard.RefreshInterval = interval
	s.mu.Unlock()

	for {
		select {
		case s.intervals <- interval:
			return
		default:
		}
		select {
		case <-s.intervals:
		default:
		}
	}
}

// withConnection attaches the active connection to ctx.
func (s *Store) withConnection(ctx context.Context) context.Context {
	s.mu.Lock()
	active := clonePtr(s.state.Connections.Active)
	s.mu.Unlock()

	if active == nil {
		return ctx
	}
	return model.NewContextWithConnection(ctx, active)
}

// message returns the message presentation shows for err.
func message(err error) string {
	if e, ok := gateway.AsError(err); ok {
		return e.Message
	}
	return err.Error()
}

func indexOf(containers []model.Container, key string) int {
	return slices.IndexFunc(containers, func(c model.Container) bool {
		return c.Key() == key || c.ID == key
	})
}

func cloneContainers(containers []model.Container) []model.Container {
	if containers == nil {
		return nil
	}
	clone := make([]model.Container, len(containers))
	for i, c := range containers {
		clone[i] = cloneContainer(c)
	}
	return clone
}

func cloneContainer(c model.Container) model.Container {
	c.Ports = slices.Clone(c.Ports)
	c.Volumes = slices.Clone(c.Volumes)
	c.Labels = maps.Clone(c.Labels)
	c.Annotations = maps.Clone(c.Annotations)
	c.Resources.Storage = clonePtr(c.Resources.Storage)
	return c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
