package store_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dhis2-sre/im-console/pkg/connection"
	"github.com/dhis2-sre/im-console/pkg/container"
	"github.com/dhis2-sre/im-console/pkg/event"
	"github.com/dhis2-sre/im-console/pkg/gateway"
	"github.com/dhis2-sre/im-console/pkg/inttest"
	"github.com/dhis2-sre/im-console/pkg/model"
	"github.com/dhis2-sre/im-console/pkg/storage"
	"github.com/dhis2-sre/im-console/pkg/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cluster is the state of the fake backend.
type cluster struct {
	mu         sync.Mutex
	containers []model.Container
	// failing maps container ids to the message actions on them fail with
	failing map[string]string
	release chan struct{}
	// pauses wait for hold
	hold chan struct{}
}

func (c *cluster) find(id string) (model.Container, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, container := range c.containers {
		if container.ID == id {
			return container, true
		}
	}
	return model.Container{}, false
}

func (c *cluster) fail(id, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing[id] = message
}

func (c *cluster) setStatus(id string, status model.ContainerStatus) model.Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.containers {
		if c.containers[i].ID == id {
			c.containers[i].Status = status
			return c.containers[i]
		}
	}
	return model.Container{}
}

func (c *cluster) routes(engine *gin.Engine) {
	engine.GET("/api/containers", func(ctx *gin.Context) {
		switch ctx.Query("search") {
		case "block":
			<-ctx.Request.Context().Done()
			return
		case "slow":
			select {
			case <-c.release:
			case <-ctx.Request.Context().Done():
				return
			}
			inttest.OK(ctx, gateway.Page[model.Container]{Items: []model.Container{{ID: "stale", Name: "stale", Namespace: "default"}}, Total: 1})
			return
		}
		c.mu.Lock()
		items := append([]model.Container(nil), c.containers...)
		c.mu.Unlock()
		inttest.OK(ctx, gateway.Page[model.Container]{Items: items, Total: len(items), Page: 1, PageSize: 20, TotalPages: 1})
	})
	engine.GET("/api/containers/:id", func(ctx *gin.Context) {
		container, ok := c.find(ctx.Param("id"))
		if !ok {
			inttest.Fail(ctx, http.StatusNotFound, "container not found")
			return
		}
		inttest.OK(ctx, container)
	})
	engine.GET("/api/containers/:id/stats", func(ctx *gin.Context) {
		var stats model.ContainerStats
		switch ctx.Param("id") {
		case "c1":
			stats.CPU.UsagePercent = 20
			stats.Memory.UsagePercent = 50
		case "c3":
			stats.CPU.UsagePercent = 40
			stats.Memory.UsagePercent = 10
		}
		inttest.OK(ctx, stats)
	})
	engine.POST("/api/containers", func(ctx *gin.Context) {
		var request container.CreateRequest
		_ = ctx.ShouldBindJSON(&request)
		created := model.Container{ID: "new", Name: request.Config.Name, Image: request.Config.Image, Namespace: request.Namespace, Status: model.StatusPending}
		c.mu.Lock()
		c.containers = append(c.containers, created)
		c.mu.Unlock()
		inttest.OK(ctx, created)
	})
	engine.POST("/api/containers/batch", func(ctx *gin.Context) {
		inttest.OK(ctx, nil)
	})
	engine.POST("/api/containers/:id/action", func(ctx *gin.Context) {
		id := ctx.Param("id")
		c.mu.Lock()
		failure, failing := c.failing[id]
		c.mu.Unlock()
		if failing {
			// a rejection which still carries a 2xx status
			ctx.JSON(http.StatusOK, gin.H{"success": false, "message": failure})
			return
		}

		var request struct {
			Action model.Action `json:"action"`
		}
		_ = ctx.ShouldBindJSON(&request)
		switch request.Action {
		case model.ActionStop:
			inttest.OK(ctx, c.setStatus(id, model.StatusSucceeded))
		case model.ActionStart:
			c.setStatus(id, model.StatusRunning)
			inttest.OK(ctx, nil)
		case model.ActionPause:
			select {
			case <-c.hold:
			case <-ctx.Request.Context().Done():
				return
			}
			inttest.OK(ctx, nil)
		default:
			inttest.OK(ctx, nil)
		}
	})
}

type fixture struct {
	cluster  *cluster
	backend  *inttest.Backend
	broker   *event.Broker
	registry *connection.Registry
	store    *store.Store
}

func setup(t *testing.T) fixture {
	t.Helper()

	c := &cluster{
		containers: []model.Container{
			{ID: "c1", Name: "web", Namespace: "default", Status: model.StatusRunning, RestartCount: 2, Labels: map[string]string{"app": "web"}},
			{ID: "c2", Name: "worker", Namespace: "default", Status: model.StatusFailed, RestartCount: 5},
			{ID: "c3", Name: "db", Namespace: "data", Status: model.StatusRunning},
		},
		failing: map[string]string{},
		release: make(chan struct{}),
		hold:    make(chan struct{}),
	}
	backend := inttest.SetupBackend(t, c.routes)
	client, err := gateway.New(gateway.Config{BaseURL: backend.URL + "/api"})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broker := event.NewEventBroker()
	registry := connection.NewRegistry(logger, storage.NewMemory(), broker, nil)
	s := store.New(logger, container.NewService(client), registry)
	return fixture{cluster: c, backend: backend, broker: broker, registry: registry, store: s}
}

func (f fixture) createConnection(t *testing.T, name, namespace string) model.Connection {
	t.Helper()
	created, err := f.registry.Create(context.Background(), model.ConnectionDraft{
		Name:              name,
		Endpoint:          "https://" + name + ".example.org:6443",
		AuthMode:          model.AuthModeToken,
		CredentialPayload: "secret",
		DefaultNamespace:  namespace,
	})
	require.NoError(t, err)
	return created
}

// brokenRegistry fails to read the catalogue.
type brokenRegistry struct {
	*connection.Registry
}

func (brokenRegistry) List(context.Context) ([]model.Connection, error) {
	return nil, errors.New("catalogue unreadable")
}

func (f fixture) populate(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.FetchContainers(context.Background()).Wait())
	require.Equal(t, store.PhasePopulated, f.store.Snapshot().Containers.Phase)
}

func TestStore_FetchContainers(t *testing.T) {
	f := setup(t)
	assert.Equal(t, store.PhaseIdle, f.store.Snapshot().Containers.Phase)

	f.populate(t)

	state := f.store.Snapshot()
	assert.Len(t, state.Containers.Items, 3)
	assert.Equal(t, 3, state.Containers.Pagination.Total)
	assert.Empty(t, state.Containers.Error)
	assert.Equal(t, model.Statistics{
		TotalContainers:     3,
		RunningContainers:   2,
		ErrorContainers:     1,
		TotalNamespaces:     2,
		TotalRestartCounter: 7,
	}, state.Dashboard.Statistics)

	query := f.backend.LastRequest().URL.Query()
	assert.Equal(t, "1", query.Get("page"))
	assert.Equal(t, "20", query.Get("pageSize"))
	assert.Equal(t, "default", query.Get("namespace"))
	assert.NotContains(t, query, "search")
}

func TestStore_FailedActionLeavesListUnchanged(t *testing.T) {
	f := setup(t)
	f.populate(t)
	before := f.store.Snapshot().Containers.Items
	f.cluster.fail("c1", "pod not found")

	err := f.store.PerformAction(context.Background(), "c1", model.ActionStop, "default")

	require.True(t, gateway.IsServer(err))
	state := f.store.Snapshot()
	assert.Equal(t, before, state.Containers.Items)
	assert.Equal(t, "pod not found", state.Containers.Error)
	assert.Empty(t, state.Containers.Pending)
	require.Len(t, state.Notifications, 1)
	assert.Equal(t, model.NotificationError, state.Notifications[0].Type)
	assert.Equal(t, "pod not found", state.Notifications[0].Message)
	require.Len(t, state.Dashboard.Activities, 1)
	assert.Equal(t, model.ActivityFailed, state.Dashboard.Activities[0].Status)
}

func TestStore_CancelFetch(t *testing.T) {
	f := setup(t)
	fetch := f.store.SetFilter(context.Background(), store.Filter{Namespace: "default", Search: "block"})
	assert.True(t, f.store.Snapshot().Containers.Loading())

	fetch.Cancel()
	err := fetch.Wait()

	assert.True(t, gateway.IsCancelled(err))
	state := f.store.Snapshot()
	assert.False(t, state.Containers.Loading())
	assert.Equal(t, store.PhaseIdle, state.Containers.Phase)
	assert.Empty(t, state.Containers.Items)
	assert.Empty(t, state.Containers.Error)
	assert.Empty(t, state.Notifications)
}

func TestStore_CancelRefetchKeepsItems(t *testing.T) {
	f := setup(t)
	f.populate(t)

	fetch := f.store.SetFilter(context.Background(), store.Filter{Search: "block"})
	fetch.Cancel()
	_ = fetch.Wait()

	state := f.store.Snapshot()
	assert.Equal(t, store.PhasePopulated, state.Containers.Phase)
	assert.Len(t, state.Containers.Items, 3)
}

func TestStore_StaleResponseIsDiscarded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	slow := f.store.SetFilter(ctx, store.Filter{Search: "slow"})
	require.Eventually(t, func() bool { return len(f.backend.Requests()) == 1 }, time.Second, 10*time.Millisecond)
	fast := f.store.SetFilter(ctx, store.Filter{Namespace: "default"})
	require.NoError(t, fast.Wait())

	close(f.cluster.release)
	require.NoError(t, slow.Wait())

	state := f.store.Snapshot()
	assert.Equal(t, store.PhasePopulated, state.Containers.Phase)
	require.Len(t, state.Containers.Items, 3)
	assert.Equal(t, "c1", state.Containers.Items[0].ID)
}

func TestStore_FilterAndPagination(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.store.SetPage(ctx, 3).Wait())
	assert.Equal(t, "3", f.backend.LastRequest().URL.Query().Get("page"))

	require.NoError(t, f.store.SetFilter(ctx, store.Filter{Namespace: "data", Status: "Running"}).Wait())
	query := f.backend.LastRequest().URL.Query()
	assert.Equal(t, "1", query.Get("page"))
	assert.Equal(t, "data", query.Get("namespace"))
	assert.Equal(t, "Running", query.Get("status"))

	require.NoError(t, f.store.SetPage(ctx, 2).Wait())
	require.NoError(t, f.store.SetPageSize(ctx, 50).Wait())
	query = f.backend.LastRequest().URL.Query()
	assert.Equal(t, "1", query.Get("page"))
	assert.Equal(t, "50", query.Get("pageSize"))
}

func TestStore_Query(t *testing.T) {
	f := setup(t)
	requests := len(f.backend.Requests())

	require.NoError(t, f.store.Query(context.Background(), store.Filter{Namespace: "data"}, 0, 0).Wait())

	assert.Len(t, f.backend.Requests(), requests+1)
	query := f.backend.LastRequest().URL.Query()
	assert.Equal(t, "1", query.Get("page"))
	assert.Equal(t, "20", query.Get("pageSize"))
	assert.Equal(t, "data", query.Get("namespace"))
	pagination := f.store.Snapshot().Containers.Pagination
	assert.Equal(t, store.Pagination{Page: 1, PageSize: store.DefaultPageSize, Total: 3}, pagination)
}

func TestStore_FilterClearsError(t *testing.T) {
	f := setup(t)
	f.populate(t)
	f.cluster.fail("c1", "pod not found")
	require.Error(t, f.store.PerformAction(context.Background(), "c1", model.ActionStop, "default"))

	fetch := f.store.SetFilter(context.Background(), store.Filter{Namespace: "default"})
	assert.Empty(t, f.store.Snapshot().Containers.Error)
	require.NoError(t, fetch.Wait())
}

func TestStore_PerformAction(t *testing.T) {
	ctx := context.Background()

	t.Run("StopIsIdempotent", func(t *testing.T) {
		f := setup(t)
		f.populate(t)

		require.NoError(t, f.store.PerformAction(ctx, "c1", model.ActionStop, "default"))
		first := f.store.Snapshot()
		require.NoError(t, f.store.PerformAction(ctx, "c1", model.ActionStop, "default"))
		second := f.store.Snapshot()

		assert.Equal(t, model.StatusSucceeded, second.Containers.Items[0].Status)
		assert.Equal(t, first.Containers.Items, second.Containers.Items)
		assert.Equal(t, 1, second.Dashboard.Statistics.StoppedContainers)
		assert.Len(t, second.Dashboard.Activities, 2)
	})

	t.Run("StartFetchesContainer", func(t *testing.T) {
		f := setup(t)
		f.populate(t)

		require.NoError(t, f.store.PerformAction(ctx, "c2", model.ActionStart, "default"))

		state := f.store.Snapshot()
		assert.Equal(t, model.StatusRunning, state.Containers.Items[1].Status)
		assert.Equal(t, "/api/containers/c2", f.backend.LastRequest().URL.Path)
		assert.Equal(t, 3, state.Dashboard.Statistics.RunningContainers)
	})

	t.Run("Destroy", func(t *testing.T) {
		f := setup(t)
		f.populate(t)
		f.store.Select("c2")

		require.NoError(t, f.store.DestroyContainer(ctx, "c2", "default"))

		state := f.store.Snapshot()
		assert.Len(t, state.Containers.Items, 2)
		assert.Equal(t, 2, state.Containers.Pagination.Total)
		assert.Nil(t, state.Selected)
	})

	t.Run("InvalidAction", func(t *testing.T) {
		f := setup(t)
		requests := len(f.backend.Requests())

		for i := 0; i < store.MaxActivities+1; i++ {
			assert.Error(t, f.store.PerformAction(ctx, "c1", model.Action("explode"), "default"))
		}

		state := f.store.Snapshot()
		assert.Len(t, f.backend.Requests(), requests)
		assert.Len(t, state.Dashboard.Activities, store.MaxActivities)
		assert.Empty(t, state.Containers.Pending)
	})
}

func TestStore_CreateContainer(t *testing.T) {
	f := setup(t)
	f.populate(t)

	created, err := f.store.CreateContainer(context.Background(), container.CreateRequest{
		Config:    model.ContainerConfig{Name: "cache", Image: "redis:7"},
		Namespace: "default",
	})

	require.NoError(t, err)
	state := f.store.Snapshot()
	assert.Len(t, state.Containers.Items, 4)
	assert.Equal(t, created, state.Containers.Items[3])
	assert.Equal(t, 4, state.Containers.Pagination.Total)
	assert.Equal(t, 1, state.Dashboard.Statistics.PendingContainers)
	assert.Equal(t, model.ActivitySuccess, state.Dashboard.Activities[0].Status)
}

func TestStore_Batch(t *testing.T) {
	ctx := context.Background()

	t.Run("Destroy", func(t *testing.T) {
		f := setup(t)
		f.populate(t)

		require.NoError(t, f.store.Batch(ctx, []string{"c1", "c2"}, model.ActionDestroy, "default"))

		state := f.store.Snapshot()
		require.Len(t, state.Containers.Items, 1)
		assert.Equal(t, "c3", state.Containers.Items[0].ID)
	})

	t.Run("RestartRefetches", func(t *testing.T) {
		f := setup(t)
		f.populate(t)

		require.NoError(t, f.store.Batch(ctx, []string{"c1", "c2"}, model.ActionRestart, "default"))

		req := f.backend.LastRequest()
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "/api/containers", req.URL.Path)
		assert.Empty(t, f.store.Snapshot().Containers.Pending)
	})
}

func TestStore_ActivateConnection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.populate(t)
	require.NoError(t, f.store.SetPage(ctx, 2).Wait())

	created, err := f.store.CreateConnection(ctx, model.ConnectionDraft{
		Name:              "staging",
		Endpoint:          "https://staging.example.org:6443",
		AuthMode:          model.AuthModeToken,
		CredentialPayload: "secret",
		DefaultNamespace:  "data",
	})
	require.NoError(t, err)

	fetch, err := f.store.ActivateConnection(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetch)
	require.NoError(t, fetch.Wait())

	state := f.store.Snapshot()
	require.NotNil(t, state.Connections.Active)
	assert.Equal(t, created.ID, state.Connections.Active.ID)
	assert.True(t, state.Connections.Items[0].IsActive)
	assert.Equal(t, store.Filter{Namespace: "data"}, state.Containers.Filter)
	assert.Equal(t, 1, state.Containers.Pagination.Page)
	query := f.backend.LastRequest().URL.Query()
	assert.Equal(t, "data", query.Get("namespace"))
	assert.Equal(t, "1", query.Get("page"))

	again, err := f.store.ActivateConnection(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, f.store.DeleteConnection(ctx, created.ID))
	state = f.store.Snapshot()
	assert.Nil(t, state.Connections.Active)
	assert.Empty(t, state.Connections.Items)
	assert.Empty(t, state.Containers.Items)
	assert.Equal(t, store.PhaseIdle, state.Containers.Phase)
	assert.Equal(t, model.DefaultNamespace, state.Containers.Filter.Namespace)
}

func TestStore_Run(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.SetAutoRefresh(false)

	created, err := f.registry.Create(ctx, model.ConnectionDraft{
		Name:              "prod",
		Endpoint:          "https://prod.example.org:6443",
		AuthMode:          model.AuthModeToken,
		CredentialPayload: "secret",
		DefaultNamespace:  "data",
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.store.Run(ctx)
	}()

	// the store subscribes once Run started
	require.Eventually(t, func() bool {
		_, _ = f.registry.Activate(ctx, created.ID)
		state := f.store.Snapshot()
		return state.Connections.Active != nil && state.Containers.Phase == store.PhasePopulated
	}, time.Second, 20*time.Millisecond)

	state := f.store.Snapshot()
	assert.Equal(t, created.ID, state.Connections.Active.ID)
	assert.Equal(t, "data", state.Containers.Filter.Namespace)

	cancel()
	<-done
}

func TestStore_AutoRefresh(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := f.store
	s.SetRefreshInterval(20 * time.Millisecond)

	go s.Run(ctx)

	require.Eventually(t, func() bool {
		state := s.Snapshot()
		return state.Containers.Phase == store.PhasePopulated && len(state.Dashboard.ResourceUsage) > 0
	}, time.Second, 10*time.Millisecond)
	assert.False(t, s.Snapshot().Dashboard.LastRefresh.IsZero())
}

func TestStore_RefreshUsage(t *testing.T) {
	f := setup(t)
	f.populate(t)

	require.NoError(t, f.store.RefreshUsage(context.Background()))

	usage := f.store.Snapshot().Dashboard.ResourceUsage
	require.Len(t, usage, 1)
	assert.Equal(t, 2, usage[0].Samples)
	assert.InDelta(t, 30, usage[0].CPU, 0.001)
	assert.InDelta(t, 30, usage[0].Memory, 0.001)

	for i := 0; i < store.MaxUsageSamples; i++ {
		require.NoError(t, f.store.RefreshUsage(context.Background()))
	}
	assert.Len(t, f.store.Snapshot().Dashboard.ResourceUsage, store.MaxUsageSamples)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	f := setup(t)
	f.populate(t)

	snapshot := f.store.Snapshot()
	snapshot.Containers.Items[0].Labels["app"] = "changed"
	snapshot.Containers.Items[1].Name = "changed"

	state := f.store.Snapshot()
	assert.Equal(t, "web", state.Containers.Items[0].Labels["app"])
	assert.Equal(t, "worker", state.Containers.Items[1].Name)
}

func TestStore_Notifications(t *testing.T) {
	f := setup(t)
	f.populate(t)
	f.cluster.fail("c1", "pod not found")
	f.cluster.fail("c2", "forbidden")
	ctx := context.Background()
	require.Error(t, f.store.PerformAction(ctx, "c1", model.ActionStop, "default"))
	require.Error(t, f.store.PerformAction(ctx, "c2", model.ActionStop, "default"))

	notifications := f.store.Snapshot().Notifications
	require.Len(t, notifications, 2)

	f.store.DismissNotification(notifications[0].ID)
	notifications = f.store.Snapshot().Notifications
	require.Len(t, notifications, 1)
	assert.Equal(t, "forbidden", notifications[0].Message)

	f.store.ClearNotifications()
	assert.Empty(t, f.store.Snapshot().Notifications)
}

func TestStore_NotificationsAreCapped(t *testing.T) {
	f := setup(t)
	f.cluster.fail("c1", "pod not found")

	for i := 0; i < store.MaxNotifications+10; i++ {
		require.Error(t, f.store.PerformAction(context.Background(), "c1", model.ActionStop, "default"))
	}

	assert.Len(t, f.store.Snapshot().Notifications, store.MaxNotifications)
}

func TestStore_Sort(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetPage(ctx, 2).Wait())
	f.cluster.fail("c1", "pod not found")
	require.Error(t, f.store.PerformAction(ctx, "c1", model.ActionStop, "default"))

	fetch := f.store.SetFilter(ctx, store.Filter{Namespace: "default", SortBy: "name", SortOrder: container.SortDescending})
	assert.Empty(t, f.store.Snapshot().Containers.Error)
	require.NoError(t, fetch.Wait())

	query := f.backend.LastRequest().URL.Query()
	assert.Equal(t, "name", query.Get("sortBy"))
	assert.Equal(t, "desc", query.Get("sortOrder"))
	assert.Equal(t, "1", query.Get("page"))

	created := f.createConnection(t, "staging", "data")
	fetch, err := f.store.ActivateConnection(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, fetch.Wait())

	assert.Equal(t, store.Filter{Namespace: "data"}, f.store.Snapshot().Containers.Filter)
	query = f.backend.LastRequest().URL.Query()
	assert.NotContains(t, query, "sortBy")
	assert.NotContains(t, query, "sortOrder")
}

func TestStore_LoadConnections(t *testing.T) {
	ctx := context.Background()

	t.Run("PicksUpActive", func(t *testing.T) {
		f := setup(t)
		f.createConnection(t, "prod", "default")
		staging := f.createConnection(t, "staging", "data")
		_, err := f.registry.Activate(ctx, staging.ID)
		require.NoError(t, err)

		f.store.LoadConnections(ctx)

		state := f.store.Snapshot()
		assert.Equal(t, store.PhasePopulated, state.Connections.Phase)
		assert.Len(t, state.Connections.Items, 2)
		require.NotNil(t, state.Connections.Active)
		assert.Equal(t, staging.ID, state.Connections.Active.ID)
		assert.Equal(t, store.Filter{Namespace: "data"}, state.Containers.Filter)
		assert.Equal(t, store.PhaseIdle, state.Containers.Phase)
		assert.Empty(t, f.backend.Requests(), "want no container fetch")
	})

	t.Run("Failure", func(t *testing.T) {
		f := setup(t)
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		client, err := gateway.New(gateway.Config{BaseURL: f.backend.URL + "/api"})
		require.NoError(t, err)
		s := store.New(logger, container.NewService(client), brokenRegistry{f.registry})

		s.LoadConnections(ctx)

		state := s.Snapshot()
		assert.Equal(t, store.PhaseErrored, state.Connections.Phase)
		assert.Equal(t, "catalogue unreadable", state.Connections.Error)
		assert.Empty(t, state.Connections.Items)
		assert.Nil(t, state.Connections.Active)
		assert.Empty(t, state.Containers.Error)
		require.Len(t, state.Notifications, 1)
		assert.Equal(t, model.NotificationError, state.Notifications[0].Type)
	})
}

func TestStore_OverlappingActions(t *testing.T) {
	f := setup(t)
	f.populate(t)
	ctx := context.Background()

	paused := make(chan error, 1)
	go func() {
		paused <- f.store.PerformAction(ctx, "c1", model.ActionPause, "default")
	}()
	require.Eventually(t, func() bool {
		return f.store.Snapshot().Containers.Pending["c1"] == model.ActionPause
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, f.store.PerformAction(ctx, "c1", model.ActionStop, "default"))

	assert.Contains(t, f.store.Snapshot().Containers.Pending, "c1", "want the overlay kept while the pause is in flight")

	close(f.cluster.hold)
	require.NoError(t, <-paused)
	assert.Empty(t, f.store.Snapshot().Containers.Pending)
}

func TestStore_SessionExpiredAfterConnectionCleared(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created := f.createConnection(t, "prod", "data")
	fetch, err := f.store.ActivateConnection(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, fetch.Wait())
	requests := len(f.backend.Requests())
	fetch = f.store.SetFilter(ctx, store.Filter{Namespace: "data", Search: "slow"})
	require.Eventually(t, func() bool { return len(f.backend.Requests()) > requests }, time.Second, 10*time.Millisecond)
	fetch.Cancel()
	_ = fetch.Wait()

	requests = len(f.backend.Requests())
	f.store.SetRefreshInterval(10 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.store.Run(ctx)
	}()

	// the refresh blocks on the slow list
	require.Eventually(t, func() bool { return len(f.backend.Requests()) > requests }, time.Second, 10*time.Millisecond)

	require.NoError(t, f.registry.Delete(ctx, created.ID))
	f.broker.Publish(event.Event{Type: event.TypeSessionExpired, Message: "Your session has expired"})
	close(f.cluster.release)

	require.Eventually(t, func() bool {
		state := f.store.Snapshot()
		return state.Connections.Active == nil && len(state.Notifications) > 1
	}, time.Second, 10*time.Millisecond)

	state := f.store.Snapshot()
	assert.Equal(t, model.DefaultNamespace, state.Containers.Filter.Namespace)
	last := state.Notifications[len(state.Notifications)-1]
	assert.Equal(t, model.NotificationWarning, last.Type)
	assert.Equal(t, "Your session has expired", last.Message)

	cancel()
	<-done
}
