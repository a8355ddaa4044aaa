// Package connection keeps the catalogue of cluster connections. At most one connection is active
// at any time and every change of the active connection is published on the event broker.
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/dhis2-sre/im-console/internal/validation"
	"github.com/dhis2-sre/im-console/pkg/event"
	"github.com/dhis2-sre/im-console/pkg/model"
	"github.com/dhis2-sre/im-console/pkg/storage"
	"github.com/google/uuid"
	"k8s.io/client-go/tools/clientcmd"
)

// CatalogueKey is the key the catalogue is persisted under.
const CatalogueKey = "k8s-connections"

type prober interface {
	TestConnection(ctx context.Context, connection model.Connection) error
}

type Option func(*Registry)

// WithSealer seals credential payloads before they are persisted.
func WithSealer(sealer Sealer) Option {
	return func(r *Registry) {
		r.sealer = sealer
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(logger *slog.Logger, store storage.Store, broker *event.Broker, prober prober, options ...Option) *Registry {
	r := &Registry{
		logger: logger,
		store:  store,
		broker: broker,
		prober: prober,
		sealer: plain{},
		now:    time.Now,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

type Registry struct {
	logger *slog.Logger
	store  storage.Store
	broker *event.Broker
	prober prober
	sealer Sealer
	now    func() time.Time

	// serializes read-modify-write cycles of the catalogue
	mu sync.Mutex
}

// List returns the catalogue in insertion order.
func (r *Registry) List(ctx context.Context) ([]model.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load(ctx)
}

// Create validates draft and appends it to the catalogue as an inactive connection.
func (r *Registry) Create(ctx context.Context, draft model.ConnectionDraft) (model.Connection, error) {
	if err := ValidateDraft(draft); err != nil {
		return model.Connection{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	connections, err := r.load(ctx)
	if err != nil {
		return model.Connection{}, err
	}

	connection := fromDraft(draft)
	connection.ID = uuid.NewString()
	connection.CreatedAt = r.now().UTC()
	connections = append(connections, connection)

	if err := r.save(ctx, connections); err != nil {
		return model.Connection{}, err
	}

	r.logger.InfoContext(ctx, "Connection created", "id", connection.ID, "name", connection.Name)
	return connection, nil
}

// Activate makes the connection with id the only active one and publishes it.
func (r *Registry) Activate(ctx context.Context, id string) (model.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connections, err := r.load(ctx)
	if err != nil {
		return model.Connection{}, err
	}

	i := indexOf(connections, id)
	if i < 0 {
		return model.Connection{}, errdef.NewNotFound("connection %q not found", id)
	}

	for j := range connections {
		connections[j].IsActive = j == i
	}

	if err := r.save(ctx, connections); err != nil {
		return model.Connection{}, err
	}

	active := connections[i]
	r.logger.InfoContext(ctx, "Connection activated", "id", active.ID, "name", active.Name)
	r.broker.Publish(event.Event{Type: event.TypeConnectionActivated, Connection: &active})
	return active, nil
}

// Delete removes the connection with id. Deleting the active connection leaves no connection
// active and publishes that.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	connections, err := r.load(ctx)
	if err != nil {
		return err
	}

	i := indexOf(connections, id)
	if i < 0 {
		return errdef.NewNotFound("connection %q not found", id)
	}

	wasActive := connections[i].IsActive
	connections = append(connections[:i], connections[i+1:]...)

	if err := r.save(ctx, connections); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Connection deleted", "id", id, "wasActive", wasActive)
	if wasActive {
		r.broker.Publish(event.Event{Type: event.TypeConnectionCleared})
	}
	return nil
}

// Active returns the active connection or nil if there is none.
func (r *Registry) Active(ctx context.Context) (*model.Connection, error) {
	connections, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, connection := range connections {
		if connection.IsActive {
			return &connection, nil
		}
	}
	return nil, nil
}

// TestConnection validates draft and asks the backend whether the cluster is reachable. The
// catalogue isn't touched.
func (r *Registry) TestConnection(ctx context.Context, draft model.ConnectionDraft) error {
	if err := ValidateDraft(draft); err != nil {
		return err
	}

	err := r.prober.TestConnection(ctx, fromDraft(draft))
	if err != nil {
		r.logger.WarnContext(ctx, "Connection test failed", "endpoint", draft.Endpoint, "error", err)
		return err
	}
	return nil
}

func (r *Registry) Subscribe(id string) <-chan event.Event {
	return r.broker.Subscribe(id)
}

func (r *Registry) Unsubscribe(id string) {
	r.broker.Unsubscribe(id)
}

// ValidateDraft validates the fields of draft. A kubeconfig payload also has to be a loadable and
// consistent kubeconfig.
func ValidateDraft(draft model.ConnectionDraft) error {
	if err := validation.Struct(draft); err != nil {
		return err
	}

	if draft.AuthMode == model.AuthModeKubeconfig {
		config, err := clientcmd.Load([]byte(draft.CredentialPayload))
		if err != nil {
			return errdef.NewValidation("invalid kubeconfig: %v", err)
		}
		if err := clientcmd.Validate(*config); err != nil {
			return errdef.NewValidation("invalid kubeconfig: %v", err)
		}
	}
	return nil
}

func fromDraft(draft model.ConnectionDraft) model.Connection {
	return model.Connection{
		Name:              draft.Name,
		Endpoint:          draft.Endpoint,
		AuthMode:          draft.AuthMode,
		CredentialPayload: draft.CredentialPayload,
		DefaultNamespace:  draft.DefaultNamespace,
	}
}

func indexOf(connections []model.Connection, id string) int {
	for i, connection := range connections {
		if connection.ID == id {
			return i
		}
	}
	return -1
}

// load reads the catalogue. A missing catalogue is empty and so is one that can't be decoded.
func (r *Registry) load(ctx context.Context) ([]model.Connection, error) {
	blob, err := r.store.Get(ctx, CatalogueKey)
	if errdef.IsNotFound(err) {
		return []model.Connection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read connections: %v", err)
	}

	var connections []model.Connection
	if err := json.Unmarshal([]byte(blob), &connections); err != nil {
		r.logger.ErrorContext(ctx, "Failed to decode connections, treating catalogue as empty", "error", err)
		return []model.Connection{}, nil
	}

	for i := range connections {
		payload, err := r.sealer.Open(connections[i].CredentialPayload)
		if err != nil {
			return nil, fmt.Errorf("connection %q: %v", connections[i].ID, err)
		}
		connections[i].CredentialPayload = payload
	}

	if normalize(connections) {
		r.logger.WarnContext(ctx, "More than one active connection found, keeping the most recently created")
	}
	return connections, nil
}

func (r *Registry) save(ctx context.Context, connections []model.Connection) error {
	sealed := make([]model.Connection, len(connections))
	for i, connection := range connections {
		payload, err := r.sealer.Seal(connection.CredentialPayload)
		if err != nil {
			return err
		}
		connection.CredentialPayload = payload
		sealed[i] = connection
	}

	blob, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("failed to encode connections: %v", err)
	}

	if err := r.store.Set(ctx, CatalogueKey, string(blob)); err != nil {
		return fmt.Errorf("failed to persist connections: %v", err)
	}
	return nil
}

// normalize leaves at most one connection active, the most recently created one. It reports
// whether connections were changed.
func normalize(connections []model.Connection) bool {
	keep := -1
	count := 0
	for i, connection := range connections {
		if !connection.IsActive {
			continue
		}
		count++
		if keep < 0 || !connection.CreatedAt.Before(connections[keep].CreatedAt) {
			keep = i
		}
	}
	if count <= 1 {
		return false
	}

	for i := range connections {
		connections[i].IsActive = i == keep
	}
	return true
}
