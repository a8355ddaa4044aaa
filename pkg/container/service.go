// Package container talks to the container endpoints of the backend. Every lifecycle change goes
// through [Service.PerformAction].
package container

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/dhis2-sre/im-console/internal/validation"
	"github.com/dhis2-sre/im-console/pkg/gateway"
	"github.com/dhis2-sre/im-console/pkg/model"
)

type client interface {
	Get(ctx context.Context, path string, out any, options ...gateway.RequestOption) error
	Post(ctx context.Context, path string, body, out any, options ...gateway.RequestOption) error
	Put(ctx context.Context, path string, body, out any, options ...gateway.RequestOption) error
	Delete(ctx context.Context, path string, out any, options ...gateway.RequestOption) error
}

func NewService(client client) *Service {
	return &Service{client: client}
}

type Service struct {
	client client
}

func (s Service) List(ctx context.Context, params ListParams) (gateway.Page[model.Container], error) {
	var containers gateway.Page[model.Container]
	err := s.client.Get(ctx, "/containers", &containers, gateway.WithQuery(params.values()))
	return containers, err
}

func (s Service) Get(ctx context.Context, id, namespace string) (model.Container, error) {
	var container model.Container
	err := s.client.Get(ctx, containerPath(id), &container, gateway.WithQuery(namespaceQuery(namespace)))
	return container, err
}

// Create validates the config and creates the container.
func (s Service) Create(ctx context.Context, request CreateRequest) (model.Container, error) {
	if err := CheckConfig(&request.Config); err != nil {
		return model.Container{}, err
	}

	var container model.Container
	err := s.client.Post(ctx, "/containers", request, &container)
	return container, err
}

func (s Service) Update(ctx context.Context, id string, config model.ContainerConfig, namespace string) (model.Container, error) {
	if err := CheckConfig(&config); err != nil {
		return model.Container{}, err
	}

	body := struct {
		Config    model.ContainerConfig `json:"config"`
		Namespace string                `json:"namespace,omitempty"`
	}{config, namespace}

	var container model.Container
	err := s.client.Put(ctx, containerPath(id), body, &container)
	return container, err
}

type actionRequest struct {
	Action    model.Action `json:"action"`
	Namespace string       `json:"namespace,omitempty"`
}

// PerformAction applies action to the container. It returns the container if the backend sends it
// along and nil otherwise. An unknown action is rejected without calling the backend.
func (s Service) PerformAction(ctx context.Context, id string, action model.Action, namespace string) (*model.Container, error) {
	if !action.Valid() {
		return nil, errdef.NewValidation("invalid action %q", action)
	}
	if id == "" {
		return nil, errdef.NewValidation("container id is required")
	}

	var container *model.Container
	err := s.client.Post(ctx, containerPath(id)+"/action", actionRequest{Action: action, Namespace: namespace}, &container)
	if err != nil {
		return nil, err
	}
	return container, nil
}

func (s Service) Start(ctx context.Context, id, namespace string) (*model.Container, error) {
	return s.PerformAction(ctx, id, model.ActionStart, namespace)
}

func (s Service) Stop(ctx context.Context, id, namespace string) (*model.Container, error) {
	return s.PerformAction(ctx, id, model.ActionStop, namespace)
}

func (s Service) Restart(ctx context.Context, id, namespace string) (*model.Container, error) {
	return s.PerformAction(ctx, id, model.ActionRestart, namespace)
}

func (s Service) Pause(ctx context.Context, id, namespace string) (*model.Container, error) {
	return s.PerformAction(ctx, id, model.ActionPause, namespace)
}

func (s Service) Resume(ctx context.Context, id, namespace string) (*model.Container, error) {
	return s.PerformAction(ctx, id, model.ActionResume, namespace)
}

func (s Service) Destroy(ctx context.Context, id, namespace string) error {
	_, err := s.PerformAction(ctx, id, model.ActionDestroy, namespace)
	return err
}

// Batch applies action to all ids in a single request. The batch succeeds or fails as a whole.
func (s Service) Batch(ctx context.Context, ids []string, action model.Action, namespace string) error {
	if !action.Valid() {
		return errdef.NewValidation("invalid action %q", action)
	}
	if len(ids) == 0 {
		return errdef.NewValidation("at least one container id is required")
	}

	body := struct {
		IDs       []string     `json:"ids"`
		Action    model.Action `json:"action"`
		Namespace string       `json:"namespace,omitempty"`
	}{ids, action, namespace}
	return s.client.Post(ctx, "/containers/batch", body, nil)
}

func (s Service) Logs(ctx context.Context, params LogParams) (model.ContainerLogs, error) {
	if params.ContainerID == "" {
		return model.ContainerLogs{}, errdef.NewValidation("container id is required")
	}

	var logs model.ContainerLogs
	err := s.client.Get(ctx, containerPath(params.ContainerID)+"/logs", &logs, gateway.WithQuery(params.values()))
	return logs, err
}

func (s Service) Stats(ctx context.Context, id, namespace string) (model.ContainerStats, error) {
	var stats model.ContainerStats
	err := s.client.Get(ctx, containerPath(id)+"/stats", &stats, gateway.WithQuery(namespaceQuery(namespace)))
	return stats, err
}

// Events returns the most recent events of the container. limit defaults to 50.
func (s Service) Events(ctx context.Context, id, namespace string, limit int) ([]model.ContainerEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	query := namespaceQuery(namespace)
	query.Set("limit", strconv.Itoa(limit))

	var events []model.ContainerEvent
	err := s.client.Get(ctx, containerPath(id)+"/events", &events, gateway.WithQuery(query))
	return events, err
}

func (s Service) Exec(ctx context.Context, request ExecRequest) (model.ExecSession, error) {
	if err := validation.Struct(request); err != nil {
		return model.ExecSession{}, err
	}

	var session model.ExecSession
	err := s.client.Post(ctx, "/containers/exec", request, &session)
	return session, err
}

func (s Service) Namespaces(ctx context.Context) ([]string, error) {
	var namespaces []string
	err := s.client.Get(ctx, "/namespaces", &namespaces)
	return namespaces, err
}

func (s Service) Images(ctx context.Context) ([]model.ContainerImage, error) {
	var images []model.ContainerImage
	err := s.client.Get(ctx, "/containers/images", &images)
	return images, err
}

func (s Service) AvailableImages(ctx context.Context) ([]string, error) {
	var images []string
	err := s.client.Get(ctx, "/containers/images/available", &images)
	return images, err
}

func (s Service) PullImage(ctx context.Context, image string) error {
	if image == "" {
		return errdef.NewValidation("image name is required")
	}
	return s.client.Post(ctx, "/containers/images/pull", map[string]string{"imageName": image}, nil)
}

func (s Service) DeleteImage(ctx context.Context, image string) error {
	if image == "" {
		return errdef.NewValidation("image name is required")
	}
	return s.client.Delete(ctx, "/containers/images/"+url.PathEscape(image), nil)
}

// Validate checks config locally and then asks the backend to validate it.
func (s Service) Validate(ctx context.Context, config model.ContainerConfig) (ValidationResult, error) {
	if err := CheckConfig(&config); err != nil {
		return ValidationResult{}, err
	}

	var result ValidationResult
	err := s.client.Post(ctx, "/containers/validate", map[string]any{"config": config}, &result)
	return result, err
}

func (s Service) Templates(ctx context.Context) ([]model.ContainerConfig, error) {
	var templates []model.ContainerConfig
	err := s.client.Get(ctx, "/containers/templates", &templates)
	return templates, err
}

// Export returns the config of the container.
func (s Service) Export(ctx context.Context, id, namespace string) (model.ContainerConfig, error) {
	var raw json.RawMessage
	if err := s.client.Get(ctx, containerPath(id)+"/export", &raw, gateway.WithQuery(namespaceQuery(namespace))); err != nil {
		return model.ContainerConfig{}, err
	}

	// an export has to pass the checks of an import
	config, err := DecodeConfig(raw)
	if err != nil {
		return model.ContainerConfig{}, fmt.Errorf("backend exported an invalid config: %w", err)
	}
	return config, nil
}

// Import creates a container from a YAML or JSON config document.
func (s Service) Import(ctx context.Context, blob []byte, namespace string) (model.Container, error) {
	config, err := DecodeConfig(blob)
	if err != nil {
		return model.Container{}, err
	}

	body := struct {
		Config    model.ContainerConfig `json:"config"`
		Namespace string                `json:"namespace,omitempty"`
	}{config, namespace}

	var container model.Container
	err = s.client.Post(ctx, "/containers/import", body, &container)
	return container, err
}

// ResourceUsage returns the usage trend of the container. timeRange defaults to 24h.
func (s Service) ResourceUsage(ctx context.Context, id string, timeRange TimeRange, namespace string) ([]model.UsagePoint, error) {
	if timeRange == "" {
		timeRange = DefaultTimeRange
	}
	if !timeRange.valid() {
		return nil, errdef.NewValidation("invalid time range %q", timeRange)
	}
	query := namespaceQuery(namespace)
	query.Set("timeRange", string(timeRange))

	var usage []model.UsagePoint
	err := s.client.Get(ctx, containerPath(id)+"/usage", &usage, gateway.WithQuery(query))
	return usage, err
}

func containerPath(id string) string {
	return "/containers/" + url.PathEscape(id)
}
