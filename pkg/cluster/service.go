// Package cluster talks to the endpoints under /k8s which address pods directly by namespace and
// pod name.
package cluster

import (
	"context"
	"net/url"
	"strings"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/dhis2-sre/im-console/internal/validation"
	"github.com/dhis2-sre/im-console/pkg/container"
	"github.com/dhis2-sre/im-console/pkg/gateway"
	"github.com/dhis2-sre/im-console/pkg/model"
)

type client interface {
	Get(ctx context.Context, path string, out any, options ...gateway.RequestOption) error
	Post(ctx context.Context, path string, body, out any, options ...gateway.RequestOption) error
	Delete(ctx context.Context, path string, out any, options ...gateway.RequestOption) error
}

func NewService(client client) *Service {
	return &Service{client: client}
}

type Service struct {
	client client
}

// CreateRequest carries the free text form fields of a container. Ports are comma separated port
// specs, Env holds KEY=VALUE lines and Resources is "cpu,memory" limits.
type CreateRequest struct {
	Name      string `json:"name" validate:"required,hostname_rfc1123"`
	Namespace string `json:"namespace"`
	Image     string `json:"image" validate:"required"`
	Command   string `json:"command,omitempty"`
	Ports     string `json:"ports,omitempty"`
	Env       string `json:"env,omitempty"`
	Resources string `json:"resources,omitempty"`
}

// Containers lists the containers of namespace. An empty namespace means "default".
func (s Service) Containers(ctx context.Context, namespace string) ([]model.Container, error) {
	if namespace == "" {
		namespace = model.DefaultNamespace
	}

	var containers []model.Container
	err := s.client.Get(ctx, "/k8s/containers", &containers, gateway.WithQuery(url.Values{"namespace": {namespace}}))
	return containers, err
}

// Create checks the free text fields locally and sends them as entered.
func (s Service) Create(ctx context.Context, request CreateRequest) error {
	if request.Namespace == "" {
		request.Namespace = model.DefaultNamespace
	}
	if err := checkCreateRequest(request); err != nil {
		return err
	}
	return s.client.Post(ctx, "/k8s/containers", request, nil)
}

func checkCreateRequest(request CreateRequest) error {
	if err := validation.Struct(request); err != nil {
		return err
	}
	if _, err := container.ParsePorts(strings.Split(request.Ports, ",")); err != nil {
		return err
	}
	if _, err := container.ParseEnv(request.Env); err != nil {
		return err
	}
	if request.Resources != "" {
		cpu, memory, _ := strings.Cut(request.Resources, ",")
		if _, err := container.ParseResources("", strings.TrimSpace(cpu), "", strings.TrimSpace(memory)); err != nil {
			return err
		}
	}
	return nil
}

func (s Service) Start(ctx context.Context, namespace, pod string) error {
	return s.podAction(ctx, namespace, pod, "start")
}

func (s Service) Stop(ctx context.Context, namespace, pod string) error {
	return s.podAction(ctx, namespace, pod, "stop")
}

func (s Service) Restart(ctx context.Context, namespace, pod string) error {
	return s.podAction(ctx, namespace, pod, "restart")
}

func (s Service) Delete(ctx context.Context, namespace, pod string) error {
	path, err := podPath(namespace, pod)
	if err != nil {
		return err
	}
	return s.client.Delete(ctx, path, nil)
}

func (s Service) podAction(ctx context.Context, namespace, pod, action string) error {
	path, err := podPath(namespace, pod)
	if err != nil {
		return err
	}
	return s.client.Post(ctx, path+"/"+action, nil, nil)
}

// TestConnection asks the backend to reach the cluster described by connection. It only succeeds
// if the backend could talk to the cluster.
func (s Service) TestConnection(ctx context.Context, connection model.Connection) error {
	return s.client.Post(ctx, "/k8s/test-connection", connection, nil)
}

func podPath(namespace, pod string) (string, error) {
	if namespace == "" || pod == "" {
		return "", errdef.NewValidation("namespace and pod name are required")
	}
	return "/k8s/containers/" + url.PathEscape(namespace) + "/" + url.PathEscape(pod), nil
}
