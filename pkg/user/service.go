// Package user manages the user accounts of the backend.
package user

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/dhis2-sre/im-console/internal/validation"
	"github.com/dhis2-sre/im-console/pkg/gateway"
	"github.com/dhis2-sre/im-console/pkg/model"
)

const DefaultPageSize = 20

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

// List returns a page of users. Empty filter values aren't sent.
func (s Service) List(ctx context.Context, page, pageSize int, filter model.UserFilter) (gateway.Page[model.User], error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}
	if filter.Role != "" {
		query.Set("role", filter.Role)
	}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}

	var users gateway.Page[model.User]
	err := s.client.Get(ctx, "/users", &users, gateway.WithQuery(query))
	return users, err
}

func (s Service) FindById(ctx context.Context, id uint) (model.User, error) {
	var user model.User
	err := s.client.Get(ctx, userPath(id), &user)
	return user, err
}

func (s Service) Create(ctx context.Context, request model.CreateUserRequest) (model.User, error) {
	if err := validation.Struct(request); err != nil {
		return model.User{}, err
	}

	var user model.User
	err := s.client.Post(ctx, "/users", request, &user)
	return user, err
}

// Update only sends the fields of request which are set.
func (s Service) Update(ctx context.Context, id uint, request model.UpdateUserRequest) (model.User, error) {
	if err := validation.Struct(request); err != nil {
		return model.User{}, err
	}

	var user model.User
	err := s.client.Put(ctx, userPath(id), request, &user)
	return user, err
}

func (s Service) Delete(ctx context.Context, id uint) error {
	return s.client.Delete(ctx, userPath(id), nil)
}

func (s Service) ResetPassword(ctx context.Context, id uint, password string) error {
	if len(password) < 8 {
		return errdef.NewValidation("password must be at least 8 characters")
	}
	body := map[string]string{"password": password}
	return s.client.Post(ctx, userPath(id)+"/reset-password", body, nil)
}

func userPath(id uint) string {
	return fmt.Sprintf("/users/%d", id)
}
