package container

import (
	"net/url"
	"strconv"

	"github.com/dhis2-sre/im-console/pkg/model"
)

type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// ListParams filter and paginate the container list. Only parameters which are set are sent, so a
// parameter set to an empty string is sent as such while a nil parameter isn't sent at all.
type ListParams struct {
	Page      *int
	PageSize  *int
	Namespace *string
	Status    *string
	Search    *string
	SortBy    *string
	SortOrder *SortOrder
}

func (p ListParams) values() url.Values {
	values := url.Values{}
	setInt(values, "page", p.Page)
	setInt(values, "pageSize", p.PageSize)
	setString(values, "namespace", p.Namespace)
	setString(values, "status", p.Status)
	setString(values, "search", p.Search)
	setString(values, "sortBy", p.SortBy)
	if p.SortOrder != nil {
		values.Set("sortOrder", string(*p.SortOrder))
	}
	return values
}

type LogParams struct {
	ContainerID string
	Namespace   *string
	Follow      *bool
	Tail        *int
	Since       *string
	Timestamps  *bool
}

func (p LogParams) values() url.Values {
	values := url.Values{}
	setString(values, "namespace", p.Namespace)
	setBool(values, "follow", p.Follow)
	setInt(values, "tail", p.Tail)
	setString(values, "since", p.Since)
	setBool(values, "timestamps", p.Timestamps)
	return values
}

type CreateRequest struct {
	Config    model.ContainerConfig `json:"config"`
	Namespace string                `json:"namespace"`
}

type ExecRequest struct {
	Command   []string `json:"command" validate:"required,min=1"`
	Container string   `json:"container" validate:"required"`
	Namespace string   `json:"namespace,omitempty"`
	TTY       bool     `json:"tty,omitempty"`
	Stdin     bool     `json:"stdin,omitempty"`
}

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type TimeRange string

const (
	TimeRangeHour     TimeRange = "1h"
	TimeRange6Hours   TimeRange = "6h"
	TimeRangeDay      TimeRange = "24h"
	TimeRangeWeek     TimeRange = "7d"
	DefaultTimeRange            = TimeRangeDay
	DefaultEventLimit           = 50
)

func (t TimeRange) valid() bool {
	switch t {
	case TimeRangeHour, TimeRange6Hours, TimeRangeDay, TimeRangeWeek:
		return true
	}
	return false
}

// Ptr returns a pointer to v. It's meant for setting optional parameters.
func Ptr[T any](v T) *T {
	return &v
}

func setString(values url.Values, key string, value *string) {
	if value != nil {
		values.Set(key, *value)
	}
}

func setInt(values url.Values, key string, value *int) {
	if value != nil {
		values.Set(key, strconv.Itoa(*value))
	}
}

func setBool(values url.Values, key string, value *bool) {
	if value != nil {
		values.Set(key, strconv.FormatBool(*value))
	}
}

// namespaceQuery returns the namespace query parameter. An empty namespace isn't sent.
func namespaceQuery(namespace string) url.Values {
	values := url.Values{}
	if namespace != "" {
		values.Set("namespace", namespace)
	}
	return values
}
