package model

import "time"

type AuthMode string

const (
	AuthModeKubeconfig AuthMode = "kubeconfig"
	AuthModeToken      AuthMode = "token"
)

// Connection is a configured cluster connection. At most one connection in a catalogue is active.
type Connection struct {
	// required: true
	ID string `json:"id"`
	// required: true
	Name string `json:"name"`
	// required: true
	Endpoint string `json:"endpoint"`
	// required: true
	AuthMode AuthMode `json:"configType"`
	// Either a kubeconfig document or a bearer token depending on AuthMode
	CredentialPayload string `json:"config,omitempty"`
	DefaultNamespace  string `json:"namespace,omitempty"`
	// required: true
	IsActive bool `json:"isActive"`
	// required: true
	CreatedAt time.Time `json:"createdAt"`
}

// ConnectionDraft is what a user submits to create or test a Connection.
type ConnectionDraft struct {
	Name              string   `json:"name" validate:"required"`
	Endpoint          string   `json:"endpoint" validate:"required,url"`
	AuthMode          AuthMode `json:"configType" validate:"required,oneof=kubeconfig token"`
	CredentialPayload string   `json:"config" validate:"required"`
	DefaultNamespace  string   `json:"namespace,omitempty" validate:"omitempty,hostname_rfc1123"`
}

// Namespace returns the namespace resource calls should default to for this connection.
func (c Connection) Namespace() string {
	if c.DefaultNamespace == "" {
		return DefaultNamespace
	}
	return c.DefaultNamespace
}

const DefaultNamespace = "default"
