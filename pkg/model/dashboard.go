package model

import "time"

type ActivityStatus string

const (
	ActivitySuccess ActivityStatus = "success"
	ActivityFailed  ActivityStatus = "failed"
	ActivityPending ActivityStatus = "pending"
)

// Activity records a mutation issued from this console.
type Activity struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Namespace string         `json:"namespace"`
	Status    ActivityStatus `json:"status"`
	Details   string         `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Statistics are aggregates over the currently loaded container list.
type Statistics struct {
	TotalContainers     int `json:"totalContainers"`
	RunningContainers   int `json:"runningContainers"`
	PendingContainers   int `json:"pendingContainers"`
	StoppedContainers   int `json:"stoppedContainers"`
	ErrorContainers     int `json:"errorContainers"`
	TotalNamespaces     int `json:"totalNamespaces"`
	TotalRestartCounter int `json:"totalRestarts"`
}

// UsageSample is a cluster wide resource usage point, percentages are 0-100.
type UsageSample struct {
	Timestamp time.Time `json:"timestamp"`
	CPU       float64   `json:"cpu"`
	Memory    float64   `json:"memory"`
	Samples   int       `json:"samples"`
}

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}
