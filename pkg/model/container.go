package model

import (
	"time"

	corev1 "k8s.io/api/core/v1"
)

// ContainerStatus mirrors the pod phase reported by the backend. The client never derives it.
type ContainerStatus = corev1.PodPhase

const (
	StatusRunning   = corev1.PodRunning
	StatusPending   = corev1.PodPending
	StatusFailed    = corev1.PodFailed
	StatusSucceeded = corev1.PodSucceeded
	StatusUnknown   = corev1.PodUnknown
)

type Container struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name"`
	Image        string            `json:"image"`
	Status       ContainerStatus   `json:"status"`
	Namespace    string            `json:"namespace"`
	PodName      string            `json:"podName,omitempty"`
	Node         string            `json:"node,omitempty"`
	Age          string            `json:"age,omitempty"`
	Ports        []ContainerPort   `json:"ports,omitempty"`
	Volumes      []ContainerVolume `json:"volumes,omitempty"`
	Resources    Resources         `json:"resources"`
	Labels       map[string]string `json:"labels,omitempty"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	RestartCount int               `json:"restartCount"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Key returns the identity of the container. A server issued id takes precedence over the
// namespace/name pair.
func (c Container) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Namespace + "/" + c.Name
}

type Protocol string

const (
	ProtocolTCP Protocol = "TCP"
	ProtocolUDP Protocol = "UDP"
)

type ContainerPort struct {
	Name          string   `json:"name,omitempty" yaml:"name,omitempty"`
	ContainerPort int      `json:"containerPort" yaml:"containerPort" validate:"min=1,max=65535"`
	Protocol      Protocol `json:"protocol" yaml:"protocol" validate:"oneof=TCP UDP"`
	HostPort      int      `json:"hostPort,omitempty" yaml:"hostPort,omitempty" validate:"omitempty,min=1,max=65535"`
	ServicePort   int      `json:"servicePort,omitempty" yaml:"servicePort,omitempty"`
}

type VolumeType string

const (
	VolumeConfigMap        VolumeType = "configMap"
	VolumeSecret           VolumeType = "secret"
	VolumePersistentVolume VolumeType = "persistentVolume"
	VolumeHostPath         VolumeType = "hostPath"
)

type ContainerVolume struct {
	Name       string     `json:"name" yaml:"name" validate:"required"`
	MountPath  string     `json:"mountPath" yaml:"mountPath" validate:"required,startswith=/"`
	VolumeType VolumeType `json:"volumeType" yaml:"volumeType" validate:"oneof=configMap secret persistentVolume hostPath"`
	Source     string     `json:"source,omitempty" yaml:"source,omitempty"`
	ReadOnly   bool       `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
}

// ResourceRange holds a request and a limit as Kubernetes quantity strings.
type ResourceRange struct {
	Request string `json:"request" yaml:"request" validate:"omitempty,quantity"`
	Limit   string `json:"limit" yaml:"limit" validate:"omitempty,quantity"`
}

type Resources struct {
	CPU     ResourceRange  `json:"cpu" yaml:"cpu"`
	Memory  ResourceRange  `json:"memory" yaml:"memory"`
	Storage *ResourceRange `json:"storage,omitempty" yaml:"storage,omitempty"`
}

type RestartPolicy string

const (
	RestartAlways    RestartPolicy = "Always"
	RestartOnFailure RestartPolicy = "OnFailure"
	RestartNever     RestartPolicy = "Never"
)

// ContainerConfig is the validated, structured form of a container create/update payload.
type ContainerConfig struct {
	Name          string            `json:"name" yaml:"name" validate:"required,hostname_rfc1123"`
	Image         string            `json:"image" yaml:"image" validate:"required"`
	Command       []string          `json:"command,omitempty" yaml:"command,omitempty"`
	Args          []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env           map[string]string `json:"env" yaml:"env"`
	WorkingDir    string            `json:"workingDir,omitempty" yaml:"workingDir,omitempty"`
	RestartPolicy RestartPolicy     `json:"restartPolicy" yaml:"restartPolicy" validate:"oneof=Always OnFailure Never"`
	Ports         []ContainerPort   `json:"ports" yaml:"ports" validate:"dive"`
	Volumes       []ContainerVolume `json:"volumes" yaml:"volumes" validate:"dive"`
	Resources     Resources         `json:"resources" yaml:"resources"`
	Labels        map[string]string `json:"labels" yaml:"labels"`
	Annotations   map[string]string `json:"annotations" yaml:"annotations"`
}

type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionPause   Action = "pause"
	ActionResume  Action = "resume"
	ActionDestroy Action = "destroy"
)

func (a Action) Valid() bool {
	switch a {
	case ActionStart, ActionStop, ActionRestart, ActionPause, ActionResume, ActionDestroy:
		return true
	}
	return false
}

type ContainerLogs struct {
	Logs       []string `json:"logs"`
	HasMore    bool     `json:"hasMore"`
	TotalLines int      `json:"totalLines"`
}

type UsagePercent struct {
	Usage        string  `json:"usage"`
	UsagePercent float64 `json:"usagePercent"`
	Limit        string  `json:"limit,omitempty"`
}

type ContainerStats struct {
	CPU     UsagePercent `json:"cpu"`
	Memory  UsagePercent `json:"memory"`
	Network struct {
		RX string `json:"rx"`
		TX string `json:"tx"`
	} `json:"network"`
	FS struct {
		Reads  string `json:"reads"`
		Writes string `json:"writes"`
	} `json:"fs"`
	Timestamp time.Time `json:"timestamp"`
}

type ContainerEvent struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

type ExecSession struct {
	SessionID    string `json:"sessionId"`
	WebsocketURL string `json:"websocketUrl"`
}

type ContainerImage struct {
	Name    string    `json:"name"`
	Tags    []string  `json:"tags,omitempty"`
	Size    int64     `json:"size,omitempty"`
	Created time.Time `json:"created,omitempty"`
}

type UsagePoint struct {
	Timestamp time.Time `json:"timestamp"`
	CPU       float64   `json:"cpu"`
	Memory    float64   `json:"memory"`
}
