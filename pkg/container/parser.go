package container

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/dhis2-sre/im-console/internal/validation"
	"github.com/dhis2-sre/im-console/pkg/model"
	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"
)

// ParsePorts parses port specs like "80", "8080:80" or "53:53/udp" into container ports. Ranges
// expand into one port per number.
func ParsePorts(specs []string) ([]model.ContainerPort, error) {
	var ports []model.ContainerPort
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}

		mappings, err := nat.ParsePortSpec(spec)
		if err != nil {
			return nil, errdef.NewValidation("invalid port %q: %v", spec, err)
		}

		for _, mapping := range mappings {
			protocol := model.Protocol(strings.ToUpper(mapping.Port.Proto()))
			if protocol != model.ProtocolTCP && protocol != model.ProtocolUDP {
				return nil, errdef.NewValidation("invalid port %q: protocol %s isn't supported", spec, mapping.Port.Proto())
			}

			port := model.ContainerPort{
				ContainerPort: mapping.Port.Int(),
				Protocol:      protocol,
			}
			if mapping.Binding.HostPort != "" {
				hostPort, err := strconv.Atoi(mapping.Binding.HostPort)
				if err != nil {
					return nil, errdef.NewValidation("invalid host port %q: %v", mapping.Binding.HostPort, err)
				}
				port.HostPort = hostPort
			}
			ports = append(ports, port)
		}
	}
	return ports, nil
}

// ParseEnv parses KEY=VALUE lines. Blank lines and lines starting with # are skipped.
func ParseEnv(text string) (map[string]string, error) {
	env := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(text))
	line := 0
	for scanner.Scan() {
		line++
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}

		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errdef.NewValidation("invalid environment variable on line %d: want KEY=VALUE", line)
		}
		if strings.ContainsAny(key, " \t") {
			return nil, errdef.NewValidation("invalid environment variable name %q on line %d", key, line)
		}
		env[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read environment variables: %v", err)
	}
	return env, nil
}

// ParseResources parses request/limit pairs of quantities like "100m" or "256Mi". Quantities are
// returned in canonical form and a limit has to be at least its request.
func ParseResources(cpuRequest, cpuLimit, memoryRequest, memoryLimit string) (model.Resources, error) {
	cpu, err := parseRange("cpu", cpuRequest, cpuLimit)
	if err != nil {
		return model.Resources{}, err
	}
	memory, err := parseRange("memory", memoryRequest, memoryLimit)
	if err != nil {
		return model.Resources{}, err
	}
	return model.Resources{CPU: cpu, Memory: memory}, nil
}

func parseRange(name, request, limit string) (model.ResourceRange, error) {
	var r model.ResourceRange
	var requestQuantity, limitQuantity *resource.Quantity

	if request = strings.TrimSpace(request); request != "" {
		q, err := resource.ParseQuantity(request)
		if err != nil {
			return r, errdef.NewValidation("invalid %s request %q: %v", name, request, err)
		}
		requestQuantity = &q
		r.Request = q.String()
	}

	if limit = strings.TrimSpace(limit); limit != "" {
		q, err := resource.ParseQuantity(limit)
		if err != nil {
			return r, errdef.NewValidation("invalid %s limit %q: %v", name, limit, err)
		}
		limitQuantity = &q
		r.Limit = q.String()
	}

	if requestQuantity != nil && limitQuantity != nil && limitQuantity.Cmp(*requestQuantity) < 0 {
		return r, errdef.NewValidation("%s limit %s is less than request %s", name, r.Limit, r.Request)
	}
	return r, nil
}

// CheckConfig applies defaults to config and validates it.
func CheckConfig(config *model.ContainerConfig) error {
	if config.RestartPolicy == "" {
		config.RestartPolicy = model.RestartAlways
	}
	for i := range config.Ports {
		if config.Ports[i].Protocol == "" {
			config.Ports[i].Protocol = model.ProtocolTCP
		}
	}

	if err := validation.Struct(config); err != nil {
		return err
	}

	resources := config.Resources
	if _, err := parseRange("cpu", resources.CPU.Request, resources.CPU.Limit); err != nil {
		return err
	}
	if _, err := parseRange("memory", resources.Memory.Request, resources.Memory.Limit); err != nil {
		return err
	}
	if resources.Storage != nil {
		if _, err := parseRange("storage", resources.Storage.Request, resources.Storage.Limit); err != nil {
			return err
		}
	}
	return nil
}

// DecodeConfig decodes a YAML or JSON document into a validated container config. Unknown fields
// are rejected.
func DecodeConfig(blob []byte) (model.ContainerConfig, error) {
	var config model.ContainerConfig
	if len(bytes.TrimSpace(blob)) == 0 {
		return config, errdef.NewValidation("config is empty")
	}

	decoder := yaml.NewDecoder(bytes.NewReader(blob))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return config, errdef.NewValidation("invalid config: %v", err)
	}

	var extra any
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		return config, errdef.NewValidation("invalid config: want a single document")
	}

	if err := CheckConfig(&config); err != nil {
		return config, err
	}
	return config, nil
}

// EncodeConfig encodes config as YAML document.
func EncodeConfig(config model.ContainerConfig) ([]byte, error) {
	var b bytes.Buffer
	encoder := yaml.NewEncoder(&b)
	encoder.SetIndent(2)
	if err := encoder.Encode(config); err != nil {
		return nil, fmt.Errorf("failed to encode config: %v", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %v", err)
	}
	return b.Bytes(), nil
}
