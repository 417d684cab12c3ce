package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// DefaultChromedriverImage backs web browsing sessions.
const DefaultChromedriverImage = "zenika/alpine-chrome:with-chromedriver"

// ChromedriverPort is the port chromedriver listens on inside its container.
const ChromedriverPort nat.Port = "9515/tcp"

// ErrPortTimeout is returned when a launched service never publishes its
// host port.
var ErrPortTimeout = errors.New("timed out waiting for container port")

const (
	portPollAttempts = 30
	portPollInterval = 500 * time.Millisecond
)

// Manager launches and tracks long-lived helper containers so they can be
// torn down on shutdown.
type Manager struct {
	docker client.APIClient

	mu      sync.Mutex
	running map[string]struct{}
}

// NewManager connects to the local Docker daemon.
func NewManager() (*Manager, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}
	return NewManagerWithClient(docker), nil
}

// NewManagerWithClient builds a manager over an existing client. Used in
// tests.
func NewManagerWithClient(docker client.APIClient) *Manager {
	return &Manager{docker: docker, running: map[string]struct{}{}}
}

// LaunchChromedriver starts a chromedriver container with an ephemeral host
// port and returns the container id.
func (m *Manager) LaunchChromedriver(ctx context.Context) (string, error) {
	pull, err := m.docker.ImagePull(ctx, DefaultChromedriverImage, image.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("pulling image %s: %w", DefaultChromedriverImage, err)
	}
	_, _ = io.Copy(io.Discard, pull)
	pull.Close()

	created, err := m.docker.ContainerCreate(ctx, &container.Config{
		Image: DefaultChromedriverImage,
		Tty:   true,
	}, &container.HostConfig{
		AutoRemove: true,
		PortBindings: nat.PortMap{
			// An empty host port asks Docker to pick a free one.
			ChromedriverPort: []nat.PortBinding{{HostPort: ""}},
		},
	}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("creating chromedriver container: %w", err)
	}

	if err := m.docker.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting chromedriver container: %w", err)
	}

	m.mu.Lock()
	m.running[created.ID] = struct{}{}
	m.mu.Unlock()

	slog.Info("Chromedriver container started", "container_id", created.ID)
	return created.ID, nil
}

// WaitForHostPort polls the container until Docker publishes the given port
// and returns the host port.
func (m *Manager) WaitForHostPort(ctx context.Context, containerID string, port nat.Port) (string, error) {
	for attempt := 0; attempt < portPollAttempts; attempt++ {
		info, err := m.docker.ContainerInspect(ctx, containerID)
		if err != nil {
			return "", fmt.Errorf("inspecting container: %w", err)
		}
		if info.NetworkSettings != nil {
			if bindings := info.NetworkSettings.Ports[port]; len(bindings) > 0 && bindings[0].HostPort != "" {
				return bindings[0].HostPort, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(portPollInterval):
		}
	}
	return "", fmt.Errorf("%w: %s on %s", ErrPortTimeout, port, containerID)
}

// Kill stops a tracked container. AutoRemove cleans up the filesystem.
func (m *Manager) Kill(ctx context.Context, containerID string) error {
	if err := m.docker.ContainerKill(ctx, containerID, "KILL"); err != nil {
		return fmt.Errorf("killing container: %w", err)
	}
	m.mu.Lock()
	delete(m.running, containerID)
	m.mu.Unlock()
	return nil
}

// Shutdown kills every container the manager still tracks.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Kill(ctx, id); err != nil {
			slog.Warn("Failed to kill container on shutdown", "container_id", id, "error", err)
		}
	}
}
