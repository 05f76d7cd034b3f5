package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// ContainerInfo captures minimal runtime details about a started container.
type ContainerInfo struct {
	ID       string
	HostIP   string
	HostPort string
}

// RunContainer creates and starts a container publishing exactly one TCP
// port on every interface. The container runs in the foreground sense: no
// restart policy is attached, so an exiting process terminates the container
// and the exit code surfaces through WaitForExit.
func (c *Client) RunContainer(ctx context.Context, name, image string, port int) (ContainerInfo, error) {
	if c == nil || c.inner == nil {
		return ContainerInfo{}, fmt.Errorf("docker client not initialized")
	}
	if strings.TrimSpace(name) == "" {
		return ContainerInfo{}, fmt.Errorf("container name cannot be empty")
	}
	if strings.TrimSpace(image) == "" {
		return ContainerInfo{}, fmt.Errorf("image name cannot be empty")
	}
	if port <= 0 || port > 65535 {
		return ContainerInfo{}, fmt.Errorf("invalid port %d", port)
	}

	appPort := nat.Port(fmt.Sprintf("%d/tcp", port))
	config := &container.Config{
		Image:        image,
		ExposedPorts: nat.PortSet{appPort: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			appPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", port)}},
		},
	}

	r, err := c.inner.ContainerCreate(ctx, config, hostCfg, nil, nil, name)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("container create: %w", err)
	}

	if err := c.inner.ContainerStart(ctx, r.ID, container.StartOptions{}); err != nil {
		return ContainerInfo{}, fmt.Errorf("container start: %w", err)
	}

	return ContainerInfo{ID: r.ID, HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", port)}, nil
}

// WaitForExit blocks until the container stops and returns its exit code.
func (c *Client) WaitForExit(ctx context.Context, containerID string) (int64, error) {
	if strings.TrimSpace(containerID) == "" {
		return 0, fmt.Errorf("container id cannot be empty")
	}
	statusCh, errCh := c.inner.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	for {
		select {
		case err := <-errCh:
			if err == nil {
				continue
			}
			if client.IsErrNotFound(err) {
				return 0, nil
			}
			return 0, fmt.Errorf("wait for container exit: %w", err)
		case status := <-statusCh:
			return status.StatusCode, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// RemoveContainer removes an existing container if it exists.
func (c *Client) RemoveContainer(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("container name cannot be empty")
	}
	if err := c.inner.ContainerRemove(ctx, name, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

// StreamLogs copies container stdout/stderr into the provided writer until
// the container stops or the context is cancelled.
func (c *Client) StreamLogs(ctx context.Context, containerID string, w io.Writer) error {
	if strings.TrimSpace(containerID) == "" {
		return fmt.Errorf("container id cannot be empty")
	}
	reader, err := c.inner.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return fmt.Errorf("container logs: %w", err)
	}
	defer reader.Close()
	if _, err := io.Copy(w, reader); err != nil && ctx.Err() == nil {
		return fmt.Errorf("copy container logs: %w", err)
	}
	return nil
}

// Metrics reports a point-in-time resource sample for a container.
type Metrics struct {
	CPUPercent  float64
	MemoryUsage uint64
	MemoryLimit uint64
}

// ContainerMetrics samples container CPU and memory usage once.
func (c *Client) ContainerMetrics(ctx context.Context, containerID string) (Metrics, error) {
	if strings.TrimSpace(containerID) == "" {
		return Metrics{}, fmt.Errorf("container id cannot be empty")
	}
	resp, err := c.inner.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return Metrics{}, ErrNotFound
		}
		return Metrics{}, fmt.Errorf("container stats: %w", err)
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return Metrics{}, fmt.Errorf("decode container stats: %w", err)
	}

	metrics := Metrics{
		MemoryUsage: stats.MemoryStats.Usage,
		MemoryLimit: stats.MemoryStats.Limit,
	}
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
	if cpuDelta > 0 && systemDelta > 0 {
		cores := float64(stats.CPUStats.OnlineCPUs)
		if cores == 0 {
			cores = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
		}
		if cores == 0 {
			cores = 1
		}
		metrics.CPUPercent = (cpuDelta / systemDelta) * cores * 100.0
	}
	return metrics, nil
}
