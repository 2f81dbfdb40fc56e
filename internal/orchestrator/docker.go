package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

var _ ContainerAPI = (*DockerAPI)(nil)

// DockerAPI implements ContainerAPI against the Docker Engine API.
type DockerAPI struct {
	cli client.APIClient
}

// NewDockerAPI creates a DockerAPI with a client from the environment.
func NewDockerAPI() (*DockerAPI, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerAPI{cli: cli}, nil
}

// NewDockerAPIFromClient wraps an existing Docker client.
func NewDockerAPIFromClient(cli client.APIClient) *DockerAPI {
	return &DockerAPI{cli: cli}
}

func (d *DockerAPI) ContainerCreate(ctx context.Context, cfg CreateConfig) error {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for containerPort, hostPort := range cfg.Ports {
		proto, portNum := nat.SplitProtoPort(containerPort)
		p, err := nat.NewPort(proto, portNum)
		if err != nil {
			return fmt.Errorf("parse port %q: %w", containerPort, err)
		}
		exposed[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(hostPort)}}
	}

	cc := &container.Config{
		Image:        cfg.Image,
		Env:          cfg.Env,
		ExposedPorts: exposed,
	}
	hc := &container.HostConfig{
		NetworkMode:  container.NetworkMode(cfg.Network),
		PortBindings: bindings,
	}
	_, err := d.cli.ContainerCreate(ctx, cc, hc, nil, nil, cfg.Name)
	return err
}

func (d *DockerAPI) ContainerStart(ctx context.Context, name string) error {
	return d.cli.ContainerStart(ctx, name, container.StartOptions{})
}

func (d *DockerAPI) ContainerStop(ctx context.Context, name string, timeout time.Duration) error {
	secs := int(timeout / time.Second)
	return d.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &secs})
}

func (d *DockerAPI) ContainerKill(ctx context.Context, name string) error {
	return d.cli.ContainerKill(ctx, name, "SIGKILL")
}

func (d *DockerAPI) ContainerRemove(ctx context.Context, name string, force bool) error {
	err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: force, RemoveVolumes: true})
	if errdefs.IsNotFound(err) {
		return nil
	}
	return err
}

func (d *DockerAPI) ContainerInspect(ctx context.Context, name string) (ContainerInfo, error) {
	info, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ContainerInfo{Exists: false}, nil
		}
		return ContainerInfo{}, fmt.Errorf("inspect container %q: %w", name, err)
	}
	status := ""
	if info.State != nil {
		status = info.State.Status
	}
	return ContainerInfo{Exists: true, Status: status}, nil
}

// ContainerExec runs cmd inside the container and returns its exit code.
func (d *DockerAPI) ContainerExec(ctx context.Context, name string, cmd []string) (int, error) {
	exec, err := d.cli.ContainerExecCreate(ctx, name, container.ExecOptions{Cmd: cmd})
	if err != nil {
		return -1, fmt.Errorf("exec create in %q: %w", name, err)
	}
	if err := d.cli.ContainerExecStart(ctx, exec.ID, container.ExecStartOptions{}); err != nil {
		return -1, fmt.Errorf("exec start in %q: %w", name, err)
	}

	// The exec API reports Running until the process exits; poll briefly.
	for {
		inspect, err := d.cli.ContainerExecInspect(ctx, exec.ID)
		if err != nil {
			return -1, fmt.Errorf("exec inspect in %q: %w", name, err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
			return -1, err
		}
	}
}

func (d *DockerAPI) ContainerLogs(ctx context.Context, name string, tail int) (string, error) {
	rc, err := d.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", fmt.Errorf("container logs %q: %w", name, err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	return string(bytes.TrimSpace(stripStreamFraming(data))), nil
}

func (d *DockerAPI) ImagePull(ctx context.Context, img string) error {
	pull, err := d.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %q: %w", img, err)
	}
	defer pull.Close()
	// Drain the pull output to completion.
	if _, err := io.Copy(io.Discard, pull); err != nil {
		return fmt.Errorf("pull image %q: read response: %w", img, err)
	}
	return nil
}

func (d *DockerAPI) NetworkCreate(ctx context.Context, name string) error {
	_, err := d.cli.NetworkInspect(ctx, name, dockernetwork.InspectOptions{})
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect network %q: %w", name, err)
	}
	if _, err := d.cli.NetworkCreate(ctx, name, dockernetwork.CreateOptions{
		Driver: "bridge",
		Scope:  "local",
	}); err != nil {
		return fmt.Errorf("create network %q: %w", name, err)
	}
	return nil
}

func (d *DockerAPI) NetworkRemove(ctx context.Context, name string) error {
	if err := d.cli.NetworkRemove(ctx, name); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove network %q: %w", name, err)
	}
	return nil
}

// Close releases the underlying Docker client.
func (d *DockerAPI) Close() error {
	return d.cli.Close()
}

// isImageMissing reports whether a create failed because the image is not
// present locally and needs a pull.
func isImageMissing(err error) bool {
	if errdefs.IsNotFound(err) {
		return true
	}
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such image")
}

// stripStreamFraming removes the 8-byte multiplexing headers the Docker
// log stream prepends to each chunk.
func stripStreamFraming(data []byte) []byte {
	var clean []byte
	for len(data) >= 8 {
		size := int(data[4])<<24 | int(data[5])<<16 | int(data[6])<<8 | int(data[7])
		data = data[8:]
		if size > len(data) {
			size = len(data)
		}
		clean = append(clean, data[:size]...)
		data = data[size:]
	}
	if clean == nil {
		return data
	}
	return clean
}
