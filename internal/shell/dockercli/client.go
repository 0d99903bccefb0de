// Package dockercli is a thin read-only Docker API client. Composor never
// creates containers itself (the compose tool owns that); it only probes
// local images before a build and inspects container state for health checks.
package dockercli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// Compose tool labels used to find a project's containers.
const (
	labelComposeProject = "com.docker.compose.project"
	labelComposeService = "com.docker.compose.service"
)

// ErrConnectionFailed is returned when the Docker daemon is unreachable.
var ErrConnectionFailed = errors.New("docker connection failed")

// ContainerState is the observed state of one service container.
type ContainerState struct {
	Service string
	State   string // created, running, exited, ...
	Status  string // human status line, carries health when present
}

// Running reports whether the container is up and not marked unhealthy.
func (c ContainerState) Running() bool {
	return c.State == "running" && !strings.Contains(c.Status, "unhealthy")
}

// Client wraps the Docker SDK client.
type Client struct {
	cli *client.Client
}

// NewClient creates a Docker API client. An empty host uses the environment
// defaults.
func NewClient(host string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return &Client{cli: cli}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.cli.Close()
}

// ImageExists checks whether an image reference exists locally.
func (c *Client) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, _, err := c.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect image %s: %w", ref, err)
	}
	return true, nil
}

// ProjectContainers lists the containers belonging to one compose project,
// stopped ones included.
func (c *Client) ProjectContainers(ctx context.Context, project string) ([]ContainerState, error) {
	f := filters.NewArgs()
	f.Add("label", fmt.Sprintf("%s=%s", labelComposeProject, project))

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("list containers for %s: %w", project, err)
	}

	states := make([]ContainerState, 0, len(containers))
	for _, ct := range containers {
		states = append(states, ContainerState{
			Service: ct.Labels[labelComposeService],
			State:   ct.State,
			Status:  ct.Status,
		})
	}
	return states, nil
}
