// Package dockerwatch introspects the local Docker daemon: resolving
// containers by name, listing image digests, and tailing log streams. It
// also subscribes to the daemon's event stream and forwards create/start/
// die/destroy events so the metrics scraper and log listener set can
// attach or detach targets.
package dockerwatch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// ContainerHandle identifies a resolved container.
type ContainerHandle struct {
	ID   string
	Name string
}

// Event mirrors the subset of the daemon's lifecycle events the rest of
// the agent cares about.
type Event struct {
	Action        string // "create", "start", "die", "destroy"
	ContainerName string
	ContainerID   string
}

// Introspector wraps a Docker client to implement find/list/is-running/
// log-stream plus an event feed.
type Introspector struct {
	client *client.Client
}

// NewIntrospector builds an Introspector against the default
// environment-configured Docker daemon.
func NewIntrospector(cli *client.Client) *Introspector {
	return &Introspector{client: cli}
}

// FindContainerByName resolves a container by its configured name. Docker
// container names carry a leading slash; callers pass the bare name.
func (in *Introspector) FindContainerByName(ctx context.Context, name string) (*ContainerHandle, error) {
	inspect, err := in.client.ContainerInspect(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("dockerwatch: find container %q: %w", name, err)
	}
	return &ContainerHandle{ID: inspect.ID, Name: name}, nil
}

// ListImages returns every local image reference mapped to its content
// digest, so the node-type resolver and version reconciler can key off it.
func (in *Introspector) ListImages(ctx context.Context) (map[string]string, error) {
	images, err := in.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("dockerwatch: list images: %w", err)
	}

	result := make(map[string]string)
	for _, img := range images {
		digest := firstDigest(img.RepoDigests)
		for _, ref := range img.RepoTags {
			if digest != "" {
				result[ref] = digest
			}
		}
		if len(img.RepoTags) == 0 && digest != "" {
			result[img.ID] = digest
		}
	}
	return result, nil
}

// IsRunning reports whether the named container is currently running.
func (in *Introspector) IsRunning(ctx context.Context, name string) (bool, error) {
	inspect, err := in.client.ContainerInspect(ctx, name)
	if err != nil {
		return false, fmt.Errorf("dockerwatch: inspect %q: %w", name, err)
	}
	return inspect.State != nil && inspect.State.Running, nil
}

// OpenLogStream opens a lazy, infinite log reader starting after `since`.
// A zero since value streams the container's full backlog. The returned
// reader is valid until the container stops or ctx is cancelled.
func (in *Introspector) OpenLogStream(ctx context.Context, handle ContainerHandle, since time.Time) (io.ReadCloser, error) {
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
	}
	if !since.IsZero() {
		opts.Since = since.Format(time.RFC3339Nano)
	}

	rc, err := in.client.ContainerLogs(ctx, handle.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("dockerwatch: open log stream for %q: %w", handle.Name, err)
	}
	return rc, nil
}

// Events subscribes to the daemon's container lifecycle stream and
// forwards create/start/die/destroy actions on the returned channel. The
// channel closes when ctx is cancelled or the underlying stream errors.
func (in *Introspector) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)

	filterArgs := filters.NewArgs()
	filterArgs.Add("type", "container")
	for _, action := range []string{"create", "start", "die", "destroy"} {
		filterArgs.Add("event", action)
	}

	msgCh, errCh := in.client.Events(ctx, events.ListOptions{Filters: filterArgs})

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errCh:
				if !ok {
					return
				}
				if err != nil {
					return
				}
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				ev := Event{
					Action:      string(msg.Action),
					ContainerID: msg.Actor.ID,
				}
				if name, ok := msg.Actor.Attributes["name"]; ok {
					ev.ContainerName = name
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func firstDigest(repoDigests []string) string {
	for _, rd := range repoDigests {
		if idx := strings.IndexByte(rd, '@'); idx >= 0 {
			return rd[idx+1:]
		}
	}
	return ""
}
