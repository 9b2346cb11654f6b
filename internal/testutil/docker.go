package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// CleanupLabel marks containers created by tests so interrupted runs can be
// swept up later.
const CleanupLabel = "glean-test"

// TestingT is the subset of testing.T needed for Docker setup.
type TestingT interface {
	Name() string
	Cleanup(func())
	Logf(format string, args ...any)
	Helper()
}

// DockerClient returns a Docker client and registers cleanup of this test's
// labeled containers. Panics when Docker is unreachable; callers should probe
// availability first if they intend to skip.
func DockerClient(t TestingT) *client.Client {
	t.Helper()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		panic(fmt.Sprintf("failed to create docker client: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		panic(fmt.Sprintf("docker is not running: %v", err))
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = removeLabeled(ctx, cli, t, t.Name())
	})

	return cli
}

// UniqueContainerName returns a container name of the form
// glean-test-<prefix>-<testname>-<random>, safe to use concurrently.
func UniqueContainerName(t TestingT, prefix string) string {
	t.Helper()
	return fmt.Sprintf("%s-%s-%s-%s", CleanupLabel, prefix, sanitizeName(t.Name()), randomHex(4))
}

// ContainerLabels returns the labels that tie a container to this test for
// cleanup.
func ContainerLabels(t TestingT) map[string]string {
	return map[string]string{CleanupLabel: t.Name()}
}

// RemoveAllTestContainers force-removes every container carrying the cleanup
// label, regardless of which test created it. Intended for recovering from
// interrupted runs.
func RemoveAllTestContainers(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}
	defer cli.Close()

	return removeLabeled(ctx, cli, nil, "")
}

// removeLabeled stops and removes containers matching the cleanup label. A
// non-empty testName restricts removal to that test's containers. Errors are
// logged when t is non-nil and returned otherwise.
func removeLabeled(ctx context.Context, cli *client.Client, t TestingT, testName string) error {
	filterArgs := filters.NewArgs()
	if testName != "" {
		filterArgs.Add("label", fmt.Sprintf("%s=%s", CleanupLabel, testName))
	} else {
		filterArgs.Add("label", CleanupLabel)
	}

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		if t != nil {
			t.Logf("Failed to list containers for cleanup: %v", err)
			return nil
		}
		return fmt.Errorf("failed to list containers: %w", err)
	}

	stopTimeout := 10
	for _, c := range containers {
		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &stopTimeout})

		err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{
			Force:         true,
			RemoveVolumes: true,
		})
		switch {
		case err != nil && t != nil:
			t.Logf("Failed to remove container %s: %v", c.Names[0], err)
		case err != nil:
			return fmt.Errorf("failed to remove container %s: %w", c.Names[0], err)
		case t != nil:
			t.Logf("Cleaned up container: %s", c.Names[0])
		}
	}

	return nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// sanitizeName keeps only characters Docker accepts in container names and
// caps the length.
func sanitizeName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		case c == '/' || c == '_' || c == '-':
			out = append(out, '-')
		}
	}
	if len(out) > 30 {
		out = out[:30]
	}
	return string(out)
}
