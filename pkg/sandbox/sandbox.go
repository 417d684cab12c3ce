// Package sandbox runs untrusted code inside throwaway Docker containers.
// Scripts execute in the "python:slim" image with the task workdir bind
// mounted; long-lived helper services (chromedriver) get their own container
// with a published port.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// ContainerWorkdir is where the host workdir is mounted inside containers.
const ContainerWorkdir = "/bridge"

// DefaultPythonImage runs scripts and shell commands.
const DefaultPythonImage = "python:slim"

// Runner executes one-shot commands in fresh containers.
type Runner struct {
	docker client.APIClient
}

// NewRunner connects to the local Docker daemon.
func NewRunner() (*Runner, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}
	return &Runner{docker: docker}, nil
}

// NewRunnerWithClient builds a runner over an existing client. Used in tests.
func NewRunnerWithClient(docker client.APIClient) *Runner {
	return &Runner{docker: docker}
}

// RunPythonCode executes inline Python in a fresh container.
func (r *Runner) RunPythonCode(ctx context.Context, code string, workdir string) (string, error) {
	return r.runInContainer(ctx, DefaultPythonImage, workdir, []string{"python", "-c", code})
}

// RunPythonScript executes a script already present in the workdir.
func (r *Runner) RunPythonScript(ctx context.Context, workdir, scriptName string) (string, error) {
	script := ContainerWorkdir + "/" + scriptName
	return r.runInContainer(ctx, DefaultPythonImage, workdir, []string{"python", script})
}

// RunCommand executes a shell command in a fresh container.
func (r *Runner) RunCommand(ctx context.Context, cmd string, workdir string) (string, error) {
	return r.runInContainer(ctx, DefaultPythonImage, workdir, []string{"sh", "-c", cmd})
}

// runInContainer pulls the image, runs cmd in a throwaway container and
// returns the combined, trimmed output. An empty workdir skips the bind
// mount and the container's default working directory is used.
func (r *Runner) runInContainer(ctx context.Context, img, workdir string, cmd []string) (string, error) {
	pull, err := r.docker.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("pulling image %s: %w", img, err)
	}
	// The pull stream must be drained for the pull to complete.
	_, _ = io.Copy(io.Discard, pull)
	pull.Close()

	hostConfig := &container.HostConfig{AutoRemove: true}
	containerWorkdir := ""
	if workdir != "" {
		hostConfig.Binds = []string{workdir + ":" + ContainerWorkdir}
		containerWorkdir = ContainerWorkdir
	}

	created, err := r.docker.ContainerCreate(ctx, &container.Config{
		Image: img,
		Tty:   true,
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	if err := r.docker.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}

	execCreated, err := r.docker.ContainerExecCreate(ctx, created.ID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   containerWorkdir,
		Cmd:          cmd,
	})
	if err != nil {
		return "", fmt.Errorf("creating exec: %w", err)
	}

	attached, err := r.docker.ContainerExecAttach(ctx, execCreated.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("attaching to exec: %w", err)
	}

	var out bytes.Buffer
	_, copyErr := stdcopy.StdCopy(&out, &out, attached.Reader)
	attached.Close()

	if err := r.docker.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true}); err != nil {
		slog.Warn("Failed to remove container", "container_id", created.ID, "error", err)
	}

	if copyErr != nil {
		return "", fmt.Errorf("reading exec output: %w", copyErr)
	}

	result := strings.TrimSpace(out.String())
	slog.Debug("Script output", "bytes", len(result))
	return result, nil
}
