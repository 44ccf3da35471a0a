package algorithm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
)

// Container paths the algorithm image contract expects.
const (
	containerDatasetPath = "/input/dataset.csv"
	containerOutputDir   = "/output"
)

// DockerRunner executes an algorithm by running its container image against
// the dataset. The image reads the dataset from /input/dataset.csv, writes
// its outputs (including metadata.json with summary statistics) to /output,
// and exits zero on success.
type DockerRunner struct {
	client    *client.Client
	algorithm string
	image     string
}

// NewDockerClient creates a Docker API client from the environment.
func NewDockerClient() (*client.Client, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return c, nil
}

// NewDockerRunner creates a runner executing the given image for the named
// algorithm.
func NewDockerRunner(c *client.Client, algorithm, imageName string) *DockerRunner {
	return &DockerRunner{
		client:    c,
		algorithm: algorithm,
		image:     imageName,
	}
}

// NewDockerRegistry registers a containerized runner for every supported
// algorithm, all backed by the same image. The image dispatches on the
// ALGORITHM environment variable.
func NewDockerRegistry(c *client.Client, imageName string) *Registry {
	r := NewRegistry()
	for _, name := range AllNames() {
		r.Register(name, NewDockerRunner(c, name, imageName))
	}
	return r
}

// Run creates, starts, and waits for the algorithm container, then collects
// the files it produced. Cancelling the context stops the wait and removes
// the container.
func (r *DockerRunner) Run(ctx context.Context, in Input) (*Output, error) {
	start := time.Now()
	logger := slog.With("jobId", in.JobID, "algorithm", r.algorithm, "image", r.image)

	if err := os.MkdirAll(in.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Best effort: the image may only exist locally
	if reader, err := r.client.ImagePull(ctx, r.image, image.PullOptions{}); err == nil {
		io.Copy(io.Discard, reader)
		reader.Close()
	} else {
		logger.Debug("Image pull skipped", "error", err)
	}

	paramsJSON, err := json.Marshal(in.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}

	containerConfig := &container.Config{
		Image: r.image,
		Env: []string{
			"ALGORITHM=" + r.algorithm,
			"PARAMS=" + string(paramsJSON),
			"DATASET=" + containerDatasetPath,
			"OUTPUT_DIR=" + containerOutputDir,
		},
		Labels: map[string]string{
			"job.id":     in.JobID,
			"managed-by": "grnd",
		},
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:     mount.TypeBind,
				Source:   in.DatasetPath,
				Target:   containerDatasetPath,
				ReadOnly: true,
			},
			{
				Type:   mount.TypeBind,
				Source: in.OutputDir,
				Target: containerOutputDir,
			},
		},
	}

	containerName := fmt.Sprintf("grnd-%s-%s", in.JobID, r.algorithm)
	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create algorithm container: %w", err)
	}
	defer r.remove(resp.ID)

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start algorithm container: %w", err)
	}
	logger.Info("Algorithm container started", "containerId", resp.ID[:12])

	statusCh, errCh := r.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("failed waiting for algorithm container: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return nil, fmt.Errorf("algorithm container exited with code %d: %s",
				status.StatusCode, r.tailLogs(resp.ID))
		}
	}

	outputFiles, err := listOutputFiles(in.OutputDir)
	if err != nil {
		return nil, err
	}

	summary := r.readSummary(in.OutputDir)
	summary.ExecutionTimeSeconds = time.Since(start).Seconds()

	return &Output{
		Summary:     summary,
		OutputFiles: outputFiles,
	}, nil
}

// readSummary parses the summary block of metadata.json if the image wrote
// one; otherwise the summary carries only the execution time.
func (r *DockerRunner) readSummary(outputDir string) *Summary {
	data, err := os.ReadFile(filepath.Join(outputDir, metadataFile))
	if err != nil {
		return &Summary{}
	}
	var meta struct {
		Summary Summary `json:"summary"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return &Summary{}
	}
	return &meta.Summary
}

// tailLogs fetches the last lines of container output for error messages.
func (r *DockerRunner) tailLogs(containerID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "10",
	})
	if err != nil {
		return "logs unavailable"
	}
	defer logs.Close()

	data, err := io.ReadAll(io.LimitReader(logs, 4096))
	if err != nil {
		return "logs unavailable"
	}
	return string(data)
}

// remove deletes the container after the run, using a fresh context so
// cleanup happens even when the job context is cancelled.
func (r *DockerRunner) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		slog.Warn("Failed to remove algorithm container", "containerId", containerID[:12], "error", err)
	}
}

// listOutputFiles returns the names of regular files in the output dir.
func listOutputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list output directory: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

var _ Runner = (*DockerRunner)(nil)
