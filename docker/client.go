package docker

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"dockwatch/shell"
	"dockwatch/target"

	"github.com/pkg/errors"
)

// Client drives the container engine through the docker CLI. It implements
// the runtime and image-build gateways consumed by the watch session.
type Client struct {
	exec   shell.CommandExecutor
	binary string
}

func NewClient(exec shell.CommandExecutor) *Client {
	return &Client{
		exec:   exec,
		binary: "docker",
	}
}

func (c *Client) run(args ...string) (string, error) {
	out, err := c.exec.Execute(c.binary, args...)
	if err != nil {
		return "", errors.Wrapf(err, "docker %s failed: %s", args[0], strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// ImageID returns the current id of the named image.
func (c *Client) ImageID(image string) (string, error) {
	out, err := c.run("image", "inspect", "--format", "{{.Id}}", image)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", errors.Errorf("no image id for %s", image)
	}
	return out, nil
}

// ContainerID returns the id of the running container with the given name,
// or "" when none is running.
func (c *Client) ContainerID(name string) (string, error) {
	out, err := c.run("ps", "--quiet", "--no-trunc", "--filter", "name=^/"+name+"$")
	if err != nil {
		return "", err
	}
	if idx := strings.IndexByte(out, '\n'); idx >= 0 {
		out = out[:idx]
	}
	return out, nil
}

// BuildImage rebuilds the target's image from its build context.
func (c *Client) BuildImage(t *target.Target) error {
	if t.Build == nil {
		return errors.Errorf("target %s has no build spec", t.Name)
	}

	args := []string{"build", "--tag", t.ImageName()}
	if t.Build.Dockerfile != "" {
		args = append(args, "--file", filepath.Join(t.Build.ContextDir, t.Build.Dockerfile))
	}
	contextDir := t.Build.ContextDir
	if contextDir == "" {
		contextDir = "."
	}
	args = append(args, contextDir)

	_, err := c.run(args...)
	return err
}

// CopyArchive pushes a tar archive into the container, unpacking it under
// destDir.
func (c *Client) CopyArchive(containerID, archivePath, destDir string) error {
	_, err := c.run("cp", archivePath, containerID+":"+destDir)
	return err
}

// ExecInContainer runs a shell command inside the container.
func (c *Client) ExecInContainer(containerID, command string) error {
	_, err := c.run("exec", containerID, "sh", "-c", command)
	return err
}

// StopContainer stops the container and, unless keepContainer is set,
// removes it so its name can be reused by a replacement.
func (c *Client) StopContainer(containerID string, keepContainer, removeVolumes bool) error {
	if _, err := c.run("stop", containerID); err != nil {
		return err
	}
	if keepContainer {
		return nil
	}

	args := []string{"rm"}
	if removeVolumes {
		args = append(args, "--volumes")
	}
	args = append(args, containerID)
	_, err := c.run(args...)
	return err
}

// ResolvePortMappings resolves the target's declared port bindings for a new
// container. Host port 0 is left for the engine to assign.
func (c *Client) ResolvePortMappings(t *target.Target) ([]target.PortMapping, error) {
	if t.Run == nil {
		return nil, nil
	}
	ports := make([]target.PortMapping, len(t.Run.Ports))
	copy(ports, t.Run.Ports)
	return ports, nil
}

// CreateAndStartContainer starts a new container for the target, named after
// it, and returns the new container id.
func (c *Client) CreateAndStartContainer(t *target.Target, ports []target.PortMapping) (string, error) {
	args := []string{"run", "--detach", "--name", t.Name}
	for _, p := range ports {
		args = append(args, "--publish", formatPort(p))
	}
	args = append(args, t.ImageName())

	out, err := c.run(args...)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", errors.Errorf("docker run returned no container id for %s", t.Name)
	}
	return out, nil
}

func formatPort(p target.PortMapping) string {
	spec := strconv.Itoa(p.ContainerPort)
	if p.HostPort != 0 {
		spec = fmt.Sprintf("%d:%d", p.HostPort, p.ContainerPort)
	}
	if p.Protocol != "" && p.Protocol != "tcp" {
		spec += "/" + p.Protocol
	}
	return spec
}
