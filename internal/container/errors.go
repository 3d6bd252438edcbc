// ABOUTME: Errors raised while running a child inside a container
// ABOUTME: Messages tell the operator which docker command to try next

package container

import "fmt"

type ContainerError struct {
	Type    string
	Message string
	Cause   error
}

func (e *ContainerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ContainerError) Unwrap() error { return e.Cause }

func NewDockerUnavailableError(host string, cause error) *ContainerError {
	msg := "Cannot connect to Docker daemon. Is Docker running? Check: docker ps"
	if host != "" {
		msg = fmt.Sprintf("Cannot connect to Docker daemon at %s. Is Docker running? Check: docker ps", host)
	}
	return &ContainerError{
		Type:    "docker_unavailable",
		Message: msg,
		Cause:   cause,
	}
}

func NewImageNotFoundError(image string, cause error) *ContainerError {
	return &ContainerError{
		Type:    "image_not_found",
		Message: fmt.Sprintf("Docker image '%s' not found. Pull it with:\n  docker pull %s", image, image),
		Cause:   cause,
	}
}

func NewCreateFailedError(image string, cause error) *ContainerError {
	return &ContainerError{
		Type:    "create_failed",
		Message: fmt.Sprintf("Failed to create container from '%s'. Check: docker run --rm -i %s", image, image),
		Cause:   cause,
	}
}

func NewAttachFailedError(cause error) *ContainerError {
	return &ContainerError{
		Type:    "attach_failed",
		Message: "Failed to attach to container stdio",
		Cause:   cause,
	}
}
