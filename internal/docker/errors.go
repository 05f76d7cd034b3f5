package docker

import "errors"

// ErrNotFound is returned when the container a call refers to no longer
// exists, e.g. sampling metrics after the launched process exited.
var ErrNotFound = errors.New("docker: container not found")
