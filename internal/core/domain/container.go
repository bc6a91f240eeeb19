package domain

import "time"

// Mount binds a host directory into a container.
type Mount struct {
	Source string // host path
	Target string // in-container path
}

// ContainerSpec describes a single-command container run.
type ContainerSpec struct {
	Image      string
	Command    []string
	Env        []string
	WorkingDir string
	Mounts     []Mount
	AutoRemove bool
}

// Image is what the runtime reports about a tagged image.
type Image struct {
	ID      string
	Ref     string    // repository:tag
	Created time.Time
}

// Age returns how old the image is relative to now.
func (i Image) Age(now time.Time) time.Duration {
	return now.Sub(i.Created)
}
