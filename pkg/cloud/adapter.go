package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirocco-cloud/sirocco/pkg/metrics"
)

// Instance server states as reported by the compute service.
const (
	InstanceActive  = "ACTIVE"
	InstanceStopped = "SHUTOFF"
	InstancePaused  = "PAUSED"
	InstanceError   = "ERROR"
)

// Compute service administrative states.
const (
	ServiceEnabled  = "enabled"
	ServiceDisabled = "disabled"
)

// Volume states as reported by the block storage service.
const (
	VolumeAvailable = "available"
	VolumeInUse     = "in-use"
)

// Instance is the controller's view of a server.
type Instance struct {
	UUID   string
	Name   string
	State  string
	Host   string
	Flavor string
}

// ComputeNode is the controller's view of a hypervisor host.
type ComputeNode struct {
	UUID           string
	Hostname       string
	State          string // up / down
	Status         string // enabled / disabled
	DisabledReason string
	VCPUs          int
	VCPUsUsed      int
	MemoryMB       int
	MemoryMBUsed   int
	DiskGB         int
}

// Volume is the controller's view of a block storage volume.
type Volume struct {
	UUID       string
	Name       string
	Status     string
	Type       string
	Host       string // backend pool
	SizeGB     int
	AttachedTo string // instance UUID, empty when detached
}

// InstanceNotFoundError reports a missing server.
type InstanceNotFoundError struct {
	ID string
}

func (e *InstanceNotFoundError) Error() string {
	return fmt.Sprintf("instance %s not found", e.ID)
}

// ComputeNodeNotFoundError reports a missing hypervisor.
type ComputeNodeNotFoundError struct {
	Ref string
}

func (e *ComputeNodeNotFoundError) Error() string {
	return fmt.Sprintf("compute node %s not found", e.Ref)
}

// VolumeNotFoundError reports a missing volume.
type VolumeNotFoundError struct {
	ID string
}

func (e *VolumeNotFoundError) Error() string {
	return fmt.Sprintf("volume %s not found", e.ID)
}

// TransientError marks a failure worth retrying (connection resets,
// gateway errors, 5xx responses). Everything else is permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient cloud error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is any of the typed not-found errors.
func IsNotFound(err error) bool {
	var ie *InstanceNotFoundError
	var ce *ComputeNodeNotFoundError
	var ve *VolumeNotFoundError
	return errors.As(err, &ie) || errors.As(err, &ce) || errors.As(err, &ve)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Adapter is the capability set the action library and the strategies
// depend on. Implementations must be safe for concurrent use; the
// action engine calls them from a worker pool.
type Adapter interface {
	// GetInstance returns the server or an InstanceNotFoundError.
	GetInstance(ctx context.Context, id string) (*Instance, error)
	// FindInstance returns (nil, nil) when the server does not exist.
	FindInstance(ctx context.Context, id string) (*Instance, error)
	ListInstances(ctx context.Context, host string) ([]Instance, error)

	LiveMigrateInstance(ctx context.Context, id, destination string) error
	ColdMigrateInstance(ctx context.Context, id, destination string) error
	AbortLiveMigration(ctx context.Context, id, source, destination string) error
	ResizeInstance(ctx context.Context, id, flavor string) error
	StartInstance(ctx context.Context, id string) error
	StopInstance(ctx context.Context, id string) error
	WaitForInstanceState(ctx context.Context, id, target string, retries int, interval time.Duration) error

	GetComputeNodeByHostname(ctx context.Context, hostname string) (*ComputeNode, error)
	GetComputeNodeByUUID(ctx context.Context, uuid string) (*ComputeNode, error)
	ListComputeNodes(ctx context.Context) ([]ComputeNode, error)
	EnableService(ctx context.Context, host string) error
	DisableService(ctx context.Context, host, reason string) error

	GetVolume(ctx context.Context, id string) (*Volume, error)
	MigrateVolume(ctx context.Context, id, destinationPool string) error
	RetypeVolume(ctx context.Context, id, newType string) error
	WaitForVolumeStatus(ctx context.Context, id, target string, retries int, interval time.Duration) error
}

// WithRetry runs fn up to 1+retries times, sleeping interval between
// attempts. Only transient errors are retried; anything else returns
// immediately. Context cancellation cuts the wait short.
func WithRetry(ctx context.Context, retries int, interval time.Duration, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt >= retries {
			return err
		}
		metrics.CloudCallRetriesTotal.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
