package proxmox

import (
	"context"
	"errors"

	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

var (
	ErrConnection = errors.New("proxmox connection failed")
	ErrAuth       = errors.New("proxmox authentication failed")
	ErrNotFound   = errors.New("proxmox resource not found")
	ErrValidation = errors.New("proxmox rejected resize parameters")
	ErrTimeout    = errors.New("proxmox request timed out")
)

// Utilization is an instantaneous usage reading for one container.
type Utilization struct {
	CPUPercent    float64
	MemoryPercent float64
	Running       bool
}

// HostUtilization is the aggregate usage across the cluster's nodes.
type HostUtilization struct {
	CPUPercent    float64
	MemoryPercent float64
}

// Client is the consumed hypervisor capability. The autoscaler core only
// ever talks to this interface; transport concerns stay behind it.
type Client interface {
	// GetUtilization fetches the current usage reading for a container.
	GetUtilization(ctx context.Context, vmid int) (Utilization, error)

	// GetAllocation fetches the container's configured resources.
	GetAllocation(ctx context.Context, vmid int) (models.Allocation, error)

	// GetClusterUtilization fetches host-wide usage for safety gating.
	GetClusterUtilization(ctx context.Context) (HostUtilization, error)

	// Resize applies a new allocation to a container.
	Resize(ctx context.Context, vmid int, target models.Allocation) error

	// Close releases resources
	Close() error
}

// IsAuthError reports whether an evaluation failed on credentials rather
// than transport, which feeds the degraded-health signal.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsConnectionError covers both connection and timeout failures, which
// are handled identically by callers.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}
