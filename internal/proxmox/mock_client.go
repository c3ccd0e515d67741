package proxmox

import (
	"context"
	"sync"
	"time"

	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// MockClient is an in-memory Client used by tests. Readings, allocations,
// and failures are all settable per container, and resize calls are
// recorded along with the peak number of in-flight operations.
type MockClient struct {
	mu sync.Mutex

	utilizations map[int]Utilization
	allocations  map[int]models.Allocation
	host         HostUtilization

	utilizationErr map[int]error
	allocationErr  map[int]error
	resizeErr      map[int]error
	clusterErr     error

	resizeDelay time.Duration
	resizes     []ResizeCall

	inFlight    int
	maxInFlight int
}

type ResizeCall struct {
	VMID   int
	Target models.Allocation
}

func NewMockClient() *MockClient {
	return &MockClient{
		utilizations:   make(map[int]Utilization),
		allocations:    make(map[int]models.Allocation),
		utilizationErr: make(map[int]error),
		allocationErr:  make(map[int]error),
		resizeErr:      make(map[int]error),
	}
}

func (m *MockClient) SetUtilization(vmid int, util Utilization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utilizations[vmid] = util
}

func (m *MockClient) SetAllocation(vmid int, alloc models.Allocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocations[vmid] = alloc
}

func (m *MockClient) SetHostUtilization(host HostUtilization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.host = host
}

func (m *MockClient) FailUtilization(vmid int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utilizationErr[vmid] = err
}

func (m *MockClient) FailAllocation(vmid int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocationErr[vmid] = err
}

func (m *MockClient) FailResize(vmid int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resizeErr[vmid] = err
}

func (m *MockClient) FailCluster(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusterErr = err
}

// SetResizeDelay makes resize calls block, which lets tests observe
// concurrent operations overlapping.
func (m *MockClient) SetResizeDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resizeDelay = d
}

func (m *MockClient) GetUtilization(ctx context.Context, vmid int) (Utilization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.utilizationErr[vmid]; err != nil {
		return Utilization{}, err
	}
	util, ok := m.utilizations[vmid]
	if !ok {
		return Utilization{}, ErrNotFound
	}
	return util, nil
}

func (m *MockClient) GetAllocation(ctx context.Context, vmid int) (models.Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.allocationErr[vmid]; err != nil {
		return models.Allocation{}, err
	}
	alloc, ok := m.allocations[vmid]
	if !ok {
		return models.Allocation{}, ErrNotFound
	}
	return alloc, nil
}

func (m *MockClient) GetClusterUtilization(ctx context.Context) (HostUtilization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clusterErr != nil {
		return HostUtilization{}, m.clusterErr
	}
	return m.host, nil
}

func (m *MockClient) Resize(ctx context.Context, vmid int, target models.Allocation) error {
	m.mu.Lock()
	if err := m.resizeErr[vmid]; err != nil {
		m.mu.Unlock()
		return err
	}

	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.resizeDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
	m.resizes = append(m.resizes, ResizeCall{VMID: vmid, Target: target})
	m.allocations[vmid] = target
	return nil
}

func (m *MockClient) Close() error {
	return nil
}

func (m *MockClient) Resizes() []ResizeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ResizeCall, len(m.resizes))
	copy(out, m.resizes)
	return out
}

// MaxInFlight returns the highest number of resize calls that were ever
// executing at the same time.
func (m *MockClient) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}
