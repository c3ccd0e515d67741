package proxmox

import (
	"context"
	"fmt"

	"github.com/pvescale/lxc-autoscaler/internal/logger"
	"github.com/pvescale/lxc-autoscaler/internal/resilience"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// ResilientClient wraps a Client with a circuit breaker. While the
// breaker is open every call fails fast with a connection error, so a
// dead Proxmox endpoint does not stall whole ticks on timeouts. There is
// deliberately no retry layer; failed evaluations wait for the next tick.
type ResilientClient struct {
	inner   Client
	breaker *resilience.CircuitBreaker
}

func NewResilientClient(inner Client, breaker *resilience.CircuitBreaker) *ResilientClient {
	return &ResilientClient{inner: inner, breaker: breaker}
}

func (r *ResilientClient) GetUtilization(ctx context.Context, vmid int) (Utilization, error) {
	if !r.breaker.Allow() {
		return Utilization{}, errBreakerOpen()
	}
	util, err := r.inner.GetUtilization(ctx, vmid)
	r.observe(err)
	return util, err
}

func (r *ResilientClient) GetAllocation(ctx context.Context, vmid int) (models.Allocation, error) {
	if !r.breaker.Allow() {
		return models.Allocation{}, errBreakerOpen()
	}
	alloc, err := r.inner.GetAllocation(ctx, vmid)
	r.observe(err)
	return alloc, err
}

func (r *ResilientClient) GetClusterUtilization(ctx context.Context) (HostUtilization, error) {
	if !r.breaker.Allow() {
		return HostUtilization{}, errBreakerOpen()
	}
	host, err := r.inner.GetClusterUtilization(ctx)
	r.observe(err)
	return host, err
}

func (r *ResilientClient) Resize(ctx context.Context, vmid int, target models.Allocation) error {
	if !r.breaker.Allow() {
		return errBreakerOpen()
	}
	err := r.inner.Resize(ctx, vmid, target)
	r.observe(err)
	return err
}

func (r *ResilientClient) Close() error {
	return r.inner.Close()
}

// observe feeds the breaker. Only transport-level failures count;
// not-found, validation, and auth errors mean the endpoint answered.
func (r *ResilientClient) observe(err error) {
	if err == nil {
		r.breaker.RecordSuccess()
		return
	}
	if IsConnectionError(err) {
		r.breaker.RecordFailure()
		if r.breaker.State() == resilience.StateOpen {
			logger.Warn("Proxmox circuit breaker opened, failing fast until reset timeout")
		}
	}
}

func errBreakerOpen() error {
	return fmt.Errorf("%w: circuit breaker open", ErrConnection)
}
