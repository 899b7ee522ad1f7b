// Package assignment implements static traffic assignment: all-or-nothing
// loading of an OD demand matrix onto shortest paths and the Method of
// Successive Averages that iterates it towards user equilibrium.
//
// # Memory Management
//
// AON loading runs one shortest path search per origin zone and needs one
// partial flow vector per origin. BufferPool recycles both through sync.Pool,
// so an MSA run of hundreds of iterations does not allocate them again on
// every iteration.
//
// # Thread Safety
//
// BufferPool is safe for concurrent use. The buffers it hands out are not:
// each one belongs to exactly one origin task until it is released.
package assignment

import (
	"sync"

	"trafficassign/pkg/domain"
	"trafficassign/services/assignment-svc/internal/algorithms"
)

// =============================================================================
// Buffer Pool
// =============================================================================

// BufferPool provides pooling for per-origin partial flow vectors and
// shortest path workspaces.
//
// # Usage
//
//	pool := assignment.NewBufferPool()
//	flows := pool.AcquireFlows(net.LinkCount())
//	defer pool.ReleaseFlows(flows)
//	ws := pool.AcquireWorkspace()
//	defer pool.ReleaseWorkspace(ws)
type BufferPool struct {
	flows      sync.Pool
	workspaces sync.Pool
}

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		flows: sync.Pool{
			New: func() any {
				f := make(domain.FlowVector, 0, 64)
				return &f
			},
		},
		workspaces: sync.Pool{
			New: func() any {
				return algorithms.NewWorkspace()
			},
		},
	}
}

// AcquireFlows obtains a zeroed flow vector of length n.
// Call ReleaseFlows() when done.
func (p *BufferPool) AcquireFlows(n int) *domain.FlowVector {
	f := p.flows.Get().(*domain.FlowVector)
	if cap(*f) < n {
		*f = make(domain.FlowVector, n)
		return f
	}
	*f = (*f)[:n]
	f.Reset()
	return f
}

// ReleaseFlows returns a flow vector to the pool.
// It is safe to pass nil.
func (p *BufferPool) ReleaseFlows(f *domain.FlowVector) {
	if f == nil {
		return
	}
	p.flows.Put(f)
}

// AcquireWorkspace obtains a shortest path workspace.
// Call ReleaseWorkspace() when done.
func (p *BufferPool) AcquireWorkspace() *algorithms.Workspace {
	return p.workspaces.Get().(*algorithms.Workspace)
}

// ReleaseWorkspace returns a workspace to the pool.
// It is safe to pass nil.
func (p *BufferPool) ReleaseWorkspace(w *algorithms.Workspace) {
	if w == nil {
		return
	}
	p.workspaces.Put(w)
}
