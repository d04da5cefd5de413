package transfer

// Metrics receives transfer counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ChunkSent(size int)
	ChunkReceived(size int)
	SessionStarted()
	SessionFinished(status Status)
}

type noopMetrics struct{}

func (noopMetrics) ChunkSent(int)          {}
func (noopMetrics) ChunkReceived(int)      {}
func (noopMetrics) SessionStarted()        {}
func (noopMetrics) SessionFinished(Status) {}
