package merged

import "github.com/born-ml/mergeconv/internal/parallel"

// Replicas runs one engine per worker over disjoint batch items.
type Replicas struct {
	engines []*Engine
}

// NewReplicas clones e into n engines. e must have its parameters bound.
// A count below 1 uses one engine per CPU.
func NewReplicas(e *Engine, n int) *Replicas {
	if n < 1 {
		n = parallel.DefaultConfig().NumWorkers
	}
	r := &Replicas{engines: make([]*Engine, n)}
	r.engines[0] = e
	for i := 1; i < n; i++ {
		r.engines[i] = e.Clone()
	}
	return r
}

// Len returns the number of engines.
func (r *Replicas) Len() int {
	return len(r.engines)
}

// Forward runs the batch from src into dst, each worker using its own
// engine scratch.
func (r *Replicas) Forward(src, dst []float32) {
	batch := r.engines[0].param.Batch
	parallel.ForEachBatch(batch, len(r.engines), func(w, beg, end int) {
		r.engines[w].forward(src, nil, dst, beg, end)
	})
}
