package exec

// Options are the tunables of the execution engine. Zero values are
// replaced by defaults; see DefaultOptions.
type Options struct {
	// MaxConcurrentTasks bounds the producer pool and every pipeline
	// channel in parallel execution. Backpressure comes from these
	// bounds: a slow collector stalls upstream producers.
	MaxConcurrentTasks int
	// MaxOrderedLimitQueueSize is the largest start+limit for which
	// the bounded top-K collector is used instead of a full sort.
	MaxOrderedLimitQueueSize int
	// FetchBatchSize is how many records an index iterator produces
	// per batch.
	FetchBatchSize int
	// CancelCheckInterval is how many records a scan processes between
	// deadline checks. The cancellation flag itself is checked on
	// every record; only the (comparatively expensive) context check
	// is amortised.
	CancelCheckInterval int
	// TempDir enables the disk-spilled collector when non-empty and
	// the statement allows temp files.
	TempDir string
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentTasks:       64,
		MaxOrderedLimitQueueSize: 1000,
		FetchBatchSize:           500,
		CancelCheckInterval:      100,
	}
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxConcurrentTasks <= 0 {
		o.MaxConcurrentTasks = d.MaxConcurrentTasks
	}
	if o.MaxOrderedLimitQueueSize <= 0 {
		o.MaxOrderedLimitQueueSize = d.MaxOrderedLimitQueueSize
	}
	if o.FetchBatchSize <= 0 {
		o.FetchBatchSize = d.FetchBatchSize
	}
	if o.CancelCheckInterval <= 0 {
		o.CancelCheckInterval = d.CancelCheckInterval
	}
	return o
}
