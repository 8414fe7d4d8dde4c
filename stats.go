package graft

// Stats is a point-in-time view of container metrics.
type Stats struct {
	// RegistryVersion increases with every registry change.
	RegistryVersion uint64

	Services   int
	Decorators int
	Wrappers   int

	// CachedPlans counts plans compiled for the current registry version.
	CachedPlans int

	Resolutions   int64
	Failures      int64
	CompiledPlans int64

	TotalScopes       int64
	ActiveScopes      int64
	CreatedInstances  int64
	DisposedInstances int64
	DisposalFailures  int64
}

// Stats returns the container's metrics. Counters are shared by all scope
// views of the container.
func (c *Container) Stats() Stats {
	snap := c.core.snap.Load()
	scopes := c.core.root.Statistics().Snapshot()

	return Stats{
		RegistryVersion:   snap.version,
		Services:          countFactories(snap, ServiceSetup),
		Decorators:        countFactories(snap, DecoratorSetup),
		Wrappers:          countFactories(snap, WrapperSetup),
		CachedPlans:       snap.plans.len(),
		Resolutions:       c.core.resolutions.Load(),
		Failures:          c.core.failures.Load(),
		CompiledPlans:     c.core.compiled.Load(),
		TotalScopes:       scopes.TotalScopes,
		ActiveScopes:      scopes.ActiveScopes,
		CreatedInstances:  scopes.CreatedInstances,
		DisposedInstances: scopes.DisposedInstances,
		DisposalFailures:  scopes.DisposalFailures,
	}
}

func countFactories(snap *snapshot, kind SetupKind) int {
	n := 0
	for _, entry := range snap.table(kind).All() {
		n += entry.Len()
	}
	return n
}
