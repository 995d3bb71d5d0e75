package manager

// MVCCStats reports version-chain walk activity (manager/version_chain.go's
// VersionChainManager.GetStats).
type MVCCStats struct {
	TotalVersions    uint64  // roll_ptr hops walked across all Resolve calls
	AvgVersionsPerTx float64 // average hops per Resolve call
}
