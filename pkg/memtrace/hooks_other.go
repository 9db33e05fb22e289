//go:build !darwin

package memtrace

// hookRebindings is empty on non-Darwin platforms: rebind.Register is a
// no-op there too (no dyld to hook), so Install has nothing to wire and
// nothing to report.
func hookRebindings() []rebindingSpec { return nil }
