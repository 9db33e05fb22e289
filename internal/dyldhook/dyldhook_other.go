//go:build !darwin

package dyldhook

// Install and Sweep are no-ops on non-Darwin platforms: the dyld add-image
// facility they wrap does not exist there. Kept buildable so the
// portable parts of this module (name matching, registry ordering) stay
// testable everywhere.
func Install(cb Callback) {}

func Sweep(cb Callback) {}

// ImageName reports "" on non-Darwin platforms: there is no dladdr
// equivalent to resolve a header address back to a path.
func ImageName(header uintptr) string { return "" }
