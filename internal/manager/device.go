package manager

import "os"

// Device reports the compute device descriptor advertised to clients.
// GPU offload is a property of how the runtime binary was built; the
// RAGGATE_DEVICE override lets deployments label themselves accordingly.
func Device() string {
	if v := os.Getenv("RAGGATE_DEVICE"); v != "" {
		return v
	}
	return "cpu"
}
