// Package spec defines the execution specification and resource limits.
package spec

// ResourceLimit describes hard limits enforced by the sandbox.
type ResourceLimit struct {
	// CPUTimeMs is enforced through RLIMIT_CPU, rounded up to whole seconds.
	CPUTimeMs  int64
	WallTimeMs int64
	// MemoryMB caps the address space; zero leaves it unlimited.
	MemoryMB int64
	// OutputBytes bounds each of stdout and stderr.
	OutputBytes int64
}

// RunSpec is the unified execution specification for one process.
type RunSpec struct {
	SubmissionID string
	TestID       string
	WorkDir      string
	Cmd          []string
	Env          []string
	Stdin        string
	Limits       ResourceLimit
}
