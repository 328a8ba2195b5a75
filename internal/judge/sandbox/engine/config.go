package engine

const defaultStdoutStderrMaxBytes int64 = 64 * 1024

// Config controls sandbox engine behavior.
type Config struct {
	// StdoutStderrMaxBytes is used when a RunSpec carries no output limit.
	StdoutStderrMaxBytes int64
	// PathEnv is exported as PATH to child processes; empty inherits the host PATH.
	PathEnv string

	// InitPath is the sandbox-init binary. When set, limits are applied by
	// the launcher before exec instead of by prlimit after start.
	InitPath string
	// DenyNetwork blocks socket creation; requires InitPath.
	DenyNetwork bool
	// MaxProcs caps RLIMIT_NPROC; requires InitPath. The limit counts every
	// process of the uid, so leave it zero unless programs run as a dedicated user.
	MaxProcs int64
}
