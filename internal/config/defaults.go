package config

// File locations and environment.
const (
	FileName  = "flocksync"
	DirName   = ".flocksync"
	EnvPrefix = "FLOCKSYNC"
)

// Defaults that other packages refer to.
const (
	DefaultPort            = 8787
	DefaultTokenTTLMinutes = 7 * 24 * 60
	MinJWTSecretLength     = 16
)

const fileHeader = `# flocksync configuration.
# Every key can be overridden from the environment, e.g. FLOCKSYNC_SERVER_PORT.
`
