package cli

// Environment variables read by the command line.
const (
	EnvStateKey     = "WEFT_STATE_KEY"
	EnvFallbackKeys = "WEFT_STATE_FALLBACK_KEYS"
)

// Store backends accepted by Options.Store.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Options contains the configuration shared by the CLI commands.
type Options struct {
	File  string
	Debug bool
	JSON  bool
	Watch bool
	// Interactive reads commands from stdin after the handlers ran.
	Interactive bool

	// Session restores state before running and saves it afterwards.
	Session string
	// Fresh discards the saved session first.
	Fresh bool
	// Store selects the snapshot backend; StoreDSN is its directory, database
	// path or redis address.
	Store    string
	StoreDSN string

	// EncryptionKey seals snapshots with AES-256-GCM. It is the base64
	// encoding of 32 bytes; FallbackKeys may still decrypt older snapshots.
	EncryptionKey string
	FallbackKeys  []string
	// Mask lists patterns of variable names masked before saving.
	Mask []string

	// Tools is a tools file whose programs become handler commands.
	Tools string
}
