package swift

import (
	"errors"

	"github.com/gordian-engine/swift/sbinmap"
	"github.com/gordian-engine/swift/shash"
	"github.com/spf13/afero"
)

// DefaultChunkSize is the chunk size used when [Config.ChunkSize] is zero.
const DefaultChunkSize = 1024

const (
	hashFileSuffix       = ".mhash"
	checkpointFileSuffix = ".mbinmap"
)

// Config is the configuration for [New].
type Config struct {
	// Filesystem holding the content, hash, and checkpoint files.
	// Defaults to the OS filesystem.
	Fs afero.Fs

	// Path of the content file. Required.
	// The file is created if it does not exist.
	ContentPath string

	// Path of the hash file.
	// Defaults to ContentPath with ".mhash" appended.
	HashPath string

	// Path of the checkpoint file.
	// Defaults to ContentPath with ".mbinmap" appended.
	CheckpointPath string

	// The root hash the content must reduce to.
	// May be zero when opening local content to seed,
	// in which case the root is computed from the content.
	RootHash shash.Hash

	// Bytes per chunk. If zero, DefaultChunkSize is used.
	ChunkSize uint32

	// Rehash the entire content on open,
	// even if the hash file and checkpoint would allow a faster start.
	CheckHashes bool

	// Memory-map the hash file instead of buffering it.
	// Only valid when Fs is the OS filesystem.
	MmapHashes bool

	// Acknowledgment set to track verified chunks.
	// Defaults to a new [sbinmap.Binmap].
	AckSet sbinmap.Set

	// Optional metrics. A nil value disables metrics.
	Metrics *Metrics
}

// validate panics if there are any illegal settings in the configuration.
func (c Config) validate() {
	var panicErrs error

	if c.ContentPath == "" {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("Config.ContentPath must not be empty"),
		)
	}

	if c.MmapHashes && c.Fs != nil {
		if _, ok := c.Fs.(*afero.OsFs); !ok {
			panicErrs = errors.Join(
				panicErrs,
				errors.New("Config.MmapHashes requires Config.Fs to be nil or an *afero.OsFs"),
			)
		}
	}

	if c.HashPath != "" && c.HashPath == c.ContentPath {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("Config.HashPath must differ from Config.ContentPath"),
		)
	}

	if c.CheckpointPath != "" && (c.CheckpointPath == c.ContentPath || c.CheckpointPath == c.HashPath) {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("Config.CheckpointPath must differ from the content and hash paths"),
		)
	}

	if panicErrs != nil {
		panic(panicErrs)
	}
}

// withDefaults returns a copy of c with every unset optional field filled in.
func (c Config) withDefaults() Config {
	if c.Fs == nil {
		c.Fs = afero.NewOsFs()
	}
	if c.HashPath == "" {
		c.HashPath = c.ContentPath + hashFileSuffix
	}
	if c.CheckpointPath == "" {
		c.CheckpointPath = c.ContentPath + checkpointFileSuffix
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.AckSet == nil {
		c.AckSet = sbinmap.New()
	}
	return c
}
