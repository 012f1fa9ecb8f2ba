// Package config collects the tunables the teacher scattered across
// hardcoded constants (discovery port, transfer port, chunk size, ...)
// into one struct so the Controller Façade has something concrete to
// read and mutate.
package config

import "time"

const (
	// DiscoveryPortSentinel is the "unset" value from spec §4.2: when
	// DiscoveryPort is left at this value the Discovery Service picks a
	// random port in [40000, 49999] instead of binding it literally.
	DiscoveryPortSentinel = 34567

	DefaultTransferPort         = 34568
	DefaultAnnouncementInterval = 5000 * time.Millisecond
	DefaultTimeoutInterval      = 15000 * time.Millisecond
	DefaultSweepInterval        = 1000 * time.Millisecond
	DefaultChunkSize            = 1 << 20 // 1 MiB
	DefaultInterChunkDelay      = 10 * time.Millisecond
	DefaultPlatform             = "go"
	DefaultVersion              = "1.0.0"
)

// Config holds every runtime-tunable value named in spec §6.4.
type Config struct {
	DiscoveryPort         int
	TransferPort          int
	AnnouncementInterval  time.Duration
	TimeoutInterval       time.Duration
	SweepInterval         time.Duration
	ChunkSize             int
	InterChunkDelay       time.Duration
	HandshakeTimeout      time.Duration // 0 disables the handshake timeout
	DownloadDir           string
	DisplayName           string
	Platform              string
	Version               string
	EncryptionEnabled     bool
	EncryptionPassword    string
}

// Default returns a Config populated with every spec §6.4 default. The
// caller is expected to override DownloadDir and DisplayName.
func Default() *Config {
	return &Config{
		DiscoveryPort:        DiscoveryPortSentinel,
		TransferPort:         DefaultTransferPort,
		AnnouncementInterval: DefaultAnnouncementInterval,
		TimeoutInterval:      DefaultTimeoutInterval,
		SweepInterval:        DefaultSweepInterval,
		ChunkSize:            DefaultChunkSize,
		InterChunkDelay:      DefaultInterChunkDelay,
		HandshakeTimeout:     0,
		Platform:             DefaultPlatform,
		Version:              DefaultVersion,
	}
}
