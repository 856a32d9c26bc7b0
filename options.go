package huffscan

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/seiflotfy/huffscan/errs"
)

const (
	// DefaultSizeOfSize is the width in bytes of the fixed integer fields of
	// a serialized SegmentedBuffer.
	DefaultSizeOfSize = 4
	maxSizeOfSize     = 8
)

// Compression selects how the archive payload stage is stored.
type Compression uint8

const (
	// CompressionAuto tries every encoding and keeps the smallest.
	CompressionAuto Compression = iota
	CompressionNone
	CompressionFlate
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionAuto:
		return "auto"
	case CompressionNone:
		return "none"
	case CompressionFlate:
		return "flate"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompression maps a name from configuration to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return CompressionAuto, nil
	case "none", "raw":
		return CompressionNone, nil
	case "flate", "deflate":
		return CompressionFlate, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return CompressionAuto, errors.Wrapf(errs.ErrInvalidArgument, "unknown payload compression %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Compression) MarshalText() ([]byte, error) {
	if c > CompressionZstd {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "payload compression %d", c)
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Compression) UnmarshalText(text []byte) error {
	v, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Config holds the settings shared by ScanBuffer and Encoder.
type Config struct {
	SizeOfSize  int                // Width of fixed container fields in bytes (0 = default 4, max 8)
	Compression Compression        // Payload stage encoding for archives
	Logger      logrus.FieldLogger // Debug progress output (nil = logrus standard logger)
}

// Option is a functional option for configuring scans and encoders.
type Option func(*Config)

// WithSizeOfSize sets the width of the fixed integer fields in the
// container. Valid range is [1, 8].
func WithSizeOfSize(n int) Option {
	return func(c *Config) {
		c.SizeOfSize = n
	}
}

// WithPayloadCompression fixes the archive payload encoding instead of
// picking the smallest.
func WithPayloadCompression(comp Compression) Option {
	return func(c *Config) {
		c.Compression = comp
	}
}

// WithLogger routes progress logging to l.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func newConfig(opts []Option) (Config, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SizeOfSize == 0 {
		cfg.SizeOfSize = DefaultSizeOfSize
	}
	if cfg.SizeOfSize < 1 || cfg.SizeOfSize > maxSizeOfSize {
		return cfg, errors.Wrapf(errs.ErrInvalidArgument, "size of size %d outside [1, %d]", cfg.SizeOfSize, maxSizeOfSize)
	}
	if cfg.Compression > CompressionZstd {
		return cfg, errors.Wrapf(errs.ErrInvalidArgument, "payload compression %d", cfg.Compression)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return cfg, nil
}
