// Package config assembles the CLI configuration from a TOML file, the
// environment and command line flags.
package config

import (
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/seiflotfy/huffscan"
	"github.com/seiflotfy/huffscan/errs"
	"github.com/seiflotfy/huffscan/scan"
	"github.com/seiflotfy/huffscan/source"
)

// EnvPrefix prefixes the environment variable of every flag: -data-bits is
// read from HUFFSCAN_DATA_BITS.
const EnvPrefix = "HUFFSCAN_"

// Configuration is the complete CLI configuration.
type Configuration struct {
	Scan    Scan    `toml:"scan"`
	Source  Source  `toml:"source"`
	Cache   Cache   `toml:"cache"`
	Log     Log     `toml:"log"`
	Archive Archive `toml:"archive"`

	// File is the configuration file that was read, if any.
	File string `toml:"-"`
}

// Scan holds the symbol parameters.
type Scan struct {
	DataBits   int         `toml:"data_bits"`
	Method     scan.Method `toml:"method"`
	SizeOfSize int         `toml:"size_of_size"`
}

// Source controls random buffers.
type Source struct {
	Seed      uint64            `toml:"seed"` // 0 draws from crypto/rand
	MaxRandom datasize.ByteSize `toml:"max_random"`
}

// Cache configures the scan cache. An empty Dir keeps it in memory.
type Cache struct {
	Dir     string `toml:"dir"`
	Entries int    `toml:"entries"`
}

// Log configures logrus.
type Log struct {
	Level  logrus.Level `toml:"level"`
	Format string       `toml:"format"`
}

// Archive configures compression output.
type Archive struct {
	Compression huffscan.Compression `toml:"compression"`
}

// Default returns the configuration used when nothing is set.
func Default() Configuration {
	return Configuration{
		Scan: Scan{
			DataBits:   8,
			Method:     scan.MethodInteger,
			SizeOfSize: huffscan.DefaultSizeOfSize,
		},
		Source:  Source{MaxRandom: datasize.ByteSize(source.DefaultMaxRandom)},
		Cache:   Cache{Entries: 16},
		Log:     Log{Level: logrus.InfoLevel, Format: "text"},
		Archive: Archive{Compression: huffscan.CompressionAuto},
	}
}

// DefaultFile returns the configuration file read when -config is not given:
// $HUFFSCAN_CONFIG, or huffscan.toml in the user configuration directory.
func DefaultFile() string {
	if f := os.Getenv(EnvPrefix + "CONFIG"); f != "" {
		return f
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "huffscan.toml")
}

// Parse registers the configuration flags on fs and parses args.
//
// The precedence is:
//
//	command line flags > environment > configuration file > defaults
//
// Positional arguments remain available through fs.Args. A -h flag returns
// flag.ErrHelp unwrapped.
func Parse(fs *flag.FlagSet, args []string) (*Configuration, error) {
	cfg := Default()

	file, explicit := findConfigFile(args)
	if file == "" {
		file = DefaultFile()
	}
	if err := cfg.parseFile(file, explicit); err != nil {
		return nil, err
	}

	setupFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, err
		}
		return nil, errors.Wrap(errs.ErrInvalidArgument, err.Error())
	}
	if err := setUnsetFlagsFromEnv(fs); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// The file has to be read before the flags are parsed so that they take
// precedence, so the -config flag is extracted directly.
var configRx = regexp.MustCompile(`^--?config(?:=(.*))?$`)

func findConfigFile(args []string) (string, bool) {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		m := configRx.FindStringSubmatch(arg)
		if m == nil {
			continue
		}
		if m[1] != "" {
			return m[1], true
		}
		if i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func (c *Configuration) parseFile(file string, explicit bool) error {
	if file == "" {
		return nil
	}
	md, err := toml.DecodeFile(file, c)
	if os.IsNotExist(err) && !explicit {
		return nil
	}
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(errs.ErrInvalidArgument, "config file %s does not exist", file)
		}
		return errors.Wrapf(errs.ErrInvalidArgument, "config file %s: %v", file, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.Wrapf(errs.ErrInvalidArgument, "config file %s: unknown key %s", file, undecoded[0])
	}
	c.File = file
	return nil
}

func setupFlags(fs *flag.FlagSet, c *Configuration) {
	_ = fs.String("config", c.File, "The path to the configuration file")

	fs.IntVar(&c.Scan.DataBits, "data-bits", c.Scan.DataBits, "Symbol width in bits")
	fs.TextVar(&c.Scan.Method, "method", c.Scan.Method, "Symbol representation (integer or bytestring)")
	fs.IntVar(&c.Scan.SizeOfSize, "size-of-size", c.Scan.SizeOfSize, "Width of fixed container fields in bytes")

	fs.Uint64Var(&c.Source.Seed, "seed", c.Source.Seed, "Seed for random buffers (0 uses crypto/rand)")
	fs.TextVar(&c.Source.MaxRandom, "max-random", c.Source.MaxRandom, "Largest random buffer")

	fs.StringVar(&c.Cache.Dir, "cache-dir", c.Cache.Dir, "Directory for cached scans")
	fs.IntVar(&c.Cache.Entries, "cache-entries", c.Cache.Entries, "Scans kept in memory")

	fs.TextVar(&c.Log.Level, "log-level", c.Log.Level, "Log level")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "Log format (text or json)")

	fs.TextVar(&c.Archive.Compression, "compression", c.Archive.Compression, "Payload encoding (auto, none, flate or zstd)")
}

func setUnsetFlagsFromEnv(fs *flag.FlagSet) error {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	var err error
	fs.VisitAll(func(f *flag.Flag) {
		if err != nil || set[f.Name] {
			return
		}
		key := envKey(f.Name)
		if val, ok := os.LookupEnv(key); ok && val != "" {
			if serr := fs.Set(f.Name, val); serr != nil {
				err = errors.Wrapf(errs.ErrInvalidArgument, "%s: %v", key, serr)
			}
		}
	})
	return err
}

func envKey(name string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Validate checks the combination of settings.
func (c *Configuration) Validate() error {
	if err := scan.Validate(c.Scan.DataBits, c.Scan.Method); err != nil {
		return err
	}
	if c.Scan.SizeOfSize < 1 || c.Scan.SizeOfSize > 8 {
		return errors.Wrapf(errs.ErrInvalidArgument, "size of size %d outside [1, 8]", c.Scan.SizeOfSize)
	}
	if c.Cache.Entries < 1 {
		return errors.Wrapf(errs.ErrInvalidArgument, "cache entries %d", c.Cache.Entries)
	}
	if c.Source.MaxRandom == 0 {
		return errors.Wrap(errs.ErrInvalidArgument, "max random size is zero")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Wrapf(errs.ErrInvalidArgument, "log format %q", c.Log.Format)
	}
	return nil
}

// Options returns the library options the configuration implies.
func (c *Configuration) Options(logger logrus.FieldLogger) []huffscan.Option {
	return []huffscan.Option{
		huffscan.WithSizeOfSize(c.Scan.SizeOfSize),
		huffscan.WithPayloadCompression(c.Archive.Compression),
		huffscan.WithLogger(logger),
	}
}

// Loader returns the source loader the configuration implies.
func (c *Configuration) Loader(logger logrus.FieldLogger) *source.Loader {
	l := &source.Loader{MaxRandom: c.Source.MaxRandom.Bytes(), Logger: logger}
	if c.Source.Seed != 0 {
		l.Rand = source.NewPRNG(c.Source.Seed)
	}
	return l
}

// NewLogger returns a logger writing to stderr with the configured level
// and format.
func (c *Configuration) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(c.Log.Level)
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return logger
}
