// Package source acquires the buffers the CLI works on. An argument of the
// form ":<size>" (for example ":70 MB") asks for that many random bytes;
// anything else names a file.
package source

import (
	"crypto/rand"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/seiflotfy/huffscan/errs"
	"github.com/seiflotfy/huffscan/units"
)

// DefaultMaxRandom caps the size of a generated buffer.
const DefaultMaxRandom = 1 << 32

// Loader turns a source argument into bytes.
type Loader struct {
	// Rand supplies random buffers. Nil means crypto/rand.
	Rand io.Reader
	// MaxRandom caps generated buffers. Zero means DefaultMaxRandom.
	MaxRandom uint64
	Logger    logrus.FieldLogger
}

// Seeded returns a Loader whose random buffers come from a PRNG seeded
// with seed, so the same argument always yields the same bytes.
func Seeded(seed uint64) *Loader {
	return &Loader{Rand: NewPRNG(seed)}
}

// IsRandom reports whether arg asks for a random buffer.
func IsRandom(arg string) bool {
	return strings.HasPrefix(arg, ":")
}

// Load returns the buffer arg refers to, using crypto/rand for random buffers.
func Load(arg string) ([]byte, error) {
	return (&Loader{}).Load(arg)
}

// Load returns the buffer arg refers to.
func (l *Loader) Load(arg string) ([]byte, error) {
	log := l.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if arg == "" {
		return nil, errors.Wrap(errs.ErrInvalidArgument, "empty source")
	}
	if !IsRandom(arg) {
		buf, err := os.ReadFile(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", arg)
		}
		log.WithFields(logrus.Fields{"path": arg, "size": len(buf)}).Debug("loaded file")
		return buf, nil
	}

	size, err := units.Parse(strings.TrimSpace(arg[1:]))
	if err != nil {
		return nil, err
	}
	limit := l.MaxRandom
	if limit == 0 {
		limit = DefaultMaxRandom
	}
	if size > limit {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "random buffer of %s exceeds %s",
			units.Format(size), units.Format(limit))
	}
	r := l.Rand
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "generate random buffer")
	}
	log.WithField("size", units.Format(size)).Debug("generated random buffer")
	return buf, nil
}
