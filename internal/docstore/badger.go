package docstore

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

type Config struct {
	Dir      string
	InMemory bool
}

// Open открывает Badger с логами через slog.
func Open(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(slogBadger{l: slog.Default().With(slog.String("component", "badger"))})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", cfg.Dir, err)
	}
	return db, nil
}

// slogBadger — адаптер badger.Logger поверх slog. Info badger слишком болтлив, уводим в debug.
type slogBadger struct {
	l *slog.Logger
}

func (b slogBadger) Errorf(f string, args ...any)   { b.l.Error(fmt.Sprintf(f, args...)) }
func (b slogBadger) Warningf(f string, args ...any) { b.l.Warn(fmt.Sprintf(f, args...)) }
func (b slogBadger) Infof(f string, args ...any)    { b.l.Debug(fmt.Sprintf(f, args...)) }
func (b slogBadger) Debugf(f string, args ...any)   { b.l.Debug(fmt.Sprintf(f, args...)) }
