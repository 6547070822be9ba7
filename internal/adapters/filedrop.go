package adapters

import (
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/models"
)

// FileDropSource reads observations from a JSON file some other process
// keeps up to date, the classic drop-file integration. The file is re-read
// only when its modification time changes; a file that stops updating goes
// absent once older than max age.
type FileDropSource struct {
	name   string
	path   string
	maxAge time.Duration
	clock  clockwork.Clock
	logger zerolog.Logger

	mutex    sync.Mutex
	lastMod  time.Time
	lastObs  map[models.ObsType]models.Value
	lastText map[models.ObsType]string
	valid    bool
}

// FileDropConfig configures one drop-file source.
type FileDropConfig struct {
	Name   string
	Path   string
	MaxAge time.Duration
}

// NewFileDropSource creates a drop-file source.
func NewFileDropSource(cfg FileDropConfig, clock clockwork.Clock, logger zerolog.Logger) *FileDropSource {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * time.Minute
	}
	return &FileDropSource{
		name:   cfg.Name,
		path:   cfg.Path,
		maxAge: cfg.MaxAge,
		clock:  clock,
		logger: logger,
	}
}

// Name returns the source name.
func (f *FileDropSource) Name() string { return f.name }

// Fields reads the drop file if it changed and returns its observations,
// absent when the file is missing, malformed or stale.
func (f *FileDropSource) Fields() (map[models.ObsType]models.Value, map[models.ObsType]string, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		f.logger.Debug().Err(err).Str("source", f.name).Msg("Drop file unavailable")
		f.valid = false
		return nil, nil, false
	}

	if f.clock.Since(info.ModTime()) > f.maxAge {
		return nil, nil, false
	}

	if !info.ModTime().Equal(f.lastMod) {
		raw, err := os.ReadFile(f.path)
		if err != nil {
			f.logger.Warn().Err(err).Str("source", f.name).Msg("Failed to read drop file")
			f.valid = false
			return nil, nil, false
		}
		obs, text, err := decodePayload(raw)
		if err != nil {
			f.logger.Warn().Err(err).Str("source", f.name).Msg("Drop file payload malformed")
			f.valid = false
			return nil, nil, false
		}
		f.lastMod = info.ModTime()
		f.lastObs = obs
		f.lastText = text
		f.valid = true
		f.logger.Debug().Str("source", f.name).Int("observations", len(obs)).Msg("Drop file reloaded")
	}

	if !f.valid {
		return nil, nil, false
	}
	return f.lastObs, f.lastText, true
}
