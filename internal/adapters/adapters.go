package adapters

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/models"
)

// Source supplies supplementary observations the station itself cannot
// measure, typically external forecast or almanac services. Sources never
// block: Fields answers from the last good fetch.
type Source interface {
	Name() string

	// Fields returns the most recent observations and text fields, or
	// ok=false when nothing fresh enough is available.
	Fields() (obs map[models.ObsType]models.Value, text map[models.ObsType]string, ok bool)
}

// payload is the wire form every adapter source produces. Observation keys
// use the same field names as the host bridge.
type payload struct {
	Observations map[string]float64 `json:"observations"`
	Texts        map[string]string  `json:"texts"`
}

// decodePayload parses raw JSON into typed observation maps.
func decodePayload(raw []byte) (map[models.ObsType]models.Value, map[models.ObsType]string, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, err
	}

	obs := make(map[models.ObsType]models.Value, len(p.Observations))
	for k, v := range p.Observations {
		t := models.ObsType(k)
		obs[t] = models.Value{Float: v, Unit: models.ObsUnit(t)}
	}
	text := make(map[models.ObsType]string, len(p.Texts))
	for k, v := range p.Texts {
		text[models.ObsType(k)] = v
	}
	return obs, text, nil
}

// Merger folds adapter observations into a snapshot ahead of the calculator.
// Station observations always win over adapter ones; a failed or stale
// source simply contributes nothing.
type Merger struct {
	sources []Source
	logger  zerolog.Logger
}

// NewMerger creates a merger over the given sources.
func NewMerger(sources []Source, logger zerolog.Logger) *Merger {
	return &Merger{sources: sources, logger: logger}
}

// Merge folds every available source into a copy of the snapshot and returns
// it. The input snapshot is never mutated.
func (m *Merger) Merge(s *models.Snapshot) *models.Snapshot {
	out := s
	for _, src := range m.sources {
		obs, text, ok := src.Fields()
		if !ok {
			m.logger.Debug().Str("source", src.Name()).Msg("Adapter has no fresh data, skipping")
			continue
		}
		out = out.Merge(obs, text)
		m.logger.Debug().
			Str("source", src.Name()).
			Int("observations", len(obs)).
			Int("texts", len(text)).
			Msg("Adapter fields merged")
	}
	return out
}
