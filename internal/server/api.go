package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/augment"
	"github.com/afroash/weatherwd/internal/host"
	"github.com/afroash/weatherwd/internal/models"
	"github.com/afroash/weatherwd/internal/storage"
	"github.com/afroash/weatherwd/internal/tags"
)

// APIHandler handles HTTP API requests for report generators and dashboards
type APIHandler struct {
	store    storage.Store
	resolver *tags.Resolver
	service  *augment.Service
	bridge   *host.Bridge
	logger   zerolog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(store storage.Store, resolver *tags.Resolver, service *augment.Service, bridge *host.Bridge, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:    store,
		resolver: resolver,
		service:  service,
		bridge:   bridge,
		logger:   logger,
	}
}

// TagResult is the wire form of one resolved tag
type TagResult struct {
	Value     *float64 `json:"value,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Formatted string   `json:"formatted,omitempty"`
	Text      string   `json:"text,omitempty"`
	Absent    bool     `json:"absent,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func toTagResult(v models.TagValue, err error) TagResult {
	switch {
	case errors.Is(err, tags.ErrAbsent):
		return TagResult{Absent: true}
	case err != nil:
		return TagResult{Error: err.Error()}
	case v.Text != "" && v.Formatted == "":
		return TagResult{Text: v.Text}
	}
	value := v.Value
	return TagResult{
		Value:     &value,
		Unit:      string(v.Unit),
		Formatted: v.Formatted,
	}
}

// HandleTags resolves a comma-separated list of tags in a single pass so
// every value in the response comes from the same data snapshot. Without a
// names parameter it lists the available tag names instead.
func (api *APIHandler) HandleTags(w http.ResponseWriter, r *http.Request) {
	namesParam := r.URL.Query().Get("names")
	if namesParam == "" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"available": api.resolver.Names(),
		})
		return
	}

	pass := api.resolver.NewPass()
	results := make(map[string]TagResult)
	for _, name := range strings.Split(namesParam, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		value, err := pass.Resolve(name)
		if errors.Is(err, tags.ErrUnknownTag) {
			http.Error(w, "unknown tag: "+name, http.StatusBadRequest)
			return
		}
		results[name] = toTagResult(value, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pass":  pass.ID.String(),
		"as_of": pass.AsOf,
		"tags":  results,
	})
}

// HandleTag resolves a single tag by name
func (api *APIHandler) HandleTag(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "Missing name parameter", http.StatusBadRequest)
		return
	}

	value, err := api.resolver.NewPass().Resolve(name)
	if errors.Is(err, tags.ErrUnknownTag) {
		http.Error(w, "unknown tag: "+name, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTagResult(value, err))
}

// HandleLatest returns the most recent supplementary record
func (api *APIHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	record, err := api.store.Latest()
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to read latest record")
		http.Error(w, "Store unavailable", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "No records available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// HandleHistory returns records over a time range for charting.
// start and end are unix seconds; limit caps the response size.
func (api *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)

	if s := r.URL.Query().Get("start"); s != "" {
		unix, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			http.Error(w, "Invalid start parameter", http.StatusBadRequest)
			return
		}
		start = time.Unix(unix, 0).UTC()
	}
	if s := r.URL.Query().Get("end"); s != "" {
		unix, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			http.Error(w, "Invalid end parameter", http.StatusBadRequest)
			return
		}
		end = time.Unix(unix, 0).UTC()
	}

	limitStr := r.URL.Query().Get("limit")
	limit := 500 // default
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := api.store.RangeQuery(start, end, limit)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query history")
		http.Error(w, "Store unavailable", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*models.Record{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// StatusData contains combined service status for dashboards
type StatusData struct {
	State      augment.State         `json:"state"`
	Store      *storage.StoreStats   `json:"store"`
	Feeds      []host.FeedConnection `json:"feeds"`
	LastUpdate time.Time             `json:"last_update"`
}

// HandleStatus returns combined service and store status
func (api *APIHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := api.store.Stats()
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to read store stats")
		http.Error(w, "Store unavailable", http.StatusInternalServerError)
		return
	}

	data := StatusData{
		State:      api.service.State(),
		Store:      stats,
		Feeds:      api.bridge.ActiveFeeds(),
		LastUpdate: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// HandleHealth is the liveness endpoint
func (api *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"state":  string(api.service.State()),
	})
}
