package app

import (
	"errors"
	"time"

	"github.com/ayusman/airdeck/internal/config"
	"github.com/ayusman/airdeck/internal/gesture"
	"github.com/ayusman/airdeck/internal/plugin"
	"github.com/ayusman/airdeck/internal/store"
)

// classifierSettingsKey is the settings row holding classifier tuning.
const classifierSettingsKey = "classifier"

// ClassifierSettings is the stored form of gesture.Config.
type ClassifierSettings struct {
	SwipeThresholdPx float64 `json:"swipeThresholdPx"`
	CooldownMs       int64   `json:"cooldownMs"`
	MinConfidence    float64 `json:"minConfidence"`
}

// NewClassifierSettings converts cfg to its stored form.
func NewClassifierSettings(cfg gesture.Config) ClassifierSettings {
	return ClassifierSettings{
		SwipeThresholdPx: cfg.SwipeThresholdPx,
		CooldownMs:       cfg.Cooldown.Milliseconds(),
		MinConfidence:    cfg.MinConfidence,
	}
}

// Config converts the stored form back to a gesture.Config.
func (s ClassifierSettings) Config() gesture.Config {
	return gesture.Config{
		SwipeThresholdPx: s.SwipeThresholdPx,
		Cooldown:         time.Duration(s.CooldownMs) * time.Millisecond,
		MinConfidence:    s.MinConfidence,
	}
}

// LoadClassifierSettings reads stored tuning. ok is false when none is saved.
func LoadClassifierSettings(s *store.Store) (cfg gesture.Config, ok bool, err error) {
	var cs ClassifierSettings
	if err := s.Settings().GetJSON(classifierSettingsKey, &cs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return gesture.Config{}, false, nil
		}
		return gesture.Config{}, false, err
	}
	cfg = cs.Config()
	if err := cfg.Validate(); err != nil {
		return gesture.Config{}, false, err
	}
	return cfg, true, nil
}

// SaveClassifierSettings stores tuning, replacing any previous value.
func SaveClassifierSettings(s *store.Store, cfg gesture.Config) error {
	return s.Settings().SetJSON(classifierSettingsKey, NewClassifierSettings(cfg))
}

// storeBindings serves plugin bindings from the bindings table.
type storeBindings struct {
	repo *store.BindingRepository
}

// PluginBindings returns a plugin.BindingSource backed by s.
func PluginBindings(s *store.Store) plugin.BindingSource {
	return storeBindings{repo: s.Bindings()}
}

func (b storeBindings) BindingsFor(navAction string) ([]plugin.Binding, error) {
	rows, err := b.repo.ListEnabled(navAction)
	if err != nil {
		return nil, err
	}
	out := make([]plugin.Binding, 0, len(rows))
	for _, r := range rows {
		out = append(out, plugin.Binding{Plugin: r.PluginName, Action: r.ActionName, Config: r.Config})
	}
	return out, nil
}

// SeedBindings inserts the configured bindings when the table is empty, so
// edits made through the API survive restarts.
func SeedBindings(s *store.Store, bindings map[string]config.PluginAction) (int, error) {
	repo := s.Bindings()
	n, err := repo.Count()
	if err != nil || n > 0 {
		return 0, err
	}

	seeded := 0
	for _, action := range []string{"next", "previous", "first", "last"} {
		pa, ok := bindings[action]
		if !ok || pa.Plugin == "" {
			continue
		}
		b := &store.Binding{NavAction: action, PluginName: pa.Plugin, ActionName: pa.Action, Enabled: true}
		if b.ActionName == "" {
			b.ActionName = action
		}
		if err := repo.Create(b); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}
