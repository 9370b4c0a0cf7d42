package ui

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// settingsFile returns the per-user settings path, creating the
// directory on first use.
func settingsFile() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "dmgemu")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

// persistedSettings is the subset of Config that survives restarts.
type persistedSettings struct {
	Scale           int    `json:"scale"`
	AudioStereo     bool   `json:"audio_stereo"`
	AudioAdaptive   bool   `json:"audio_adaptive"`
	AudioLowLatency bool   `json:"audio_low_latency"`
	ROMsDir         string `json:"roms_dir"`
	UseFetcherBG    bool   `json:"use_fetcher_bg"`
}

func (a *App) saveSettings() {
	path, err := settingsFile()
	if err != nil {
		return
	}
	s := persistedSettings{
		Scale:           a.cfg.Scale,
		AudioStereo:     a.cfg.AudioStereo,
		AudioAdaptive:   a.cfg.AudioAdaptive,
		AudioLowLatency: a.cfg.AudioLowLatency,
		ROMsDir:         a.cfg.ROMsDir,
		UseFetcherBG:    a.cfg.UseFetcherBG,
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0644)
}

func (a *App) loadSettings() {
	path, err := settingsFile()
	if err != nil {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var s persistedSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return
	}
	if s.Scale > 0 {
		a.cfg.Scale = s.Scale
	}
	a.cfg.AudioStereo = s.AudioStereo
	a.cfg.AudioAdaptive = s.AudioAdaptive
	a.cfg.AudioLowLatency = s.AudioLowLatency
	if s.ROMsDir != "" {
		a.cfg.ROMsDir = s.ROMsDir
	}
	a.cfg.UseFetcherBG = s.UseFetcherBG
}

// SaveSettings persists the current configuration; called on exit.
func (a *App) SaveSettings() { a.saveSettings() }
