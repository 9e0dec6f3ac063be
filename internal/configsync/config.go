package configsync

import (
	"encoding/json"

	"github.com/google/uuid"
)

// DashboardConfig is the synchronized document. It is the unit of
// persistence on the device, the body pushed to the relay, and the
// payload fetched back when another client changes it.
type DashboardConfig struct {
	Screens           []Screen            `json:"screens"`
	ActiveScreenIndex int                 `json:"activeScreenIndex"`
	Dark              bool                `json:"dark"`
	DriveTime         map[string]any      `json:"driveTime,omitempty"`
	Calendar          map[string]any      `json:"calendar,omitempty"`
	Brightness        *BrightnessSettings `json:"brightness,omitempty"`
	Locations         map[string]any      `json:"locations,omitempty"`
	WidgetData        map[string]any      `json:"widgetData,omitempty"`
	GlobalSettings    GlobalSettings      `json:"globalSettings"`
}

type Screen struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Panels []PanelConfig `json:"panels"`
}

// PanelConfig places one widget on a screen grid. Args is free-form
// and owned by the widget renderer, not by the sync layer.
type PanelConfig struct {
	ID      string         `json:"id"`
	Widget  string         `json:"widget"`
	X       int            `json:"x"`
	Y       int            `json:"y"`
	Width   int            `json:"width"`
	Height  int            `json:"height"`
	Refresh string         `json:"refresh,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
}

type BrightnessSettings struct {
	Lat             float64 `json:"lat,omitempty"`
	Lon             float64 `json:"lon,omitempty"`
	Enabled         bool    `json:"enabled"`
	DayBrightness   int     `json:"dayBrightness,omitempty"`
	NightBrightness int     `json:"nightBrightness,omitempty"`
	TransitionMins  int     `json:"transitionMins,omitempty"`
}

// GlobalSettings holds cross-cutting preferences. Theme is the newer
// enum-valued setting; the legacy Dark boolean on DashboardConfig is
// kept consistent with it by UpdateGlobalSettings.
type GlobalSettings struct {
	Theme               string `json:"theme,omitempty"`
	RelayURL            string `json:"relayUrl,omitempty"`
	DefaultLocation     string `json:"defaultLocation,omitempty"`
	MaxRecordingSeconds int    `json:"maxRecordingSeconds,omitempty"`
}

const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// DefaultConfig is the state of a fresh install before any of the
// fallback sources (bundled file, relay) have been consulted.
func DefaultConfig() DashboardConfig {
	return DashboardConfig{
		Screens: []Screen{
			{ID: uuid.NewString(), Name: "Home", Panels: []PanelConfig{}},
		},
		ActiveScreenIndex: 0,
		GlobalSettings:    GlobalSettings{Theme: ThemeSystem},
	}
}

// Clone returns a deep copy via a JSON round trip so callers can never
// alias the store's internal document.
func (c DashboardConfig) Clone() DashboardConfig {
	data, err := json.Marshal(c)
	if err != nil {
		return c
	}
	var clone DashboardConfig
	if err := json.Unmarshal(data, &clone); err != nil {
		return c
	}
	clone.normalize()
	return clone
}

// FreshInstall reports whether no screen carries any panel, the signal
// that bootstrap may apply the bundled default document.
func (c DashboardConfig) FreshInstall() bool {
	for _, screen := range c.Screens {
		if len(screen.Panels) > 0 {
			return false
		}
	}
	return true
}

// normalize repairs a document so every mutator can assume its
// invariants: at least one screen, a clamped active index, and non-nil
// panel slices.
func (c *DashboardConfig) normalize() {
	if len(c.Screens) == 0 {
		c.Screens = []Screen{
			{ID: uuid.NewString(), Name: "Home", Panels: []PanelConfig{}},
		}
	}
	for i := range c.Screens {
		if c.Screens[i].ID == "" {
			c.Screens[i].ID = uuid.NewString()
		}
		if c.Screens[i].Panels == nil {
			c.Screens[i].Panels = []PanelConfig{}
		}
	}
	c.ActiveScreenIndex = clampScreenIndex(c.ActiveScreenIndex, len(c.Screens))
}

func clampScreenIndex(index, count int) int {
	if count <= 0 {
		return 0
	}
	if index < 0 {
		return 0
	}
	if index >= count {
		return count - 1
	}
	return index
}

// deriveDark maps the theme enum onto the legacy boolean flag.
func deriveDark(theme string, prefersDark bool) bool {
	switch theme {
	case ThemeDark:
		return true
	case ThemeSystem:
		return prefersDark
	default:
		return false
	}
}

// parseConfigDocument decodes raw JSON into a document, rejecting any
// payload whose screens field is absent or not an array. Used by both
// ImportConfig and the relay fetch path.
func parseConfigDocument(data []byte) (DashboardConfig, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return DashboardConfig{}, false
	}
	rawScreens, ok := probe["screens"]
	if !ok {
		return DashboardConfig{}, false
	}
	var screens []json.RawMessage
	if err := json.Unmarshal(rawScreens, &screens); err != nil {
		return DashboardConfig{}, false
	}
	var cfg DashboardConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DashboardConfig{}, false
	}
	cfg.normalize()
	return cfg, true
}
