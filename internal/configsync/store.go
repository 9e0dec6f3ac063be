package configsync

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Logger is the minimal logging surface the sync layer needs.
// log.Default() satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// ColorSchemeFunc reports whether the host environment prefers a dark
// color scheme. Injected so theme derivation stays testable.
type ColorSchemeFunc func() bool

// Snapshot is the full in-memory state handed to subscribers.
type Snapshot struct {
	Config   DashboardConfig
	EditMode bool
}

// Projection selects the part of a snapshot a subscriber cares about.
// Listeners fire only when the deep-compared projection changes.
type Projection func(Snapshot) any

type Listener func(Snapshot)

type subscription struct {
	id      int
	project Projection
	listen  Listener
	last    any
}

type StoreOptions struct {
	DeviceStore DeviceStore
	PrefersDark ColorSchemeFunc
	Logger      Logger
}

// Store owns the DashboardConfig document. All consumers mutate it
// through the methods below, which is what lets the save pipeline
// observe every change uniformly. Mutators are total: invalid input is
// clamped or ignored, never rejected with an error.
type Store struct {
	mu          sync.Mutex
	config      DashboardConfig
	editMode    bool
	device      DeviceStore
	prefersDark ColorSchemeFunc
	logger      Logger
	subs        map[int]*subscription
	nextSubID   int
}

func NewStore(opts StoreOptions) *Store {
	s := &Store{
		config:      DefaultConfig(),
		device:      opts.DeviceStore,
		prefersDark: opts.PrefersDark,
		logger:      opts.Logger,
		subs:        map[int]*subscription{},
	}
	if s.prefersDark == nil {
		s.prefersDark = func() bool { return false }
	}
	s.rehydrate()
	return s
}

// rehydrate restores the document and edit flag from the device store.
// A missing or unreadable snapshot leaves the defaults in place.
func (s *Store) rehydrate() {
	if s.device == nil {
		return
	}
	snapshot, err := s.device.Load()
	if err != nil {
		s.logf("device store load failed: %v", err)
		return
	}
	if snapshot == nil {
		return
	}
	cfg := snapshot.Config
	cfg.normalize()
	s.config = cfg
	s.editMode = snapshot.EditMode
}

// Config returns a deep copy of the current document.
func (s *Store) Config() DashboardConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Clone()
}

func (s *Store) EditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editMode
}

// Subscribe registers a listener behind a projection. The returned
// function removes the subscription.
func (s *Store) Subscribe(project Projection, listen Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = &subscription{
		id:      id,
		project: project,
		listen:  listen,
		last:    project(s.snapshotLocked()),
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// PersistedProjection selects the subset mirrored to the relay: the
// document without the ephemeral edit flag.
func PersistedProjection(snap Snapshot) any {
	return snap.Config
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Config: s.config.Clone(), EditMode: s.editMode}
}

// mutate runs fn under the lock, persists the result to the device
// store, and notifies subscribers whose projection changed. Listener
// callbacks run outside the lock.
func (s *Store) mutate(fn func(*DashboardConfig)) {
	s.mu.Lock()
	fn(&s.config)
	s.config.normalize()
	s.persistLocked()
	pending := s.changedSubscriptionsLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	for _, sub := range pending {
		sub.listen(snap)
	}
}

func (s *Store) persistLocked() {
	if s.device == nil {
		return
	}
	err := s.device.Save(&DeviceSnapshot{
		Config:   s.config,
		EditMode: s.editMode,
	})
	if err != nil {
		s.logf("device store save failed: %v", err)
	}
}

func (s *Store) changedSubscriptionsLocked() []*subscription {
	snap := s.snapshotLocked()
	var changed []*subscription
	for _, sub := range s.subs {
		next := sub.project(snap)
		if reflect.DeepEqual(sub.last, next) {
			continue
		}
		sub.last = next
		changed = append(changed, sub)
	}
	return changed
}

// AddScreen appends a screen and returns its generated id.
func (s *Store) AddScreen(name string) string {
	id := uuid.NewString()
	s.mutate(func(c *DashboardConfig) {
		c.Screens = append(c.Screens, Screen{ID: id, Name: name, Panels: []PanelConfig{}})
	})
	return id
}

// RemoveScreen deletes the screen at index. Removing the last
// remaining screen is a no-op.
func (s *Store) RemoveScreen(index int) {
	s.mutate(func(c *DashboardConfig) {
		if len(c.Screens) <= 1 || index < 0 || index >= len(c.Screens) {
			return
		}
		c.Screens = append(c.Screens[:index], c.Screens[index+1:]...)
	})
}

func (s *Store) RenameScreen(index int, name string) {
	s.mutate(func(c *DashboardConfig) {
		if index < 0 || index >= len(c.Screens) {
			return
		}
		c.Screens[index].Name = name
	})
}

// SetActiveScreen clamps index into the valid range rather than
// rejecting it.
func (s *Store) SetActiveScreen(index int) {
	s.mutate(func(c *DashboardConfig) {
		c.ActiveScreenIndex = clampScreenIndex(index, len(c.Screens))
	})
}

// AddPanel places a widget on the screen at screenIndex (clamped) and
// returns the freshly generated panel id.
func (s *Store) AddPanel(screenIndex int, panel PanelConfig) string {
	panel.ID = uuid.NewString()
	s.mutate(func(c *DashboardConfig) {
		screenIndex = clampScreenIndex(screenIndex, len(c.Screens))
		c.Screens[screenIndex].Panels = append(c.Screens[screenIndex].Panels, panel)
	})
	return panel.ID
}

// PanelUpdate carries the mutable non-geometry fields of a panel. Nil
// pointers leave the current value untouched.
type PanelUpdate struct {
	Widget  *string
	Refresh *string
	Args    map[string]any
}

func (s *Store) UpdatePanel(panelID string, update PanelUpdate) {
	s.withPanel(panelID, func(p *PanelConfig) {
		if update.Widget != nil {
			p.Widget = *update.Widget
		}
		if update.Refresh != nil {
			p.Refresh = *update.Refresh
		}
		if update.Args != nil {
			p.Args = update.Args
		}
	})
}

func (s *Store) MovePanel(panelID string, x, y int) {
	s.withPanel(panelID, func(p *PanelConfig) {
		p.X = x
		p.Y = y
	})
}

func (s *Store) ResizePanel(panelID string, width, height int) {
	s.withPanel(panelID, func(p *PanelConfig) {
		p.Width = width
		p.Height = height
	})
}

func (s *Store) RemovePanel(panelID string) {
	s.mutate(func(c *DashboardConfig) {
		for i := range c.Screens {
			panels := c.Screens[i].Panels
			for j := range panels {
				if panels[j].ID == panelID {
					c.Screens[i].Panels = append(panels[:j], panels[j+1:]...)
					return
				}
			}
		}
	})
}

// withPanel applies fn to the panel with the given id. Unknown ids are
// ignored.
func (s *Store) withPanel(panelID string, fn func(*PanelConfig)) {
	s.mutate(func(c *DashboardConfig) {
		for i := range c.Screens {
			for j := range c.Screens[i].Panels {
				if c.Screens[i].Panels[j].ID == panelID {
					fn(&c.Screens[i].Panels[j])
					return
				}
			}
		}
	})
}

func (s *Store) SetDriveTime(settings map[string]any) {
	s.mutate(func(c *DashboardConfig) { c.DriveTime = settings })
}

func (s *Store) SetCalendar(settings map[string]any) {
	s.mutate(func(c *DashboardConfig) { c.Calendar = settings })
}

func (s *Store) SetBrightness(settings BrightnessSettings) {
	s.mutate(func(c *DashboardConfig) { c.Brightness = &settings })
}

// SetLocation stores a widget-owned location/device record under the
// widget's id.
func (s *Store) SetLocation(widgetID string, value any) {
	s.mutate(func(c *DashboardConfig) {
		if c.Locations == nil {
			c.Locations = map[string]any{}
		}
		c.Locations[widgetID] = value
	})
}

// SetWidgetData stores widget-private persisted state under the
// widget's id.
func (s *Store) SetWidgetData(widgetID string, value any) {
	s.mutate(func(c *DashboardConfig) {
		if c.WidgetData == nil {
			c.WidgetData = map[string]any{}
		}
		c.WidgetData[widgetID] = value
	})
}

// GlobalSettingsPatch updates a subset of GlobalSettings. Nil fields
// keep the current value.
type GlobalSettingsPatch struct {
	Theme               *string
	RelayURL            *string
	DefaultLocation     *string
	MaxRecordingSeconds *int
}

// UpdateGlobalSettings applies the patch and re-derives the legacy
// Dark flag from the theme setting. This is the only place Dark is
// recomputed; documents loaded from disk or the relay keep whatever
// the writer saved.
func (s *Store) UpdateGlobalSettings(patch GlobalSettingsPatch) {
	prefersDark := s.prefersDark()
	s.mutate(func(c *DashboardConfig) {
		if patch.Theme != nil {
			c.GlobalSettings.Theme = *patch.Theme
		}
		if patch.RelayURL != nil {
			c.GlobalSettings.RelayURL = *patch.RelayURL
		}
		if patch.DefaultLocation != nil {
			c.GlobalSettings.DefaultLocation = *patch.DefaultLocation
		}
		if patch.MaxRecordingSeconds != nil {
			c.GlobalSettings.MaxRecordingSeconds = *patch.MaxRecordingSeconds
		}
		c.Dark = deriveDark(c.GlobalSettings.Theme, prefersDark)
	})
}

func (s *Store) SetEditMode(enabled bool) {
	s.mu.Lock()
	s.editMode = enabled
	s.persistLocked()
	pending := s.changedSubscriptionsLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	for _, sub := range pending {
		sub.listen(snap)
	}
}

// ExportConfig serializes the current document for download/backup.
func (s *Store) ExportConfig() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s.config, "", "  ")
	if err != nil {
		s.logf("export failed: %v", err)
		return nil
	}
	return data
}

// ImportConfig replaces the document with a user-supplied export.
// Payloads without a screens array are rejected and local state is
// left untouched.
func (s *Store) ImportConfig(data []byte) bool {
	cfg, ok := parseConfigDocument(data)
	if !ok {
		return false
	}
	s.mutate(func(c *DashboardConfig) { *c = cfg })
	return true
}

// ApplyRemote replaces the document wholesale with a copy fetched from
// the relay.
func (s *Store) ApplyRemote(cfg DashboardConfig) {
	s.mutate(func(c *DashboardConfig) { *c = cfg.Clone() })
}

func (s *Store) ResetConfig() {
	s.mutate(func(c *DashboardConfig) { *c = DefaultConfig() })
}

// FreshInstall reports whether the current document carries no panels.
func (s *Store) FreshInstall() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.FreshInstall()
}

func (s *Store) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
