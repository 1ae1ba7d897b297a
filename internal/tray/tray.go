// Package tray provides a system tray menu for starting and stopping the webcam.
package tray

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/shoplens/internal/session"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func()
	onOpen   func()
	onQuit   func()
	active   bool
	seen     string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuSeen   *systray.MenuItem
}

// New creates a new Tray showing an inactive webcam.
func New() *Tray {
	return &Tray{seen: seenTitle(nil)}
}

// OnToggle sets the callback for the Start/Stop Webcam item.
func (t *Tray) OnToggle(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback for the Open in Browser item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("ShopLens")
	systray.SetTooltip("ShopLens webcam object search")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.active), "Start or stop the webcam")
	systray.AddSeparator()
	t.menuSeen = systray.AddMenuItem(t.seen, "Objects in the latest detection")
	t.menuSeen.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in Browser", "Show the live overlay")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit ShopLens")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.call(func() func() { return t.onToggle })
			case <-menuOpen.ClickedCh:
				t.call(func() func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// call runs the selected callback outside the lock; callbacks may end up in Update.
func (t *Tray) call(pick func() func()) {
	t.mu.RLock()
	callback := pick()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// Update reflects a session snapshot in the menu. It has the session.Listener signature.
func (t *Tray) Update(s session.Snapshot) {
	classes := make([]string, 0, len(s.Detections))
	for _, d := range s.Detections {
		classes = append(classes, d.Class)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.active = s.Active()
	t.seen = seenTitle(classes)

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(t.active))
	}
	if t.menuSeen != nil {
		t.menuSeen.SetTitle(t.seen)
	}
}

// IsActive returns the webcam state last passed to Update.
func (t *Tray) IsActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// Seen returns the current detection summary line.
func (t *Tray) Seen() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seen
}

func toggleTitle(active bool) string {
	if active {
		return "Stop Webcam"
	}
	return "Start Webcam"
}

// seenTitle summarizes classes as "Seen: cup, tv (x2)".
func seenTitle(classes []string) string {
	if len(classes) == 0 {
		return "Seen: nothing"
	}

	counts := make(map[string]int)
	for _, c := range classes {
		counts[c]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if n := counts[name]; n > 1 {
			parts = append(parts, fmt.Sprintf("%s (x%d)", name, n))
		} else {
			parts = append(parts, name)
		}
	}
	return "Seen: " + strings.Join(parts, ", ")
}
