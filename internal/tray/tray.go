package tray

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/getlantern/systray"
	"github.com/petems/spectrum-tray/internal/app"
	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/export"
	"github.com/petems/spectrum-tray/internal/logging"
	"github.com/petems/spectrum-tray/internal/poller"
	"github.com/petems/spectrum-tray/internal/spectrum"
	"github.com/rs/zerolog"
)

const (
	statusIdle      = "idle"
	statusCapturing = "capturing"
	statusError     = "error"
)

// Config wires the tray to the rest of the app.
type Config struct {
	App      *app.App
	Exporter *export.Exporter
	Version  string
	Commit   string
	Logger   zerolog.Logger
	OnQuit   func() // Optional - called when Quit is clicked
}

type UI struct {
	app      *app.App
	exporter *export.Exporter
	version  string
	commit   string
	log      zerolog.Logger
	onQuit   func()

	mu        sync.Mutex
	ready     bool
	status    string
	device    string
	bars      string
	lastFrame poller.Frame
	hasFrame  bool

	// Menu items
	mStartStop *systray.MenuItem
	mDevices   *systray.MenuItem
	deviceMu   sync.Mutex
	devItems   map[string]*deviceItem
}

type deviceItem struct {
	item    *systray.MenuItem
	visible bool
}

func New(cfg Config) *UI {
	return &UI{
		app:      cfg.App,
		exporter: cfg.Exporter,
		version:  cfg.Version,
		commit:   cfg.Commit,
		log:      cfg.Logger.With().Str("component", "tray").Logger(),
		onQuit:   cfg.OnQuit,
		status:   statusIdle,
	}
}

// Status update methods for the app to call

func (u *UI) SetIdle() {
	u.setStatus(statusIdle, "")
}

func (u *UI) SetCapturing(device string) {
	u.setStatus(statusCapturing, device)
}

func (u *UI) SetError() {
	u.setStatus(statusError, "")
}

func (u *UI) setStatus(status, device string) {
	u.mu.Lock()
	u.status = status
	u.device = device
	if status != statusCapturing {
		u.bars = ""
	}
	ready := u.ready
	title := titleFor(u.status, u.bars)
	u.mu.Unlock()

	if !ready {
		return
	}
	systray.SetTitle(title)
	if status == statusCapturing {
		u.mStartStop.SetTitle("Stop Capture")
		systray.SetTooltip("Capturing from " + device)
	} else {
		u.mStartStop.SetTitle("Start Capture")
		systray.SetTooltip("Audio spectrum")
	}
}

// Name and Publish make the tray a poller.Sink: the title shows the live
// vector as bar glyphs.
func (u *UI) Name() string { return "tray" }

func (u *UI) Publish(_ context.Context, f poller.Frame) error {
	bars := formatBars(f.Bins)

	u.mu.Lock()
	u.lastFrame = f
	u.hasFrame = true
	changed := bars != u.bars && u.status == statusCapturing
	if changed {
		u.bars = bars
	}
	ready := u.ready
	title := titleFor(u.status, u.bars)
	u.mu.Unlock()

	if changed && ready {
		systray.SetTitle(title)
	}
	return nil
}

// LastFrame returns the most recent frame received from the poller.
func (u *UI) LastFrame() (poller.Frame, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastFrame, u.hasFrame
}

// Run blocks on the systray event loop until Quit or ctx is done.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.mStartStop = systray.AddMenuItem("Start Capture", "Start or stop the spectrum capture")
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Audio Device", "Select input device")
	u.refreshDeviceMenu()
	mList := systray.AddMenuItem("List Devices", "Refresh the device menu and write input devices to the log")

	systray.AddSeparator()
	mCopy := systray.AddMenuItem("Copy Spectrum", "Copy the current spectrum to the clipboard")

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About spectrum-tray")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.mu.Lock()
	u.ready = true
	status, device := u.status, u.device
	u.mu.Unlock()
	u.setStatus(status, device)

	// Event loop
	go u.handleEvents(mList, mCopy, mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mList, mCopy, mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.toggleCapture()
		case <-mList.ClickedCh:
			u.listDevices()
		case <-mCopy.ClickedCh:
			u.copySpectrum()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			if u.onQuit != nil {
				u.onQuit()
			}
			systray.Quit()
			return
		}
	}
}

func (u *UI) toggleCapture() {
	if err := u.app.Toggle(context.Background()); err != nil {
		u.log.Error().Err(err).Msg("Failed to toggle capture")
	}
}

const autoDevice = "Automatic"

// refreshDeviceMenu brings the device submenu in line with the enumerated
// devices. systray cannot remove items, so vanished devices are hidden and
// shown again if they come back.
func (u *UI) refreshDeviceMenu() {
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		devices = nil
	}

	current := u.app.Device()

	u.deviceMu.Lock()
	defer u.deviceMu.Unlock()
	if u.devItems == nil {
		u.devItems = make(map[string]*deviceItem)
	}

	known := make(map[string]bool, len(u.devItems))
	for name, d := range u.devItems {
		known[name] = d.visible
	}
	add, show, hide := planDeviceMenu(known, deviceNames(devices))

	for _, name := range add {
		item := u.mDevices.AddSubMenuItem(displayDevice(name), "")
		u.devItems[name] = &deviceItem{item: item, visible: true}

		go func(deviceName string, menuItem *systray.MenuItem) {
			for range menuItem.ClickedCh {
				u.selectDevice(deviceName)
			}
		}(name, item)
	}
	for _, name := range show {
		u.devItems[name].item.Show()
		u.devItems[name].visible = true
	}
	for _, name := range hide {
		u.devItems[name].item.Hide()
		u.devItems[name].visible = false
	}

	u.checkDeviceLocked(current)
}

// planDeviceMenu compares the menu entries (name to visibility) with the
// enumerated device names. The automatic entry "" is always wanted.
func planDeviceMenu(known map[string]bool, names []string) (add, show, hide []string) {
	want := make(map[string]bool, len(names)+1)
	for _, name := range append([]string{""}, names...) {
		if want[name] {
			continue
		}
		want[name] = true
		visible, ok := known[name]
		switch {
		case !ok:
			add = append(add, name)
		case !visible:
			show = append(show, name)
		}
	}

	for name, visible := range known {
		if visible && !want[name] {
			hide = append(hide, name)
		}
	}
	sort.Strings(hide)
	return add, show, hide
}

func (u *UI) checkDeviceLocked(current string) {
	for name, d := range u.devItems {
		if name == current {
			d.item.Check()
		} else {
			d.item.Uncheck()
		}
	}
}

func (u *UI) selectDevice(name string) {
	if err := u.app.SetDevice(name); err != nil {
		if errors.Is(err, app.ErrDeviceLocked) {
			u.log.Warn().Msg("Stop the capture before changing device")
		} else {
			u.log.Error().Err(err).Msg("Failed to change audio device")
		}
		return
	}

	u.deviceMu.Lock()
	u.checkDeviceLocked(name)
	u.deviceMu.Unlock()
	u.log.Info().Str("device", displayDevice(name)).Msg("Changed audio device")
}

func (u *UI) listDevices() {
	u.refreshDeviceMenu()

	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}
	for _, d := range devices {
		u.log.Info().
			Int("index", d.Index).
			Str("name", d.Name).
			Int("channels", d.InputChannels).
			Bool("default", d.Default).
			Msg("Input device")
	}
}

func (u *UI) copySpectrum() {
	f, ok := u.LastFrame()
	if !ok {
		v, at := u.app.SnapshotAt()
		f = poller.Frame{Timestamp: at, Bins: v, Features: spectrum.Extract(v)}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := u.exporter.CopyFrame(ctx, f); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy spectrum")
		return
	}
	u.log.Info().Msg("Copied spectrum to clipboard")
}

func (u *UI) openLogs() {
	path := logging.Path()
	if err := openCommand(path).Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open logs")
	}
}

func (u *UI) showAbout() {
	u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("spectrum-tray: live audio spectrum")
}

func (u *UI) onExit() {
	u.mu.Lock()
	u.ready = false
	u.mu.Unlock()
}

// openCommand returns the platform command that opens path in its default app.
func openCommand(path string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path)
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path)
	default:
		return exec.Command("xdg-open", path)
	}
}

func deviceNames(devices []audio.Device) []string {
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names
}

func displayDevice(name string) string {
	if name == "" {
		return autoDevice
	}
	return name
}

// titleFor builds the tray title from the status and bar glyphs.
func titleFor(status, bars string) string {
	title := "🎵 " + emojiForStatus(status)
	if bars != "" {
		title += " " + bars
	}
	return title
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case statusCapturing:
		return "🔴" // Red - capturing
	case statusIdle:
		return "🟢" // Green - ready/idle
	case statusError:
		return "⚪️" // White - error
	default:
		return "🟢"
	}
}

var barGlyphs = []rune("▁▂▃▄▅▆▇█")

// formatBars renders values in [0,1] as one bar glyph each.
func formatBars(v []float64) string {
	var b strings.Builder
	top := float64(len(barGlyphs) - 1)
	for _, x := range v {
		i := int(x*top + 0.5)
		i = max(0, min(i, len(barGlyphs)-1))
		b.WriteRune(barGlyphs[i])
	}
	return b.String()
}
