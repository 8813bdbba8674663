package tray

import (
	"context"
	"reflect"
	"testing"

	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/poller"
	"github.com/rs/zerolog"
)

func TestEmojiForStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{status: statusIdle, want: "🟢"},
		{status: statusCapturing, want: "🔴"},
		{status: statusError, want: "⚪️"},
		{status: "unknown", want: "🟢"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := emojiForStatus(tt.status); got != tt.want {
				t.Errorf("emojiForStatus(%q) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestFormatBars(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want string
	}{
		{name: "empty", in: nil, want: ""},
		{name: "range", in: []float64{0, 0.5, 1}, want: "▁▅█"},
		{name: "clamped", in: []float64{-0.2, 1.7}, want: "▁█"},
		{name: "steps", in: []float64{0, 1.0 / 7, 2.0 / 7, 3.0 / 7, 4.0 / 7, 5.0 / 7, 6.0 / 7, 1}, want: "▁▂▃▄▅▆▇█"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatBars(tt.in); got != tt.want {
				t.Errorf("formatBars(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTitleFor(t *testing.T) {
	if got := titleFor(statusIdle, ""); got != "🎵 🟢" {
		t.Errorf("idle title = %q", got)
	}
	if got := titleFor(statusCapturing, "▁█"); got != "🎵 🔴 ▁█" {
		t.Errorf("capturing title = %q", got)
	}
}

// The UI is exercised without starting the systray loop; no menu exists so
// only the cached state changes.
func TestPublishTracksFrameWhileCapturing(t *testing.T) {
	u := New(Config{Logger: zerolog.Nop()})

	if _, ok := u.LastFrame(); ok {
		t.Fatal("no frame expected before the first publish")
	}

	frame := poller.Frame{SessionID: "s1", Bins: []float64{0, 1}}
	if err := u.Publish(context.Background(), frame); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if u.bars != "" {
		t.Errorf("bars = %q while idle, want none", u.bars)
	}

	u.SetCapturing("pulse")
	if err := u.Publish(context.Background(), frame); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if u.bars != "▁█" {
		t.Errorf("bars = %q, want ▁█", u.bars)
	}
	got, ok := u.LastFrame()
	if !ok || got.SessionID != "s1" {
		t.Errorf("LastFrame = %+v, %v", got, ok)
	}

	u.SetIdle()
	if u.bars != "" {
		t.Errorf("bars should clear when capture stops, got %q", u.bars)
	}
	if u.Name() != "tray" {
		t.Errorf("Name = %q", u.Name())
	}
}

func TestDeviceNames(t *testing.T) {
	names := deviceNames([]audio.Device{{Name: "pulse"}, {Name: "Built-in Microphone"}})
	if len(names) != 2 || names[0] != "pulse" || names[1] != "Built-in Microphone" {
		t.Errorf("deviceNames = %v", names)
	}
	if displayDevice("") != "Automatic" {
		t.Errorf("empty device should display as Automatic")
	}
}

func TestPlanDeviceMenu(t *testing.T) {
	tests := []struct {
		name     string
		known    map[string]bool
		names    []string
		wantAdd  []string
		wantShow []string
		wantHide []string
	}{
		{
			name:    "first build adds automatic then devices",
			known:   map[string]bool{},
			names:   []string{"pulse", "Built-in Microphone"},
			wantAdd: []string{"", "pulse", "Built-in Microphone"},
		},
		{
			name:    "device plugged in later is added",
			known:   map[string]bool{"": true, "pulse": true},
			names:   []string{"pulse", "USB Audio CODEC"},
			wantAdd: []string{"USB Audio CODEC"},
		},
		{
			name:     "vanished device is hidden",
			known:    map[string]bool{"": true, "pulse": true, "USB Audio CODEC": true},
			names:    []string{"pulse"},
			wantHide: []string{"USB Audio CODEC"},
		},
		{
			name:     "returning device is shown again",
			known:    map[string]bool{"": true, "pulse": true, "USB Audio CODEC": false},
			names:    []string{"pulse", "USB Audio CODEC"},
			wantShow: []string{"USB Audio CODEC"},
		},
		{
			name:     "enumeration failure keeps automatic only",
			known:    map[string]bool{"": true, "pulse": true},
			names:    nil,
			wantHide: []string{"pulse"},
		},
		{
			name:  "unchanged",
			known: map[string]bool{"": true, "pulse": true},
			names: []string{"pulse", "pulse"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			add, show, hide := planDeviceMenu(tt.known, tt.names)
			if !reflect.DeepEqual(add, tt.wantAdd) {
				t.Errorf("add = %q, want %q", add, tt.wantAdd)
			}
			if !reflect.DeepEqual(show, tt.wantShow) {
				t.Errorf("show = %q, want %q", show, tt.wantShow)
			}
			if !reflect.DeepEqual(hide, tt.wantHide) {
				t.Errorf("hide = %q, want %q", hide, tt.wantHide)
			}
		})
	}
}
