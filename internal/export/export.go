// Package export renders spectrum frames as text and places them on the
// system clipboard.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/petems/spectrum-tray/internal/poller"
	"github.com/petems/spectrum-tray/internal/spectrum"
)

// ErrClipboardUnsupported is returned when no clipboard utility is available
// (on Linux, xclip, xsel or wl-clipboard).
var ErrClipboardUnsupported = errors.New("clipboard not supported on this system")

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Copier puts text on a clipboard.
type Copier interface {
	Copy(ctx context.Context, text string) error
}

type systemClipboard struct{}

func (systemClipboard) Copy(ctx context.Context, text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

// Exporter copies frames in one format.
type Exporter struct {
	copier Copier
	format Format
}

// New returns an Exporter using the system clipboard.
func New(format Format) *Exporter {
	return NewWithCopier(systemClipboard{}, format)
}

func NewWithCopier(c Copier, format Format) *Exporter {
	if format == "" {
		format = FormatText
	}
	return &Exporter{copier: c, format: format}
}

// CopyFrame renders f and copies it.
func (e *Exporter) CopyFrame(ctx context.Context, f poller.Frame) error {
	text, err := Render(f, e.format)
	if err != nil {
		return err
	}
	return e.copier.Copy(ctx, text)
}

// Render formats f as text or JSON.
func Render(f poller.Frame, format Format) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatText, "":
		return renderText(f), nil
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}
}

func renderText(f poller.Frame) string {
	var b strings.Builder

	header := "Spectrum"
	if f.SessionID != "" {
		header += " (session " + f.SessionID + ")"
	}
	if !f.Timestamp.IsZero() {
		header += " at " + f.Timestamp.Format(time.RFC3339)
	}
	b.WriteString(header)
	b.WriteByte('\n')

	labels := spectrum.Labels(len(f.Bins))
	for i, v := range f.Bins {
		fmt.Fprintf(&b, "%-22s %.3f %s\n", labels[i], v, bar(v, 20))
	}

	feats := f.Features
	b.WriteString("\nFeatures\n")
	for _, kv := range []struct {
		name  string
		value float64
	}{
		{"kick_drum", feats.KickDrum},
		{"snare_drum", feats.SnareDrum},
		{"hi_hat", feats.HiHat},
		{"bass_line", feats.BassLine},
		{"vocal_range", feats.VocalRange},
		{"overall_energy", feats.OverallEnergy},
		{"overall_average", feats.OverallAverage},
		{"sub_bass", feats.SubBass},
		{"bass", feats.Bass},
		{"mids", feats.Mids},
		{"highs", feats.Highs},
	} {
		fmt.Fprintf(&b, "%-22s %.3f\n", kv.name, kv.value)
	}
	return b.String()
}

// bar draws v in [0,1] as up to width block characters.
func bar(v float64, width int) string {
	n := int(v*float64(width) + 0.5)
	n = max(0, min(n, width))
	return strings.Repeat("█", n)
}
