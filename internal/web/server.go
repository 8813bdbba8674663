// Package web serves the live spectrum over HTTP and websockets.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/petems/spectrum-tray/internal/app"
	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/poller"
	"github.com/petems/spectrum-tray/internal/spectrum"
	"github.com/rs/zerolog"
)

// Controller is the part of the capture app the server exposes.
type Controller interface {
	Status() app.Status
	Start(ctx context.Context) error
	Stop() error
	SnapshotAt() (spectrum.Vector, time.Time)
	Bin(i int) (float64, error)
	Bins() int
	ListDevices() ([]audio.Device, error)
}

// SpectrumResponse is the body of GET /api/spectrum.
type SpectrumResponse struct {
	Bins      []float64         `json:"bins"`
	Labels    []string          `json:"labels"`
	Features  spectrum.Features `json:"features"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

// BinResponse is the body of GET /api/spectrum/:bin.
type BinResponse struct {
	Bin   int     `json:"bin"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type Server struct {
	app  *fiber.App
	addr string
	ctrl Controller
	hub  *Hub
	log  zerolog.Logger

	// clientDone, when set, is called after a websocket handler returns.
	clientDone func(*Client)
}

func NewServer(addr string, ctrl Controller, log zerolog.Logger) *Server {
	log = log.With().Str("component", "web").Logger()
	s := &Server{
		addr: addr,
		ctrl: ctrl,
		hub:  NewHub(log),
		log:  log,
	}

	fapp := fiber.New(fiber.Config{
		AppName:               "spectrum-tray",
		DisableStartupMessage: true,
	})
	fapp.Use(recover.New())
	fapp.Use(cors.New())

	api := fapp.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/spectrum", s.handleSpectrum)
	api.Get("/spectrum/:bin", s.handleBin)
	api.Get("/devices", s.handleDevices)
	api.Post("/capture/start", s.handleStart)
	api.Post("/capture/stop", s.handleStop)

	fapp.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	fapp.Get("/ws/spectrum", websocket.New(s.handleSpectrumWS))

	s.app = fapp
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Run starts the hub and serves on the configured address until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("Web server shutdown failed")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("Web dashboard listening")
	return s.app.Listener(ln)
}

// Name and Publish make the server a poller.Sink.
func (s *Server) Name() string { return "websocket" }

func (s *Server) Publish(_ context.Context, f poller.Frame) error {
	if s.hub.ClientCount() == 0 {
		return nil
	}
	return s.hub.BroadcastJSON(f)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleSpectrum(c *fiber.Ctx) error {
	v, updated := s.ctrl.SnapshotAt()
	resp := SpectrumResponse{
		Bins:     v,
		Labels:   spectrum.Labels(len(v)),
		Features: spectrum.Extract(v),
	}
	if !updated.IsZero() {
		resp.UpdatedAt = &updated
	}
	return c.JSON(resp)
}

func (s *Server) handleBin(c *fiber.Ctx) error {
	i, err := strconv.Atoi(c.Params("bin"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bin must be an integer",
		})
	}

	value, err := s.ctrl.Bin(i)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(BinResponse{
		Bin:   i,
		Label: spectrum.Labels(s.ctrl.Bins())[i],
		Value: value,
	})
}

func (s *Server) handleDevices(c *fiber.Ctx) error {
	devices, err := s.ctrl.ListDevices()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if devices == nil {
		devices = []audio.Device{}
	}
	return c.JSON(devices)
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	err := s.ctrl.Start(c.UserContext())
	switch {
	case err == nil:
		return c.JSON(s.ctrl.Status())
	case errors.Is(err, app.ErrAlreadyRunning):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, audio.ErrNoDeviceFound):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.ctrl.Stop(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.ctrl.Status())
}

// handleSpectrumWS sends the current vector and then streams frames.
func (s *Server) handleSpectrumWS(conn *websocket.Conn) {
	v, updated := s.ctrl.SnapshotAt()
	frame := poller.Frame{
		Timestamp: updated,
		Bins:      v,
		Features:  spectrum.Extract(v),
	}
	if st := s.ctrl.Status(); st.Session != nil {
		frame.SessionID = st.Session.ID
	}
	first, err := json.Marshal(frame)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to encode initial frame")
		first = nil
	}
	c := newClient(s.hub, conn)
	c.run(first)
	if s.clientDone != nil {
		s.clientDone(c)
	}
}
