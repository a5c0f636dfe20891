package pulsecalc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/pulsecalc/dashboard"
	"github.com/jpalmerr/pulsecalc/internal/record"
	"github.com/jpalmerr/pulsecalc/internal/server"
	"github.com/jpalmerr/pulsecalc/internal/store"
)

const defaultPort = 8080

// ChannelUpdate is one notification of a channel shown on a [Board].
type ChannelUpdate struct {
	// Channel is the calculation name.
	Channel string

	// Connected is the aggregate connection state of the calculation's
	// inputs.
	Connected bool

	// Value is the last computed value, or nil if none was computed yet.
	Value any

	// At is when the board received the notification.
	At time.Time
}

// Board serves a live dashboard of calc channels.
//
// Board is created using [New] with functional options and started with
// [Board.Start]. The typical lifecycle is:
//
//	board, err := pulsecalc.New(
//	    pulsecalc.WithChannel("calc://sum?a=loc://a&b=loc://b&expr=a+b"),
//	)
//	if err != nil {
//	    slog.Error("failed to create board", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	board.Start(ctx) // blocks until context cancelled
type Board struct {
	cfg       *config
	channels  []Address
	logger    *slog.Logger
	callbacks []func(ChannelUpdate)
}

// New creates a [Board] with the given options.
//
// At least one channel must be configured via [WithChannel] or
// [WithChannels]. Every address is parsed up front; a malformed address
// returns a [*ConfigurationError] and two addresses naming the same
// calculation are rejected.
func New(opts ...Option) (*Board, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	if len(cfg.channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}

	channels := make([]Address, 0, len(cfg.channels))
	seen := make(map[string]bool, len(cfg.channels))
	for _, raw := range cfg.channels {
		addr, err := ParseAddress(raw)
		if err != nil {
			return nil, err
		}
		if seen[addr.Name] {
			return nil, fmt.Errorf("duplicate channel name: %q", addr.Name)
		}
		seen[addr.Name] = true
		channels = append(channels, addr)
	}

	return &Board{
		cfg:       cfg,
		channels:  channels,
		logger:    cfg.logger,
		callbacks: cfg.callbacks,
	}, nil
}

// Start connects every channel and serves the dashboard.
//
// Start is a blocking call that runs until the provided context is
// cancelled. The dashboard is available at http://localhost:<port>, local
// variables can be written through POST /api/local/{name}, and every update
// is written to the recorder when one is configured.
//
// Returns nil on graceful shutdown. Returns an error if a channel cannot be
// connected or the HTTP server fails to start.
func (b *Board) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	b.logger.Info("pulsecalc starting", "channel_count", len(b.channels))

	registry := newRegistry(b.cfg)
	defer registry.Close()

	var recorder *record.Writer
	if b.cfg.recorder != nil {
		recorder = record.NewWriter(b.cfg.recorder)
	}

	channelStore := store.NewMemoryStore()

	attachments := make([]*Attachment, 0, len(b.channels))
	detach := func() {
		for _, att := range attachments {
			att.Close()
		}
	}

	for _, addr := range b.channels {
		channelStore.Update(store.ChannelValue{
			Name:       addr.Name,
			Address:    addr.Raw(),
			Expression: addr.Expression,
			UpdatedAt:  time.Now(),
		})

		att, err := registry.Connect(addr.Raw(), b.listener(addr, channelStore, recorder))
		if err != nil {
			detach()
			return fmt.Errorf("connect %s: %w", addr.Name, err)
		}
		attachments = append(attachments, att)
	}
	defer detach()

	httpServer := server.NewServer(channelStore, b.cfg.port, dashboard.Assets, b.cfg.title, registry, b.logger)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	b.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", b.cfg.port))

	<-ctx.Done()
	b.logger.Info("pulsecalc stopped")
	return nil
}

// listener mirrors the notifications of one channel into the store, the
// recorder and the update callbacks. It runs on the registry's dispatcher,
// so its captured state needs no locking.
func (b *Board) listener(addr Address, st store.Store, recorder *record.Writer) Listener {
	var (
		connected bool
		value     any
	)

	publish := func() {
		now := time.Now()
		st.Update(store.ChannelValue{
			Name:       addr.Name,
			Address:    addr.Raw(),
			Expression: addr.Expression,
			Connected:  connected,
			Value:      value,
			UpdatedAt:  now,
		})

		if recorder != nil {
			rec := record.Record{At: now, Channel: addr.Name, Connected: connected, Value: value}
			if err := recorder.Write(rec); err != nil {
				b.logger.Warn("failed to record update", "calc", addr.Name, "error", err)
			}
		}

		update := ChannelUpdate{Channel: addr.Name, Connected: connected, Value: value, At: now}
		for _, cb := range b.callbacks {
			invokeCallbackSafe(cb, update, b.logger)
		}
	}

	return Listener{
		OnConnection: func(c bool) {
			connected = c
			publish()
		},
		OnValue: func(v any) {
			value = v
			b.logger.Debug("calc value", "calc", addr.Name, "value", v)
			publish()
		},
	}
}

// Channels returns a copy of the configured channel addresses.
func (b *Board) Channels() []Address {
	cp := make([]Address, len(b.channels))
	copy(cp, b.channels)
	return cp
}

// Port returns the configured HTTP port for the dashboard server.
func (b *Board) Port() int {
	return b.cfg.port
}

// Title returns the configured dashboard title.
func (b *Board) Title() string {
	return b.cfg.title
}

// invokeCallbackSafe calls an update callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(ChannelUpdate), update ChannelUpdate, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("update callback panicked",
				"panic", r,
				"calc", update.Channel,
			)
		}
	}()
	cb(update)
}
