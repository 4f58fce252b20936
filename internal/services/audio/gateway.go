package audio

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/IbrahimO9/discord-music-bot/config"
	"github.com/IbrahimO9/discord-music-bot/internal/services/playback"
	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
)

const readyPollInterval = 100 * time.Millisecond

// Gateway joins Discord voice channels and hands out dca-backed players
type Gateway struct {
	session   *discordgo.Session
	audio     config.AudioConfig
	userAgent string
	client    *http.Client
	log       *logger.Logger

	mu      sync.Mutex
	closing map[string]chan struct{}
}

func NewGateway(s *discordgo.Session, audio config.AudioConfig, userAgent string, log *logger.Logger) *Gateway {
	return &Gateway{
		session:   s,
		audio:     audio,
		userAgent: userAgent,
		client:    &http.Client{},
		log:       log.WithComponent("voice"),
		closing:   make(map[string]chan struct{}),
	}
}

// Join connects to a voice channel and waits until it is ready to send audio.
func (g *Gateway) Join(ctx context.Context, guildID, channelID string) (playback.Connection, error) {
	// discordgo keeps one connection per guild, so a disconnect still in
	// progress would hand us the dying connection back.
	if err := g.waitClosed(ctx, guildID); err != nil {
		return nil, err
	}

	type joined struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	result := make(chan joined, 1)
	go func() {
		vc, err := g.session.ChannelVoiceJoin(guildID, channelID, false, true)
		result <- joined{vc, err}
	}()

	var vc *discordgo.VoiceConnection
	select {
	case <-ctx.Done():
		go func() {
			if j := <-result; j.err == nil {
				j.vc.Disconnect()
			}
		}()
		return nil, fmt.Errorf("voice connection timeout: %w", ctx.Err())
	case j := <-result:
		if j.err != nil {
			return nil, fmt.Errorf("failed to join voice channel: %w", j.err)
		}
		vc = j.vc
	}

	conn := newConnection(g, guildID, vc)
	if err := conn.WaitReady(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("voice connection failed to become ready: %w", err)
	}

	g.log.WithGuild(guildID).Info("voice connection ready", logger.Fields{"channel_id": channelID})
	go conn.watch()
	return conn, nil
}

func (g *Gateway) waitClosed(ctx context.Context, guildID string) error {
	g.mu.Lock()
	ch := g.closing[guildID]
	g.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) beginClose(guildID string) func() {
	ch := make(chan struct{})
	g.mu.Lock()
	g.closing[guildID] = ch
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		if g.closing[guildID] == ch {
			delete(g.closing, guildID)
		}
		g.mu.Unlock()
		close(ch)
	}
}

// Connection is one joined voice channel
type Connection struct {
	gw      *Gateway
	guildID string
	vc      *discordgo.VoiceConnection
	ready   func() bool

	disconnected chan struct{}
	stop         chan struct{}
	closeOnce    sync.Once
}

func newConnection(gw *Gateway, guildID string, vc *discordgo.VoiceConnection) *Connection {
	return &Connection{
		gw:           gw,
		guildID:      guildID,
		vc:           vc,
		ready:        func() bool { return voiceReady(vc) },
		disconnected: make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
}

func voiceReady(vc *discordgo.VoiceConnection) bool {
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

// NewPlayer binds a player to this connection
func (c *Connection) NewPlayer() (playback.Player, error) {
	if c.vc == nil {
		return nil, fmt.Errorf("not connected to a voice channel")
	}
	return newPlayer(
		httpOpener(c.gw.client, c.gw.userAgent),
		dcaStarter(c.vc, encodeOptions(c.gw.audio)),
		c.vc.Speaking,
		c.gw.log.WithGuild(c.guildID),
	), nil
}

func (c *Connection) Disconnected() <-chan struct{} {
	return c.disconnected
}

// watch reports each ready to not-ready edge until the connection is closed.
func (c *Connection) watch() {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	wasReady := true
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			ready := c.ready()
			if wasReady && !ready {
				select {
				case c.disconnected <- struct{}{}:
				default:
				}
			}
			wasReady = ready
		}
	}
}

// WaitReady polls until the connection is ready or ctx ends
func (c *Connection) WaitReady(ctx context.Context) error {
	if c.ready() {
		return nil
	}
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return fmt.Errorf("connection closed")
		case <-ticker.C:
			if c.ready() {
				return nil
			}
		}
	}
}

// Close leaves the voice channel. It is safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		if c.vc == nil {
			return
		}
		done := c.gw.beginClose(c.guildID)
		defer done()
		err = c.vc.Disconnect()
		c.gw.log.WithGuild(c.guildID).Info("left voice channel")
	})
	return err
}
