package errs

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
	"github.com/IbrahimO9/discord-music-bot/pkg/metrics"
)

func TestBotError_Unwrap(t *testing.T) {
	err := Transport("opening stream", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("BotError should unwrap to its cause")
	}
	wrapped := fmt.Errorf("play: %w", err)
	if KindOf(wrapped) != KindTransport {
		t.Errorf("KindOf() = %s, want %s", KindOf(wrapped), KindTransport)
	}
	if KindOf(io.EOF) != KindInternal {
		t.Error("plain errors should classify as internal")
	}
}

func TestHandler_Handle(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation echoes", Validation("❌ You need to join a voice channel first!"), "❌ You need to join a voice channel first!"},
		{"state fallback", State("", nil), "❌ Nothing is playing right now."},
		{"connection fallback", Connection("join", io.EOF), "❌ I couldn't connect to your voice channel. Check that I can join and speak there."},
		{"presentation swallowed", Presentation("delete message", io.EOF), ""},
		{"plain error", io.EOF, "❌ Something went wrong. Please try again."},
	}

	m := metrics.NewMetrics()
	h := NewHandler(logger.Nop(), m)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Handle(tt.err, nil); got != tt.want {
				t.Errorf("Handle() = %q, want %q", got, tt.want)
			}
		})
	}

	if m.GetCounter("error_PRESENTATION") != 1 {
		t.Error("presentation errors should still be counted")
	}
}

func TestRecover(t *testing.T) {
	var got error
	func() {
		defer Recover(func(err error) { got = err })
		panic("boom")
	}()

	if KindOf(got) != KindInternal {
		t.Fatalf("Recover reported %v", got)
	}
}
