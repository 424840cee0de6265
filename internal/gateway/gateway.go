// Package gateway exposes the websocket endpoint Polly devices connect to.
//
// A device opens one websocket per conversation. Recognised utterances and
// silence events flow up as JSON frames; speak commands flow down and are
// acknowledged by the device once playback finishes, which is what makes
// [speech.Speaker.Speak] block for the duration of the spoken text.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/pollyconnect/polly/internal/limits"
	"github.com/pollyconnect/polly/internal/observe"
	"github.com/pollyconnect/polly/internal/speech"
)

// speakTimeout bounds how long a speak command may wait for the device's
// playback acknowledgement. Generous because very slow speech of a long
// question legitimately takes a while.
const speakTimeout = 2 * time.Minute

// SessionHandle is the gateway's view of a running conversation.
type SessionHandle interface {
	ID() string
	HandleUtterance(speech.Utterance)
	HandleSilence(speech.SilenceEvent)
	End()
}

// SessionStarter creates and runs a conversation for a connecting device.
// The returned channel yields the session's terminal error (nil for an
// orderly end) exactly once.
type SessionStarter interface {
	StartSession(ctx context.Context, residentID string, spk speech.Speaker) (SessionHandle, <-chan error, error)
}

// Handler upgrades device connections and bridges frames to a session.
type Handler struct {
	starter SessionStarter
	metrics *observe.Metrics
	log     *slog.Logger
}

// NewHandler creates the websocket handler.
func NewHandler(starter SessionStarter, metrics *observe.Metrics, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Handler{starter: starter, metrics: metrics, log: log}
}

// ServeHTTP implements http.Handler for the websocket upgrade. The resident
// is identified by the resident_id query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	residentID := r.URL.Query().Get("resident_id")
	if residentID == "" {
		http.Error(w, "resident_id required", http.StatusBadRequest)
		return
	}
	log := h.log.With("resident_id", residentID, "remote", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error("websocket accept failed", "err", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "conversation over")

	h.metrics.ConnectedDevices.Add(r.Context(), 1)
	defer h.metrics.ConnectedDevices.Add(context.WithoutCancel(r.Context()), -1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	spk := newDeviceSpeaker(ws)
	sess, done, err := h.starter.StartSession(ctx, residentID, spk)
	if err != nil {
		log.Info("session refused", "err", err)
		frame := Frame{Type: FrameError, Error: "session_unavailable"}
		if errors.Is(err, limits.ErrCooldownActive) {
			frame.Error = "cooldown_active"
			frame.Reason = err.Error()
		}
		writeFrame(ctx, ws, frame)
		return
	}
	log = log.With("session_id", sess.ID())
	log.Info("device connected, session started")

	// Read loop. Exits on disconnect or context cancellation; the session
	// outcome is reported below.
	readErr := make(chan error, 1)
	go func() {
		readErr <- h.readLoop(ctx, ws, sess, spk)
	}()

	select {
	case err := <-done:
		reason := "ended"
		if err != nil {
			log.Error("session aborted", "err", err)
			reason = "aborted"
		}
		writeFrame(ctx, ws, Frame{Type: FrameSessionEnded, Reason: reason})
	case err := <-readErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Info("device disconnected", "err", err)
		}
		sess.End()
		// Give the session a moment to finish its goodbye bookkeeping.
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}
	log.Info("device connection closed")
}

// readLoop decodes device frames and routes them into the session.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sess SessionHandle, spk *deviceSpeaker) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return fmt.Errorf("gateway: read: %w", err)
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.log.Debug("malformed device frame", "err", err)
			continue
		}
		switch f.Type {
		case FrameUtterance:
			sess.HandleUtterance(speech.Utterance{
				Text:       f.Text,
				Confidence: f.Confidence,
				Timestamp:  time.UnixMilli(f.TimestampMS),
			})
		case FrameSilence:
			sess.HandleSilence(speech.SilenceEvent{
				Duration:  time.Duration(f.DurationMS) * time.Millisecond,
				Timestamp: time.Now(),
			})
		case FrameEnd:
			sess.End()
		case FrameSpoken:
			spk.resolve(f.SpeakID, f.OK, f.Error)
		default:
			h.log.Debug("unknown device frame type", "type", f.Type)
		}
	}
}

func writeFrame(ctx context.Context, ws *websocket.Conn, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		slog.Error("gateway: marshal frame", "err", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("gateway: write frame", "err", err)
	}
}

// Compile-time interface check.
var _ speech.Speaker = (*deviceSpeaker)(nil)

// deviceSpeaker implements [speech.Speaker] over the device websocket. Each
// speak command carries an id; Speak blocks until the device acknowledges
// playback of that id.
type deviceSpeaker struct {
	ws *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan spokenAck
}

type spokenAck struct {
	ok     bool
	detail string
}

func newDeviceSpeaker(ws *websocket.Conn) *deviceSpeaker {
	return &deviceSpeaker{ws: ws, pending: make(map[string]chan spokenAck)}
}

// Speak implements [speech.Speaker].
func (d *deviceSpeaker) Speak(ctx context.Context, req speech.Request) error {
	id := uuid.NewString()
	ack := make(chan spokenAck, 1)
	d.mu.Lock()
	d.pending[id] = ack
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
	}()

	frame := Frame{
		Type:            FrameSpeak,
		SpeakID:         id,
		Text:            req.Text,
		Rate:            req.Rate,
		Volume:          req.Volume,
		SentencePauseMS: req.SentencePauseMS,
		QuestionPauseMS: req.QuestionPauseMS,
		IsQuestion:      req.IsQuestion,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("gateway: marshal speak frame: %w", err)
	}
	if err := d.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("gateway: send speak frame: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(speakTimeout):
		return fmt.Errorf("gateway: device never acknowledged playback of %s", id)
	case a := <-ack:
		if !a.ok {
			return fmt.Errorf("gateway: device playback failed: %s", a.detail)
		}
		return nil
	}
}

// resolve completes a pending speak command from a spoken ack frame.
func (d *deviceSpeaker) resolve(id string, ok bool, detail string) {
	d.mu.Lock()
	ack, found := d.pending[id]
	d.mu.Unlock()
	if !found {
		return
	}
	select {
	case ack <- spokenAck{ok: ok, detail: detail}:
	default:
	}
}
