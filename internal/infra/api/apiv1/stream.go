package apiv1

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mediaforge/internal/domain/model"
	"mediaforge/internal/domain/ports/adapter"
	"mediaforge/internal/infra/auth"
	"mediaforge/internal/infra/logging"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are enforced by the CORS middleware and the bearer token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamFrame is one message on a job stream. The first frame is always the
// current snapshot; later frames are changes with a strictly larger version.
type StreamFrame struct {
	Type    string          `json:"type"` // snapshot | change
	Kind    string          `json:"kind"`
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Version int64           `json:"version"`
	Record  json.RawMessage `json:"record"`
}

type snapshot struct {
	frame    StreamFrame
	terminal bool
}

type loader func(ctx context.Context) (*snapshot, error)

func (s *Server) handleIllustrationStream(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	jobID := chi.URLParam(r, "id")
	s.stream(w, r, string(model.JobKindGeneration), jobID, func(ctx context.Context) (*snapshot, error) {
		il, err := s.dispatch.GetIllustration(ctx, id, jobID)
		if err != nil {
			return nil, err
		}
		return newSnapshot(string(model.JobKindGeneration), il.ID, string(il.Status), il.Version, il.Status.Terminal(), il)
	})
}

func (s *Server) handleBrandStream(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	brandID := chi.URLParam(r, "id")
	s.stream(w, r, string(model.JobKindTraining), brandID, func(ctx context.Context) (*snapshot, error) {
		b, err := s.dispatch.GetBrand(ctx, id, brandID)
		if err != nil {
			return nil, err
		}
		return newSnapshot(string(model.JobKindTraining), b.ID, string(b.Status), b.Version, b.Status.Terminal(), b)
	})
}

func newSnapshot(kind, id, status string, version int64, terminal bool, record any) (*snapshot, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return &snapshot{
		frame:    StreamFrame{Type: "snapshot", Kind: kind, ID: id, Status: status, Version: version, Record: raw},
		terminal: terminal,
	}, nil
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, kind, id string, load loader) {
	l := logging.With(r.Context(), s.log)

	// Ownership is checked before the upgrade so rejections are plain HTTP errors.
	if _, err := load(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	changes, err := s.feed.Subscribe(ctx, kind, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	// Re-read after subscribing so no change between the check and the
	// subscription is lost.
	snap, err := load(ctx)
	if err != nil {
		l.Warn().Err(err).Str("job_id", id).Msg("snapshot read failed")
		closeWith(ws, websocket.CloseInternalServerErr, "snapshot unavailable")
		return
	}
	if err := writeFrame(ws, snap.frame); err != nil {
		return
	}
	if snap.terminal {
		closeWith(ws, websocket.CloseNormalClosure, snap.frame.Status)
		return
	}
	last := snap.frame.Version

	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case ch, ok := <-changes:
			if !ok {
				closeWith(ws, websocket.CloseGoingAway, "feed closed")
				return
			}
			if ch.Version <= last {
				continue
			}
			last = ch.Version
			if err := writeFrame(ws, changeFrame(ch)); err != nil {
				return
			}
			if terminalStatus(kind, ch.Status) {
				closeWith(ws, websocket.CloseNormalClosure, ch.Status)
				return
			}
		}
	}
}

func changeFrame(ch adapter.JobChange) StreamFrame {
	return StreamFrame{Type: "change", Kind: ch.Kind, ID: ch.ID, Status: ch.Status, Version: ch.Version, Record: ch.Record}
}

func terminalStatus(kind, status string) bool {
	if kind == string(model.JobKindTraining) {
		return model.BrandStatus(status).Terminal()
	}
	return model.IllustrationStatus(status).Terminal()
}

func writeFrame(ws *websocket.Conn, f StreamFrame) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(f)
}

func closeWith(ws *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
