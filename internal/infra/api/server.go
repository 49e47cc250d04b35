package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"mediaforge/internal/domain/model"
	"mediaforge/internal/infra/logging"
	"mediaforge/internal/infra/metrics"
	"mediaforge/internal/infra/worker"

	"github.com/rs/zerolog"
)

const maxPushBody = 1 << 20

type TaskSubmitter interface {
	Submit(task worker.Task) error
}

type TaskFactory interface {
	Task(msg model.JobMessage) worker.Task
}

// PushServer receives push deliveries for the worker. Deliveries are acked
// as soon as they are handed to the pool; the job record's status CAS makes
// redelivery harmless.
type PushServer struct {
	pool TaskSubmitter
	jobs TaskFactory
	log  *zerolog.Logger
}

func NewPushServer(pool TaskSubmitter, jobs TaskFactory, logger *zerolog.Logger) *PushServer {
	l := logger.With().Str("component", "PushServer").Logger()
	return &PushServer{pool: pool, jobs: jobs, log: &l}
}

// Register attaches handlers to the provided mux.
func (s *PushServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /process-generation", s.handlePush(model.JobKindGeneration))
	mux.HandleFunc("POST /process-training", s.handlePush(model.JobKindTraining))
	mux.HandleFunc("GET /health", Health("worker"))
	mux.Handle("GET /metrics", metrics.Handler())
}

func (s *PushServer) handlePush(kind model.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logging.With(r.Context(), s.log)
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
		if err != nil {
			metrics.IncQueueMessage("push", "read_error")
			http.Error(w, "Error reading message", http.StatusBadRequest)
			return
		}
		msg, messageID, err := worker.DecodePush(body)
		if err != nil {
			metrics.IncQueueMessage("push", "malformed")
			l.Warn().Err(err).Str("message_id", messageID).Msg("malformed push delivery")
			http.Error(w, "Bad Request: invalid message format", http.StatusBadRequest)
			return
		}
		if msg.Kind == "" {
			msg.Kind = kind
		}
		if msg.Kind != kind {
			l.Warn().Str("message_id", messageID).Str("kind", string(msg.Kind)).
				Str("endpoint", string(kind)).Msg("message kind does not match endpoint")
		}
		metrics.IncQueueMessage("push", "received")

		if err := s.pool.Submit(s.jobs.Task(msg)); err != nil {
			// The job stays queued; the watchdog republishes it after requeue_after.
			ev := l.Error()
			if errors.Is(err, worker.ErrPoolFull) {
				ev = l.Warn()
			}
			ev.Err(err).Str("job_id", msg.JobID()).Str("message_id", messageID).Msg("could not schedule job")
		} else {
			l.Debug().Str("job_id", msg.JobID()).Str("message_id", messageID).Msg("job scheduled")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

type HealthBody struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

func Health(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, HealthBody{
			Status:    "healthy",
			Service:   service,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
