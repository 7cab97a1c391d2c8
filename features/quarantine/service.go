package quarantine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"ayl/internal/worker"
)

// Reviver returns a buried job to its queue.
type Reviver interface {
	Revive(ctx context.Context, queue, id string, body []byte) error
}

type Service struct {
	repo    Repository
	reviver Reviver
}

func NewService(repo Repository, reviver Reviver) *Service {
	return &Service{repo: repo, reviver: reviver}
}

func (s *Service) List(ctx context.Context) ([]Entry, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Retry revives the job on the broker, then forgets the entry.
func (s *Service) Retry(ctx context.Context, id string) error {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.reviver.Revive(ctx, e.Queue, e.JobID, e.Payload); err != nil {
		return fmt.Errorf("revive job %s on %s: %w", e.JobID, e.Queue, err)
	}

	return s.repo.Delete(ctx, id)
}

// Record saves a burial. It satisfies worker.Recorder.
func (s *Service) Record(ctx context.Context, b worker.Burial) error {
	payload := b.Payload
	if !json.Valid(payload) {
		// The column is JSONB; keep undecodable bodies as a JSON string.
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return err
		}
		payload = quoted
	}

	e := &Entry{
		Queue:        b.Queue,
		JobID:        b.JobID,
		Payload:      payload,
		Reason:       b.Reason,
		Reservations: b.Reservations,
	}
	if err := s.repo.Save(ctx, e); err != nil {
		return fmt.Errorf("record quarantined job %s: %w", b.JobID, err)
	}
	slog.InfoContext(ctx, "quarantined job recorded", "id", e.ID, "queue", e.Queue, "job_id", e.JobID)
	return nil
}

var _ worker.Recorder = (*Service)(nil)
