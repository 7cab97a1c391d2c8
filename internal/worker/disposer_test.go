package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ayl/internal/notify"
	"ayl/internal/worker"
)

func disposeJob(t *testing.T, it *MockItem, d *worker.Disposer, n *recordingNotifier, handlerErr error) worker.Disposition {
	t.Helper()
	job := worker.NewJob(it, "default", newCodec(func(json.RawMessage) error { return handlerErr }), n)
	msg, err := job.Message()
	require.NoError(t, err)
	return d.Dispose(context.Background(), job, worker.Classify(msg.Execute(context.Background())))
}

func TestDisposer_FailurePolicies(t *testing.T) {
	boom := errors.New("boom")

	t.Run("delete policy reports and deletes", func(t *testing.T) {
		it := newItem("1", body(`"failed_job_handler":"delete"`))
		it.On("Delete", mock.Anything).Return(nil).Once()
		n := &recordingNotifier{}

		got := disposeJob(t, it, worker.NewDisposer(n), n, boom)

		assert.Equal(t, worker.DispositionDeleted, got)
		assert.Equal(t, []string{notify.SubjectFailure}, n.Subjects())
		it.AssertExpectations(t)
	})

	t.Run("bury policy reports and buries", func(t *testing.T) {
		it := newItem("1", body(`"failed_job_handler":"bury"`))
		it.On("Bury", mock.Anything).Return(nil).Once()
		n := &recordingNotifier{}

		got := disposeJob(t, it, worker.NewDisposer(n), n, boom)

		assert.Equal(t, worker.DispositionBuried, got)
		assert.Equal(t, []string{notify.SubjectBuryPolicy}, n.Subjects())
	})

	t.Run("decay below threshold is silent", func(t *testing.T) {
		it := newItem("1", body(`"failed_job_handler":"decay","decay_threshold":2,"decay_delay":20`))
		it.On("Reservations", mock.Anything).Return(1, nil)
		it.On("Decay", mock.Anything, durationPtr(20*time.Second)).Return(nil).Once()
		n := &recordingNotifier{}

		got := disposeJob(t, it, worker.NewDisposer(n), n, boom)

		assert.Equal(t, worker.DispositionDecayed, got)
		assert.Empty(t, n.Subjects())
		it.AssertNotCalled(t, "Bury", mock.Anything)
	})

	t.Run("decay at threshold quarantines", func(t *testing.T) {
		it := newItem("1", body(`"failed_job_handler":"decay","decay_threshold":2`))
		it.On("Reservations", mock.Anything).Return(2, nil)
		it.On("Bury", mock.Anything).Return(nil).Once()
		n := &recordingNotifier{}

		got := disposeJob(t, it, worker.NewDisposer(n), n, boom)

		assert.Equal(t, worker.DispositionBuried, got)
		assert.Equal(t, []string{notify.SubjectQuarantined}, n.Subjects())
		assert.NotEqual(t, notify.SubjectFailure, notify.SubjectQuarantined)
	})

	t.Run("escalation ignores the error type", func(t *testing.T) {
		it := newItem("1", body(`"failed_job_handler":"decay","decay_threshold":3`))
		it.On("Reservations", mock.Anything).Return(7, nil)
		it.On("Bury", mock.Anything).Return(nil).Once()
		n := &recordingNotifier{}

		got := disposeJob(t, it, worker.NewDisposer(n), n, errors.New("different failure"))

		assert.Equal(t, worker.DispositionBuried, got)
		it.AssertNotCalled(t, "Decay", mock.Anything, mock.Anything)
	})

	t.Run("unknown reservations buries", func(t *testing.T) {
		it := newItem("1", body(`"failed_job_handler":"decay"`))
		it.On("Reservations", mock.Anything).Return(0, errors.New("stats-job failed"))
		it.On("Bury", mock.Anything).Return(nil).Once()
		n := &recordingNotifier{}

		got := disposeJob(t, it, worker.NewDisposer(n), n, boom)

		assert.Equal(t, worker.DispositionBuried, got)
		assert.Equal(t, []string{notify.SubjectInspect, notify.SubjectQuarantined}, n.Subjects())
	})

	t.Run("zero decay delay uses backend default", func(t *testing.T) {
		it := newItem("1", body(`"failed_job_handler":"decay"`))
		it.On("Reservations", mock.Anything).Return(1, nil)
		it.On("Decay", mock.Anything, (*time.Duration)(nil)).Return(nil).Once()

		got := disposeJob(t, it, worker.NewDisposer(nil), &recordingNotifier{}, boom)

		assert.Equal(t, worker.DispositionDecayed, got)
		it.AssertExpectations(t)
	})
}

func TestDisposer_AgeMode(t *testing.T) {
	policy := `"failed_job_handler":"decay","retry_mode":"age","max_age":60`

	t.Run("young job decays", func(t *testing.T) {
		it := newItem("1", body(policy))
		it.On("Age", mock.Anything).Return(30*time.Second, nil)
		it.On("Decay", mock.Anything, mock.Anything).Return(nil).Once()
		n := &recordingNotifier{}

		assert.Equal(t, worker.DispositionDecayed, disposeJob(t, it, worker.NewDisposer(n), n, errors.New("x")))
		assert.Empty(t, n.Subjects())
	})

	t.Run("old job is deleted", func(t *testing.T) {
		it := newItem("1", body(policy))
		it.On("Age", mock.Anything).Return(61*time.Second, nil)
		it.On("Delete", mock.Anything).Return(nil).Once()
		n := &recordingNotifier{}

		assert.Equal(t, worker.DispositionDeleted, disposeJob(t, it, worker.NewDisposer(n), n, errors.New("x")))
		assert.Equal(t, []string{notify.SubjectTooOld}, n.Subjects())
	})

	t.Run("unknown age is deleted", func(t *testing.T) {
		it := newItem("1", body(policy))
		it.On("Age", mock.Anything).Return(time.Duration(0), errors.New("stats-job failed"))
		it.On("Delete", mock.Anything).Return(nil).Once()
		n := &recordingNotifier{}

		assert.Equal(t, worker.DispositionDeleted, disposeJob(t, it, worker.NewDisposer(n), n, errors.New("x")))
	})
}

func TestDisposer_ControlSignals(t *testing.T) {
	t.Run("explicit decay ignores policy", func(t *testing.T) {
		it := newItem("1", body(`"failed_job_handler":"bury"`))
		it.On("Decay", mock.Anything, durationPtr(5*time.Second)).Return(nil).Once()
		n := &recordingNotifier{}

		got := disposeJob(t, it, worker.NewDisposer(n), n, worker.DecayAfter(5*time.Second))

		assert.Equal(t, worker.DispositionDecayed, got)
		assert.Empty(t, n.Subjects())
		it.AssertNotCalled(t, "Reservations", mock.Anything)
	})

	t.Run("explicit bury ignores policy", func(t *testing.T) {
		it := newItem("1", body(`"failed_job_handler":"delete"`))
		it.On("Bury", mock.Anything).Return(nil).Once()
		n := &recordingNotifier{}

		got := disposeJob(t, it, worker.NewDisposer(n), n, worker.Bury("needs a human"))

		assert.Equal(t, worker.DispositionBuried, got)
		assert.Equal(t, []string{notify.SubjectBuryRequest}, n.Subjects())
	})

	t.Run("termination deletes and reports", func(t *testing.T) {
		it := newItem("1", body(""))
		it.On("Delete", mock.Anything).Return(nil).Once()
		n := &recordingNotifier{}

		got := disposeJob(t, it, worker.NewDisposer(n), n, worker.Terminate(1))

		assert.Equal(t, worker.DispositionDeleted, got)
		assert.Equal(t, []string{notify.SubjectTerminate}, n.Subjects())
	})
}

func TestDisposer_RecordsBurials(t *testing.T) {
	it := newItem("42", body(`"failed_job_handler":"decay","decay_threshold":2`))
	it.On("Reservations", mock.Anything).Return(2, nil)
	it.On("Bury", mock.Anything).Return(nil).Once()

	rec := &MockRecorder{}
	rec.On("Record", mock.Anything, mock.MatchedBy(func(b worker.Burial) bool {
		return b.Queue == "default" && b.JobID == "42" && b.Reservations == 2 && b.Reason == "boom"
	})).Return(nil).Once()
	n := &recordingNotifier{}

	disposeJob(t, it, worker.NewDisposer(n, worker.WithRecorder(rec)), n, errors.New("boom"))

	rec.AssertExpectations(t)
	assert.Equal(t, []string{notify.SubjectQuarantined}, n.Subjects())
}

func TestDisposer_RecorderFailureIsContained(t *testing.T) {
	it := newItem("42", body(`"failed_job_handler":"bury"`))
	it.On("Reservations", mock.Anything).Return(1, nil)
	it.On("Bury", mock.Anything).Return(nil).Once()

	rec := &MockRecorder{}
	rec.On("Record", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	n := &recordingNotifier{}

	got := disposeJob(t, it, worker.NewDisposer(n, worker.WithRecorder(rec)), n, errors.New("boom"))

	assert.Equal(t, worker.DispositionBuried, got)
	assert.Equal(t, []string{notify.SubjectBuryPolicy, notify.SubjectRecord}, n.Subjects())
}

func TestDisposer_FailedBuryIsNotRecorded(t *testing.T) {
	it := newItem("42", body(`"failed_job_handler":"bury"`))
	it.On("Reservations", mock.Anything).Return(1, nil)
	it.On("Bury", mock.Anything).Return(errors.New("NOT_FOUND"))
	rec := &MockRecorder{}
	n := &recordingNotifier{}

	got := disposeJob(t, it, worker.NewDisposer(n, worker.WithRecorder(rec)), n, errors.New("boom"))

	assert.Equal(t, worker.DispositionNone, got)
	rec.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	assert.Equal(t, []string{notify.SubjectBuryPolicy, notify.SubjectBury}, n.Subjects())
}

func TestDisposer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := worker.NewMetrics(reg)

	it := newItem("1", body(""))
	it.On("Delete", mock.Anything).Return(nil)

	disposeJob(t, it, worker.NewDisposer(nil, worker.WithMetrics(m)), &recordingNotifier{}, nil)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() != "ayl_dispositions_total" {
			continue
		}
		found = true
		require.Len(t, f.GetMetric(), 1)
		assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
	}
	assert.True(t, found)
}
