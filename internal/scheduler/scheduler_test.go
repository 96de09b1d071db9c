package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"careline-agent/internal/domain"
	"careline-agent/internal/usecase"
)

type listCall struct {
	states []domain.State
	cutoff time.Time
}

type fakeLister struct {
	mu         sync.Mutex
	calls      []listCall
	identities map[usecase.FollowUpKind][]string
	err        error
}

func (f *fakeLister) ListIdle(_ context.Context, states []domain.State, cutoff time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, listCall{states: states, cutoff: cutoff})
	if f.err != nil {
		return nil, f.err
	}
	for kind, ids := range f.identities {
		if len(states) > 0 && states[0] == kind.States()[0] {
			return ids, nil
		}
	}
	return nil, nil
}

type runCall struct {
	identity string
	kind     usecase.FollowUpKind
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
	err   error
}

func (f *fakeRunner) RunFollowUp(_ context.Context, identity string, kind usecase.FollowUpKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runCall{identity: identity, kind: kind})
	return f.err
}

func (f *fakeRunner) snapshot() []runCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]runCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func TestNewSchedulerValidation(t *testing.T) {
	_, err := NewScheduler(nil, &fakeRunner{})
	require.Error(t, err)

	_, err = NewScheduler(&fakeLister{}, nil)
	require.Error(t, err)

	_, err = NewScheduler(&fakeLister{}, &fakeRunner{}, WithInterval(0))
	require.Error(t, err)

	_, err = NewScheduler(&fakeLister{}, &fakeRunner{}, WithConcurrency(0))
	require.Error(t, err)
}

func TestRunOnceSweepsEveryCampaign(t *testing.T) {
	lister := &fakeLister{identities: map[usecase.FollowUpKind][]string{
		usecase.FollowUpQualification: {"id-1", "id-2"},
		usecase.FollowUpPayment:       {"id-3"},
	}}
	runner := &fakeRunner{}

	s, err := NewScheduler(lister, runner)
	require.NoError(t, err)
	frozen := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }

	s.RunOnce(context.Background())

	require.Len(t, lister.calls, 2)
	require.Equal(t, usecase.FollowUpQualification.States(), lister.calls[0].states)
	require.Equal(t, frozen.Add(-4*time.Hour), lister.calls[0].cutoff)
	require.Equal(t, usecase.FollowUpPayment.States(), lister.calls[1].states)
	require.Equal(t, frozen.Add(-24*time.Hour), lister.calls[1].cutoff)

	calls := runner.snapshot()
	require.Len(t, calls, 3)
	byKind := map[usecase.FollowUpKind][]string{}
	for _, c := range calls {
		byKind[c.kind] = append(byKind[c.kind], c.identity)
	}
	require.ElementsMatch(t, []string{"id-1", "id-2"}, byKind[usecase.FollowUpQualification])
	require.ElementsMatch(t, []string{"id-3"}, byKind[usecase.FollowUpPayment])
}

func TestRunOnceToleratesRunnerErrors(t *testing.T) {
	lister := &fakeLister{identities: map[usecase.FollowUpKind][]string{
		usecase.FollowUpQualification: {"id-1", "id-2"},
	}}
	runner := &fakeRunner{err: errors.New("conversation broken")}

	s, err := NewScheduler(lister, runner)
	require.NoError(t, err)

	s.RunOnce(context.Background())

	// Both identities were still attempted.
	require.Len(t, runner.snapshot(), 2)
}

func TestRunOnceToleratesListerErrors(t *testing.T) {
	lister := &fakeLister{err: errors.New("scan failed")}
	runner := &fakeRunner{}

	s, err := NewScheduler(lister, runner)
	require.NoError(t, err)

	s.RunOnce(context.Background())

	require.Len(t, lister.calls, 2, "every campaign is still attempted")
	require.Empty(t, runner.snapshot())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s, err := NewScheduler(&fakeLister{}, &fakeRunner{}, WithInterval(time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
