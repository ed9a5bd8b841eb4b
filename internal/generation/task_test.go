package generation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskDeliversEventsInOrder(t *testing.T) {
	sim := &stubSim{finishAfter: 3}
	d, _ := newStubDriver(sim)
	extra := &RecordingSink{}

	task := Start(context.Background(), d, exampleRequest(), 0, extra)
	var got []Event
	for e := range task.Events() {
		got = append(got, e)
	}

	res := task.Result()
	require.Equal(t, Completed, res.Outcome)
	require.Len(t, got, 8)
	require.Equal(t, extra.Events(), got)
	require.Equal(t, 1, extra.CompletedCount())
	require.Equal(t, StageCompleted, got[len(got)-1].Stage)

	select {
	case <-task.Done():
	default:
		t.Fatal("done not closed after result")
	}
}

func TestTaskCancel(t *testing.T) {
	sim := &stubSim{finishAfter: 1 << 30}
	d, fin := newStubDriver(sim)

	task := Start(context.Background(), d, exampleRequest(), 0, nil)
	first := <-task.Events()
	require.Equal(t, 1, first.Step)

	task.Cancel()
	task.Cancel()
	for range task.Events() {
	}

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not stop after cancel")
	}
	res := task.Result()
	require.Equal(t, Cancelled, res.Outcome)
	require.Nil(t, res.World)
	require.Equal(t, 1, sim.released)
	require.Empty(t, fin.calls)
}

func TestTaskParentContext(t *testing.T) {
	sim := &stubSim{finishAfter: 1 << 30}
	d, _ := newStubDriver(sim)
	ctx, cancel := context.WithCancel(context.Background())

	task := Start(ctx, d, exampleRequest(), 4, nil)
	<-task.Events()
	cancel()

	require.Equal(t, Cancelled, task.Result().Outcome)
	require.Equal(t, 1, sim.released)
}
