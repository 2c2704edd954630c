package app

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/XR-at-CISESS/lma-data/internal/lmafile"
	"github.com/XR-at-CISESS/lma-data/internal/orchestrator"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(minute int) orchestrator.Job {
	ts := time.Date(2024, 6, 1, 10, minute, 0, 0, time.UTC)
	return orchestrator.Job{
		Key:       "dclma/" + lmafile.FormatStamp(ts),
		Timestamp: ts,
		Paths:     []string{"a.dat", "b.dat"},
	}
}

func TestModelTracksProgress(t *testing.T) {
	m := NewAppModel("Analysis", nil)
	assert.Equal(t, Waiting, m.State)

	m.Update(StartMsg{Total: 3})
	assert.Equal(t, Running, m.State)
	assert.Contains(t, m.View(), "(0/3)")

	m.Update(DoneMsg{
		Result:   orchestrator.Result{Job: testJob(0), Outcome: orchestrator.Succeeded, Attempts: 1},
		Progress: orchestrator.Progress{Done: 1, Total: 3},
	})
	m.Update(DoneMsg{
		Result:   orchestrator.Result{Job: testJob(5), Outcome: orchestrator.Failed, Attempts: 2, Err: errors.New("exit status 3\nmore detail")},
		Progress: orchestrator.Progress{Done: 2, Total: 3},
	})

	view := m.View()
	assert.Contains(t, view, "(2/3)")
	assert.Contains(t, view, "2024-06-01 10:00:00")
	assert.Contains(t, view, "failed x2")
	assert.Contains(t, view, "-> exit status 3")
	assert.NotContains(t, view, "more detail")
	assert.Equal(t, 1, m.counts[orchestrator.Failed])
}

func TestModelKeepsRecentRows(t *testing.T) {
	m := NewAppModel("Analysis", nil)
	m.Update(StartMsg{Total: 20})
	for i := 0; i < 20; i++ {
		m.Update(DoneMsg{
			Result:   orchestrator.Result{Job: testJob(i), Outcome: orchestrator.Succeeded},
			Progress: orchestrator.Progress{Done: i + 1, Total: 20},
		})
	}
	require.Len(t, m.recent, recentRows)
	assert.Equal(t, "2024-06-01 10:19:00", m.recent[recentRows-1].Label)
}

func TestOutputIsPrinted(t *testing.T) {
	m := NewAppModel("Analysis", nil)
	_, cmd := m.Update(OutputMsg{Label: "2024-06-01 10:00:00", Line: "processing"})
	assert.NotNil(t, cmd)
}

func TestInterruptEscalates(t *testing.T) {
	calls := 0
	m := NewAppModel("Analysis", func() { calls++ })
	m.Update(StartMsg{Total: 1})

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, Stopping, m.State)
	assert.Contains(t, m.View(), "Press again to kill")

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Equal(t, Killing, m.State)
	assert.Equal(t, 2, calls)

	m2 := NewAppModel("Analysis", nil)
	m2.Update(interruptMsg{})
	assert.Equal(t, Stopping, m2.State)
}

func TestFinishQuits(t *testing.T) {
	m := NewAppModel("Analysis", nil)
	m.Update(StartMsg{Total: 2})
	_, cmd := m.Update(FinishMsg{Summary: orchestrator.Summary{Total: 2, Succeeded: 1, Cancelled: 1}})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, Finished, m.State)
	view := m.View()
	assert.Contains(t, view, "2 batches")
	assert.Contains(t, view, "1 cancelled")
	assert.NotContains(t, view, "failed")
}

func TestReporterRunsToFinish(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter("Analysis", nil, &out, nil)

	job := testJob(0)
	r.Start(1)
	r.Output(job, "hello")
	r.Done(orchestrator.Result{Job: job, Outcome: orchestrator.Succeeded}, orchestrator.Progress{Done: 1, Total: 1})
	r.Finish(orchestrator.Summary{Total: 1, Succeeded: 1})

	done := make(chan error, 1)
	go func() { done <- r.Wait() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("program did not exit after Finish")
	}
	assert.Equal(t, Finished, r.model.State)
}
