package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweeney/fan-controller/internal/command"
	"github.com/sweeney/fan-controller/internal/logic"
	"github.com/sweeney/fan-controller/internal/status"
	"github.com/sweeney/fan-controller/internal/web"
)

type fakeCommander struct {
	mu     sync.Mutex
	speeds map[string]int
}

func (c *fakeCommander) Submit(_ context.Context, id string, percent int) (command.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.speeds[id]; !ok {
		return command.Result{}, fmt.Errorf("%w: %q", logic.ErrUnknownChannel, id)
	}
	applied := logic.ClampPercent(percent)
	c.speeds[id] = applied
	return command.Result{Channel: id, Requested: percent, Applied: applied}, nil
}

func newDaemon(t *testing.T) string {
	t.Helper()
	tr := status.NewTracker(time.Now().Add(-90*time.Second), status.Config{})
	tr.Update([]logic.ChannelState{
		{ID: "intake", Label: "Intake", DutyPercent: 40, RPM: 900, Samples: 1},
		{ID: "exhaust", Label: "Exhaust", DutyPercent: 60, RPM: 1300, Samples: 1},
	})
	cmds := &fakeCommander{speeds: map[string]int{"intake": 40, "exhaust": 60}}

	ts := httptest.NewServer(web.New(":0", tr, cmds, nil).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	addr := newDaemon(t)

	out, err := execute(t, "--addr", addr, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "intake       900 RPM ( 40%)  Intake")
	assert.Contains(t, out, "exhaust     1300 RPM ( 60%)  Exhaust")
	assert.Contains(t, out, "ready true")
}

func TestSetCommand(t *testing.T) {
	addr := newDaemon(t)

	out, err := execute(t, "--addr", addr, "set", "intake", "55")
	require.NoError(t, err)
	assert.Equal(t, "intake: 55%\n", out)

	out, err = execute(t, "--addr", addr, "set", "exhaust", "150")
	require.NoError(t, err)
	assert.Equal(t, "exhaust: 100% (clamped from 150%)\n", out)
}

func TestSetCommandErrors(t *testing.T) {
	addr := newDaemon(t)

	_, err := execute(t, "--addr", addr, "set", "rear", "10")
	assert.ErrorContains(t, err, "unknown fan channel")

	_, err = execute(t, "--addr", addr, "set", "intake", "fast")
	assert.ErrorContains(t, err, "percent")

	_, err = execute(t, "--addr", addr, "set", "intake")
	assert.Error(t, err)
}
