package main

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		tokenRole = "MENTEE"
		tokenEmail = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := execute(t, "token", "mentor-1", "--role", "MENTOR")
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["expires_at"])
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	_, err := execute(t, "token", "user-1", "--role", "OWNER")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestSweepCommandValidatesName(t *testing.T) {
	_, err := execute(t, "sweep", "vacuum")
	assert.Error(t, err)

	_, err = execute(t, "sweep")
	assert.Error(t, err)
}

type countdown struct{ n int32 }

func (c *countdown) Pending() int {
	if v := atomic.AddInt32(&c.n, -1); v > 0 {
		return int(v)
	}
	return 0
}

func TestWaitForEvents(t *testing.T) {
	assert.True(t, waitForEvents(context.Background(), &countdown{n: 3}, time.Second))

	stuck := &countdown{n: 1 << 20}
	assert.False(t, waitForEvents(context.Background(), stuck, 60*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, waitForEvents(ctx, &countdown{n: 1 << 20}, time.Second))
}
