package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubmitRunsFn(t *testing.T) {
	s := New(Config{}, nil)
	s.RegisterAgent("parser", CPUBound, 2, 4)

	ran := false
	err := s.Submit(context.Background(), "parser", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestSubmitUnknownAgentInvalidArgument(t *testing.T) {
	s := New(Config{}, nil)
	err := s.Submit(context.Background(), "ghost", func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestSubmitBacklogOverflowReturnsAgentBusy(t *testing.T) {
	s := New(Config{CPUWorkers: 1}, nil)
	s.RegisterAgent("indexer", CPUBound, 1, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.Submit(context.Background(), "indexer", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	blocked := make(chan struct{})
	go func() {
		_ = s.Submit(context.Background(), "indexer", func(ctx context.Context) error { return nil })
		close(blocked)
	}()
	time.Sleep(20 * time.Millisecond)

	err := s.Submit(context.Background(), "indexer", func(context.Context) error { return nil })
	require.Error(t, err)

	close(release)
	<-blocked
}

func TestHeartbeatStaleness(t *testing.T) {
	s := New(Config{}, nil)
	s.Heartbeat("query")
	assert.False(t, s.IsStale("query", 1))
	assert.False(t, s.IsStale("never-beat", 1))
}
