package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_SweepNow(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.Create(scenarioAddress)
	require.NoError(t, err)
	short := "calm-owl7@disposable.email"
	_, err = env.registry.Create(short)
	require.NoError(t, err)

	_, err = env.delivery.Deliver("a@b.com", scenarioAddress, []byte("Subject: Old\n\nHello"))
	require.NoError(t, err)

	// 长期地址延期后，邮件先于地址过期
	_, err = env.mailbox.Extend(scenarioAddress, 48)
	require.NoError(t, err)

	env.clock.Advance(26 * time.Hour)
	_, err = env.delivery.Deliver("a@b.com", scenarioAddress, []byte("Subject: New\n\nHello"))
	require.NoError(t, err)

	env.clock.Advance(23 * time.Hour)
	result := env.sweeper.SweepNow(env.clock.Now())

	assert.Equal(t, 1, result.Addresses, "only the short-lived address expired")
	assert.Equal(t, 1, result.Messages)
	assert.Equal(t, env.clock.Now(), env.sweeper.LastRun())

	list, err := env.messages.List(scenarioAddress)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "New", list[0].Subject)

	assert.Equal(t, 1, env.mailbox.Stats().Total)
}

func TestSweeper_NothingToDo(t *testing.T) {
	env := newTestEnv(t)

	result := env.sweeper.SweepNow(env.clock.Now())
	assert.Equal(t, SweepResult{}, result)
}

func TestSweeper_StartStop(t *testing.T) {
	env := newTestEnv(t)
	sweeper := NewSweeper(env.registry, env.store, nil, 10*time.Millisecond, nil)

	assert.True(t, sweeper.LastRun().IsZero())

	sweeper.Start(context.Background())
	sweeper.Start(context.Background())

	assert.Eventually(t, func() bool {
		return !sweeper.LastRun().IsZero()
	}, time.Second, 5*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
	assert.Equal(t, 10*time.Millisecond, sweeper.Interval())
}

func TestSweeper_StopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	sweeper := NewSweeper(env.registry, env.store, env.filter, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
