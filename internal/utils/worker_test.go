package utils

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	tomb "gopkg.in/tomb.v2"
)

func TestWorkerPool_ProcessesTasks(t *testing.T) {
	var tb tomb.Tomb
	pool := NewWorkerPool(4)

	var sum atomic.Int64
	done := make(chan struct{}, 10)
	pool.Setup(&tb, func(_ *tomb.Tomb, task any) error {
		sum.Add(int64(task.(int)))
		done <- struct{}{}
		return nil
	})

	for i := 1; i <= 10; i++ {
		assert.True(t, pool.AddTask(&tb, i))
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("tasks were not processed")
		}
	}
	assert.Equal(t, int64(55), sum.Load())

	tb.Kill(nil)
	assert.NoError(t, tb.Wait())
	assert.False(t, pool.AddTask(&tb, 11))
}

func TestWorkerPool_ErrorKillsTomb(t *testing.T) {
	var tb tomb.Tomb
	pool := NewWorkerPool(2)
	errBoom := errors.New("boom")

	pool.Setup(&tb, func(_ *tomb.Tomb, task any) error {
		return errBoom
	})
	pool.AddTask(&tb, "task")

	assert.ErrorIs(t, tb.Wait(), errBoom)
}
