package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type fakeRetrier struct {
	mu       sync.Mutex
	failures int
	calls    []int64
	applied  []int64
}

func (f *fakeRetrier) Retry(_ context.Context, entry modelstorage.CommissionEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, entry.DepositID)
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return errors.New("transient")
	}
	f.applied = append(f.applied, entry.DepositID)
	return nil
}

func (f *fakeRetrier) snapshot() ([]int64, []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...), append([]int64(nil), f.applied...)
}

type fakePending struct {
	entries []modelstorage.CommissionEntry
}

func (f *fakePending) PendingCommissions(_ context.Context, _ int) ([]modelstorage.CommissionEntry, error) {
	out := f.entries
	f.entries = nil
	return out, nil
}

func startBroker(t *testing.T, r Retrier, p PendingSource) (*Broker, context.CancelFunc, *sync.WaitGroup) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	log := zerolog.Nop()
	cfg := &config.QueueConfig{WorkerNumber: 2, RetryNumber: 3, SweepInterval: time.Hour, RetryBackoff: time.Millisecond}
	b := InitBroker(ctx, r, p, cfg, time.Second, &log, wg)
	b.ListenAndProcess()
	return b, cancel, wg
}

func entry(id int64) modelstorage.CommissionEntry {
	return modelstorage.CommissionEntry{DepositID: id, DepositorID: 2, ReferrerID: 1, DepositAmount: decimal.NewFromInt(1000)}
}

func TestBroker_RetriesUntilApplied(t *testing.T) {
	r := &fakeRetrier{failures: 2}
	b, cancel, wg := startBroker(t, r, &fakePending{})
	defer func() { cancel(); wg.Wait() }()

	b.Enqueue(entry(7))
	assert.Eventually(t, func() bool {
		_, applied := r.snapshot()
		return len(applied) == 1
	}, 2*time.Second, 5*time.Millisecond)
	calls, _ := r.snapshot()
	assert.Equal(t, []int64{7, 7, 7}, calls)
}

func TestBroker_AbandonsAfterRetryLimit(t *testing.T) {
	r := &fakeRetrier{failures: -1}
	b, cancel, wg := startBroker(t, r, &fakePending{})
	defer func() { cancel(); wg.Wait() }()

	b.Enqueue(entry(7))
	assert.Eventually(t, func() bool {
		calls, _ := r.snapshot()
		return len(calls) == 3
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	calls, applied := r.snapshot()
	assert.Len(t, calls, 3)
	assert.Empty(t, applied)
}

func TestBroker_SweepsOnStart(t *testing.T) {
	r := &fakeRetrier{}
	_, cancel, wg := startBroker(t, r, &fakePending{entries: []modelstorage.CommissionEntry{entry(42)}})
	defer func() { cancel(); wg.Wait() }()

	assert.Eventually(t, func() bool {
		_, applied := r.snapshot()
		return len(applied) == 1 && applied[0] == 42
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBroker_StopsOnCancel(t *testing.T) {
	_, cancel, wg := startBroker(t, &fakeRetrier{}, &fakePending{})
	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broker did not stop")
	}
}

func TestRetryWorker_Delay(t *testing.T) {
	w := &RetryWorker{backoff: time.Second}
	assert.Equal(t, time.Second, w.delay(0))
	assert.Equal(t, 8*time.Second, w.delay(3))
	assert.Equal(t, maxBackoff, w.delay(20))
}
