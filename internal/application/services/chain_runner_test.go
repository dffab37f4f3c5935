package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeIndexer struct {
	block     int64
	initCalls int
	syncCalls int
	initErr   error
	syncFunc  func() error
	waitCalls int
}

func (f *fakeIndexer) Init(context.Context) error {
	f.initCalls++
	return f.initErr
}

func (f *fakeIndexer) Sync(context.Context) error {
	f.syncCalls++
	if f.syncFunc != nil {
		return f.syncFunc()
	}
	return nil
}

func (f *fakeIndexer) LastSyncedBlock() int64 { return f.block }

func (f *fakeIndexer) Wait() { f.waitCalls++ }

type fakeEngine struct {
	runs    int
	runFunc func() ([]AttemptResult, error)
}

func (f *fakeEngine) Run(context.Context) ([]AttemptResult, error) {
	f.runs++
	if f.runFunc != nil {
		return f.runFunc()
	}
	return nil, nil
}

func TestChainRunner_InitOnceThenSync(t *testing.T) {
	indexer := &fakeIndexer{block: 10}
	engine := &fakeEngine{}
	r := NewChainRunner(1, indexer, engine, time.Second, 1, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		indexer.block++
		r.tick(ctx)
	}

	if indexer.initCalls != 1 || indexer.syncCalls != 2 {
		t.Errorf("expected 1 init and 2 syncs, got %d and %d", indexer.initCalls, indexer.syncCalls)
	}
	if engine.runs != 3 {
		t.Errorf("expected 3 engine runs, got %d", engine.runs)
	}
}

func TestChainRunner_InitFailureRetries(t *testing.T) {
	indexer := &fakeIndexer{initErr: errors.New("rpc down")}
	engine := &fakeEngine{}
	r := NewChainRunner(1, indexer, engine, time.Second, 1, zap.NewNop())

	r.tick(context.Background())
	indexer.initErr = nil
	r.tick(context.Background())

	if indexer.initCalls != 2 || indexer.syncCalls != 0 {
		t.Errorf("expected init to be retried, got %d inits %d syncs", indexer.initCalls, indexer.syncCalls)
	}
	if engine.runs != 1 {
		t.Errorf("expected 1 engine run, got %d", engine.runs)
	}
}

func TestChainRunner_BlockInterval(t *testing.T) {
	indexer := &fakeIndexer{block: 100}
	engine := &fakeEngine{}
	r := NewChainRunner(1, indexer, engine, time.Second, 5, zap.NewNop())

	ctx := context.Background()
	for _, block := range []int64{100, 102, 104, 105, 109, 110} {
		indexer.block = block
		r.tick(ctx)
	}

	// runs at 100, 105 and 110
	if engine.runs != 3 {
		t.Errorf("expected 3 engine runs, got %d", engine.runs)
	}
}

func TestChainRunner_SyncFailureSkipsEngine(t *testing.T) {
	indexer := &fakeIndexer{block: 1}
	engine := &fakeEngine{}
	r := NewChainRunner(1, indexer, engine, time.Second, 1, zap.NewNop())

	r.tick(context.Background())
	indexer.syncFunc = func() error { return errors.New("chunk failed") }
	indexer.block = 2
	r.tick(context.Background())

	if engine.runs != 1 {
		t.Errorf("expected engine to skip the failed cycle, got %d runs", engine.runs)
	}
}

func TestChainRunner_PanicIsIsolated(t *testing.T) {
	indexer := &fakeIndexer{block: 1}
	engine := &fakeEngine{runFunc: func() ([]AttemptResult, error) {
		panic("boom")
	}}
	r := NewChainRunner(1, indexer, engine, time.Second, 1, zap.NewNop())

	r.tick(context.Background())
	indexer.block = 2
	engine.runFunc = func() ([]AttemptResult, error) {
		return []AttemptResult{{Outcome: OutcomeLiquidated}, {Outcome: OutcomeSkipped}}, nil
	}
	r.tick(context.Background())

	if engine.runs != 2 {
		t.Errorf("expected the runner to survive a panic, got %d runs", engine.runs)
	}
}

func TestChainRunner_StartStop(t *testing.T) {
	indexer := &fakeIndexer{block: 1}
	engine := &fakeEngine{}
	r := NewChainRunner(1, indexer, engine, time.Hour, 1, zap.NewNop())

	r.Start(context.Background())
	r.Stop()

	if indexer.initCalls != 1 {
		t.Errorf("expected the first cycle to run on start, got %d inits", indexer.initCalls)
	}
	if indexer.waitCalls != 1 {
		t.Errorf("expected stop to wait for the indexer once, got %d", indexer.waitCalls)
	}
}
