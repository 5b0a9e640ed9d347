package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/frameit/internal/adapters/mq/queue"
	worker "github.com/okian/frameit/internal/adapters/mq/worker"
	model "github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/progression"
	logging "github.com/okian/frameit/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// mockQueue hands out one shared channel.
type mockQueue struct {
	eventChan chan queue.Event
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 100)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Event { return mq.eventChan }

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.eventChan) })
	return nil
}

// openQueue has no Close method.
type openQueue struct{ ch chan queue.Event }

func (q openQueue) Dequeue(ctx context.Context) <-chan queue.Event { return q.ch }

// mockAwarder records applied events and fails for configured users.
type mockAwarder struct {
	mu      sync.Mutex
	applied map[string]int64
	fail    map[string]error
}

func newMockAwarder() *mockAwarder {
	return &mockAwarder{applied: map[string]int64{}, fail: map[string]error{}}
}

func (m *mockAwarder) ApplyXPEvent(ctx context.Context, e model.XPEvent) (progression.AwardResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[e.UserID]; ok {
		return progression.AwardResult{}, err
	}
	prev := m.applied[e.UserID]
	m.applied[e.UserID] = prev + e.Amount
	before := progression.CalculateLevel(prev)
	after := progression.CalculateLevel(prev + e.Amount)
	return progression.AwardResult{
		UserID: e.UserID, Gained: e.Amount, XP: prev + e.Amount,
		PreviousLevel: before, Level: after, LevelChanged: before != after,
	}, nil
}

func (m *mockAwarder) total(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[userID]
}

func (m *mockAwarder) setError(userID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[userID] = err
}

func event(id, user string, amount int64) model.XPEvent {
	return model.XPEvent{EventID: id, UserID: user, Amount: amount, Reason: model.ReasonQuestCompleted}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()
		q := newMockQueue()
		awarder := newMockAwarder()

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, awarder, worker.WithName("w-1"), worker.WithLogger(logging.Get()))
			convey.So(w, convey.ShouldNotBeNil)
		})

		convey.Convey("When running a worker", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			w := worker.NewInMemoryWorker(q, awarder)
			go w.Run(ctx)

			convey.Convey("And when processing events", func() {
				q.eventChan <- event("e1", "u1", 300)
				q.eventChan <- event("e2", "u1", 300)

				convey.Convey("Then the XP is applied", func() {
					convey.So(waitFor(func() bool { return awarder.total("u1") == 600 }), convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when the awarder fails", func() {
				awarder.setError("u2", errors.New("store down"))
				q.eventChan <- event("e3", "u2", 100)
				q.eventChan <- event("e4", "u1", 50)

				convey.Convey("Then the worker keeps going", func() {
					convey.So(waitFor(func() bool { return awarder.total("u1") == 50 }), convey.ShouldBeTrue)
					convey.So(awarder.total("u2"), convey.ShouldEqual, 0)
				})
			})

			convey.Convey("And when shutting down", func() {
				sctx, scancel := context.WithTimeout(context.Background(), time.Second)
				defer scancel()

				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			w := worker.NewInMemoryWorker(q, awarder)
			go w.Run(ctx)
			cancel()

			convey.Convey("Then worker should stop", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When queue channel is closed", func() {
			w := worker.NewInMemoryWorker(q, awarder)
			go w.Run(context.Background())
			_ = q.Close()

			convey.Convey("Then worker should stop", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()
		q := newMockQueue()
		awarder := newMockAwarder()

		convey.Convey("When creating a pool with default count", func() {
			pool := worker.NewPool(0, q, awarder)
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("When processing many events concurrently", func() {
			pool := worker.NewPool(4, q, awarder)
			pool.Start(context.Background())

			const users, perUser = 5, 20
			// The mock channel buffers all of them.
			for i := 0; i < users; i++ {
				for j := 0; j < perUser; j++ {
					q.eventChan <- event(fmt.Sprintf("e-%d-%d", i, j), fmt.Sprintf("u%d", i), 10)
				}
			}

			convey.Convey("Then every event is applied once", func() {
				convey.So(waitFor(func() bool { return pool.Processed() == users*perUser }), convey.ShouldBeTrue)
				for i := 0; i < users; i++ {
					convey.So(awarder.total(fmt.Sprintf("u%d", i)), convey.ShouldEqual, perUser*10)
				}
				convey.So(pool.Failed(), convey.ShouldEqual, 0)
			})

			convey.Convey("And shutdown drains and returns", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When failures happen", func() {
			awarder.setError("bad", errors.New("nope"))
			pool := worker.NewPool(2, q, awarder)
			pool.Start(context.Background())
			q.eventChan <- event("e1", "bad", 10)
			q.eventChan <- event("e2", "good", 10)

			convey.Convey("Then they are counted separately", func() {
				convey.So(waitFor(func() bool { return pool.Processed() == 1 && pool.Failed() == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the queue cannot be closed", func() {
			oq := openQueue{ch: make(chan queue.Event)}
			pool := worker.NewPool(2, oq, awarder)
			pool.Start(context.Background())

			convey.Convey("Then shutdown still stops the workers", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
