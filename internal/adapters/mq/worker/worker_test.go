package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/volregime/internal/adapters/mq/queue"
	worker "github.com/okian/volregime/internal/adapters/mq/worker"
	"github.com/smartystreets/goconvey/convey"
)

func filledQueue(n int) *queue.InMemoryQueue {
	q := queue.NewInMemoryQueue(queue.WithCapacity(n))
	for i := 0; i < n; i++ {
		q.Enqueue(context.Background(), queue.Job{ChainID: i, Seed: uint64(100 + i)})
	}
	_ = q.Close()
	return q
}

func TestPool(t *testing.T) {
	convey.Convey("Given a closed queue of jobs", t, func() {
		ctx := context.Background()

		convey.Convey("When every job succeeds", func() {
			q := filledQueue(8)
			var mu sync.Mutex
			seeds := make(map[int]uint64)
			pool := worker.NewPool(3, q, worker.RunnerFunc(func(_ context.Context, j worker.Job) error {
				mu.Lock()
				defer mu.Unlock()
				seeds[j.ChainID] = j.Seed
				return nil
			}))
			pool.Start(ctx)

			convey.So(pool.Wait(), convey.ShouldBeNil)
			convey.So(pool.Size(), convey.ShouldEqual, 3)
			convey.So(seeds, convey.ShouldHaveLength, 8)
			convey.So(seeds[5], convey.ShouldEqual, 105)
		})

		convey.Convey("When a job fails", func() {
			q := filledQueue(8)
			boom := errors.New("boom")
			pool := worker.NewPool(2, q, worker.RunnerFunc(func(ctx context.Context, j worker.Job) error {
				if j.ChainID == 1 {
					return boom
				}
				return nil
			}))
			pool.Start(ctx)

			err := pool.Wait()
			convey.So(errors.Is(err, boom), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "chain 1")
		})

		convey.Convey("When the caller cancels", func() {
			q := filledQueue(4)
			cctx, cancel := context.WithCancel(ctx)
			pool := worker.NewPool(4, q, worker.RunnerFunc(func(ctx context.Context, _ worker.Job) error {
				<-ctx.Done()
				return ctx.Err()
			}))
			pool.Start(cctx)
			time.AfterFunc(10*time.Millisecond, cancel)

			err := pool.Wait()
			convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
		})
	})
}

func TestWorkerDrainsQueue(t *testing.T) {
	convey.Convey("Given a single worker", t, func() {
		q := filledQueue(3)
		var n atomic.Int32
		w := worker.NewInMemoryWorker(q, worker.RunnerFunc(func(context.Context, worker.Job) error {
			n.Add(1)
			return nil
		}), worker.WithName("solo"))

		convey.So(w.Run(context.Background()), convey.ShouldBeNil)
		convey.So(n.Load(), convey.ShouldEqual, 3)
	})
}
