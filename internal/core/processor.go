package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"sar-colorizer/internal/core/utils"
	"sar-colorizer/internal/messaging"

	"golang.org/x/sync/errgroup"
)

type TaskProcessor struct {
	relay       *Relay
	publisher   messaging.Publisher
	reciever    messaging.Reciever
	concurrency int
	taskTimeout time.Duration
	inFlight    *utils.KeySet
}

// NewTaskProcessor creates a processor running up to concurrency tasks at
// once. taskTimeout bounds a single task; zero means no bound.
func NewTaskProcessor(relay *Relay, publisher messaging.Publisher, reciever messaging.Reciever, concurrency int, taskTimeout time.Duration) *TaskProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &TaskProcessor{
		relay:       relay,
		publisher:   publisher,
		reciever:    reciever,
		concurrency: concurrency,
		taskTimeout: taskTimeout,
		inFlight:    utils.NewKeySet(concurrency),
	}
}

// Start consumes tasks on concurrency goroutines until ctx is cancelled or
// the receiver is closed. Cancelling ctx only stops intake: tasks already
// running finish before Start returns.
func (proc *TaskProcessor) Start(ctx context.Context) error {
	slog.Info("starting task processor", "concurrency", proc.concurrency)

	var g errgroup.Group
	for i := 0; i < proc.concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case task, ok := <-proc.reciever.Tasks():
					if !ok {
						return nil
					}
					if ctx.Err() != nil {
						requeue(task)
						return nil
					}
					proc.ProcessTask(ctx, task)
				case <-ctx.Done():
					return nil
				}
			}
		})
	}
	return g.Wait()
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.publisher.Close()
	proc.reciever.Close()
}

func (proc *TaskProcessor) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if proc.taskTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, proc.taskTimeout)
}

// ProcessTask runs a single task. Cancellation of ctx does not reach the task;
// it runs on a detached context bounded by the task timeout.
func (proc *TaskProcessor) ProcessTask(ctx context.Context, task messaging.Task) {
	var err error
	switch task.Type() {

	case messaging.ColorizeQueue:
		var payload messaging.ColorizeTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil || payload.JobId == "" {
			slog.Error("error unmarshalling colorize task", "error", err)
			if err := task.Reject(); err != nil { // discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		claimed, claimErr := proc.inFlight.TryAdd(payload.JobId)
		if claimErr != nil {
			slog.Error("no capacity to claim job, requeueing task", "job_id", payload.JobId, "error", claimErr)
			requeue(task)
			return
		}
		// A redelivered task for a job this process is already working on is
		// dropped; the running attempt records the outcome.
		if !claimed {
			slog.Info("job already in progress, dropping duplicate task", "job_id", payload.JobId)
			if err := task.Ack(); err != nil {
				slog.Error("error acknowledging message from queue", "error", err)
			}
			return
		}
		taskCtx, cancel := proc.taskContext(ctx)
		err = proc.relay.ProcessJob(taskCtx, payload.JobId)
		cancel()
		proc.inFlight.Remove(payload.JobId)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	switch {
	case errors.Is(err, ErrJobInterrupted):
		slog.Warn("task interrupted, requeueing", "queue", task.Type(), "error", err)
		requeue(task)
	case err != nil:
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	default:
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func requeue(task messaging.Task) {
	if err := task.Requeue(); err != nil {
		// The job is still PENDING; startup requeueing or the job timeout
		// settles it.
		slog.Error("error requeueing message", "queue", task.Type(), "error", err)
	}
}
