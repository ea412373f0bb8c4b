// Package orchestrator drives accepted confirmations through their protocol
// executor. It runs as a background sweep so decisions return immediately
// and execution survives process restarts: an accepted confirmation stays
// ACCEPTED until a sweep claims it.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"tradecast/internal/confirm"
	"tradecast/internal/executor"
	"tradecast/internal/metrics"
	"tradecast/internal/models"
)

// Store is the storage surface the coordinator needs.
type Store interface {
	ListAcceptedConfirmations(ctx context.Context, limit int) ([]*models.Confirmation, error)
	GetBroadcast(ctx context.Context, id int64) (*models.Broadcast, error)
}

// Coordinator picks up accepted confirmations and executes them on-chain.
// Each sweep batch fans out over a bounded worker pool; the guarded
// EXECUTING transition keeps two workers from claiming the same
// confirmation.
type Coordinator struct {
	store       Store
	machine     *confirm.Machine
	executors   *executor.Registry
	every       time.Duration
	batchSize   int
	workerCount int
}

// New creates a Coordinator sweeping at the given interval.
func New(store Store, machine *confirm.Machine, executors *executor.Registry, every time.Duration) *Coordinator {
	workerCount := int(float64(runtime.NumCPU()) * 0.75)
	if workerCount < 2 {
		workerCount = 2
	}

	return &Coordinator{
		store:       store,
		machine:     machine,
		executors:   executors,
		every:       every,
		batchSize:   50,
		workerCount: workerCount,
	}
}

// Run sweeps until ctx ends.
func (o *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.every)
	defer ticker.Stop()

	slog.Info("Execution coordinator started", "interval", o.every)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Sweep(ctx); err != nil {
				slog.Error("Execution sweep failed", "error", err)
				metrics.ErrorsTotal.WithLabelValues("orchestrator").Inc()
			}
		}
	}
}

// Sweep executes one batch of accepted confirmations. Returns the number
// that reached a terminal outcome this pass.
func (o *Coordinator) Sweep(ctx context.Context) (int, error) {
	accepted, err := o.store.ListAcceptedConfirmations(ctx, o.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list accepted confirmations: %w", err)
	}

	if len(accepted) == 0 {
		return 0, nil
	}

	jobs := make(chan *models.Confirmation, len(accepted))
	for _, c := range accepted {
		jobs <- c
	}
	close(jobs)

	var settled atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < o.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				if err := o.executeOne(ctx, c); err != nil {
					slog.Error("Confirmation execution failed",
						"confirmation_id", c.ID,
						"broadcast_id", c.BroadcastID,
						"error", err,
					)
					metrics.ErrorsTotal.WithLabelValues("orchestrator").Inc()
					continue
				}
				settled.Add(1)
			}
		}()
	}
	wg.Wait()

	return int(settled.Load()), nil
}

func (o *Coordinator) executeOne(ctx context.Context, c *models.Confirmation) error {
	b, err := o.store.GetBroadcast(ctx, c.BroadcastID)
	if err != nil {
		return fmt.Errorf("failed to load broadcast %d: %w", c.BroadcastID, err)
	}

	exec, err := o.executors.For(b.Protocol)
	if err != nil {
		return err
	}

	// Claim via the guarded transition; a miss means another sweep, or a
	// concurrent instance, already owns this confirmation.
	claimed, err := o.machine.MarkExecuting(ctx, c.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	params := c.OriginalParameters
	if c.ModifiedParameters != nil {
		params = c.ModifiedParameters
	}

	req := &models.ExecutionRequest{
		Protocol:     b.Protocol,
		FunctionName: b.FunctionName,
		Parameters:   params,
		Network:      b.Network,
		Contract:     b.ContractAddress,
		GasPrice:     c.GasPrice,
	}

	result, err := exec.Execute(ctx, req)
	if err != nil || result == nil || result.Status != "submitted" {
		msg := "execution failed"
		if err != nil {
			msg = err.Error()
		} else if result != nil && result.ErrorMessage != "" {
			msg = result.ErrorMessage
		}
		if _, markErr := o.machine.MarkFailed(ctx, c.ID, msg); markErr != nil {
			return markErr
		}
		slog.Warn("Confirmation execution failed on-chain",
			"confirmation_id", c.ID,
			"broadcast_id", c.BroadcastID,
			"reason", msg,
		)
		return nil
	}

	if _, err := o.machine.MarkExecuted(ctx, c.ID, result.TxHash, result.GasPrice); err != nil {
		return err
	}

	slog.Info("Confirmation executed",
		"confirmation_id", c.ID,
		"broadcast_id", c.BroadcastID,
		"tx_hash", result.TxHash,
		"gas_used", result.GasUsed,
	)
	return nil
}
