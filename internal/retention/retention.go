package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wwwzy/SalesAgent/internal/storage"
)

// Result 为一次清理删除的行数。
type Result struct {
	Sessions int64
	Audit    int64
}

// Pruner 按保留策略分批删除过期的会话快照与审计记录。
type Pruner struct {
	cfg    Config
	store  *storage.Storage
	logger *slog.Logger
}

func NewPruner(store *storage.Storage, cfg Config, logger *slog.Logger) (*Pruner, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{cfg: cfg.withDefaults(), store: store, logger: logger}, nil
}

// Run 立即清理一次，之后按 Interval 周期执行，直到 ctx 结束。
func (p *Pruner) Run(ctx context.Context) error {
	if p == nil || p.store == nil {
		return errors.New("pruner not initialized")
	}

	if _, err := p.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

// RunOnce 以 now 为基准执行一轮清理。
func (p *Pruner) RunOnce(ctx context.Context, now time.Time) (Result, error) {
	if p == nil || p.store == nil {
		return Result{}, errors.New("pruner not initialized")
	}

	var sessions, audit atomic.Int64
	var tasks []func(context.Context) error

	if p.cfg.Sessions.KeepAll > 0 {
		cut := now.Add(-p.cfg.Sessions.KeepAll)
		tasks = append(tasks, func(ctx context.Context) error {
			return p.deleteBatches(ctx, &sessions, func(ctx context.Context) (int64, error) {
				return p.store.DeleteSessionSnapshotsBeforeLimited(ctx, cut, p.cfg.BatchRows)
			})
		})
	}
	if p.cfg.Audit.KeepAll > 0 || p.cfg.Audit.KeepLatest > 0 {
		cut := now.Add(-p.cfg.Audit.KeepAll)
		tasks = append(tasks, func(ctx context.Context) error {
			if p.cfg.Audit.KeepAll > 0 {
				err := p.deleteBatches(ctx, &audit, func(ctx context.Context) (int64, error) {
					return p.store.DeleteAuditRecordsBeforeLimited(ctx, cut, p.cfg.BatchRows)
				})
				if err != nil {
					return err
				}
			}
			if p.cfg.Audit.KeepLatest <= 0 {
				return nil
			}
			n, err := p.store.DeleteAuditRecordsKeepLatest(ctx, p.cfg.Audit.KeepLatest)
			audit.Add(n)
			return err
		})
	}
	if len(tasks) == 0 {
		return Result{}, nil
	}

	workers := p.cfg.Workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	jobs := make(chan func(context.Context) error)
	errs := make(chan error, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
					errs <- err
				}
			}
		}()
	}

	result := func() Result {
		return Result{Sessions: sessions.Load(), Audit: audit.Load()}
	}

	for _, t := range tasks {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			close(errs)
			return result(), ctx.Err()
		case jobs <- t:
		}
	}
	close(jobs)
	wg.Wait()
	close(errs)

	res := result()
	for err := range errs {
		if err != nil {
			p.cfg.OnError(err)
			p.logger.Error("retention run failed", "error", err)
			return res, err
		}
	}
	if res.Sessions > 0 || res.Audit > 0 {
		p.logger.Info("retention pruned rows", "sessions", res.Sessions, "audit", res.Audit)
	}
	return res, nil
}

func (p *Pruner) deleteBatches(ctx context.Context, total *atomic.Int64, del func(context.Context) (int64, error)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		affected, err := del(ctx)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		total.Add(affected)
		if err := p.sleepIdle(ctx); err != nil {
			return err
		}
	}
}

func (p *Pruner) sleepIdle(ctx context.Context) error {
	if p.cfg.IdleSleep <= 0 {
		return nil
	}
	timer := time.NewTimer(p.cfg.IdleSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
