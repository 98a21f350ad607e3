package broadcast

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Copier copies one existing message into another chat.
type Copier interface {
	CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error)
}

type Options struct {
	ChunkSize   int
	Concurrency int
	// PerSecond caps sends across the whole run; 0 disables the cap.
	PerSecond float64
}

type Result struct {
	RunID  string
	Sent   int
	Failed int
}

type Broadcaster struct {
	copier Copier
	opts   Options
	log    hclog.Logger
}

func New(copier Copier, opts Options, log hclog.Logger) *Broadcaster {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 20
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Broadcaster{copier: copier, opts: opts, log: log}
}

// Run copies the source message to every recipient. Recipients are handled in
// chunks; a chunk finishes before the next one starts. Failed sends are
// counted and never retried.
func (b *Broadcaster) Run(ctx context.Context, fromChatID int64, messageID int, recipients []int64) Result {
	res := Result{RunID: uuid.NewString()}
	log := b.log.With("run_id", res.RunID)
	start := time.Now()

	var limiter *rate.Limiter
	if b.opts.PerSecond > 0 {
		burst := int(b.opts.PerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(b.opts.PerSecond), burst)
	}

	log.Info("broadcast started", "recipients", len(recipients), "from_chat_id", fromChatID)
	var sent, failed atomic.Int64
	for i := 0; i < len(recipients); i += b.opts.ChunkSize {
		end := min(i+b.opts.ChunkSize, len(recipients))
		var g errgroup.Group
		g.SetLimit(b.opts.Concurrency)
		for _, uid := range recipients[i:end] {
			g.Go(func() error {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						failed.Add(1)
						return nil
					}
				}
				if _, err := b.copier.CopyMessage(ctx, uid, fromChatID, messageID); err != nil {
					log.Warn("broadcast send failed", "user_id", uid, "error", err)
					failed.Add(1)
					return nil
				}
				sent.Add(1)
				return nil
			})
		}
		_ = g.Wait()
	}
	res.Sent, res.Failed = int(sent.Load()), int(failed.Load())
	log.Info("broadcast finished", "sent", res.Sent, "failed", res.Failed, "took", time.Since(start))
	return res
}
