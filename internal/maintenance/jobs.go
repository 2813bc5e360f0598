package maintenance

import (
	"context"
	"time"

	"screenqa/pkg/logx"
)

// Pruner is the part of the history store the prune job needs.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Reporter renders a one-line summary.
type Reporter interface {
	Report() string
}

// PruneJob deletes history older than retention.
func PruneJob(spec string, p Pruner, retention time.Duration, log logx.Logger) Job {
	return Job{
		Name:    "history.prune",
		Spec:    spec,
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			cutoff := time.Now().Add(-retention)
			n, err := p.Prune(ctx, cutoff)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info("history pruned", logx.Int("rows", n), logx.Time("before", cutoff))
			}
			return nil
		},
	}
}

// ReportJob logs the stats report.
func ReportJob(spec string, r Reporter, log logx.Logger) Job {
	return Job{
		Name: "stats.report",
		Spec: spec,
		Run: func(context.Context) error {
			log.Info("stats", logx.String("report", r.Report()))
			return nil
		},
	}
}
