package app

import (
	"context"
	"strings"

	"jobsched/internal/config"
	logx "jobsched/pkg/logx"
)

// reloadLoop applies published configs until ctx ends. Logging, executor,
// invoker, housekeeping and ops settings apply live; the rest is logged as
// needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		var newCfg *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			newCfg = c
		}
		// Coalesce bursts to the newest config.
	drain:
		for {
			select {
			case newer, ok := <-sub:
				if !ok {
					break drain
				}
				if newer != nil {
					newCfg = newer
				}
			default:
				break drain
			}
		}
		if newCfg == nil {
			continue
		}

		sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
		lastApplied = newCfg
		if len(sections) == 0 {
			a.log.Debug("config reload received, but no effective changes detected")
			continue
		}
		a.apply(ctx, newCfg)

		if restart := config.RestartRequired(sections); len(restart) > 0 {
			a.log.Warn("config changed; restart required for these sections", logx.String("sections", strings.Join(restart, ",")))
		}
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Info("config reloaded", fields...)
	}
}

func (a *App) apply(ctx context.Context, cfg *config.Config) {
	if err := a.logs.Apply(mapLoggingConfig(cfg)); err != nil {
		a.log.Warn("log file unavailable; logging to console", logx.Err(err))
	}

	if ec, err := mapEngineConfig(cfg); err != nil {
		a.log.Warn("invalid executor config; keeping previous", logx.Err(err))
	} else {
		a.pool.Apply(ctx, ec)
	}

	if ic, err := mapInvokerConfig(cfg); err != nil {
		a.log.Warn("invalid invoker config; keeping previous", logx.Err(err))
	} else {
		a.inv.Apply(ic)
	}

	hc := mapHousekeepingConfig(cfg)
	a.hk.Apply(hc)
	if err := a.hk.Register(hc, a.sched, a.pool, a.store); err != nil {
		a.log.Warn("invalid housekeeping config; keeping previous", logx.Err(err))
	}

	if oc, err := mapOpsConfig(cfg); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, oc)
	}
}
