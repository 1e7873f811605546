// Package sdnotify reports service state to systemd via sd_notify.
//
// All calls are no-ops outside a systemd unit (no NOTIFY_SOCKET), so the
// bot behaves the same under systemd, in a container, or on a dev shell.
package sdnotify

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tailbot/pkg/logx"
)

// Ready tells systemd the service finished starting up.
func Ready(log logx.Logger) {
	notify(log, daemon.SdNotifyReady, "ready")
}

// Stopping tells systemd the service began shutting down.
func Stopping(log logx.Logger) {
	notify(log, daemon.SdNotifyStopping, "stopping")
}

func notify(log logx.Logger, state, what string) {
	acked, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", what), logx.Err(err))
		return
	}
	if acked {
		log.Debug("sd_notify sent", logx.String("state", what))
	}
}

// Watchdog feeds the systemd watchdog until ctx is canceled.
//
// It returns immediately with nil when WatchdogSec is not configured for the
// unit. The keepalive interval is half the configured timeout, per the
// sd_watchdog_enabled(3) recommendation.
func Watchdog(ctx context.Context, log logx.Logger) error {
	timeout, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if timeout == 0 {
		return nil
	}

	interval := timeout / 2
	log.Info("systemd watchdog enabled", logx.Duration("interval", interval))

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("watchdog keepalive failed", logx.Err(err))
			}
		}
	}
}
