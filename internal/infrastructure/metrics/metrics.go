// Package metrics exposes the process's Prometheus gauges and counters
// (SPEC_FULL §D: live-bot-count-by-status, monitor interval per bot/kind,
// reconciliation-action counters, event-bus drops). Ambient observability,
// not excluded by any Non-goal.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LiveBotsByStatus tracks how many bots BotSupervisor currently reports
	// in each BotStatus value.
	LiveBotsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perpsup_live_bots",
		Help: "Number of bots currently in each lifecycle status",
	}, []string{"status"})

	// MonitorInterval reports a given (botId, kind) monitor loop's current
	// adaptive interval in seconds, per spec §4.5.
	MonitorInterval = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perpsup_monitor_interval_seconds",
		Help: "Current adaptive interval of a monitor loop",
	}, []string{"bot_id", "kind"})

	// GhostOrdersCancelledTotal counts OrderService.SyncWithExchange's ghost
	// cleanup rule firing (spec §4.6).
	GhostOrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perpsup_ghost_orders_cancelled_total",
		Help: "Total pending orders cancelled locally after exceeding the ghost TTL",
	})

	// OrphanOrdersCancelledTotal counts OrderService.ScanAndCleanupOrphans
	// firing (spec §4.6).
	OrphanOrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perpsup_orphan_orders_cancelled_total",
		Help: "Total reduce-only orders cancelled after their position closed",
	})

	// MissedFillsPatchedTotal counts OrderService.SyncWithExchange's
	// missed-fill reconciliation rule firing (spec §4.6).
	MissedFillsPatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perpsup_missed_fills_patched_total",
		Help: "Total local orders closed by reconstructing a fill the exchange reported but the local fill stream missed",
	})

	// EventBusDropsTotal mirrors eventbus.Bus.DropCount as a counter suitable
	// for alerting on a persistently slow subscriber.
	EventBusDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perpsup_eventbus_drops_total",
		Help: "Total events dropped because a subscriber's queue was full",
	})
)

// SetMonitorInterval records kind's current interval for botID in seconds.
func SetMonitorInterval(botID int64, kind string, seconds float64) {
	MonitorInterval.WithLabelValues(strconv.FormatInt(botID, 10), kind).Set(seconds)
}
