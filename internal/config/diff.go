package config

import (
	"sort"
	"strings"

	"notiq/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (broker URL, upload token) are
// reported as presence booleans, never as values.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Broker != newCfg.Broker {
		changed = append(changed, "broker")
		attrs = append(attrs,
			logx.Bool("broker.url_changed", oldCfg.Broker.URL != newCfg.Broker.URL),
			logx.String("broker.queue_prefix", newCfg.QueuePrefix()),
			logx.Bool("broker.confirms", newCfg.Broker.Confirms),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.MetricsAddr()),
		)
	}

	if oldCfg.Upload != newCfg.Upload {
		changed = append(changed, "upload")
		attrs = append(attrs,
			logx.Bool("upload.endpoint_set", strings.TrimSpace(newCfg.Upload.Endpoint) != ""),
			logx.Bool("upload.token_set", strings.TrimSpace(newCfg.Upload.Token) != ""),
			logx.String("upload.timeout", strings.TrimSpace(newCfg.Upload.Timeout)),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs, logx.String("delivery.queue", newCfg.DeliveryQueue()))
	}

	sort.Strings(changed)
	return changed, attrs
}
