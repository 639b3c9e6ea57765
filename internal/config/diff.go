package config

import (
	"reflect"
	"slices"
	"sort"
	"strings"

	"snotify/pkg/logx"
)

// SummarizeChange returns (1) a sorted list of changed sections, (2) safe
// structured fields for logging (never secrets), and (3) the names of
// channels that were added, removed or modified.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !slices.Equal(oldCfg.Dispatch.FallbackOrder, newCfg.Dispatch.FallbackOrder) ||
		oldCfg.Dispatch.Strict != newCfg.Dispatch.Strict {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Strings("dispatch.fallback_order", newCfg.Dispatch.FallbackOrder),
			logx.Bool("dispatch.strict", newCfg.Dispatch.Strict),
		)
	}

	channels := diffChannels(oldCfg.Channels, newCfg.Channels)
	if len(channels) > 0 {
		changed = append(changed, "channels")
		attrs = append(attrs,
			logx.Strings("channels.changed", channels),
			logx.Int("channels.count", len(newCfg.Channels)),
		)
	}

	oHTTP, nHTTP := derefHTTP(oldCfg.HTTP), derefHTTP(newCfg.HTTP)
	if (oldCfg.HTTP == nil) != (newCfg.HTTP == nil) || oHTTP != nHTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP != nil),
			logx.String("http.addr", strings.TrimSpace(nHTTP.Addr)),
			logx.Bool("http.token_set", strings.TrimSpace(nHTTP.Token) != ""),
		)
	}

	oStore, nStore := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oStore != nStore {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nStore.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(nStore.Path) != ""),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler || !slices.Equal(oldCfg.Schedules, newCfg.Schedules) {
		changed = append(changed, "schedules")
		attrs = append(attrs,
			logx.Int("schedules.count", len(newCfg.Schedules)),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}

	sort.Strings(changed)
	return changed, attrs, channels
}

func derefHTTP(h *HTTPConfig) HTTPConfig {
	if h == nil {
		return HTTPConfig{}
	}
	return *h
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func diffChannels(oldL, newL []ChannelConfig) []string {
	oldM := make(map[string]ChannelConfig, len(oldL))
	for _, c := range oldL {
		oldM[c.Name] = c
	}
	newM := make(map[string]ChannelConfig, len(newL))
	for _, c := range newL {
		newM[c.Name] = c
	}

	var out []string
	for name, o := range oldM {
		n, ok := newM[name]
		if !ok || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	for name := range newM {
		if _, ok := oldM[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
