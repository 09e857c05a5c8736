package am

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/globalcalls/am.toml
	SourceUser        ConfigSource = "user"        // ~/.globalcalls/am.toml
	SourceProject     ConfigSource = "project"     // am.toml found walking up from cwd
	SourceEnvironment ConfigSource = "environment" // GLOBALCALLS_* env vars
)

// SourceInfo records the file or env var that last set a key
type SourceInfo struct {
	Source ConfigSource
	Path   string
}

// SettingInfo is one effective setting with its origin
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key"`
	Value      interface{}  `json:"value" yaml:"value"`
	Source     ConfigSource `json:"source" yaml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty"`
}

var (
	sourcesMu     sync.Mutex
	configSources = map[string]SourceInfo{}
)

// recordSource is called by mergeConfigFiles for every key a file sets
func recordSource(key string, info SourceInfo) {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()
	configSources[key] = info
}

func resetSources() {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()
	configSources = map[string]SourceInfo{}
}

// classifyPath maps a config file path to its cascade level
func classifyPath(path string) ConfigSource {
	if strings.HasPrefix(path, "/etc/") {
		return SourceSystem
	}
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(path, home+string(os.PathSeparator)+".globalcalls") {
		return SourceUser
	}
	return SourceProject
}

// Introspect flattens the effective configuration of v into sorted settings,
// each tagged with the source that produced its value.
func Introspect(v *viper.Viper) []SettingInfo {
	sourcesMu.Lock()
	snapshot := make(map[string]SourceInfo, len(configSources))
	for k, s := range configSources {
		snapshot[k] = s
	}
	sourcesMu.Unlock()

	var out []SettingInfo
	flattenSettings(v.AllSettings(), "", snapshot, &out)
	return out
}

func flattenSettings(settings map[string]interface{}, prefix string, sources map[string]SourceInfo, out *[]SettingInfo) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := settings[key]
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]interface{}); ok {
			flattenSettings(nested, fullKey, sources, out)
			continue
		}

		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sources[fullKey]; ok {
			info = si
		}

		envKey := "GLOBALCALLS_" + strings.ToUpper(strings.ReplaceAll(fullKey, ".", "_"))
		if os.Getenv(envKey) != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		// never echo credentials
		if fullKey == "database.dsn" && value != "" {
			value = "********"
		}

		*out = append(*out, SettingInfo{
			Key:        fullKey,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
}
