// Package config loads the scheduler backend's configuration once at
// startup into an immutable snapshot. Configuration is layered, highest
// priority last: a YAML file, an optional .env file, process environment
// variables, and cobra flags, merged with viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// DefaultPrefix is the configuration key prefix used when none is
	// supplied, mirroring the source system's "spark." namespace.
	DefaultPrefix = "spark"

	hostPortKey           = "hostPort"
	askTimeoutKey         = "akka.askTimeout"
	defaultParallelismKey = "default.parallelism"
)

// Snapshot is the immutable, once-read configuration the backend is
// constructed with. Callers must not mutate the Properties map after
// Load returns.
type Snapshot struct {
	// Prefix is the configuration namespace, e.g. "spark".
	Prefix string

	// ListenAddress is the gRPC bind address for incoming executor
	// connections.
	ListenAddress string

	// AdminAddress is the HTTP bind address for /stats and /metrics.
	AdminAddress string

	// AskTimeout bounds stop() and removeExecutor()'s ask-reply wait.
	AskTimeout time.Duration

	// DefaultParallelism, if non-nil, overrides defaultParallelism()'s
	// totalCoreCount-derived fallback.
	DefaultParallelism *int

	// Properties holds every "<prefix>.*" key (hostPort excluded),
	// forwarded verbatim to each registering executor.
	Properties map[string]string
}

// Load builds a Snapshot from (lowest to highest priority) a YAML file, a
// .env file, the process environment, and the flags of the cobra command,
// which Load binds to v.
func Load(v *viper.Viper, flags *cobra.Command, prefix, configFile, envFile string) (Snapshot, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	if envFile != "" {
		// godotenv populates the process environment; viper's
		// AutomaticEnv then picks the values up. A missing .env file is
		// not an error: it is optional layering, not a required source.
		if err := godotenv.Load(envFile); err != nil && !isNotExist(err) {
			return Snapshot{}, fmt.Errorf("config: loading env file %q: %w", envFile, err)
		}
	}

	v.SetEnvPrefix(strings.ToUpper(prefix))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return Snapshot{}, fmt.Errorf("config: reading %q: %w", configFile, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags.Flags()); err != nil {
			return Snapshot{}, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	v.SetDefault(askTimeoutKey, 10)

	askSeconds := v.GetInt(askTimeoutKey)
	if askSeconds <= 0 {
		askSeconds = 10
	}

	snap := Snapshot{
		Prefix:        prefix,
		ListenAddress: v.GetString("listen"),
		AdminAddress:  v.GetString("admin.listen"),
		AskTimeout:    time.Duration(askSeconds) * time.Second,
		Properties:    make(map[string]string),
	}

	if v.IsSet(defaultParallelismKey) {
		n := v.GetInt(defaultParallelismKey)
		snap.DefaultParallelism = &n
	}

	// v.AllKeys() only enumerates keys viper already knows about from a
	// config file, a bound flag, or an explicit default/BindEnv call — it
	// never enumerates a key that exists solely as a process environment
	// variable. Worse, because EnvPrefix here is set to the same string as
	// the domain prefix ("SPARK"), viper's own AutomaticEnv matching would
	// look for the doubled "SPARK_SPARK_EXECUTOR_MEMORY" for a property
	// key of "spark.executor.memory", not the single-prefixed
	// SPARK_EXECUTOR_MEMORY an operator would actually export. So a
	// "<prefix>.*" property supplied only via the environment is silently
	// dropped two ways over: unseen by AllKeys, and unresolved even if it
	// were. environProperties reads the raw environment directly, keyed
	// the way an operator expects, to close both gaps; its values win over
	// the YAML file for any key they cover, matching this package's
	// documented env-over-file precedence.
	envProps := environProperties(prefix)

	keys := make(map[string]bool, len(envProps))
	for _, key := range v.AllKeys() {
		keys[strings.ToLower(key)] = true
	}
	for key := range envProps {
		keys[key] = true
	}

	for key := range keys {
		if !strings.HasPrefix(key, prefix+".") {
			continue
		}
		name := strings.TrimPrefix(key, prefix+".")
		if name == strings.ToLower(hostPortKey) {
			continue
		}
		if value, ok := envProps[key]; ok {
			snap.Properties[key] = value
			continue
		}
		snap.Properties[key] = v.GetString(key)
	}

	return snap, nil
}

// environProperties scans the process environment for variables named
// <PREFIX>_..., the naming convention an operator would actually use, and
// returns them keyed by the dotted property name they forward as
// (lowercased, underscores back to dots). It reads the raw value rather
// than going through viper: EnvPrefix here equals the domain prefix, so
// viper's own AutomaticEnv matching would require a doubled prefix that no
// operator would write.
func environProperties(prefix string) map[string]string {
	envPrefix := strings.ToUpper(prefix) + "_"

	props := make(map[string]string)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		rest := strings.ToLower(strings.TrimPrefix(name, envPrefix))
		key := prefix + "." + strings.ReplaceAll(rest, "_", ".")
		props[key] = value
	}
	return props
}

// DefaultParallelismOrFallback applies the configured default parallelism
// override, or max(totalCoreCount, 2) when unset, per spec.
func (s Snapshot) DefaultParallelismOrFallback(totalCoreCount int) int {
	if s.DefaultParallelism != nil {
		return *s.DefaultParallelism
	}
	if totalCoreCount > 2 {
		return totalCoreCount
	}
	return 2
}

func isNotExist(err error) bool {
	return strings.Contains(err.Error(), "no such file") || strings.Contains(err.Error(), "not found")
}
