package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"watchmand/internal/config"
)

// capabilityPrefix marks command capabilities in list-capabilities output.
const capabilityPrefix = "cmd-"

// RegisterBuiltins installs the daemon's builtin command set.
func RegisterBuiltins(reg *Registry) error {
	builtins := map[string]Handler{
		"version":           handleVersion,
		"get-pid":           handleGetPID,
		"get-sockname":      handleGetSockname,
		"list-capabilities": handleListCapabilities,
		"debug-status":      handleDebugStatus,
		"shutdown-server":   handleShutdownServer,
	}

	for name, h := range builtins {
		if err := reg.Register(name, h); err != nil {
			return fmt.Errorf("register builtin: %w", err)
		}
	}
	return nil
}

func handleVersion(_ context.Context, _ *Runtime, _ []any) (map[string]any, error) {
	// The version number itself rides on the envelope's version field;
	// buildinfo distinguishes this implementation from others speaking
	// the same protocol.
	return map[string]any{"buildinfo": "go"}, nil
}

func handleGetPID(_ context.Context, _ *Runtime, _ []any) (map[string]any, error) {
	return map[string]any{"pid": os.Getpid()}, nil
}

func handleGetSockname(_ context.Context, rt *Runtime, _ []any) (map[string]any, error) {
	return map[string]any{"sockname": rt.Sockname}, nil
}

func handleListCapabilities(_ context.Context, rt *Runtime, _ []any) (map[string]any, error) {
	names := rt.Registry.Names()
	caps := make([]string, 0, len(names))
	for _, name := range names {
		caps = append(caps, capabilityPrefix+name)
	}
	return map[string]any{"capabilities": caps}, nil
}

func handleDebugStatus(ctx context.Context, rt *Runtime, args []any) (map[string]any, error) {
	fields := map[string]any{
		"uptime_seconds": int64(time.Since(rt.StartedAt).Seconds()),
		"sockname":       rt.Sockname,
		"log_file":       rt.LogFile,
		"config_hash":    rt.ConfigHash,
	}

	// Re-hash the config file so edits made since startup are visible.
	if rt.ConfigPath != "" && rt.ConfigHash != "" {
		fields["config_drift"] = config.VerifyHash(rt.ConfigPath, rt.ConfigHash) != nil
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("inspect daemon process: %w", err)
	}
	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil {
		fields["memory_rss_bytes"] = memInfo.RSS
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		fields["num_threads"] = threads
	}

	if rt.Journal != nil {
		okCount, failed, err := rt.Journal.Counts(ctx)
		if err != nil {
			return nil, fmt.Errorf("read journal counts: %w", err)
		}
		fields["commands_ok"] = okCount
		fields["commands_failed"] = failed

		limit := 10
		if len(args) == 1 {
			// Accept a numeric limit argument: ["debug-status", 25].
			if n, ok := args[0].(float64); ok && n > 0 {
				limit = int(n)
			}
		}
		recent, err := rt.Journal.Recent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("read journal tail: %w", err)
		}
		tail := make([]map[string]any, 0, len(recent))
		for _, e := range recent {
			tail = append(tail, map[string]any{
				"id":          e.ID,
				"command":     e.Command,
				"outcome":     e.Outcome,
				"error":       e.Error,
				"received_at": e.ReceivedAt.Format(time.RFC3339Nano),
			})
		}
		fields["recent"] = tail
	}

	return fields, nil
}

func handleShutdownServer(_ context.Context, rt *Runtime, _ []any) (map[string]any, error) {
	if rt.Shutdown == nil {
		return nil, fmt.Errorf("shutdown not available")
	}
	rt.Shutdown()
	return map[string]any{"shutdown-server": true}, nil
}
