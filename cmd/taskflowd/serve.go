package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taskflow-dev/taskflowmcp/internal/config"
	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
	"github.com/taskflow-dev/taskflowmcp/internal/logging"
	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/metrics"
	"github.com/taskflow-dev/taskflowmcp/internal/qualitygate"
	"github.com/taskflow-dev/taskflowmcp/internal/scheduler"
	"github.com/taskflow-dev/taskflowmcp/internal/security"
	"github.com/taskflow-dev/taskflowmcp/internal/stophooks"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
	"github.com/taskflow-dev/taskflowmcp/internal/tools/checkpoint"
	"github.com/taskflow-dev/taskflowmcp/internal/tools/entities"
	"github.com/taskflow-dev/taskflowmcp/internal/tools/hooks"
	iterationtools "github.com/taskflow-dev/taskflowmcp/internal/tools/iteration"
	"github.com/taskflow-dev/taskflowmcp/internal/tools/preflight"
	"github.com/taskflow-dev/taskflowmcp/internal/tools/stream"
	"github.com/taskflow-dev/taskflowmcp/internal/validation"
)

// serveCmd starts the MCP stdio server (and, if enabled, the read-only
// HTTP mirror) and blocks until the process receives SIGINT/SIGTERM.
//
// Optional environment variables (internal/config.Load documents the
// full list and precedence order):
//
//	TASKFLOW_CONFIG                  - path to a taskflow.toml config file
//	TASKFLOW_WORKSPACE_ID             - workspace identifier (default: path hash of cwd)
//	TASKFLOW_WORKSPACE_PATH           - workspace root (default: cwd)
//	TASKFLOW_STORE_PATH               - store file path (default: .taskflow/store.db)
//	TASKFLOW_HTTP_ENABLED             - enable the read-only HTTP mirror (default: true)
//	TASKFLOW_HTTP_PORT                - HTTP mirror port (default: 7420)
//	TASKFLOW_LOG_LEVEL                - debug, info, warn, error (default: info)
//	TASKFLOW_SECURITY_HOOK_ENABLED    - enable the PreToolUse security pipeline (default: true)
//	TASKFLOW_AUTO_CHECKPOINT_ENABLED  - enable auto-checkpoint on status/iteration transitions (default: true)
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP stdio server and the read-only HTTP mirror",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.MustNew(cfg.Log.Level)
	defer logger.Sync() //nolint:errcheck

	version := cfg.Server.Version
	if Version != "dev" {
		version = Version
	}
	logger.Info("starting taskflowd",
		zap.String("version", version),
		zap.String("workspace_id", cfg.Workspace.ID),
		zap.String("store_path", cfg.Store.Path),
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	bus := eventbus.New(logger)
	bus.Subscribe(eventbus.TaskCreated, func(evt eventbus.Event) {
		logger.Debug("event", zap.String("topic", string(evt.Topic)), zap.Any("payload", evt.Payload))
	})
	metrics.Observe(bus)

	validators := validation.NewRegistry()
	workProductRules := validation.NewWorkProductRegistry()
	gateCache := qualitygate.NewCache(filepath.Join(cfg.Workspace.Path, ".claude", "quality-gates.json"))
	securityRegistry := security.Default()
	stopHooks := stophooks.New()

	registry := mcp.NewRegistry()

	// Entity tools.
	registry.Register(
		entities.NewInitiativeLink(db, bus),
		entities.NewInitiativeArchive(db, filepath.Join(cfg.Workspace.Path, ".taskflow", "archives"), logger),
		entities.NewInitiativeWipe(db),
		entities.NewProgressSummary(db),
		entities.NewPRDCreate(db, bus),
		entities.NewPRDGet(db),
		entities.NewPRDList(db),
		entities.NewTaskCreate(db, bus, logger),
		entities.NewTaskUpdate(db, bus, validators, gateCache, cfg.Workspace.Path, cfg.Checkpoint.AutoEnabled, logger),
		entities.NewTaskGet(db),
		entities.NewTaskList(db),
		entities.NewWorkProductStore(db, bus, workProductRules),
		entities.NewWorkProductGet(db),
		entities.NewWorkProductList(db),
		entities.NewScopeChangeRequest(db, bus),
		entities.NewScopeChangeReview(db),
		entities.NewScopeChangeList(db),
		entities.NewAgentHandoff(db, bus),
		entities.NewAgentChainGet(db),
		entities.NewAgentPerformanceGet(db),
		entities.NewProtocolViolationLog(db),
		entities.NewProtocolViolationsGet(db),
		entities.NewActivityList(db),
	)

	// Checkpoint subsystem.
	registry.Register(
		checkpoint.NewCreate(db, bus),
		checkpoint.NewGet(db),
		checkpoint.NewList(db),
		checkpoint.NewResume(db, bus),
		checkpoint.NewCleanup(db),
	)

	// Stream subsystem.
	registry.Register(
		stream.NewList(db),
		stream.NewGet(db),
		stream.NewConflictCheck(db),
		stream.NewArchiveAll(db, bus),
		stream.NewUnarchive(db),
	)

	// Iteration engine.
	registry.Register(
		iterationtools.NewStart(db, bus),
		iterationtools.NewValidate(db, bus, stopHooks),
		iterationtools.NewNext(db, bus),
		iterationtools.NewComplete(db, bus, stopHooks, gateCache, cfg.Workspace.Path),
	)

	// Security hook management.
	if cfg.Security.HookEnabled {
		registry.Register(
			hooks.NewRegister(securityRegistry),
			hooks.NewList(securityRegistry),
			hooks.NewTest(securityRegistry),
			hooks.NewToggle(securityRegistry),
		)
	}

	// Preflight probe.
	registry.Register(preflight.NewCheck(db, cfg.Workspace.Path))

	maint := scheduler.New(logger.Named("maintenance"),
		scheduler.CheckpointSweep(db),
		scheduler.GateConfigRefresh(gateCache),
	)
	maint.Start(ctx)
	defer maint.Stop()

	if cfg.HTTP.Enabled {
		mux := mcp.NewHTTPMux(registry, logger)
		httpServer := &http.Server{
			Addr:              "127.0.0.1:" + cfg.HTTP.Port,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("starting read-only HTTP mirror", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http mirror exited", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
	}

	server := mcp.NewServer(registry, mcp.ServerInfo{Name: cfg.Server.Name, Version: version}, logger)
	if cfg.Security.HookEnabled {
		server.SetPreToolUse(func(toolName string, args json.RawMessage) error {
			input := map[string]any{}
			if len(args) > 0 {
				_ = json.Unmarshal(args, &input)
			}
			dec := securityRegistry.Decide(security.Input{ToolName: toolName, ToolInput: input})
			if !dec.Allowed {
				return fmt.Errorf("blocked by security hook pipeline: %s", securityBlockReason(dec))
			}
			return nil
		})
	}
	return server.Run(ctx)
}

// securityBlockReason joins the blocking violations' reasons for the
// error returned to the caller.
func securityBlockReason(dec security.Decision) string {
	for _, v := range dec.Violations {
		if v.Action == security.ActionBlock {
			return v.Reason
		}
	}
	return "policy violation"
}
