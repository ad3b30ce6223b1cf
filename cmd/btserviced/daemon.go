package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wxzhao/workstation/internal/btnodes"
	"github.com/wxzhao/workstation/internal/bttree"
	"github.com/wxzhao/workstation/internal/bus"
	"github.com/wxzhao/workstation/internal/config"
	"github.com/wxzhao/workstation/internal/correlation"
	"github.com/wxzhao/workstation/internal/faultrecovery"
	"github.com/wxzhao/workstation/internal/kv"
	"github.com/wxzhao/workstation/internal/logging"
	"github.com/wxzhao/workstation/internal/metrics"
	"github.com/wxzhao/workstation/internal/node"
	"github.com/wxzhao/workstation/internal/rpc"
	"github.com/wxzhao/workstation/internal/strand"
	"github.com/wxzhao/workstation/internal/trace"
	"github.com/wxzhao/workstation/internal/treerunner"
)

func daemonCmd() *cobra.Command {
	var (
		treeFile string
		rpcAddr  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the bt_service daemon",
		Long:  "Run bt_service as a daemon: tree hot-reload, tick loop, status correlation, and the RPC control plane.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("tree-file") {
				cfg.BT.TreeFile = treeFile
			}
			if cmd.Flags().Changed("rpc-addr") {
				cfg.RPC.Addr = rpcAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}

			logging.SetLevelFromString(cfg.Logging.Level)
			logging.InitStructured(cfg.Logging.Format, cfg.Logging.Level)

			var collectors *metrics.Collectors
			if cfg.Metrics.Enabled {
				collectors = metrics.New(cfg.Metrics.Namespace)
			}

			var commandBus bus.Bus
			switch cfg.Bus.Backend {
			case "redis":
				client := redis.NewClient(&redis.Options{Addr: cfg.Bus.RedisAddr})
				commandBus = bus.NewRedisBus(client)
			default:
				commandBus = bus.NewInProcessBus()
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cache := correlation.New()
			tr := trace.New()

			ingressExecutor := strand.NewExecutor(1, 256)
			ingressStrand := strand.NewStrand(ingressExecutor)
			rpcExecutor := strand.NewExecutor(1, 64)
			rpcStrand := strand.NewStrand(rpcExecutor)

			g, gctx := errgroup.WithContext(ctx)

			statusCh, unsubStatus := commandBus.Subscribe(gctx, cfg.DTO.ArmStatusTopic)
			g.Go(func() error {
				for env := range statusCh {
					e := env
					ingressStrand.Post(func() { correlateStatus(cache, e, collectors) })
				}
				return nil
			})
			defer unsubStatus()

			deps := btnodes.Deps{
				Bus:          commandBus,
				Cache:        cache,
				Trace:        tr,
				Source:       cfg.DTO.Source,
				CommandTopic: cfg.DTO.ArmCommandTopic,
				AlertTopic:   cfg.DTO.FaultStatusTopic,
			}

			loader := func(xmlDoc []byte) (btnodes.Node, error) {
				return bttree.Build(xmlDoc, deps, cfg.Arm.CmdTimeoutMs)
			}

			var viz treerunner.VizPublisher
			if cfg.BT.GrootHost != "" {
				publisher, err := bttree.NewGrootPublisher(fmt.Sprintf("%s:%d", cfg.BT.GrootHost, cfg.BT.GrootPort))
				if err != nil {
					logging.Op().Warn("bt_service: groot publisher failed to start, continuing without it", "error", err)
				} else {
					viz = publisher
					defer publisher.Close()
				}
			}

			runner := treerunner.New(cfg.BT.TreeFile, loader, cfg.BT.ReloadInterval(), viz)

			tickTicker := time.NewTicker(cfg.BT.TickInterval())
			defer tickTicker.Stop()
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-tickTicker.C:
						runner.MaybeReload(gctx)
						runner.TickOnce(gctx)
						if collectors != nil {
							collectors.SetQueueDepth("correlation_cache", cache.Len())
						}
					}
				}
			})

			heartbeat := node.NewBase("bt_service", commandBus, cfg.DTO.HeartbeatTopic, "")
			g.Go(func() error { heartbeat.Run(gctx, 1*time.Second); return nil })

			var rpcServer *rpc.Server
			if cfg.RPC.Enable {
				rpcServer = rpc.New("bt", "1.0.0", cfg.DTO.DomainID, rpcStrand)
				rpcServer.Register("bt.reload", func(ctx context.Context, args map[string]any) (map[string]any, error) {
					status := runner.ReloadIfChanged(ctx)
					return map[string]any{"result": string(status)}, nil
				})
				rpcServer.Register("bt.stop", func(ctx context.Context, args map[string]any) (map[string]any, error) {
					logging.Op().Info("bt_service: stop requested over rpc")
					go cancel()
					return map[string]any{"result": "ok"}, nil
				})
				if err := rpcServer.Start(cfg.RPC.Addr); err != nil {
					return fmt.Errorf("start rpc control plane: %w", err)
				}
			}

			var recoveryExecutor *faultrecovery.Executor
			if cfg.FaultRecovery.RulesFile != "" {
				rules, err := faultrecovery.LoadRules(cfg.FaultRecovery.RulesFile)
				if err != nil {
					return fmt.Errorf("load fault recovery rules: %w", err)
				}
				requestRestart := func(exitCode int) {
					logging.Op().Error("bt_service: exiting for supervised restart", "exit_code", exitCode)
					cancel()
					os.Exit(exitCode)
				}
				recoveryExecutor = faultrecovery.New(rules, requestRestart, cfg.FaultRecovery.ExitCode)
				g.Go(func() error { recoveryExecutor.Run(gctx, commandBus, cfg.DTO.FaultStatusTopic); return nil })
			}

			logging.Op().Info("bt_service daemon started", "tree_file", cfg.BT.TreeFile, "rpc_enabled", cfg.RPC.Enable, "bus_backend", cfg.Bus.Backend)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sigCh:
				logging.Op().Info("shutdown signal received")
			case <-ctx.Done():
				logging.Op().Info("shutdown requested")
			}

			cancel()
			heartbeat.Stop()
			if rpcServer != nil {
				rpcServer.Stop()
			}
			ingressExecutor.Stop()
			rpcExecutor.Stop()
			_ = g.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&treeFile, "tree-file", "", "Behavior tree XML file")
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", "", "RPC control plane listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level")

	return cmd
}

// correlateStatus decodes an arm_status envelope's KV payload into an
// ArmResp and records it under the command's id, falling back to the
// envelope's own event id when the KV payload carries none.
func correlateStatus(cache *correlation.Cache, env bus.Envelope, collectors *metrics.Collectors) {
	fields := kv.Decode(string(env.Payload))

	id := fields["id"]
	if id == "" {
		id = env.EventID
	}
	if id == "" {
		return
	}

	if collectors != nil {
		result := "ok"
		if fields["ok"] != "1" {
			result = "fail"
		}
		collectors.RecordCommand(fields["op"], result)
	}

	errCode := 0
	if f, ok := kv.ParseFloat(fields["err_code"]); ok {
		errCode = int(f)
	}
	sdkCode := 0
	if f, ok := kv.ParseFloat(fields["sdk_code"]); ok {
		sdkCode = int(f)
	}

	cache.Put(id, correlation.ArmResp{
		OK:      fields["ok"] == "1",
		ErrCode: errCode,
		Err:     fields["err"],
		SdkCode: sdkCode,
		TsMs:    time.Now().UnixMilli(),
		FullKV:  fields,
	})
}
