package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wxzhao/workstation/internal/armcontrol"
	"github.com/wxzhao/workstation/internal/bus"
	"github.com/wxzhao/workstation/internal/config"
	"github.com/wxzhao/workstation/internal/faultaudit"
	"github.com/wxzhao/workstation/internal/faultrecovery"
	"github.com/wxzhao/workstation/internal/handlers"
	"github.com/wxzhao/workstation/internal/logging"
	"github.com/wxzhao/workstation/internal/metrics"
	"github.com/wxzhao/workstation/internal/node"
	"github.com/wxzhao/workstation/internal/queue"
	"github.com/wxzhao/workstation/internal/rpc"
	"github.com/wxzhao/workstation/internal/sdk"
	"github.com/wxzhao/workstation/internal/strand"
	"github.com/wxzhao/workstation/internal/trace"
	"github.com/wxzhao/workstation/internal/wire"
)

func daemonCmd() *cobra.Command {
	var (
		armIP    string
		rpcAddr  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the arm_control daemon",
		Long:  "Run arm_control as a daemon: ingress pipeline, SDK session, RPC control plane, and fault recovery.",
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

			if cmd.Flags().Changed("arm-ip") {
				cfg.Arm.IP = armIP
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

			cmdQueue := queue.NewCommandQueue(cfg.Arm.QueueMax)
			armExecutor := strand.NewExecutor(1, 256)
			armStrand := strand.NewStrand(armExecutor)

			sess := sdk.NewSession(sdk.Config{IP: cfg.Arm.IP, Port: cfg.Arm.Port, Pass: cfg.Arm.Pass}, sdk.NewMockHandle())

			registry := handlers.NewRegistry()
			builtins := &handlers.Builtins{Sess: sess}
			builtins.RegisterAll(registry)

			tr := trace.New()

			pipeline := armcontrol.New(cmdQueue, armStrand, registry, sess, commandBus, tr, collectors,
				cfg.DTO.Source, cfg.DTO.ArmStatusTopic, cfg.DTO.FaultStatusTopic, "arm_control")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			g, gctx := errgroup.WithContext(ctx)

			commandCh, unsubCommand := commandBus.Subscribe(gctx, cfg.DTO.ArmCommandTopic)
			g.Go(func() error {
				for env := range commandCh {
					pipeline.HandleIngress(gctx, env)
				}
				return nil
			})
			defer unsubCommand()

			g.Go(func() error { pipeline.Run(gctx); return nil })

			heartbeat := node.NewBase("arm_control", commandBus, cfg.DTO.HeartbeatTopic, "")
			g.Go(func() error { heartbeat.Run(gctx, 1*time.Second); return nil })

			var rpcServer *rpc.Server
			if cfg.RPC.Enable {
				rpcServer = rpc.New("arm", "1.0.0", cfg.DTO.DomainID, armStrand)
				rpcServer.Register("arm.command", func(ctx context.Context, args map[string]any) (map[string]any, error) {
					op, _ := args["op"].(string)
					opArgs, _ := args["args"].(map[string]any)
					raw := rpc.ArgsToKV(op, opArgs)
					resp := registry.Dispatch(ctx, wire.ParseCommand(raw))
					return map[string]any{"kv": resp.Map()}, nil
				})
				rpcServer.Register("arm.fault_reset", func(ctx context.Context, args map[string]any) (map[string]any, error) {
					accepted := pipeline.TriggerFaultReset("rpc_requested")
					return map[string]any{"accepted": accepted}, nil
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
					logging.Op().Error("arm_control: exiting for supervised restart", "exit_code", exitCode)
					cancel()
					os.Exit(exitCode)
				}
				recoveryExecutor = faultrecovery.New(rules, requestRestart, cfg.FaultRecovery.ExitCode)
				g.Go(func() error { recoveryExecutor.Run(gctx, commandBus, cfg.DTO.FaultStatusTopic); return nil })
			}

			var auditSink *faultaudit.Sink
			if cfg.FaultAudit.Enabled {
				var err error
				auditSink, err = faultaudit.Open(ctx, cfg.FaultAudit.DSN)
				if err != nil {
					return fmt.Errorf("open fault audit sink: %w", err)
				}
				if err := auditSink.EnsureSchema(ctx); err != nil {
					return fmt.Errorf("fault audit schema: %w", err)
				}
				auditCh, unsubAudit := commandBus.Subscribe(gctx, cfg.DTO.FaultStatusTopic)
				g.Go(func() error {
					defer unsubAudit()
					for env := range auditCh {
						var ev wire.FaultEvent
						if err := json.Unmarshal(env.Payload, &ev); err == nil {
							auditSink.Record(ev)
						}
					}
					return nil
				})
			}

			logging.Op().Info("arm_control daemon started", "arm_ip", cfg.Arm.IP, "rpc_enabled", cfg.RPC.Enable, "bus_backend", cfg.Bus.Backend)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logging.Op().Info("shutdown signal received")
			cancel()
			heartbeat.Stop()
			if rpcServer != nil {
				rpcServer.Stop()
			}
			cmdQueue.Stop()
			armExecutor.Stop()
			sess.Stop()
			if auditSink != nil {
				auditSink.Close()
			}
			_ = g.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&armIP, "arm-ip", "", "Robot controller IP address")
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", "", "RPC control plane listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level")

	return cmd
}
