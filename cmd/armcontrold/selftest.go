package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wxzhao/workstation/internal/handlers"
	"github.com/wxzhao/workstation/internal/sdk"
	"github.com/wxzhao/workstation/internal/wire"
)

// selftestOps is the fixed sequence a self-test run dispatches against a
// MockHandle, covering the power-up/move/query path an operator would run
// by hand against live hardware.
var selftestOps = []string{
	"op=power_on_enable;id=selftest-1",
	"op=is_ready;id=selftest-2",
	"op=moveJoint;id=selftest-3;jointpos=0,0,0,0,0,0",
	"op=get_joint_actual_pos;id=selftest-4",
	"op=is_trajectory_complete;id=selftest-5",
	"op=fault_reset;id=selftest-6",
}

func selftestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Run an offline self-test against the mock SDK handle",
		Long:  "Dispatches a fixed op sequence against a MockHandle, with no controller or bus required, and reports each response.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := sdk.NewSession(sdk.Config{IP: "mock", Port: 0, Pass: ""}, sdk.NewMockHandle())
			registry := handlers.NewRegistry()
			(&handlers.Builtins{Sess: sess}).RegisterAll(registry)

			ctx := context.Background()
			failed := false
			for _, raw := range selftestOps {
				resp := registry.Dispatch(ctx, wire.ParseCommand(raw))
				status := "OK"
				if !resp.IsOK() {
					status = "FAIL"
					failed = true
				}
				fmt.Printf("[%s] %s\n", status, resp.Encode())
			}
			if failed {
				return fmt.Errorf("selftest: one or more ops failed")
			}
			fmt.Println("selftest: all ops OK")
			return nil
		},
	}
}
