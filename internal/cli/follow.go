package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rcliao/tutor-engine/internal/bus"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Render playback events mirrored to Redis by another process",
		Run:   runFollow,
	}

	RootCmd.AddCommand(cmd)
}

func runFollow(cmd *cobra.Command, args []string) {
	if cfg.RedisAddr == "" {
		exitErr("follow", fmt.Errorf("REDIS_ADDR is not set"))
	}
	m, err := bus.NewRedisMirror(log, cfg.RedisAddr, cfg.RedisChannel)
	if err != nil {
		exitErr("connect redis", err)
	}
	defer m.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	var gate bus.StepGate
	if err := m.Follow(ctx, func(ev bus.Event) { render(out, &gate, ev) }); err != nil {
		exitErr("follow", err)
	}
}
