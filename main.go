package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"mooring/internal/iomgr"
	"mooring/internal/pager"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MOORING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use: 			"mooring",
		Short: 			"positioned reads over io_uring",
		SilenceUsage: 	true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if v.GetBool("debug") { level = slog.LevelDebug }
			slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
				Level:      level,
				TimeFormat: time.TimeOnly,
			})))
		},
	}

	flags := root.PersistentFlags()
	flags.Uint32("depth", iomgr.DefaultConfig().Depth, "ring queue depth (max reads in flight)")
	flags.Int("page-size", pager.DefaultConfig().PageSize, "bytes per read")
	flags.Int("frames", pager.DefaultConfig().Frames, "pages buffered at once")
	flags.Int("reaper-cpu", -1, "pin the completion reaper to this cpu")
	flags.Bool("stats", false, "log ring stats when done")
	flags.Bool("debug", false, "debug logging")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	root.AddCommand(
		&cobra.Command{
			Use: 	"cat <file>",
			Short: 	"copy a file to stdout through the ring",
			Args: 	cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPager(cmd.Context(), v, args[0], func(ctx context.Context, p *pager.Pager) error {
					_, err := p.WriteTo(ctx, cmd.OutOrStdout())
					return err
				})
			},
		},
		&cobra.Command{
			Use: 	"sum <file>",
			Short: 	"xxhash64 of a file, read through the ring",
			Args: 	cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPager(cmd.Context(), v, args[0], func(ctx context.Context, p *pager.Pager) error {
					sum, err := p.Sum(ctx)
					if err != nil { return err }
					fmt.Fprintf(cmd.OutOrStdout(), "%016x  %s\n", sum, args[0])
					return nil
				})
			},
		},
	)

	return root
}

func withPager(ctx context.Context, v *viper.Viper, path string, fn func(context.Context, *pager.Pager) error) error {
	if ctx == nil { ctx = context.Background() }
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	f, err := os.Open(path)
	if err != nil { return err }
	defer f.Close()

	rcfg := iomgr.DefaultConfig()
	rcfg.Depth = v.GetUint32("depth")
	rcfg.ReaperCPU = v.GetInt("reaper-cpu")
	ring, err := iomgr.CreateRing(rcfg)
	if err != nil {
		slog.Error("CreateRing", "err", err)
		return err
	}
	defer ring.Close()

	pcfg := pager.DefaultConfig()
	pcfg.PageSize = v.GetInt("page-size")
	pcfg.Frames = v.GetInt("frames")
	p, err := pager.CreatePager(ring, f, pcfg)
	if err != nil { return err }
	defer p.Close()

	start := time.Now()
	err = fn(ctx, p)
	slog.Debug("done", "file", path, "pages", p.Pages(), "took", time.Since(start), "err", err)

	if v.GetBool("stats") {
		logStats(ring)
	}
	return err
}

func logStats(ring *iomgr.Ring) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(iomgr.NewCollector(ring, "main"))
	families, err := reg.Gather()
	if err != nil {
		slog.Warn("gather stats", "err", err)
		return
	}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			val := m.GetGauge().GetValue()
			if m.GetCounter() != nil { val = m.GetCounter().GetValue() }
			slog.Info("stat", "name", fam.GetName(), "value", val)
		}
	}
}
