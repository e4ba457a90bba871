package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/embergridproject/embergrid/internal/common"
	"github.com/embergridproject/embergrid/internal/compute"
	"github.com/embergridproject/embergrid/internal/compute/configuration"
	"github.com/embergridproject/embergrid/internal/grid"
	"github.com/embergridproject/embergrid/internal/grid/fake"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "embergrid",
		Short: "Runs a single embergrid node hosting the compute job scheduler",
		RunE:  run,
	}
	rootCmd.Flags().String("config", "./config/embergrid", "Path to the configuration directory")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	common.ConfigureLogging()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	var config configuration.EmbergridConfiguration
	common.LoadConfig(&config, configPath)
	if config.MetricsPort == 0 {
		config.MetricsPort = 9090
	}

	cluster := fake.NewCluster()
	messenger := fake.NewMessenger(cluster.LocalNode().ID)
	timeouts := grid.NewTimeoutProcessor()

	scheduler := compute.NewScheduler(compute.SchedulerParams{
		Config:      config.Scheduler,
		Cluster:     cluster,
		Messenger:   messenger,
		Marshaler:   fake.GobMarshaler{},
		Deployments: fake.NewDeploymentRegistry(),
		Timeouts:    timeouts,
		Caches:      fake.NewCacheRegistry(),
		PerfStats:   grid.NopStatistics{},
		DistConfig:  grid.NewLocalConfig(),
	})
	scheduler.Start()

	metricsServer := common.ServeMetrics(config.MetricsPort)
	log.Infof("Embergrid node started [nodeID=%s, metricsPort=%d]", cluster.LocalNode().ID, config.MetricsPort)

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
	<-stopSignal

	log.Info("Shutting down")

	var g errgroup.Group
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsServer.Shutdown(ctx)
	})
	g.Go(func() error {
		return scheduler.Stop(false)
	})
	err = g.Wait()
	timeouts.Stop()
	return err
}
