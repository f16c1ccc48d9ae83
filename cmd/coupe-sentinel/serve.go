package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/coupe-sentinel/pkg/config"
	"github.com/cuemby/coupe-sentinel/pkg/log"
	"github.com/cuemby/coupe-sentinel/pkg/runtime"
	"github.com/cuemby/coupe-sentinel/pkg/sentinel"
	"github.com/cuemby/coupe-sentinel/pkg/storage"
)

// serveCmd is the real entry point: the container the deploy tooling
// starts next to a stack's function containers runs this.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sentinel for a stack",
	RunE: func(cmd *cobra.Command, args []string) error {
		stackName, _ := cmd.Flags().GetString("stack")
		if stackName == "" {
			stackName = os.Getenv("COUPE_STACK")
		}
		if stackName == "" {
			return fmt.Errorf("stack name required: pass --stack or set COUPE_STACK")
		}
		containerdSocket, _ := cmd.Flags().GetString("containerd-socket")
		listenAddr, _ := cmd.Flags().GetString("listen")

		configPath, err := config.ConfigPath(stackName)
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		stack, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		dataDir, err := config.DataDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}

		driver, err := runtime.NewContainerdDriver(containerdSocket)
		if err != nil {
			store.Close()
			return fmt.Errorf("connect to containerd: %w", err)
		}

		s, err := sentinel.New(sentinel.Config{
			Stack:      stack,
			Store:      store,
			Driver:     driver,
			ListenAddr: listenAddr,
		})
		if err != nil {
			driver.Close()
			store.Close()
			return fmt.Errorf("build sentinel: %w", err)
		}

		errCh := make(chan error, 1)
		go func() { errCh <- s.Start() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.WithStack(stackName).Info().Msg("shutdown signal received")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("sentinel stopped: %w", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		driver.Close()
		return nil
	},
}

func init() {
	serveCmd.Flags().String("stack", "", "Stack name (defaults to $COUPE_STACK)")
	serveCmd.Flags().String("containerd-socket", "/run/containerd/containerd.sock", "containerd socket path")
	serveCmd.Flags().String("listen", "", "Listen address (defaults to :<sentinel.port> from coupe.yaml, or :8080)")
}
