package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/coupe-sentinel/pkg/config"
	"github.com/cuemby/coupe-sentinel/pkg/log"
	"github.com/cuemby/coupe-sentinel/pkg/runtime"
	"github.com/cuemby/coupe-sentinel/pkg/types"
)

// bootstrapCmd drives the §4.7 stack-setup primitives directly: it
// writes a stack's coupe.yaml into its deployment directory, then
// creates the stack network, the sentinel container, and every
// function container (left CREATED, not started — the first request
// each receives performs the actual cold start). It exists so
// integration tests can materialize a stack without a real deploy
// tool.
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Materialize a stack's network and containers from a coupe.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		sentinelImage, _ := cmd.Flags().GetString("sentinel-image")
		containerdSocket, _ := cmd.Flags().GetString("containerd-socket")

		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", configFile, err)
		}
		stack, err := config.Parse(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", configFile, err)
		}

		deployDir, err := config.DeploymentDir(stack.Name)
		if err != nil {
			return fmt.Errorf("resolve deployment dir: %w", err)
		}
		if err := os.MkdirAll(deployDir, 0o755); err != nil {
			return fmt.Errorf("create deployment dir: %w", err)
		}
		deployedConfig, err := config.ConfigPath(stack.Name)
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		if err := os.WriteFile(deployedConfig, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", deployedConfig, err)
		}

		driver, err := runtime.NewContainerdDriver(containerdSocket)
		if err != nil {
			return fmt.Errorf("connect to containerd: %w", err)
		}
		defer driver.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		networkName := types.NetworkName(stack.Name)
		if err := driver.CreateNetwork(ctx, networkName); err != nil {
			return fmt.Errorf("create network: %w", err)
		}

		sentinelName := types.SentinelContainerName(stack.Name)
		if err := driver.CreateFunctionContainer(ctx, sentinelName, sentinelImage, networkName, stack.Sentinel.Port); err != nil {
			return fmt.Errorf("create sentinel container: %w", err)
		}
		log.WithStack(stack.Name).Info().Str("container", sentinelName).Msg("sentinel container created")

		for name, fn := range stack.Functions {
			containerName := types.FunctionContainerName(stack.Name, name)
			if err := driver.CreateFunctionContainer(ctx, containerName, fn.Image, networkName, fn.EffectiveHandlerPort()); err != nil {
				return fmt.Errorf("create function container %s: %w", name, err)
			}
			log.WithStack(stack.Name).Info().Str("function", name).Str("container", containerName).Msg("function container created")
		}

		return nil
	},
}

// teardownCmd removes everything bootstrapCmd created, tolerating
// containers/networks that are already gone.
var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Remove a stack's network and containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		containerdSocket, _ := cmd.Flags().GetString("containerd-socket")

		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", configFile, err)
		}
		stack, err := config.Parse(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", configFile, err)
		}

		driver, err := runtime.NewContainerdDriver(containerdSocket)
		if err != nil {
			return fmt.Errorf("connect to containerd: %w", err)
		}
		defer driver.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		for name := range stack.Functions {
			containerName := types.FunctionContainerName(stack.Name, name)
			if err := driver.RemoveFunctionContainer(ctx, containerName); err != nil {
				return fmt.Errorf("remove function container %s: %w", name, err)
			}
		}

		sentinelName := types.SentinelContainerName(stack.Name)
		if err := driver.RemoveFunctionContainer(ctx, sentinelName); err != nil {
			return fmt.Errorf("remove sentinel container: %w", err)
		}

		networkName := types.NetworkName(stack.Name)
		if err := driver.RemoveNetwork(ctx, networkName); err != nil {
			return fmt.Errorf("remove network: %w", err)
		}

		log.WithStack(stack.Name).Info().Msg("stack torn down")
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().String("config", "", "Path to a coupe.yaml to deploy (required)")
	bootstrapCmd.Flags().String("sentinel-image", "coupe-sentinel:latest", "Image used for the sentinel container")
	bootstrapCmd.Flags().String("containerd-socket", "/run/containerd/containerd.sock", "containerd socket path")
	bootstrapCmd.MarkFlagRequired("config")

	teardownCmd.Flags().String("config", "", "Path to the stack's coupe.yaml (required)")
	teardownCmd.Flags().String("containerd-socket", "/run/containerd/containerd.sock", "containerd socket path")
	teardownCmd.MarkFlagRequired("config")
}
