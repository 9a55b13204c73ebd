// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	logaction "github.com/dukex/bizflow/pkg/actions/log"
	"github.com/dukex/bizflow/pkg/actions/setvariable"
	"github.com/dukex/bizflow/pkg/actions/transform"
	"github.com/dukex/bizflow/pkg/registry"
)

func registerActionPlugins(reg *registry.Registry, pluginsPath string) error {
	actionPlugins, err := reg.LoadActionPlugins(pluginsPath)
	if err != nil {
		return fmt.Errorf("failed to load action plugins: %w", err)
	}

	for _, plugin := range actionPlugins {
		reg.RegisterAction(plugin)
	}

	return nil
}

func registerNativeActions(reg *registry.Registry) {
	reg.RegisterAction(transform.NewActionFactory())
	reg.RegisterAction(logaction.NewLogActionFactory())
	reg.RegisterAction(setvariable.NewActionFactory())
}

// NewRegistry registers the built-in actions plus any plugins under pluginsPath.
// Native actions win over plugins with the same id.
func NewRegistry(log *slog.Logger, pluginsPath string) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	if pluginsPath != "" {
		if err := registerActionPlugins(reg, pluginsPath); err != nil {
			return nil, err
		}
	}

	registerNativeActions(reg)

	return reg, nil
}
