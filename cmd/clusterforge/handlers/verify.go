package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	sigyaml "sigs.k8s.io/yaml"

	"github.com/rhillum/clusterforge/internal/config"
	"github.com/rhillum/clusterforge/internal/k8s"
	"github.com/rhillum/clusterforge/internal/logging"
	"github.com/rhillum/clusterforge/internal/nodestate"
	"github.com/rhillum/clusterforge/internal/verify"
)

// Verify runs the health checks and prints the report. Warnings do not
// fail the command; only an unreachable cluster does. Verify needs no
// root privilege, so it skips the phase setup the mutating handlers use.
func Verify(ctx context.Context, configPath, kubeconfigPath, output string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, closeFn := logging.ForComponent("verify", cfg.LogDir)
	defer func() { _ = closeFn() }()

	if kubeconfigPath == "" {
		kubeconfigPath = config.DefaultAdminConfPath
	}

	client, err := k8s.NewClient(kubeconfigPath)
	if err != nil {
		return err
	}

	v := verify.New(cfg, client, log, nodestate.NewStore(cfg.StateDir))
	report, err := v.Run(ctx)
	if err != nil {
		return err
	}

	switch output {
	case "yaml":
		data, merr := sigyaml.Marshal(report)
		if merr != nil {
			return merr
		}
		fmt.Fprint(os.Stdout, string(data))
	case "text", "":
		color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
		report.Render(os.Stdout, color)
	default:
		return fmt.Errorf("unknown output format %q (want text or yaml)", output)
	}
	return nil
}
