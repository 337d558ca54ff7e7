package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"infera/internal/backend"
	"infera/internal/boundary"
	"infera/internal/manager"
	"infera/pkg/types"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version, backend and cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printJSON(types.VersionInfo{
				Version:  boundary.Version,
				Backend:  backend.NewGoMLX(a.cfg.Engine).Name(),
				CacheDir: a.cfg.CacheDir,
			})
		},
	}
}

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the graph backend and the configured directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := manager.NewWithConfig(manager.ManagerConfig{
				Backend: backend.NewGoMLX(a.cfg.Engine),
				Logger:  &a.log,
			})
			defer mgr.Close()
			checks := mgr.Preflight(a.cfg.CacheDir, a.cfg.AutoloadDir)
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			failed := 0
			for _, c := range checks {
				status := "ok"
				if !c.OK {
					status = "FAIL"
					failed++
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", status, c.Name, c.Detail)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}
