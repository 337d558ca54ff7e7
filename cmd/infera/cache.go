package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"infera/internal/cache"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the remote-model cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("cache requires a subcommand: info|ls|clear")
		},
	}
	info := &cobra.Command{Use: "info", Short: "Print cache size and limit", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		return a.withCache(func(c *cache.Cache) error {
			st, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(st)
		})
	}}
	ls := &cobra.Command{Use: "ls", Short: "List cached files, least recently used first", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		return a.withCache(func(c *cache.Cache) error {
			entries, err := c.Entries(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SIZE\tLAST ACCESS\tURI")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Size, e.LastAccess.Format("2006-01-02 15:04:05"), e.URI)
			}
			return tw.Flush()
		})
	}}
	clearCmd := &cobra.Command{Use: "clear", Short: "Delete every cached file", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		return a.withCache(func(c *cache.Cache) error {
			if err := c.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "cleared %s\n", c.Dir())
			return nil
		})
	}}
	cmd.AddCommand(info, ls, clearCmd)
	return cmd
}

func (a *app) withCache(fn func(*cache.Cache) error) error {
	c, err := a.openCache()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
