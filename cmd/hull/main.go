package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	hull "github.com/hullpm/hull"
)

var (
	flagDir      string
	flagRegistry string
	flagResolver string
	flagStrict   bool
	flagNoDev    bool
	flagVerbose  bool
)

func main() {
	root := &cobra.Command{
		Use:           "hull",
		Short:         "hull resolves npm dependency graphs and writes lockfiles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagDir, "dir", "C", ".", "project directory")
	root.PersistentFlags().StringVar(&flagRegistry, "registry", "", "registry base URL override")
	root.PersistentFlags().StringVar(&flagResolver, "resolver", "", "resolver policy: staged, pubgrub-incremental, pubgrub, sat, legacy-dfs")
	root.PersistentFlags().BoolVar(&flagStrict, "strict", false, "fail instead of falling back to other engines")
	root.PersistentFlags().BoolVar(&flagNoDev, "no-dev", false, "skip devDependencies")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(lockCmd(), resolveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "hull:", err)
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if flagVerbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

func loadProject() (*hull.Project, error) {
	p, err := hull.LoadProject(flagDir, newLogger())
	if err != nil {
		return nil, err
	}
	if flagRegistry != "" {
		p.Config.Registry = flagRegistry
	}
	if flagResolver != "" {
		p.Config.Resolver = flagResolver
	}
	if flagStrict {
		p.Config.Strict = true
	}
	return p, nil
}

func lockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "resolve the manifest and write package-lock.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			res, err := p.Resolve(cmd.Context(), !flagNoDev)
			if err != nil {
				return err
			}
			if err := p.WriteLock(res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "locked %d packages in %s\n",
				len(res.Resolved), res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "resolve the manifest and print the selected versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			res, err := p.Resolve(cmd.Context(), !flagNoDev)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(res.Assignment))
			for name := range res.Assignment {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, res.Assignment[name])
			}
			return nil
		},
	}
}
