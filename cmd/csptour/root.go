package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/b97tsk/csp"
	"github.com/b97tsk/csp/internal/tour"
)

// app holds what the subcommands share once flags and config are read.
type app struct {
	v      *viper.Viper
	logger *logiface.Logger[logiface.Event]
	undo   func()
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "csptour",
		Short: "A guided tour of the csp channel runtime",
		Long: `csptour walks through channels, callbacks, select and timeouts

Use "csptour list" to see the lessons and "csptour run [lesson...]" to run
them, in order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, cfgFile)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.csptour.yaml)")
	flags.Bool("no-colour", false, "disable colour output")
	flags.String("log-level", "disabled", "log level: "+strings.Join(levelNames(), ", "))
	flags.Int("pool-size", 0, "number of dispatcher goroutines (default is twice GOMAXPROCS)")

	for _, name := range []string{"no-colour", "log-level", "pool-size"} {
		if err := a.v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(newListCmd(), newRunCmd(a))

	return rootCmd
}

// init reads in config file and ENV variables if set, then sets up logging,
// colour and the dispatcher.
func (a *app) init(cmd *cobra.Command, cfgFile string) error {
	v := a.v

	if cfgFile != "" { // enable ability to specify config file via flag
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".csptour")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("csptour")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	level, err := parseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}

	a.logger = stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(cmd.ErrOrStderr())),
		stumpy.L.WithLevel(level),
	).Logger()
	csp.SetLogger(a.logger)

	if f := v.ConfigFileUsed(); f != "" {
		a.logger.Info().Str(`file`, f).Log(`using config file`)
	}

	color.NoColor = color.NoColor || v.GetBool("no-colour")

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		a.logger.Debug().Log(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		a.logger.Warning().Err(err).Log(`could not adjust GOMAXPROCS`)
	}
	a.undo = undo

	size := v.GetInt("pool-size")
	if size <= 0 {
		size = runtime.GOMAXPROCS(0) * 2
	}
	csp.SetDispatcher(csp.NewPool(size))
	a.logger.Debug().Int(`size`, size).Log(`dispatcher pool ready`)

	return nil
}

func (a *app) close() {
	csp.SetDispatcher(nil)
	csp.SetLogger(nil)
	if a.undo != nil {
		a.undo()
	}
}

func levelNames() []string {
	var names []string
	for l := logiface.LevelDisabled; l <= logiface.LevelTrace; l++ {
		names = append(names, l.String())
	}
	return names
}

func parseLevel(s string) (logiface.Level, error) {
	for l := logiface.LevelDisabled; l <= logiface.LevelTrace; l++ {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q (want one of %s)", s, strings.Join(levelNames(), ", "))
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists the lessons",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, l := range tour.Lessons() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", l.Name, l.Summary)
			}
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	var names []string
	for _, l := range tour.Lessons() {
		names = append(names, l.Name)
	}
	return &cobra.Command{
		Use:       "run [lesson...]",
		Short:     "Runs lessons",
		Long:      "Runs the named lessons in order, or every lesson if none is named.",
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := &tour.Tour{Out: cmd.OutOrStdout(), Logger: a.logger}
			return t.Run(cmd.Context(), args...)
		},
	}
}
