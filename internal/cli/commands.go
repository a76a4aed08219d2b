package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"historysync/internal/application/service/syncer"
	"historysync/internal/bootstrap"
	"historysync/internal/config"
	"historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/syncrun"
	"historysync/internal/infrastructure/broker"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var errNoJournal = errors.New("run journal needs DATABASE_DSN")

type state struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewRootCmd creates the historysync command tree.
func NewRootCmd() *cobra.Command {
	st := &state{}

	rootCmd := &cobra.Command{
		Use:           "historysync",
		Short:         "Keep a local copy of exchange trading history up to date",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st.cfg = cfg
			st.logger = cfg.Logger()
			st.logger.SetOutput(cmd.ErrOrStderr())
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				st.logger.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd(st))
	rootCmd.AddCommand(newPlanCmd(st))
	rootCmd.AddCommand(newInstrumentsCmd(st))
	rootCmd.AddCommand(newRunsCmd(st))
	rootCmd.AddCommand(newPruneCmd(st))
	return rootCmd
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("codes", nil, "Only these instrument codes (comma separated)")
	cmd.Flags().String("from", "", "Target start date, YYYY-MM-DD")
	cmd.Flags().String("to", "", "Target end date, YYYY-MM-DD")
}

func requestFromFlags(cmd *cobra.Command) (syncer.Request, error) {
	codes, _ := cmd.Flags().GetStringSlice("codes")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	target, _, err := broker.SyncRequestMessage{From: from, To: to}.Target()
	if err != nil {
		return syncer.Request{}, err
	}
	var cleaned []string
	for _, code := range codes {
		if code = strings.TrimSpace(code); code != "" {
			cleaned = append(cleaned, code)
		}
	}
	return syncer.Request{Codes: cleaned, Target: target}, nil
}

func newRunCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Synchronize the store with the exchange",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestFromFlags(cmd)
			if err != nil {
				return err
			}
			app, err := bootstrap.Build(cmd.Context(), st.cfg, st.logger, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			summary, runErr := app.Runner.Run(cmd.Context(), req)
			if !errors.Is(runErr, syncer.ErrRunInProgress) {
				fmt.Fprint(cmd.OutOrStdout(), RenderSummary(summary))
			}
			if runErr != nil {
				return runErr
			}
			if summary.Status == syncrun.StatusFailedToStart {
				return errors.New(summary.Error)
			}
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}

func newPlanCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plan",
		Aliases: []string{"gaps"},
		Short:   "Show the chunks a run would fetch, without fetching",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestFromFlags(cmd)
			if err != nil {
				return err
			}
			app, err := bootstrap.Build(cmd.Context(), st.cfg, st.logger, bootstrap.Options{
				WithoutJournal:   true,
				WithoutPublisher: true,
			})
			if err != nil {
				return err
			}
			defer app.Close()

			plan, err := app.Runner.Plan(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), RenderPlan(plan))
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}

func newInstrumentsCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "instruments",
		Short: "List the instruments the exchange publishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.Build(cmd.Context(), st.cfg, st.logger, bootstrap.Options{
				WithoutJournal:   true,
				WithoutPublisher: true,
			})
			if err != nil {
				return err
			}
			defer app.Close()

			list, err := app.Instruments.ListRemote(cmd.Context())
			if err != nil {
				return err
			}
			filter := instruments.NewFilter(st.cfg.Sync.ReservedPrefix, st.cfg.Sync.Allow)
			fmt.Fprint(cmd.OutOrStdout(), RenderInstruments(list, filter))
			return nil
		},
	}
}

func newRunsCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent journaled runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			app, err := bootstrap.Build(cmd.Context(), st.cfg, st.logger, bootstrap.Options{WithoutPublisher: true})
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Journal == nil {
				return errNoJournal
			}

			runs, err := app.Journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), RenderRuns(runs))
			return nil
		},
	}
	cmd.Flags().Int("limit", 10, "Number of runs to show")
	return cmd
}

func newPruneCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete journaled runs older than a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			app, err := bootstrap.Build(cmd.Context(), st.cfg, st.logger, bootstrap.Options{WithoutPublisher: true})
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Journal == nil {
				return errNoJournal
			}

			removed, err := app.Journal.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d runs\n", removed)
			return nil
		},
	}
	cmd.Flags().Duration("older-than", 90*24*time.Hour, "Age of the oldest run to keep")
	return cmd
}
