package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/academia/core/forms"
	"github.com/trezcool/academia/core/wizard"
	submitsvc "github.com/trezcool/academia/services/submission"
)

var isTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) } // mockable

type applyOptions struct {
	endpoint string
	timeout  time.Duration
	attach   []string
}

var applyOpts applyOptions

var applyCmd = &cobra.Command{
	Use:   "apply FORM",
	Short: "Fill in and submit a form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isTerminal() {
			return errors.New("apply needs an interactive terminal")
		}
		opts := applyOpts
		if opts.timeout == 0 {
			opts.timeout = conf.Wizard.SubmitTimeout
		}
		sub := submitsvc.NewHTTPSubmitterFromConfig(conf)
		if opts.endpoint != "" {
			sub = submitsvc.NewHTTPSubmitter(opts.endpoint, nil)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		p := newSurveyPrompter(cmd.OutOrStdout())
		_, err := apply(ctx, args[0], opts, sub, p)
		return err
	},
}

func init() {
	applyCmd.Flags().StringVar(&applyOpts.endpoint, "endpoint", "", "API base URL (defaults to the configured wizard endpoint)")
	applyCmd.Flags().DurationVar(&applyOpts.timeout, "timeout", 0, "submission timeout (defaults to the configured wizard timeout)")
	applyCmd.Flags().StringSliceVar(&applyOpts.attach, "attach", nil, "file to attach; repeat for several files")
	rootCmd.AddCommand(applyCmd)
}

// apply runs a wizard session for the named form and returns the receipt of the stored submission.
func apply(ctx context.Context, name string, opts applyOptions, sub wizard.Submitter, p prompter) (wizard.Receipt, error) {
	reg, err := forms.Default()
	if err != nil {
		return wizard.Receipt{}, err
	}
	schema, err := reg.Get(name)
	if err != nil {
		return wizard.Receipt{}, err
	}

	ctrl, err := wizard.New(schema, sub, wizard.WithTimeout(opts.timeout))
	if err != nil {
		return wizard.Receipt{}, errors.Wrap(err, "starting wizard")
	}
	for _, path := range opts.attach {
		f, err := wizard.FileFromPath(path)
		if err != nil {
			return wizard.Receipt{}, err
		}
		ctrl.AddFile(f)
	}
	if n := len(opts.attach); n > 0 {
		if err = p.Info(ctx, fmt.Sprintf("%d file(s) attached", n)); err != nil {
			return wizard.Receipt{}, err
		}
	}

	return newSession(schema, ctrl, p).run(ctx)
}
