package main

import (
	"context"
	"fmt"
	"io"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/pkg/errors"
)

var errAborted = errors.New("aborted")

type (
	inputPrompt struct {
		Message  string
		Default  string
		Help     string
		Validate func(string) error
	}

	confirmPrompt struct {
		Message string
		Default bool
	}

	selectPrompt struct {
		Message      string
		Options      []string
		DefaultIndex int
	}

	// prompter abstracts the terminal so the wizard session can be driven by scripted answers.
	prompter interface {
		Input(ctx context.Context, p inputPrompt) (string, error)
		Confirm(ctx context.Context, p confirmPrompt) (bool, error)
		Select(ctx context.Context, p selectPrompt) (int, error)
		Info(ctx context.Context, msg string) error
	}
)

type surveyPrompter struct {
	out io.Writer
}

func newSurveyPrompter(out io.Writer) *surveyPrompter {
	return &surveyPrompter{out: out}
}

func (sp *surveyPrompter) Input(ctx context.Context, p inputPrompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out string
	prompt := &survey.Input{Message: p.Message, Default: p.Default, Help: p.Help}
	var opts []survey.AskOpt
	if p.Validate != nil {
		validate := p.Validate
		opts = append(opts, survey.WithValidator(func(ans interface{}) error {
			s, _ := ans.(string)
			return validate(s)
		}))
	}
	if err := survey.AskOne(prompt, &out, opts...); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func (sp *surveyPrompter) Confirm(ctx context.Context, p confirmPrompt) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var out bool
	if err := survey.AskOne(&survey.Confirm{Message: p.Message, Default: p.Default}, &out); err != nil {
		return false, translateSurveyErr(err)
	}
	return out, nil
}

func (sp *surveyPrompter) Select(ctx context.Context, p selectPrompt) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	prompt := &survey.Select{Message: p.Message, Options: p.Options, PageSize: 12}
	if p.DefaultIndex >= 0 && p.DefaultIndex < len(p.Options) {
		prompt.Default = p.Options[p.DefaultIndex]
	}
	var out int
	if err := survey.AskOne(prompt, &out); err != nil {
		return 0, translateSurveyErr(err)
	}
	return out, nil
}

func (sp *surveyPrompter) Info(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(sp.out, msg)
	return err
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return errAborted
	}
	return errors.Wrap(err, "prompt")
}
