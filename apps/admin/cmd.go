package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf   *core.Config
	db     *sqlx.DB
	appSvc *application.Service
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                         - run a goose command (up, down, status, version...)")
	fmt.Fprintln(cli.out, "  token -subject NAME -role staff|admin [-ttl D] - print a staff token for the review API")
	fmt.Fprintln(cli.out, "  setstatus -id ID -status STATUS [-note TEXT]   - move an application to a new status")
	fmt.Fprintln(cli.out, "  forms -dir DIR                                 - check a directory of form schemas")
}

func (cli *commandLine) run(args []string) error {
	if cli.out == nil {
		cli.out = os.Stdout
	}
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenSubject := tokenCmd.String("subject", "", "Who the token is issued to (e.g. a staff email).")
	tokenRole := tokenCmd.String("role", echoapi.RoleStaff, "staff or admin.")
	tokenTTL := tokenCmd.Duration("ttl", 0, "Validity; defaults to the configured JWT expiration delta.")

	setStatusCmd := flag.NewFlagSet("setstatus", flag.ContinueOnError)
	setStatusID := setStatusCmd.String("id", "", "The application ID.")
	setStatusStatus := setStatusCmd.String("status", "", "The new status.")
	setStatusNote := setStatusCmd.String("note", "", "A note included in the email sent to the applicant.")

	formsCmd := flag.NewFlagSet("forms", flag.ContinueOnError)
	formsDir := formsCmd.String("dir", "", "Directory holding *.yaml form schemas.")

	for _, fs := range []*flag.FlagSet{tokenCmd, setStatusCmd, formsCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *tokenSubject == "" || !echoapi.IsValidRole(*tokenRole) {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenSubject, *tokenRole, *tokenTTL)
	case "setstatus":
		if err := setStatusCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *setStatusID == "" || *setStatusStatus == "" {
			setStatusCmd.Usage()
			return errHelp
		}
		return cli.setStatus(*setStatusID, *setStatusStatus, *setStatusNote)
	case "forms":
		if err := formsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *formsDir == "" {
			formsCmd.Usage()
			return errHelp
		}
		return cli.checkForms(*formsDir)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) token(subject, role string, ttl time.Duration) error {
	roles := []string{role}
	if role == echoapi.RoleAdmin {
		roles = echoapi.Roles
	}
	token, err := echoapi.GenerateToken(cli.conf.SecretKey, echoapi.NewClaims(cli.conf, subject, ttl, roles...))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

func (cli *commandLine) setStatus(id, status, note string) error {
	app, err := cli.appSvc.UpdateStatus(context.Background(), id, application.UpdateStatus{
		Status: application.Status(status),
		Note:   note,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s (%s): %s\n", app.ID, app.ApplicantName, app.Status)
	return nil
}
