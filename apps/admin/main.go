package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
	"github.com/trezcool/academia/core/forms"
	attachsvc "github.com/trezcool/academia/services/attachments"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/database"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(context.Background(), conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	files, err := attachsvc.NewStore(conf)
	if err != nil {
		logger.Fatal("setting up attachments", err)
	}
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	application.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		conf:   conf,
		db:     db,
		appSvc: application.NewService(sqlxrepos.NewApplicationRepository(db), files, forms.MustDefault(), mailSvc, validate, conf),
		out:    os.Stdout,
	}
	err = cli.run(os.Args)
	if console, ok := mailSvc.(*emailsvc.ConsoleService); ok {
		console.Wait()
	}
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}
