package main

import (
	"log"
	"os"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/audit"
	"github.com/tatumdale/studystreaks/core/principal"
	"github.com/tatumdale/studystreaks/core/school"
	logsvc "github.com/tatumdale/studystreaks/services/logger"
	"github.com/tatumdale/studystreaks/storage/database"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)

	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	auditor := audit.NewEmitter(database.NewAuditSink(db), appLogger, conf)
	prinRepo := database.NewPrincipalRepository(db)

	// start CLI
	cli := commandLine{
		db:      db,
		conf:    conf,
		schSvc:  school.NewService(database.NewSchoolRepository(db)),
		prinSvc: principal.NewService(prinRepo, conf, auditor, appLogger),
		repo:    prinRepo,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
