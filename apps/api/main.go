package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/tatumdale/studystreaks/apps/api/echo"
	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/audit"
	"github.com/tatumdale/studystreaks/core/principal"
	"github.com/tatumdale/studystreaks/core/school"
	logsvc "github.com/tatumdale/studystreaks/services/logger"
	"github.com/tatumdale/studystreaks/storage/database"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("failed to close DB", err)
		}
	}()

	// set up services
	auditor := audit.NewEmitter(database.NewAuditSink(db), logger, conf)
	prinSvc := principal.NewService(database.NewPrincipalRepository(db), conf, auditor, logger)
	schSvc := school.NewService(database.NewSchoolRepository(db))
	store := database.NewEntityStore(db)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		&echoapi.Options{
			Addr:         conf.Server.Host + ":" + conf.Server.Port,
			Conf:         conf,
			Logger:       logger,
			PrincipalSvc: prinSvc,
			SchoolSvc:    schSvc,
			Store:        store,
			Audit:        auditor,
			Validate:     validate,
			Translator:   translator,
		},
	)
	server.Start()
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
