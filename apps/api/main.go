package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/kmunyaka/shule/apps/api/echo"
	"github.com/kmunyaka/shule/core"
	"github.com/kmunyaka/shule/core/access"
	"github.com/kmunyaka/shule/core/identifier"
	"github.com/kmunyaka/shule/core/student"
	appfs "github.com/kmunyaka/shule/fs"
	emailsvc "github.com/kmunyaka/shule/services/email"
	logsvc "github.com/kmunyaka/shule/services/logger"
	"github.com/kmunyaka/shule/storage/database"
	inmemdb "github.com/kmunyaka/shule/storage/database/inmem"
	sqlxrepos "github.com/kmunyaka/shule/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	var logger core.Logger
	if conf.Debug {
		logger = logsvc.NewConsoleLogger()
	} else {
		rl := logsvc.NewRollbarLogger(
			log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
			conf,
		)
		rl.Enable(true)
		logger = rl
	}

	// set up repositories; an empty DB name selects the in-process store
	var (
		idRepo     identifier.Repository
		accessRepo access.Repository
		stdRepo    student.Repository
	)
	if conf.Database.Name == "" {
		db := inmemdb.NewDB()
		idRepo = inmemdb.NewIdentifierRepository(db)
		accessRepo = inmemdb.NewAccessRepository(db)
		stdRepo = inmemdb.NewStudentRepository(db)
		logger.Info("using in-memory store")
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				logger.Error("closing database", err)
			}
		}()
		idRepo = sqlxrepos.NewIdentifierRepository(db)
		accessRepo = sqlxrepos.NewAccessRepository(db)
		stdRepo = sqlxrepos.NewStudentRepository(db)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	idSvc := identifier.NewService(idRepo, logger)
	stdSvc := student.NewService(stdRepo, logger)
	accessSvc := access.NewService(accessRepo, stdRepo, mailSvc, logger, conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger, appfs.FS, "assets/templates/email")

	if err := idSvc.EnsureDefaults(context.Background()); err != nil {
		logger.Fatal(fmt.Sprintf("seeding identifier configs: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			IdentifierSvc: idSvc,
			AccessSvc:     accessSvc,
			StudentSvc:    stdSvc,
			Validate:      validate,
			Translator:    translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
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
