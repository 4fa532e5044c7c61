package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/kmunyaka/shule/core"
	"github.com/kmunyaka/shule/core/access"
	"github.com/kmunyaka/shule/core/identifier"
	"github.com/kmunyaka/shule/core/student"
	emailsvc "github.com/kmunyaka/shule/services/email"
	logsvc "github.com/kmunyaka/shule/services/logger"
	"github.com/kmunyaka/shule/storage/database"
	inmemdb "github.com/kmunyaka/shule/storage/database/inmem"
	sqlxrepos "github.com/kmunyaka/shule/storage/database/sqlx"
)

var stdLogger *log.Logger

func main() {
	defer os.Exit(0)

	stdLogger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	logger := logsvc.NewConsoleLogger()

	var (
		db         *sqlx.DB
		idRepo     identifier.Repository
		accessRepo access.Repository
		stdRepo    student.Repository
	)
	if conf.Database.Name == "" {
		mem := inmemdb.NewDB()
		idRepo = inmemdb.NewIdentifierRepository(mem)
		accessRepo = inmemdb.NewAccessRepository(mem)
		stdRepo = inmemdb.NewStudentRepository(mem)
	} else {
		var err error
		db, err = database.Open(conf)
		errAndDie(err)
		defer db.Close()
		errAndDie(db.Ping())
		idRepo = sqlxrepos.NewIdentifierRepository(db)
		accessRepo = sqlxrepos.NewAccessRepository(db)
		stdRepo = sqlxrepos.NewStudentRepository(db)
	}

	mailSvc := emailsvc.NewConsoleService(conf)

	cli := commandLine{
		conf:      conf,
		db:        db,
		idSvc:     identifier.NewService(idRepo, logger),
		accessSvc: access.NewService(accessRepo, stdRepo, mailSvc, logger, conf),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			stdLogger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		stdLogger.Fatal(err)
	}
}
