package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/user"
	"github.com/trezcool/weeklog/storage"
	"github.com/trezcool/weeklog/storage/database"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	ctx := context.Background()

	cli := commandLine{}
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if conf.Database.Engine != storage.EnginePostgres {
			logger.Fatalf("migrations only apply to %s; %s is set up at startup", storage.EnginePostgres, conf.Database.Engine)
		}
		errAndDie(database.CreateIfNotExist(conf))
		db, err := database.Open(conf)
		errAndDie(err)
		defer func() { _ = db.Close() }()
		cli.migrate = func(command string, args ...string) error {
			return database.Migrate(db, command, args...)
		}
	} else {
		store, err := storage.Open(ctx, conf)
		errAndDie(err)
		defer func() { _ = store.Close(ctx) }()

		validate := validator.New()
		translator := core.NewTranslator()
		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)
		cli.usrSvc = user.NewService(store.Users, validate)
		cli.translator = translator
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", cli.describe(err))
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
