package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pelletier/go-toml/v2"

	"github.com/invoicedesk/invoicedesk/controller"
	"github.com/invoicedesk/invoicedesk/engine"
	"github.com/invoicedesk/invoicedesk/model"
)

var (
	flagNewToken    = flag.String("newtoken", "", "create an API token with the given name and exit")
	flagMaintenance = flag.Bool("maintenance", false, "run the maintenance sweep and exit")
	flagMigrate     = flag.Bool("migrate", false, "run SQL migrations and exit (requires -tags sqlite or -tags postgres)")
)

func dothings() error {
	flag.Parse()

	data, err := os.ReadFile("config.toml")
	if err != nil {
		return err
	}
	cfg := &model.Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return err
	}

	if *flagMigrate {
		return runMigrations(cfg)
	}

	store, err := model.InitDatabase(cfg)
	if err != nil {
		return err
	}

	if *flagNewToken != "" {
		plain, rec, err := store.CreateAPIToken(*flagNewToken, nil)
		if err != nil {
			return err
		}
		fmt.Printf("token %d (%s): %s\n", rec.ID, rec.Name, plain)
		return nil
	}
	if *flagMaintenance {
		return model.RunMaintenance(context.Background(), store, slog.Default())
	}

	eng := engine.New(engine.NewStoreGateway(store), engine.Options{
		Workers:   cfg.Engine.Workers,
		QueueSize: cfg.Engine.QueueSize,
	}, slog.Default())
	defer eng.Close()

	e := controller.NewController(store, eng)
	return controller.Serve(e, cfg)
}

func runMigrations(cfg *model.Config) error {
	m, err := migrate.New("file://"+migrationsDir(), migrateDSN(cfg))
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func main() {
	if err := dothings(); err != nil {
		log.Fatal(err)
	}
}
