package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/cradoe/songbid/internal/app"
	"github.com/cradoe/songbid/internal/env"
	"github.com/cradoe/songbid/internal/models"
	seeders "github.com/cradoe/songbid/internal/seeder"
	"github.com/cradoe/songbid/internal/version"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := run(logger)
	if err != nil {
		trace := string(debug.Stack())
		logger.Error(err.Error(), "trace", trace)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	showVersion := flag.Bool("version", false, "display version and exit")
	seed := flag.Bool("seed", false, "create the admin account from ADMIN_EMAIL and ADMIN_PASSWORD and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("version: %s\n", version.Get())
		return nil
	}

	application, err := app.NewApplication(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if *seed {
		return seeders.New(application.DB, logger).Run(context.Background(), seeders.Account{
			FirstName: "Admin",
			Email:     env.GetString("ADMIN_EMAIL", ""),
			Password:  env.GetString("ADMIN_PASSWORD", ""),
			Role:      models.UserRoleAdmin,
		})
	}

	application.StartWorkers()

	return application.ServeHTTP()
}
