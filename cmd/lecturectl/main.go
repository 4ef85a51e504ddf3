package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/markdave123-py/studybuddy/internal/app"
	"github.com/markdave123-py/studybuddy/internal/cli"
	"github.com/markdave123-py/studybuddy/internal/config"
	"github.com/markdave123-py/studybuddy/internal/services"
)

type backend struct {
	*services.LectureService
	*services.RecommendationService
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var application *app.App
	root := cli.NewRootCmd(func(ctx context.Context) (cli.Backend, error) {
		a, err := app.NewApp(ctx, config.LoadConfig())
		if err != nil {
			return nil, fmt.Errorf("startup failed: %w", err)
		}
		application = a
		return backend{a.Lectures, a.Recommendations}, nil
	})
	root.SetOut(os.Stdout)

	err := root.ExecuteContext(ctx)
	if application != nil {
		application.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
