package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/webterm-bridge/server/internal/server"
	"github.com/webterm-bridge/server/internal/session"
)

func main() {
	app := &cli.App{
		Name:  "webterm-bridge",
		Usage: "bridge WebSocket clients to interactive shells on pseudo-terminals",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen-addr",
				Usage: "The address for the server to listen on.",
				Value: "127.0.0.1:7703",
			},
			&cli.StringFlag{
				Name:  "default-shell",
				Usage: "Command to spawn when the client does not select one.",
				Value: "/usr/bin/bash",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging.",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx *cli.Context) error {
	logCfg := zap.NewProductionConfig()
	if ctx.Bool("verbose") {
		logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger, err := logCfg.Build()
	if err != nil {
		return err
	}
	defer logger.Sync()
	logg := logger.Sugar()

	srv := server.New(session.Config{
		DefaultCommand: ctx.String("default-shell"),
	}, logg)

	httpServer := &http.Server{
		Addr:    ctx.String("listen-addr"),
		Handler: srv.Router(),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logg.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logg.Infow("listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
