package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"sketchbook/internal/gateway/app"
)

func main() {
	defer glog.Flush()

	a, err := app.New()
	if err != nil {
		glog.Exitf("Failed to initialize app: %v", err)
	}

	go func() {
		if err := a.Start(); err != nil {
			glog.Errorf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	glog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		glog.Errorf("Server forced to shutdown: %v", err)
	}

	glog.Info("Server exiting")
}
