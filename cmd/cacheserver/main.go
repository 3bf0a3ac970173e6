package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"async-program-rl/pkg/cache"
)

var addr string

func main() {
	rootCmd := &cobra.Command{
		Use:   "cacheserver",
		Short: "Cacheserver hosts the shared program cache for multi-process training runs.",
		RunE:  runServer,
	}
	rootCmd.Flags().StringVar(&addr, "addr", ":8090", "listen address")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: cache.NewHandler(cache.NewMemoryCache()),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("[cacheserver] shutdown: %v", err)
		}
	}()

	log.Printf("[cacheserver] listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
