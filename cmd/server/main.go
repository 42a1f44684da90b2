/*
Package main runs the S3MT presale history service.

The server reconstructs the purchase history of the presale program from
Solana RPC data, refreshes it periodically and serves it over HTTP and a
websocket stream. When Redis or Kafka are configured, every refresh is also
announced there.

Usage:

	go run main.go -env=.env

Configuration is read from the environment (see internal/config); the -env
file is optional.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/api"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/chain"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/config"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/health"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/history"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/notify"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/service"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Command-line flags for configuring the server behavior
var (
	// envFile is an optional dotenv file loaded before reading the environment
	envFile = flag.String("env", ".env", "Optional .env file")
	// shutdownTimeout bounds the graceful HTTP shutdown
	shutdownTimeout = flag.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
)

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := validateFlags(); err != nil {
		log.Fatal().Err(err).Msg("invalid flags")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	programID := solana.MustPublicKeyFromBase58(cfg.ProgramID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpcClient := chain.NewSolanaClient(cfg.RPCEndpoint)

	reconstructor, err := history.NewReconstructor(history.Config{
		ProgramID:       programID,
		PageSize:        cfg.PageSize,
		MaxSignatures:   cfg.MaxSignatures,
		BatchSize:       cfg.BatchSize,
		BatchDelay:      cfg.BatchDelay,
		RefreshInterval: cfg.RefreshInterval,
	}, rpcClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create reconstructor")
	}

	dispatcher := service.NewDispatcher(service.DispatcherConfig{
		MaxBuyersAllowed: cfg.MaxBuyersPerSubscription,
	})
	historyService := service.NewHistoryService(dispatcher, reconstructor)
	if err := historyService.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start history service")
	}
	defer historyService.Stop()

	if forwarder := newForwarder(cfg); forwarder != nil {
		sub, err := dispatcher.Subscribe(nil)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe notifier")
		}
		go forwarder.Run(ctx, sub.C())
		defer func() {
			if err := forwarder.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close publishers")
			}
		}()
	}

	if cfg.GRPCHealthAddr != "" {
		healthServer := health.NewServer()
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to listen for gRPC health")
		}
		sub, err := dispatcher.Subscribe(nil)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe health tracker")
		}
		go healthServer.Track(ctx, sub.C())
		go func() {
			if err := healthServer.Serve(lis); err != nil {
				log.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
		defer healthServer.Stop()
	}

	server := api.NewServer(cfg.HTTPAddr, api.Options{
		ProgramID:      programID,
		PresaleEndDate: cfg.PresaleEndDate,
		MaxBuyers:      cfg.MaxBuyersPerSubscription,
		AllowedOrigins: cfg.WSAllowedOrigins,
	}, reconstructor, rpcClient, historyService)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("initiating graceful shutdown")
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown did not complete")
		}
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("network", cfg.Network).
		Str("rpc", cfg.RPCEndpoint).
		Str("program", cfg.ProgramID).
		Dur("refresh", cfg.RefreshInterval).
		Msg("server starting")

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to serve")
	}
}

// validateFlags checks command-line flags before anything is started.
func validateFlags() error {
	if *shutdownTimeout <= 0 {
		return fmt.Errorf("shutdown-timeout must be greater than 0")
	}
	return nil
}

// newForwarder builds a forwarder for the configured brokers, or nil when
// none is configured.
func newForwarder(cfg *config.Config) *notify.Forwarder {
	var publishers []notify.Publisher
	if cfg.RedisAddr != "" {
		publishers = append(publishers,
			notify.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel))
		log.Info().Str("addr", cfg.RedisAddr).Str("channel", cfg.RedisChannel).Msg("redis notifications enabled")
	}
	if len(cfg.KafkaBrokers) > 0 {
		publishers = append(publishers, notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka notifications enabled")
	}
	if len(publishers) == 0 {
		return nil
	}
	return notify.NewForwarder(cfg.ProgramID, publishers...)
}
