/*
Package main implements a websocket client that tails presale history snapshots.

The client connects to the history server's /api/ws endpoint, optionally
narrowed to a set of buyer wallets, and logs the aggregate statistics of every
snapshot it receives.

Usage:

	go run main.go -addr=ws://localhost:8080/api/ws -buyers=<wallet>,<wallet>

The client runs until interrupted or until the server closes the stream.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/utils"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/websocket"
	"github.com/rs/zerolog"
)

// Command-line flags for configuring the client connection and subscription
var (
	// serverAddr is the websocket endpoint of the history server
	serverAddr = flag.String("addr", "ws://localhost:8080/api/ws", "The history stream endpoint")
	// buyers narrows the stream to these wallets; empty means all records
	buyers = flag.String("buyers", "", "Comma-separated list of buyer wallets")
	// records also logs each record of a snapshot
	records = flag.Bool("records", false, "Log every record of each snapshot")
)

func main() {
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(zerolog.InfoLevel).With().Timestamp().Logger()

	endpoint, err := validateConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	client, err := websocket.Dial(ctx, websocket.Config{Endpoint: endpoint})
	if err != nil {
		log.Fatal().Err(err).Msg("did not connect")
	}
	defer client.Close()

	log.Info().Str("endpoint", endpoint).Msg("subscribed to history stream")

	for snapshot := range client.Snapshots() {
		event := log.Info().
			Str("cycle", snapshot.CycleID).
			Time("updatedAt", snapshot.UpdatedAt).
			Int("transactions", snapshot.Stats.TotalTransactions).
			Int("purchases", snapshot.Stats.TotalPurchases).
			Str("tokens", snapshot.Stats.TotalTokens).
			Str("usdc", snapshot.Stats.TotalUSDC).
			Str("sol", snapshot.Stats.TotalSOL).
			Str("average", snapshot.Stats.AveragePurchase).
			Int("last24h", snapshot.Stats.Last24h)
		if snapshot.ErrorMessage != "" {
			event = event.Str("error", snapshot.ErrorMessage)
		}
		event.Msg("received snapshot")

		if *records {
			for _, r := range snapshot.Records {
				buyer := "N/A"
				if r.Buyer != nil {
					buyer = *r.Buyer
				}
				log.Info().
					Str("signature", r.Signature).
					Str("buyer", buyer).
					Str("tokens", r.TokenAmount).
					Str("cost", r.Cost).
					Str("currency", string(r.Currency)).
					Msg("record")
			}
		}
	}

	if err := client.Err(); err != nil && !errors.Is(err, websocket.ErrClosed) {
		log.Warn().Err(err).Msg("stream has closed")
		return
	}
	log.Info().Msg("stream has closed")
}

// validateConfig checks the flags and returns the endpoint with the buyer
// filter applied.
func validateConfig() (string, error) {
	if *serverAddr == "" {
		return "", fmt.Errorf("server address cannot be empty")
	}
	u, err := url.Parse(*serverAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("server address must use ws or wss, got %q", u.Scheme)
	}

	list := utils.SplitList(*buyers)
	for i, b := range list {
		if err := utils.ValidateAddress(b); err != nil {
			return "", fmt.Errorf("buyer at index %d: %w", i, err)
		}
	}
	if len(list) > 0 {
		q := u.Query()
		q.Set("buyers", strings.Join(list, ","))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
