/*
Package main decodes presale program instruction data.

Explorers show instruction data as base58. Pass it with -data and the decoded
instruction name and arguments are printed as JSON.

Usage:

	go run main.go -data=<base58>
*/
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/program"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// data is the base58 instruction payload
	data = flag.String("data", "", "Base58 encoded instruction data")
)

type output struct {
	Instruction string `json:"instruction"`
	Args        any    `json:"args"`
}

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *data == "" {
		log.Fatal().Msg("-data cannot be empty")
	}

	ix, err := program.DecodeBase58(*data)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to decode instruction")
	}

	out, err := json.MarshalIndent(output{Instruction: ix.Name, Args: ix.Args}, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode output")
	}
	fmt.Println(string(out))
}
