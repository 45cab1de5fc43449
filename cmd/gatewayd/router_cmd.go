package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"conduit/internal/config"
	"conduit/internal/errcode"
	"conduit/internal/router"

	"github.com/spf13/cobra"
)

// routerCmd runs exactly one request read from stdin and writes the
// response envelope to stdout. It is invoked directly for scripting and
// by the task executor as its subprocess hop into the policy engine.
var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Run one router request from stdin, write the response envelope to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRouterOnce()
	},
}

func runRouterOnce() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	req, err := router.DecodeRequest(raw)
	if err != nil {
		ce, _ := errcode.AsCoded(err)
		enc := json.NewEncoder(os.Stdout)
		if encErr := enc.Encode(router.FailureEnvelope("", nil, ce.Code, err)); encErr != nil {
			return encErr
		}
		os.Exit(1)
		return nil
	}

	rt := router.New(cfg, logger)

	timeout := cfg.RouterTimeout
	if timeout <= 0 {
		timeout = 310 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp := rt.Handle(ctx, req)

	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if resp.Status != router.StatusSuccess {
		os.Exit(1)
	}
	return nil
}
