package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"deliverynet/config"
	"deliverynet/rpc"
)

const (
	tokenCommand  = "token"
	callCommand   = "call"
	defaultConfig = "./config.toml"
	defaultRPC    = "http://127.0.0.1:8080/rpc"
	tokenEnv      = "DELIVERYNET_TOKEN"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout)
	case callCommand:
		err = runCall(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: deliveryctl <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  %s   issue a bearer token for an account using the node's auth secret\n", tokenCommand)
	fmt.Fprintf(os.Stderr, "  %s    invoke a JSON-RPC method: deliveryctl call <method> '<params json>'\n", callCommand)
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the node config file")
	subject := fs.String("account", "", "Account the token authenticates")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*subject) == "" {
		return fmt.Errorf("--account is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("config %s has no Auth.HMACSecret", *configPath)
	}
	token, err := rpc.IssueToken(cfg.Auth.HMACSecret, *subject, cfg.Auth.Issuer, cfg.Auth.Audience, *ttl, time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func runCall(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(callCommand, flag.ContinueOnError)
	endpoint := fs.String("rpc", defaultRPC, "JSON-RPC endpoint")
	token := fs.String("token", os.Getenv(tokenEnv), "Bearer token (defaults to $"+tokenEnv+")")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("method is required")
	}
	params := "{}"
	if fs.NArg() > 1 {
		params = fs.Arg(1)
	}
	if !json.Valid([]byte(params)) {
		return fmt.Errorf("params must be a JSON object")
	}
	body, err := json.Marshal(rpc.RPCRequest{
		JSONRPC: "2.0",
		Method:  fs.Arg(0),
		Params:  []json.RawMessage{json.RawMessage(params)},
		ID:      1,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, *endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t := strings.TrimSpace(*token); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}
	client := &http.Client{Timeout: *timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("rpc request: %w", err)
	}
	defer resp.Body.Close()

	var decoded rpc.RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	pretty, err := json.MarshalIndent(decoded.Result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(pretty))
	return err
}
