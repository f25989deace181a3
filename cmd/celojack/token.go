package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/lox/celojack/internal/credentials"
)

// TokenCmd manages relay API tokens
type TokenCmd struct {
	Set    TokenSetCmd    `cmd:"" help:"Store a relay token (read from stdin when not given)"`
	Delete TokenDeleteCmd `cmd:"" help:"Remove a stored relay token"`
}

type TokenSetCmd struct {
	Endpoint string `arg:"" help:"Relay endpoint URL"`
	Token    string `arg:"" optional:"" help:"API token"`
	Service  string `default:"celojack" help:"Keyring service name"`
}

func (c *TokenSetCmd) Run() error {
	token := c.Token
	if token == "" {
		fmt.Fprint(os.Stderr, "Token: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}
	if err := credentials.New(c.Service).Set(c.Endpoint, token); err != nil {
		return err
	}
	fmt.Printf("Stored token for %s\n", c.Endpoint)
	return nil
}

type TokenDeleteCmd struct {
	Endpoint string `arg:"" help:"Relay endpoint URL"`
	Service  string `default:"celojack" help:"Keyring service name"`
}

func (c *TokenDeleteCmd) Run() error {
	if err := credentials.New(c.Service).Delete(c.Endpoint); err != nil {
		return err
	}
	fmt.Printf("Removed token for %s\n", c.Endpoint)
	return nil
}
