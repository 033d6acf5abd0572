// Arena peer daemon.
//
// Usage:
//
//	arenad --name=Ace              Create a room and wait for players
//	arenad --room=123456 --name=Bo Join an existing room
//	arenad --help                  Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/ethwar/arena/config"
	"github.com/ethwar/arena/internal/node"
)

func main() {
	cfg, flags, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	password, err := walletPassword()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	n, err := node.New(cfg, node.Options{
		Room:           flags.Room,
		Name:           flags.Name,
		WalletPassword: password,
		AutoStake:      true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	fmt.Printf("Room code: %s\n", n.Room())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
}

// walletPassword reads the wallet password from the terminal, or from
// ARENA_WALLET_PASSWORD when stdin is not a tty (service deployments).
func walletPassword() ([]byte, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return []byte(os.Getenv("ARENA_WALLET_PASSWORD")), nil
	}
	fmt.Print("Wallet password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return pw, nil
}
