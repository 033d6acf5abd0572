// arena-cli is a command-line companion for arenad: treasury health,
// on-chain lookups, and wallet management without running a full peer.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/term"

	"github.com/ethwar/arena/config"
	"github.com/ethwar/arena/internal/chain"
	"github.com/ethwar/arena/internal/stake"
	"github.com/ethwar/arena/internal/treasury"
	"github.com/ethwar/arena/internal/wallet"
	"github.com/ethwar/arena/pkg/types"
)

const rpcTimeout = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	network := ""
	dataDir := ""
	rpcURL := ""

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg := loadConfig(network, dataDir, rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "treasury":
		cmdTreasury(cfg)
	case "balance":
		cmdBalance(cfg, cmdArgs)
	case "tx":
		cmdTx(cfg, cmdArgs)
	case "verify":
		cmdVerify(cfg, cmdArgs)
	case "wallet":
		cmdWallet(cfg, cmdArgs)
	case "room":
		cmdRoom()
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

// loadConfig resolves the same defaults + config file arenad uses, with the
// CLI's global flags layered on top.
func loadConfig(network, dataDir, rpcURL string) *config.Config {
	net := config.Testnet
	if strings.ToLower(network) == string(config.Local) {
		net = config.Local
	}
	cfg := config.Default(net)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	values, err := config.LoadFile(cfg.ConfigFile())
	if err == nil {
		_ = config.ApplyFileConfig(cfg, values)
	}
	if rpcURL != "" {
		cfg.Chain.RPCURL = rpcURL
	}
	return cfg
}

func dial(cfg *config.Config) *chain.Client {
	client, err := chain.Dial(cfg.Chain.RPCURL, chain.Config{
		RequiredChainID: big.NewInt(cfg.Chain.ChainID),
	})
	if err != nil {
		fatal("connect to %s: %v", cfg.Chain.RPCURL, err)
	}
	return client
}

func newSigner(cfg *config.Config, client *chain.Client) *treasury.Signer {
	var override common.Address
	if cfg.Treasury.AddressOverride != "" {
		override = common.HexToAddress(cfg.Treasury.AddressOverride)
	}
	signer, err := treasury.New(treasury.Config{
		PrivateKeyHex:   config.TreasuryKeyFromEnv(),
		AddressOverride: override,
	}, client)
	if err != nil {
		fatal("%v", err)
	}
	return signer
}

func cmdTreasury(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	client := dial(cfg)
	st := newSigner(cfg, client).Status(ctx)

	fmt.Printf("Address:     %s\n", st.Address)
	fmt.Printf("Initialized: %v\n", st.Initialized)
	if st.Initialized && st.Err == "" {
		fmt.Printf("Balance:     %s\n", st.Balance.Ether())
		fmt.Printf("Funded:      %v\n", st.Funded)
	}
	if st.Err != "" {
		fmt.Printf("Error:       %s\n", st.Err)
	}
}

func cmdBalance(cfg *config.Config, args []string) {
	if len(args) != 1 {
		fatal("usage: arena-cli balance <address>")
	}
	if !common.IsHexAddress(args[0]) {
		fatal("%q is not a valid address", args[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	balance, err := dial(cfg).BalanceOf(ctx, common.HexToAddress(args[0]))
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("%s\n", balance.Ether())
}

func cmdTx(cfg *config.Config, args []string) {
	if len(args) != 1 {
		fatal("usage: arena-cli tx <hash>")
	}
	txRef := common.HexToHash(args[0])

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	to, value, err := dial(cfg).Transfer(ctx, txRef)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Hash:   %s\n", txRef)
	if to != nil {
		fmt.Printf("To:     %s\n", *to)
	}
	fmt.Printf("Value:  %s\n", value.Ether())
	if cfg.Chain.ExplorerBase != "" {
		fmt.Printf("Link:   %s\n", chain.ExplorerTxURL(cfg.Chain.ExplorerBase, txRef))
	}
}

func cmdVerify(cfg *config.Config, args []string) {
	if len(args) != 2 {
		fatal("usage: arena-cli verify <hash> <amount>")
	}
	txRef := common.HexToHash(args[0])
	amount, err := types.ParseEther(args[1])
	if err != nil {
		fatal("amount: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	client := dial(cfg)
	if err := newSigner(cfg, client).VerifyStake(ctx, txRef, amount); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("OK: %s paid %s to the treasury\n", txRef, amount.Ether())
}

func cmdWallet(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fatal("usage: arena-cli wallet <new|address>")
	}

	ks, err := wallet.NewKeystore(cfg.WalletFile())
	if err != nil {
		fatal("%v", err)
	}

	switch args[0] {
	case "new":
		if ks.Exists() {
			fatal("wallet already exists at %s", cfg.WalletFile())
		}
		mnemonic, err := wallet.GenerateMnemonic()
		if err != nil {
			fatal("%v", err)
		}
		seed, err := wallet.SeedFromMnemonic(mnemonic, "")
		if err != nil {
			fatal("%v", err)
		}
		password := promptNewPassword()
		if err := ks.Create(seed, password, wallet.DefaultParams()); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Address: %s\n", ks.Address())
		fmt.Printf("\nRecovery phrase (write it down, it will not be shown again):\n\n  %s\n\n", mnemonic)
	case "address":
		if !ks.Exists() {
			fatal("no wallet at %s (run: arena-cli wallet new)", cfg.WalletFile())
		}
		fmt.Println(ks.Address())
	default:
		fatal("unknown wallet command %q", args[0])
	}
}

func cmdRoom() {
	code, err := stake.NewRoomCode()
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(code)
}

func promptNewPassword() []byte {
	fmt.Print("New wallet password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fatal("reading password: %v", err)
	}
	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fatal("reading password: %v", err)
	}
	if string(pw) != string(confirm) {
		fatal("passwords do not match")
	}
	return pw
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Print(`arena-cli - companion tool for arenad

Usage:
  arena-cli [global options] <command> [args]

Global options:
  --network <type>     testnet or local (default: testnet)
  --datadir <path>     Data directory (default: ~/.arena)
  --rpc <url>          Chain JSON-RPC endpoint override

Commands:
  treasury             Show treasury address, balance, and health
  balance <address>    Show an account balance
  tx <hash>            Show a transfer's destination, value, and explorer link
  verify <hash> <amt>  Check that a staking transaction paid the treasury
  wallet new           Create the encrypted player wallet
  wallet address       Print the player wallet address
  room                 Generate a fresh 6-digit room code
  help                 Show this help
`)
}
