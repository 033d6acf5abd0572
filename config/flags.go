package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Session
	Room string // room code to join ("" = create a new room)
	Name string // display name for this session

	// Chain
	RPCURL         string
	ChainID        int64
	Explorer       string
	ConfirmSeconds int

	// Game
	Stake         string
	KillThreshold int

	// Treasury
	TreasuryAddr string
	Payout       string

	// P2P
	P2PPort int
	Seeds   string

	// Wallet
	WalletFile string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetLogJSON bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("arena", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (testnet or local)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Session
	fs.StringVar(&f.Room, "room", "", "6-digit room code to join (omit to create a room)")
	fs.StringVar(&f.Name, "name", "", "Display name for this session")

	// Chain
	fs.StringVar(&f.RPCURL, "rpc-url", "", "Chain JSON-RPC endpoint")
	fs.Int64Var(&f.ChainID, "chain-id", 0, "Required chain ID")
	fs.StringVar(&f.Explorer, "explorer", "", "Block explorer base URL")
	fs.IntVar(&f.ConfirmSeconds, "confirm-timeout", 0, "Seconds to wait for a transfer to confirm")

	// Game
	fs.StringVar(&f.Stake, "stake", "", "Default stake posted when entering a room")
	fs.IntVar(&f.KillThreshold, "kill-threshold", 0, "Kill count that ends the game")

	// Treasury
	fs.StringVar(&f.TreasuryAddr, "treasury-address", "", "Staking destination override")
	fs.StringVar(&f.Payout, "payout", "", "Fixed amount paid to the winner")

	// P2P
	fs.IntVar(&f.P2PPort, "p2p-port", 0, "P2P listen port")
	fs.StringVar(&f.Seeds, "seeds", "", "Seed peers as comma-separated libp2p multiaddrs")

	// Wallet
	fs.StringVar(&f.WalletFile, "wallet-file", "", "Encrypted wallet file path")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	// Custom usage
	fs.Usage = func() {
		printUsage()
	}

	// Parse
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "Error: flag %q was not parsed (positional argument stopped parsing)\n", arg)
			os.Exit(1)
		}
	}

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Chain
	if f.RPCURL != "" {
		cfg.Chain.RPCURL = f.RPCURL
	}
	if f.ChainID != 0 {
		cfg.Chain.ChainID = f.ChainID
	}
	if f.Explorer != "" {
		cfg.Chain.ExplorerBase = f.Explorer
	}
	if f.ConfirmSeconds != 0 {
		cfg.Chain.ConfirmSeconds = f.ConfirmSeconds
	}

	// Game
	if f.Stake != "" {
		cfg.Game.StakeEther = f.Stake
	}
	if f.KillThreshold != 0 {
		cfg.Game.KillThreshold = f.KillThreshold
	}

	// Treasury
	if f.TreasuryAddr != "" {
		cfg.Treasury.AddressOverride = f.TreasuryAddr
	}
	if f.Payout != "" {
		cfg.Treasury.PayoutEther = f.Payout
	}

	// P2P
	if f.P2PPort != 0 {
		cfg.P2P.Port = f.P2PPort
	}
	if f.Seeds != "" {
		cfg.P2P.Seeds = parseStringList(f.Seeds)
	}

	// Wallet
	if f.WalletFile != "" {
		cfg.Wallet.FilePath = f.WalletFile
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	// Handle help/version
	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("arenad version 0.1.0")
		os.Exit(0)
	}

	// Determine network first (needed for defaults)
	network := Testnet
	if strings.ToLower(flags.Network) == string(Local) {
		network = Local
	}

	// Start with defaults
	cfg := Default(network)

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	// Determine config file path
	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	// Load config file
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	// Apply file config
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	if flags.Room != "" {
		if err := ValidateRoomCode(flags.Room); err != nil {
			return nil, nil, err
		}
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Idempotent, safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.StateDir(),
		cfg.P2PDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}

// printUsage prints the command-line help text.
func printUsage() {
	fmt.Print(`Arena - staked multiplayer settlement daemon

Usage:
  arenad [options]

Options:
  --help, -h              Show this help message
  --version, -v           Show version information

Core:
  --network <type>        Network type: testnet or local (default: testnet)
  --datadir <path>        Data directory (default: ~/.arena)
  --config, -c <path>     Config file path

Session:
  --room <code>           6-digit room code to join (omit to create a room)
  --name <name>           Display name for this session

Chain:
  --rpc-url <url>         Chain JSON-RPC endpoint
  --chain-id <id>         Required chain ID
  --explorer <url>        Block explorer base URL
  --confirm-timeout <s>   Seconds to wait for a transfer to confirm

Game:
  --stake <amount>        Default stake posted when entering a room (default: 0.04)
  --kill-threshold <n>    Kill count that ends the game (default: 5)

Treasury:
  --treasury-address <a>  Staking destination override
                          (signing key comes from ` + TreasuryKeyEnv + `)
  --payout <amount>       Fixed amount paid to the winner (default: 0.04)

P2P:
  --p2p-port <port>       P2P listen port
  --seeds <addrs>         Seed peers as comma-separated multiaddrs

Wallet:
  --wallet-file <path>    Encrypted wallet file path

Logging:
  --log-level <level>     Log level: debug, info, warn, error
  --log-file <path>       Log file path
  --log-json              Output logs as JSON
`)
}
