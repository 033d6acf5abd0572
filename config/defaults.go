package config

// DefaultTestnet returns the default configuration for the Somnia Shannon
// testnet, the network the game is deployed on.
func DefaultTestnet() *Config {
	return &Config{
		Network: Testnet,
		DataDir: DefaultDataDir(),
		Chain: ChainConfig{
			RPCURL:         "https://dream-rpc.somnia.network",
			ChainID:        50312,
			ExplorerBase:   "https://shannon-explorer.somnia.network",
			ConfirmSeconds: 120,
		},
		Game: GameConfig{
			StakeEther:    "0.04",
			KillThreshold: 5,
		},
		Treasury: TreasuryConfig{
			PayoutEther: "0.04",
		},
		P2P: P2PConfig{
			ListenAddr: "0.0.0.0",
			Port:       30343,
			// Seeds are multiaddr strings, e.g.
			//   "/ip4/203.0.113.1/tcp/30343/p2p/12D3KooW..."
			// Usually empty: room peers find each other over mDNS.
			Seeds: []string{},
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultLocal returns the default configuration for a developer chain on
// localhost (anvil, hardhat).
func DefaultLocal() *Config {
	cfg := DefaultTestnet()
	cfg.Network = Local
	cfg.Chain.RPCURL = "http://127.0.0.1:8545"
	cfg.Chain.ChainID = 31337
	cfg.Chain.ExplorerBase = ""
	cfg.Chain.ConfirmSeconds = 30
	cfg.P2P.Port = 30344
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Local:
		return DefaultLocal()
	default:
		return DefaultTestnet()
	}
}
