package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultTestnet()
	if err := Validate(cfg); err != nil {
		t.Errorf("testnet defaults invalid: %v", err)
	}
	if cfg.Chain.ChainID != 50312 {
		t.Errorf("testnet chain id = %d", cfg.Chain.ChainID)
	}
	if cfg.Game.StakeEther != "0.04" || cfg.Game.KillThreshold != 5 {
		t.Errorf("room terms = %s / %d", cfg.Game.StakeEther, cfg.Game.KillThreshold)
	}
	if cfg.Treasury.PayoutEther != "0.04" {
		t.Errorf("payout = %s", cfg.Treasury.PayoutEther)
	}

	local := DefaultLocal()
	if err := Validate(local); err != nil {
		t.Errorf("local defaults invalid: %v", err)
	}
	if local.Chain.ChainID == cfg.Chain.ChainID {
		t.Error("local and testnet share a chain id")
	}
	if Default(Local).Network != Local || Default("").Network != Testnet {
		t.Error("Default network selection wrong")
	}
}

func TestConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.conf")
	if err := WriteDefaultConfig(path, Testnet); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := DefaultLocal() // start from different defaults to prove overwrite
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.Network != Testnet {
		t.Errorf("network = %s", cfg.Network)
	}
	if cfg.Chain.ChainID != 50312 {
		t.Errorf("chain id = %d", cfg.Chain.ChainID)
	}
	if cfg.Game.StakeEther != "0.04" {
		t.Errorf("stake = %s", cfg.Game.StakeEther)
	}
	if cfg.Treasury.PayoutEther != "0.04" {
		t.Errorf("payout = %s", cfg.Treasury.PayoutEther)
	}
}

func TestLoadFileMissingIsEmpty(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("values = %v", values)
	}
}

func TestLoadFileParsing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.conf")
	content := `# comment
chain.id = 31337
game.stake = "0.1"
p2p.seeds = /ip4/1.2.3.4/tcp/30343/p2p/x, /ip4/5.6.7.8/tcp/30343/p2p/y
log.json = yes
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := DefaultTestnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.Chain.ChainID != 31337 {
		t.Errorf("chain id = %d", cfg.Chain.ChainID)
	}
	if cfg.Game.StakeEther != "0.1" {
		t.Errorf("quoted stake = %q", cfg.Game.StakeEther)
	}
	if len(cfg.P2P.Seeds) != 2 {
		t.Errorf("seeds = %v", cfg.P2P.Seeds)
	}
	if !cfg.Log.JSON {
		t.Error("log.json = yes not parsed")
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := DefaultTestnet()
	ApplyFlags(cfg, &Flags{
		Network:       "local",
		RPCURL:        "http://10.0.0.1:8545",
		ChainID:       1337,
		Stake:         "0.2",
		KillThreshold: 10,
		Payout:        "0.05",
		P2PPort:       40000,
		LogLevel:      "debug",
	})

	if cfg.Network != Local {
		t.Errorf("network = %s", cfg.Network)
	}
	if cfg.Chain.RPCURL != "http://10.0.0.1:8545" || cfg.Chain.ChainID != 1337 {
		t.Errorf("chain = %+v", cfg.Chain)
	}
	if cfg.Game.StakeEther != "0.2" || cfg.Game.KillThreshold != 10 {
		t.Errorf("game = %+v", cfg.Game)
	}
	if cfg.Treasury.PayoutEther != "0.05" {
		t.Errorf("payout = %s", cfg.Treasury.PayoutEther)
	}
	if cfg.P2P.Port != 40000 {
		t.Errorf("p2p port = %d", cfg.P2P.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}

	// Zero-value flags leave the config untouched.
	before := cfg.Chain.ChainID
	ApplyFlags(cfg, &Flags{})
	if cfg.Chain.ChainID != before {
		t.Error("empty flags overwrote config")
	}
}

func TestValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Network = "mainnet" },
		func(c *Config) { c.Chain.RPCURL = "" },
		func(c *Config) { c.Chain.ChainID = 0 },
		func(c *Config) { c.Game.StakeEther = "zero" },
		func(c *Config) { c.Game.StakeEther = "0" },
		func(c *Config) { c.Game.KillThreshold = 0 },
		func(c *Config) { c.Treasury.AddressOverride = "not-an-address" },
		func(c *Config) { c.Treasury.PayoutEther = "zero" },
		func(c *Config) { c.Treasury.PayoutEther = "0" },
		func(c *Config) { c.P2P.Port = 70000 },
	}
	for i, mutate := range bad {
		cfg := DefaultTestnet()
		mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Errorf("case %d: Validate accepted a bad config", i)
		}
	}

	cfg := DefaultTestnet()
	cfg.Treasury.AddressOverride = "0x00000000000000000000000000000000000000aa"
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate rejected a good config: %v", err)
	}
}

func TestValidateRoomCode(t *testing.T) {
	for _, good := range []string{"000000", "123456", "999999"} {
		if err := ValidateRoomCode(good); err != nil {
			t.Errorf("ValidateRoomCode(%q) = %v", good, err)
		}
	}
	for _, bad := range []string{"", "12345", "1234567", "12345a", "12 456"} {
		if err := ValidateRoomCode(bad); err == nil {
			t.Errorf("ValidateRoomCode(%q) accepted", bad)
		}
	}
}
