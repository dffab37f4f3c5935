package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// VaultWhitelistAPI makes the engine resolve whitelisted vaults through the Morpho API
const VaultWhitelistAPI = "morpho-api"

// MaxBufferBps is the exclusive upper bound of liquidation_buffer_bps
const MaxBufferBps = 10000

// ChainConfig holds the settings of one chain instance
type ChainConfig struct {
	Name    string `yaml:"name"`
	ChainID int64  `yaml:"chain_id"`
	RPCURL  string `yaml:"rpc_url"`

	// Env var holding the hex private key used to sign liquidations
	PrivateKeyEnv string `yaml:"private_key_env"`

	Contracts ContractsConfig `yaml:"contracts"`

	StartBlock    int64 `yaml:"start_block"`
	MaxBlockRange int64 `yaml:"max_block_range"`
	BlockInterval int   `yaml:"block_interval"`

	// Either a list of vault addresses or the literal "morpho-api"
	VaultWhitelist    []string           `yaml:"vault_whitelist"`
	AdditionalMarkets []string           `yaml:"additional_markets"`
	UseDiscoveryAPI   bool               `yaml:"use_discovery_api"`
	LiquidationBuffer *int64             `yaml:"liquidation_buffer_bps"`
	LiquidityVenues   []string           `yaml:"liquidity_venues"`
	Pricers           []string           `yaml:"pricers"`
	ERC20Wrappers     map[string]string  `yaml:"erc20_wrappers"`
	ChainlinkFeeds    map[string]string  `yaml:"chainlink_feeds"`
	FixedPrices       map[string]string  `yaml:"fixed_prices"`
	DefiLlamaChain    string             `yaml:"defillama_chain"`
	UniswapV3         UniswapV3Config    `yaml:"uniswap_v3"`
	PrivateRelay      PrivateRelayConfig `yaml:"private_relay"`
}

// UniswapV3Config locates the Uniswap V3 deployment used by the uniswapV3 venue and pricer.
// USDToken is the stablecoin the pricer quotes into.
type UniswapV3Config struct {
	Factory  string `yaml:"factory"`
	Quoter   string `yaml:"quoter"`
	Router   string `yaml:"router"`
	USDToken string `yaml:"usd_token"`
}

// ContractsConfig holds the protocol and bot contract addresses of a chain
type ContractsConfig struct {
	Morpho                string `yaml:"morpho"`
	AdaptiveCurveIrm      string `yaml:"adaptive_curve_irm"`
	PreLiquidationFactory string `yaml:"pre_liquidation_factory"`
	Executor              string `yaml:"executor"`
	Treasury              string `yaml:"treasury"`
	WrappedNative         string `yaml:"wrapped_native"`
}

// PrivateRelayConfig enables bundle submission through a private relay
type PrivateRelayConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SigningKeyEnv string `yaml:"signing_key_env"`
}

type chainsFile struct {
	Chains []ChainConfig `yaml:"chains"`
}

// LoadChains reads and validates the per-chain YAML file
func LoadChains(path string) ([]ChainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseChains(data)
}

// ParseChains parses per-chain YAML content
func ParseChains(data []byte) ([]ChainConfig, error) {
	var file chainsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chains: %w", err)
	}

	for i := range file.Chains {
		if err := file.Chains[i].validate(); err != nil {
			return nil, fmt.Errorf("chain %d (%s): %w", file.Chains[i].ChainID, file.Chains[i].Name, err)
		}
	}

	return file.Chains, nil
}

func (c *ChainConfig) validate() error {
	if c.ChainID <= 0 {
		return errors.New("chain_id is required")
	}
	if c.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	for name, addr := range map[string]string{
		"morpho":             c.Contracts.Morpho,
		"adaptive_curve_irm": c.Contracts.AdaptiveCurveIrm,
		"executor":           c.Contracts.Executor,
		"wrapped_native":     c.Contracts.WrappedNative,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s address %q", name, addr)
		}
	}
	if c.MaxBlockRange < 0 || c.StartBlock < 0 {
		return errors.New("start_block and max_block_range must not be negative")
	}
	if c.BlockInterval <= 0 {
		c.BlockInterval = 1
	}
	if c.PrivateRelay.Enabled && c.PrivateRelay.SigningKeyEnv == "" {
		return errors.New("private_relay.signing_key_env is required when the relay is enabled")
	}
	if c.LiquidationBuffer != nil && (*c.LiquidationBuffer < 0 || *c.LiquidationBuffer >= MaxBufferBps) {
		return fmt.Errorf("liquidation_buffer_bps must be in [0, %d), got %d", MaxBufferBps, *c.LiquidationBuffer)
	}
	for _, addr := range []string{
		c.Contracts.PreLiquidationFactory,
		c.Contracts.Treasury,
		c.UniswapV3.Factory,
		c.UniswapV3.Quoter,
		c.UniswapV3.Router,
		c.UniswapV3.USDToken,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid contract address %q", addr)
		}
	}
	if !c.UsesVaultAPI() {
		if err := checkAddresses("vault_whitelist", c.VaultWhitelist); err != nil {
			return err
		}
	}
	for _, id := range c.AdditionalMarkets {
		if !isMarketID(id) {
			return fmt.Errorf("invalid additional_markets id %q", id)
		}
	}
	for _, m := range []struct {
		name    string
		entries map[string]string
	}{
		{"erc20_wrappers", c.ERC20Wrappers},
		{"chainlink_feeds", c.ChainlinkFeeds},
	} {
		for k, v := range m.entries {
			if err := checkAddresses(m.name, []string{k, v}); err != nil {
				return err
			}
		}
	}
	for k := range c.FixedPrices {
		if err := checkAddresses("fixed_prices", []string{k}); err != nil {
			return err
		}
	}
	return nil
}

func checkAddresses(field string, values []string) error {
	for _, v := range values {
		if !common.IsHexAddress(v) {
			return fmt.Errorf("invalid %s address %q", field, v)
		}
	}
	return nil
}

// isMarketID reports whether s is a 0x-prefixed 32-byte hex id
func isMarketID(s string) bool {
	if len(s) != 66 || !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// UsesVaultAPI reports whether the vault whitelist is resolved via the Morpho API
func (c *ChainConfig) UsesVaultAPI() bool {
	return len(c.VaultWhitelist) == 1 && strings.EqualFold(c.VaultWhitelist[0], VaultWhitelistAPI)
}

// VaultAddresses returns the statically configured vault whitelist
func (c *ChainConfig) VaultAddresses() []common.Address {
	if c.UsesVaultAPI() {
		return nil
	}
	return toAddresses(c.VaultWhitelist)
}

// AdditionalMarketIDs returns the extra market ids to cover
func (c *ChainConfig) AdditionalMarketIDs() []common.Hash {
	ids := make([]common.Hash, 0, len(c.AdditionalMarkets))
	for _, id := range c.AdditionalMarkets {
		ids = append(ids, common.HexToHash(id))
	}
	return ids
}

// BufferBps returns the chain's liquidation buffer, falling back to def
func (c *ChainConfig) BufferBps(def int64) int64 {
	if c.LiquidationBuffer == nil {
		return def
	}
	return *c.LiquidationBuffer
}

// BlockRange returns the chain's chunk size, falling back to def
func (c *ChainConfig) BlockRange(def int64) int64 {
	if c.MaxBlockRange == 0 {
		return def
	}
	return c.MaxBlockRange
}

// OptionalAddress parses s, returning the zero address when it is empty or invalid
func OptionalAddress(s string) common.Address {
	if !common.IsHexAddress(s) {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func toAddresses(values []string) []common.Address {
	out := make([]common.Address, 0, len(values))
	for _, v := range values {
		out = append(out, common.HexToAddress(v))
	}
	return out
}
