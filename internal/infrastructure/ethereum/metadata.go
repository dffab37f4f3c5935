/*
 * Copyright (c) 2024 Bima Kharisma Wicaksana
 * GitHub: https://github.com/bimakw
 *
 * Licensed under MIT License with Attribution Requirement.
 * See LICENSE file for details.
 */

package ethereum

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/blue-liquidator/internal/domain/repositories"
)

// ContractCaller executes read-only calls
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// MetadataFetcher reads ERC-20 token metadata via eth_call, caching decimals and symbols
type MetadataFetcher struct {
	client  ContractCaller
	chainID int64
	cache   repositories.DecimalsCache
	logger  *zap.Logger

	mu       sync.RWMutex
	decimals map[common.Address]uint8
	symbols  map[common.Address]string
}

// NewMetadataFetcher creates a new metadata fetcher. cache may be nil.
func NewMetadataFetcher(client ContractCaller, chainID int64, cache repositories.DecimalsCache, logger *zap.Logger) *MetadataFetcher {
	return &MetadataFetcher{
		client:   client,
		chainID:  chainID,
		cache:    cache,
		logger:   logger,
		decimals: make(map[common.Address]uint8),
		symbols:  make(map[common.Address]string),
	}
}

// ERC-20 function selectors (first 4 bytes of keccak256 hash)
var (
	// symbol() -> 0x95d89b41
	symbolSig = common.FromHex("0x95d89b41")
	// decimals() -> 0x313ce567
	decimalsSig = common.FromHex("0x313ce567")
)

// Decimals returns token decimals from memory, then the shared cache, then the chain
func (f *MetadataFetcher) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	f.mu.RLock()
	d, ok := f.decimals[token]
	f.mu.RUnlock()
	if ok {
		return d, nil
	}

	if f.cache != nil {
		d, found, err := f.cache.GetDecimals(ctx, f.chainID, token)
		if err != nil {
			f.logger.Warn("Failed to read decimals cache", zap.String("token", token.Hex()), zap.Error(err))
		} else if found {
			f.remember(token, d)
			return d, nil
		}
	}

	d, err := f.fetchDecimals(ctx, token)
	if err != nil {
		return 0, err
	}
	f.remember(token, d)

	if f.cache != nil {
		if err := f.cache.SetDecimals(ctx, f.chainID, token, d); err != nil {
			f.logger.Warn("Failed to write decimals cache", zap.String("token", token.Hex()), zap.Error(err))
		}
	}
	return d, nil
}

// Symbol returns the token symbol, or a shortened address when it cannot be read.
// Only successful reads are cached.
func (f *MetadataFetcher) Symbol(ctx context.Context, token common.Address) string {
	f.mu.RLock()
	symbol, ok := f.symbols[token]
	f.mu.RUnlock()
	if ok {
		return symbol
	}

	result, err := f.client.CallContract(ctx, token, symbolSig)
	if err == nil {
		if symbol, err := decodeStringOrBytes32(result); err == nil && symbol != "" {
			f.mu.Lock()
			f.symbols[token] = symbol
			f.mu.Unlock()
			return symbol
		}
	}
	return strings.ToLower(token.Hex()[:10])
}

func (f *MetadataFetcher) remember(token common.Address, d uint8) {
	f.mu.Lock()
	f.decimals[token] = d
	f.mu.Unlock()
}

// fetchDecimals fetches token decimals via eth_call
func (f *MetadataFetcher) fetchDecimals(ctx context.Context, addr common.Address) (uint8, error) {
	result, err := f.client.CallContract(ctx, addr, decimalsSig)
	if err != nil {
		return 0, fmt.Errorf("failed to read decimals of %s: %w", addr.Hex(), err)
	}

	if len(result) == 0 {
		return 0, fmt.Errorf("empty result for decimals")
	}

	// Decimals returns uint8, but padded to 32 bytes
	if len(result) < 32 {
		return 0, fmt.Errorf("invalid decimals response length: %d", len(result))
	}

	return result[31], nil
}

// decodeStringOrBytes32 decodes a response that is either an ABI-encoded
// string or a raw bytes32 (e.g. MKR)
func decodeStringOrBytes32(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty data")
	}
	if len(data) < 32 {
		return "", fmt.Errorf("data too short: %d bytes", len(data))
	}

	if len(data) >= 64 {
		offset := new(big.Int).SetBytes(data[:32])
		if offset.Uint64() == 32 {
			strLen := int(new(big.Int).SetBytes(data[32:64]).Uint64())
			if strLen == 0 {
				return "", nil
			}
			if len(data) >= 64+strLen {
				return strings.TrimRight(string(data[64:64+strLen]), "\x00"), nil
			}
		}
	}

	result := bytes.TrimRight(data[:32], "\x00")
	if isPrintableASCII(result) {
		return string(result), nil
	}

	return "0x" + hex.EncodeToString(data[:32]), nil
}

// isPrintableASCII checks if all bytes are printable ASCII characters
func isPrintableASCII(data []byte) bool {
	for _, b := range data {
		if b < 32 || b > 126 {
			return false
		}
	}
	return len(data) > 0
}
