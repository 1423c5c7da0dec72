// Package txbuilder encodes execution requests into signed transactions for
// the deployed execution contract.
package txbuilder

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// executorABIJSON is the execution contract's external surface: the borrow
// entrypoint plus the owner-only administrative operations.
const executorABIJSON = `[
  {"type":"function","name":"executeArbitrage","stateMutability":"nonpayable","inputs":[
    {"name":"assets","type":"address[]"},
    {"name":"amounts","type":"uint256[]"},
    {"name":"modes","type":"uint256[]"},
    {"name":"tokenPath","type":"address[]"},
    {"name":"dexPath","type":"string[]"},
    {"name":"slippage","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"authorizeCaller","stateMutability":"nonpayable","inputs":[
    {"name":"caller","type":"address"}],"outputs":[]},
  {"type":"function","name":"unauthorizeCaller","stateMutability":"nonpayable","inputs":[
    {"name":"caller","type":"address"}],"outputs":[]},
  {"type":"function","name":"setEmergencyStop","stateMutability":"nonpayable","inputs":[
    {"name":"stopped","type":"bool"}],"outputs":[]},
  {"type":"function","name":"recoverERC20","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},
    {"name":"amount","type":"uint256"}],"outputs":[]}
]`

var (
	abiOnce     sync.Once
	executorABI abi.ABI
	abiErr      error
)

// ExecutorABI returns the parsed execution contract ABI.
func ExecutorABI() (abi.ABI, error) {
	abiOnce.Do(func() {
		executorABI, abiErr = abi.JSON(strings.NewReader(executorABIJSON))
	})
	return executorABI, abiErr
}

// ExecuteParams is the decoded argument set of an executeArbitrage call.
// The builder encodes it; the local simulator decodes it back.
type ExecuteParams struct {
	Assets      []common.Address
	Amounts     []*big.Int
	Modes       []*big.Int
	TokenPath   []common.Address
	DexPath     []string
	SlippageBps *big.Int `abi:"slippage"`
}

// EncodeExecute packs the parameters into executeArbitrage calldata.
func EncodeExecute(p ExecuteParams) ([]byte, error) {
	parsed, err := ExecutorABI()
	if err != nil {
		return nil, fmt.Errorf("txbuilder: parsing ABI: %w", err)
	}
	data, err := parsed.Pack("executeArbitrage",
		p.Assets, p.Amounts, p.Modes, p.TokenPath, p.DexPath, p.SlippageBps)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: packing executeArbitrage: %w", err)
	}
	return data, nil
}

// DecodeExecute unpacks executeArbitrage calldata. It rejects calldata whose
// selector does not match.
func DecodeExecute(calldata []byte) (ExecuteParams, error) {
	parsed, err := ExecutorABI()
	if err != nil {
		return ExecuteParams{}, fmt.Errorf("txbuilder: parsing ABI: %w", err)
	}
	method := parsed.Methods["executeArbitrage"]
	if len(calldata) < 4 || string(calldata[:4]) != string(method.ID) {
		return ExecuteParams{}, fmt.Errorf("txbuilder: calldata is not an executeArbitrage call")
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return ExecuteParams{}, fmt.Errorf("txbuilder: unpacking executeArbitrage: %w", err)
	}
	var p ExecuteParams
	if err := method.Inputs.Copy(&p, args); err != nil {
		return ExecuteParams{}, fmt.Errorf("txbuilder: copying arguments: %w", err)
	}
	return p, nil
}
