package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Administrative calldata builders for the execution contract's owner-only
// operations. They are used by operator tooling, not the trading loop.

func packAdmin(method string, args ...any) ([]byte, error) {
	parsed, err := ExecutorABI()
	if err != nil {
		return nil, fmt.Errorf("txbuilder: parsing ABI: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: packing %s: %w", method, err)
	}
	return data, nil
}

// AuthorizeCaller grants an account the right to call executeArbitrage.
func AuthorizeCaller(caller common.Address) ([]byte, error) {
	return packAdmin("authorizeCaller", caller)
}

// UnauthorizeCaller revokes an account's executeArbitrage right.
func UnauthorizeCaller(caller common.Address) ([]byte, error) {
	return packAdmin("unauthorizeCaller", caller)
}

// SetEmergencyStop toggles the contract's circuit breaker.
func SetEmergencyStop(stopped bool) ([]byte, error) {
	return packAdmin("setEmergencyStop", stopped)
}

// RecoverERC20 withdraws stranded tokens to the owner.
func RecoverERC20(token common.Address, amount *big.Int) ([]byte, error) {
	return packAdmin("recoverERC20", token, amount)
}
