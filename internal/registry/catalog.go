package registry

import "tradecast/internal/models"

// canonicalContracts maps each protocol to the contract name the broadcaster
// resolves for it.
var canonicalContracts = map[models.Protocol]string{
	models.ProtocolLending: "LendingPool",
	models.ProtocolSwap:    "SwapRouter",
}

// CanonicalContractName returns the contract name looked up for a protocol.
func CanonicalContractName(protocol models.Protocol) (string, bool) {
	name, ok := canonicalContracts[protocol]
	return name, ok
}

// signatureCatalog is the static function catalog, keyed by function name.
// Required lists are ordered and drive positional argument packing.
var signatureCatalog = map[string]models.FunctionSignature{
	"supply": {
		Protocol:    models.ProtocolLending,
		Name:        "supply",
		DisplayName: "Supply Collateral",
		Required:    []string{"asset", "amount", "onBehalfOf", "referralCode"},
		Modifiable:  []string{"amount"},
	},
	"withdraw": {
		Protocol:    models.ProtocolLending,
		Name:        "withdraw",
		DisplayName: "Withdraw Collateral",
		Required:    []string{"asset", "amount", "to"},
		Modifiable:  []string{"amount"},
	},
	"borrow": {
		Protocol:    models.ProtocolLending,
		Name:        "borrow",
		DisplayName: "Borrow Asset",
		Required:    []string{"asset", "amount", "interestRateMode", "referralCode", "onBehalfOf"},
		Modifiable:  []string{"amount", "interestRateMode"},
	},
	"repay": {
		Protocol:    models.ProtocolLending,
		Name:        "repay",
		DisplayName: "Repay Debt",
		Required:    []string{"asset", "amount", "interestRateMode", "onBehalfOf"},
		Modifiable:  []string{"amount"},
	},
	"exactInputSingle": {
		Protocol:    models.ProtocolSwap,
		Name:        "exactInputSingle",
		DisplayName: "Swap (Exact Input)",
		Required:    []string{"tokenIn", "tokenOut", "fee", "recipient", "deadline", "amountIn", "amountOutMinimum"},
		Modifiable:  []string{"amountIn", "amountOutMinimum", "deadline"},
	},
}

// Signature looks up a function signature by name.
func Signature(functionName string) (models.FunctionSignature, bool) {
	sig, ok := signatureCatalog[functionName]
	return sig, ok
}
