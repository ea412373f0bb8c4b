package models

import "time"

// ContractRecord resolves a (protocol, contract name, network) triple to a
// deployed address and ABI. Rows are refreshed out of band; the registry
// caches them with a TTL.
type ContractRecord struct {
	ID           int64     `json:"id"`
	Protocol     Protocol  `json:"protocol"`
	ContractName string    `json:"contract_name"`
	Network      string    `json:"network"`
	Address      string    `json:"address"`
	ABI          string    `json:"abi,omitempty"`
	Version      string    `json:"version,omitempty"`
	Active       bool      `json:"active"`
	RefreshedAt  time.Time `json:"refreshed_at"`
}

// FunctionSignature describes one callable protocol function: the ordered
// required parameters and the subset a consumer may modify when accepting.
// Immutable, loaded from the static catalog keyed by function name.
type FunctionSignature struct {
	Protocol    Protocol `json:"protocol"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Required    []string `json:"required"`   // ordered, drives argument packing
	Modifiable  []string `json:"modifiable"` // subset of Required
}

// IsRequired reports whether key is one of the signature's required parameters.
func (s FunctionSignature) IsRequired(key string) bool {
	for _, k := range s.Required {
		if k == key {
			return true
		}
	}
	return false
}

// IsModifiable reports whether key may be changed by an accepting consumer.
func (s FunctionSignature) IsModifiable(key string) bool {
	for _, k := range s.Modifiable {
		if k == key {
			return true
		}
	}
	return false
}
