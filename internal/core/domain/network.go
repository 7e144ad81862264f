package domain

import "fmt"

// Network is the bitcoin network the embedded node operates on.
type Network string

const (
	NetworkBitcoin Network = "bitcoin"
	NetworkTestnet Network = "testnet"
	NetworkSignet  Network = "signet"
	NetworkRegtest Network = "regtest"
)

// invoicePrefix maps a network to its BOLT11 human readable prefix.
var invoicePrefix = map[Network]string{
	NetworkBitcoin: "lnbc",
	NetworkTestnet: "lntb",
	NetworkSignet:  "lntbs",
	NetworkRegtest: "lnbcrt",
}

// addressPrefix maps a network to its bech32 segwit prefix.
var addressPrefix = map[Network]string{
	NetworkBitcoin: "bc1q",
	NetworkTestnet: "tb1q",
	NetworkSignet:  "tb1q",
	NetworkRegtest: "bcrt1q",
}

// ParseNetwork validates a network name.
func ParseNetwork(s string) (Network, error) {
	n := Network(s)
	if _, ok := invoicePrefix[n]; !ok {
		return "", fmt.Errorf("%w: unknown network %q", ErrInvalidArgument, s)
	}
	return n, nil
}

// InvoicePrefix returns the BOLT11 prefix for the network.
func (n Network) InvoicePrefix() string { return invoicePrefix[n] }

// AddressPrefix returns the segwit v0 address prefix for the network.
func (n Network) AddressPrefix() string { return addressPrefix[n] }
