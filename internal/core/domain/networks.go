package domain

// Network identifies one blockchain from the closed set the ledger tracks.
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkPolygon  Network = "polygon"
	NetworkBSC      Network = "bsc"
)

// DefaultConfirmationDepth is the confirmation count at which a transaction
// is considered final unless the network overrides it.
const DefaultConfirmationDepth = 12

// NetworkInfo describes one supported chain.
type NetworkInfo struct {
	Network           Network `json:"network"`
	ChainID           uint64  `json:"chain_id"`
	Name              string  `json:"name"`
	NativeSymbol      string  `json:"native_symbol"`
	NativeDecimals    int     `json:"native_decimals"`
	ConfirmationDepth uint64  `json:"confirmation_depth"`
}

// NetworkRegistry holds the closed set of supported networks. It is built
// once at startup and passed to the components that need chain metadata;
// there is no package-level mutable registry.
type NetworkRegistry struct {
	networks map[Network]NetworkInfo
}

// NewNetworkRegistry builds a registry from the given entries. Entries with
// a zero confirmation depth get DefaultConfirmationDepth.
func NewNetworkRegistry(infos []NetworkInfo) *NetworkRegistry {
	r := &NetworkRegistry{networks: make(map[Network]NetworkInfo, len(infos))}
	for _, info := range infos {
		if info.ConfirmationDepth == 0 {
			info.ConfirmationDepth = DefaultConfirmationDepth
		}
		if info.NativeDecimals == 0 {
			info.NativeDecimals = 18
		}
		r.networks[info.Network] = info
	}
	return r
}

// DefaultNetworks returns the built-in chain table.
func DefaultNetworks() []NetworkInfo {
	return []NetworkInfo{
		{Network: NetworkEthereum, ChainID: 1, Name: "Ethereum Mainnet", NativeSymbol: "ETH", NativeDecimals: 18},
		{Network: NetworkPolygon, ChainID: 137, Name: "Polygon Mainnet", NativeSymbol: "MATIC", NativeDecimals: 18},
		{Network: NetworkBSC, ChainID: 56, Name: "BSC Mainnet", NativeSymbol: "BNB", NativeDecimals: 18},
	}
}

// Lookup returns the info for a network and whether it is supported.
func (r *NetworkRegistry) Lookup(network Network) (NetworkInfo, bool) {
	info, ok := r.networks[network]
	return info, ok
}

// Supported reports whether the network is in the registry.
func (r *NetworkRegistry) Supported(network Network) bool {
	_, ok := r.networks[network]
	return ok
}

// Networks lists the registered networks.
func (r *NetworkRegistry) Networks() []NetworkInfo {
	out := make([]NetworkInfo, 0, len(r.networks))
	for _, info := range r.networks {
		out = append(out, info)
	}
	return out
}

// ConfirmationDepth returns the finality depth for a network, falling back
// to the default for unknown networks.
func (r *NetworkRegistry) ConfirmationDepth(network Network) uint64 {
	if info, ok := r.networks[network]; ok {
		return info.ConfirmationDepth
	}
	return DefaultConfirmationDepth
}
