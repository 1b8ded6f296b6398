package networks

// Builtin lists the networks served by the public query API, in the order the
// network switcher shows them.
var Builtin = []Descriptor{
	{Key: "mainnet", DisplayName: "Ethereum", IconRef: "/images/networks/ethereum.svg", NativeSymbol: "ETH", ChainID: 1},
	{Key: "polygon", DisplayName: "Polygon", IconRef: "/images/networks/polygon.svg", NativeSymbol: "MATIC", ChainID: 137},
	{Key: "optimism", DisplayName: "Optimism", IconRef: "/images/networks/optimism.svg", NativeSymbol: "ETH", ChainID: 10},
	{Key: "arbitrum-one", DisplayName: "Arbitrum One", IconRef: "/images/networks/arbitrum.svg", NativeSymbol: "ETH", ChainID: 42161},
	{Key: "base", DisplayName: "Base", IconRef: "/images/networks/base.svg", NativeSymbol: "ETH", ChainID: 8453},
	{Key: "avalanche", DisplayName: "Avalanche", IconRef: "/images/networks/avalanche.svg", NativeSymbol: "AVAX", ChainID: 43114},
	{Key: "bsc", DisplayName: "BNB Chain", IconRef: "/images/networks/bnb.svg", NativeSymbol: "BNB", ChainID: 56},
	{Key: "sepolia", DisplayName: "Sepolia", IconRef: "/images/networks/ethereum.svg", NativeSymbol: "ETH", ChainID: 11155111},
	{Key: "goerli", DisplayName: "Goerli", IconRef: "/images/networks/ethereum.svg", NativeSymbol: "ETH", ChainID: 5},
	{Key: "mumbai", DisplayName: "Polygon Mumbai", IconRef: "/images/networks/polygon.svg", NativeSymbol: "MATIC", ChainID: 80001},
}

// BuiltinRegistry returns a registry over Builtin.
func BuiltinRegistry() *Registry {
	return MustNewRegistry(Builtin)
}
