package domain

import "math/big"

type ChainID string
type ChainName string

const (
	// Chain IDs
	ChainIDEthereum ChainID = "1"
	ChainIDOptimism ChainID = "10"
	ChainIDBSC      ChainID = "56"
	ChainIDPolygon  ChainID = "137"
	ChainIDArbitrum ChainID = "42161"

	// Chain Names (Internal Codes)
	ChainNameEthereum ChainName = "ETHEREUM_MAINNET"
	ChainNameOptimism ChainName = "OPTIMISM_MAINNET"
	ChainNameBSC      ChainName = "BSC_MAINNET"
	ChainNamePolygon  ChainName = "POLYGON_MAINNET"
	ChainNameArbitrum ChainName = "ARBITRUM_MAINNET"
)

// ChainIDToName maps ChainID to its human-readable InternalCode/Name.
var ChainIDToName = map[ChainID]ChainName{
	ChainIDEthereum: ChainNameEthereum,
	ChainIDOptimism: ChainNameOptimism,
	ChainIDBSC:      ChainNameBSC,
	ChainIDPolygon:  ChainNamePolygon,
	ChainIDArbitrum: ChainNameArbitrum,
}

// nativeSymbols holds the ticker of each chain's native token.
var nativeSymbols = map[ChainID]string{
	ChainIDEthereum: "ETH",
	ChainIDOptimism: "ETH",
	ChainIDBSC:      "BNB",
	ChainIDPolygon:  "POL",
	ChainIDArbitrum: "ETH",
}

// NativeSymbol returns the native token ticker, or "native tokens" for unknown chains.
func (c ChainID) NativeSymbol() string {
	if s, ok := nativeSymbols[c]; ok {
		return s
	}
	return "native tokens"
}

// Name returns the internal chain code, falling back to the raw id.
func (c ChainID) Name() string {
	if n, ok := ChainIDToName[c]; ok {
		return string(n)
	}
	return string(c)
}

// ChainIDFromBig converts an eth_chainId answer.
func ChainIDFromBig(id *big.Int) ChainID {
	if id == nil {
		return ""
	}
	return ChainID(id.String())
}
