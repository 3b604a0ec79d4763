package oracle

// Per-provider identifier tables. Identifiers differ per upstream: Binance
// keys on futures trading pairs, CoinGecko and DefiLlama on coin-catalog ids.
// The asset universe is fixed at deploy time; anything absent here is
// rejected before any network call.

var binanceSymbols = map[string]string{
	"BTC":  "BTCUSDT",
	"ETH":  "ETHUSDT",
	"SOL":  "SOLUSDT",
	"AVAX": "AVAXUSDT",
	"ADA":  "ADAUSDT",
	"XRP":  "XRPUSDT",
	"DOT":  "DOTUSDT",
	"LINK": "LINKUSDT",
}

var coingeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"MATIC": "matic-network",
	"DOT":   "polkadot",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
}

var defillamaIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"MATIC": "polygon",
	"DOT":   "polkadot",
	"AVAX":  "avalanche",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
}

// MapSymbol translates an asset ticker to the given provider's identifier.
// The second return is false when the provider has no listing for the asset.
func MapSymbol(asset string, src Source) (string, bool) {
	switch src {
	case SourceBinance:
		id, ok := binanceSymbols[asset]
		return id, ok
	case SourceCoingecko:
		id, ok := coingeckoIDs[asset]
		return id, ok
	case SourceDefiLlama:
		id, ok := defillamaIDs[asset]
		return id, ok
	default:
		return "", false
	}
}

// Supported reports whether at least one of the given sources can quote the
// asset.
func Supported(asset string, sources []Source) bool {
	for _, src := range sources {
		if _, ok := MapSymbol(asset, src); ok {
			return true
		}
	}
	return false
}
