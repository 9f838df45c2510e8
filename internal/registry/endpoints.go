package registry

const (
	// Bridge aggregator endpoints.
	BungeeBaseURL   = "https://api.socket.tech/v2"
	BungeeTxScanURL = "https://www.socketscan.io/tx/"
)
