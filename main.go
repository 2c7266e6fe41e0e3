package main

import (
	_ "github.com/manifest-network/firehose-client/internal/alpnfix" // Disable ALPN enforcement for servers that don't support it

	"github.com/manifest-network/firehose-client/cmd/fireclient"
)

func main() {
	fireclient.Execute()
}
