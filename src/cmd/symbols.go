package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"stocksense/src/endpoint"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterSymbolsCmd 注册交易对列表命令
func RegisterSymbolsCmd(registry *endpoint.Registry) {
	var endpointName string
	var quote string

	cmd.RegisterCmd("symbols", "list symbols offered by an endpoint", func(args *arg.Arg) {
		args.String(&endpointName, "e", "data endpoint (default: binance)")
		args.String(&quote, "quote", "only show pairs quoted in this asset, e.g. USDT")
		args.Parse()

		if endpointName == "" {
			endpointName = "binance"
		}

		pairs, err := listSymbols(registry, endpointName, quote)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
		for _, p := range pairs {
			fmt.Println(p)
		}
		fmt.Printf("\n共 %d 个交易对\n", len(pairs))
	})
}

func listSymbols(registry *endpoint.Registry, endpointName, quote string) ([]endpoint.TradingPair, error) {
	ep, err := registry.Get(endpointName)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pairs, err := ep.ListSymbols(ctx)
	if err != nil {
		return nil, err
	}
	if quote == "" {
		return pairs, nil
	}

	filtered := pairs[:0]
	for _, p := range pairs {
		if strings.EqualFold(p.Quote, quote) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}
