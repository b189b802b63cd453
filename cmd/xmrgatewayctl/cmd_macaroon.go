package main

import (
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli"

	"github.com/xmrgateway/xmrgateway/internal/httpapi"
)

// bakeMacaroonCommand mints a bearer token offline, against the same root
// key xmrgatewayd was started with (--http.macaroon-key); there is no HTTP
// endpoint for this; minting a credential against the service it
// authorizes would defeat the purpose.
var bakeMacaroonCommand = cli.Command{
	Name:      "bakemacaroon",
	Category:  "Auth",
	Usage:     "Mint a bearer macaroon scoped to \"read\" or \"admin\".",
	ArgsUsage: "root_key_hex [read|admin]",
	Action:    actionDecorator(bakeMacaroon),
}

func bakeMacaroon(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) < 1 || len(args) > 2 {
		return cli.ShowCommandHelp(ctx, "bakemacaroon")
	}

	key, err := hex.DecodeString(args.Get(0))
	if err != nil {
		return fmt.Errorf("invalid root key: %w", err)
	}

	op := httpapi.OpRead
	if len(args) == 2 {
		op = args.Get(1)
	}

	token, err := httpapi.NewMacaroonAuth(key).Mint(op)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
