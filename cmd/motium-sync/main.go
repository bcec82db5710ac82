package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/wichigo/Motium-sub012/internal/client/cli"
	"github.com/wichigo/Motium-sub012/internal/client/config"
	"github.com/wichigo/Motium-sub012/internal/flagx"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	err = app.Execute(ctx, flagx.Positionals(os.Args[1:], config.ValueFlags))
	if cerr := app.Close(); cerr != nil {
		log.Printf("close: %v", cerr)
	}

	if err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}

}
