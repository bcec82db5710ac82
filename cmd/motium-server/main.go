package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/wichigo/Motium-sub012/internal/server"
	"github.com/wichigo/Motium-sub012/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	err = app.Execute(ctx, os.Args[1:])
	if cerr := app.Close(); cerr != nil {
		log.Printf("close: %v", cerr)
	}

	if err != nil {
		if errors.Is(err, server.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}

}
