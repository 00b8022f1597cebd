package main

import (
	"context"
	"os"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.WithError(err).Error("datacache failed")
		os.Exit(1)
	}
}
