package main

import (
	"os"

	"sold-listings-scraper/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
