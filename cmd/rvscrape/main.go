package main

import (
	"context"
	"webforms-scraper/cmd/rvscrape/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
