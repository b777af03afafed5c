package main

import (
	"log"

	"github.com/hookqueue/hookqueue/cmd/hookctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
