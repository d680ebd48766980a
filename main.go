package main

import (
	"log"

	"github.com/trialwell/pipeline/internal/bootstrap"
)

func main() {
	if err := bootstrap.Start(); err != nil {
		log.Fatalf("studies pipeline failed: %v", err)
	}
}
