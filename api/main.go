package main

import (
	"github.com/joho/godotenv"

	"github.com/bakeops/bakeops/api/cmd/bakeops"
)

func main() {
	_ = godotenv.Load()
	bakeops.Execute()
}
