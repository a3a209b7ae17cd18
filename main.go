package main

import "github.com/mselser95/arbitrage-detector/cmd"

func main() {
	cmd.Execute()
}
