package main

import "github.com/bsocio/campaign-service/cmd"

func main() {
	cmd.Execute()
}
