package main

import "github.com/SouravInsights/permissionless-go/cmd"

func main() {
	cmd.Execute()
}
