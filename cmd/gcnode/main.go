// Package main is the group chat node CLI
package main

import (
	"os"

	"github.com/ZentaChain/zentalk-groupchat/cmd/gcnode/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
