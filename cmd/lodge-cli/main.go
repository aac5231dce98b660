package main

import (
	"lodgemirror/cmd/lodge-cli/commands"
	"lodgemirror/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
