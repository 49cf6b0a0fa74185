/*
Copyright © 2025 The Rboard Authors
*/
package main

import (
	"github.com/jbatonnet/Rboard/cmd"
	"github.com/jbatonnet/Rboard/internal/logger"
)

func main() {
	defer logger.HandlePanic()
	cmd.Execute()
}
