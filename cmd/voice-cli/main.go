// Command voice-cli is the dictation daemon and its control CLI.
package main

import (
	"context"
	"os"

	"github.com/MrWong99/voicecli/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
