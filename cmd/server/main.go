package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-registry",
	Short: "Face identity registration and recognition service",
	Long: `Face Registry stores face descriptors keyed to person ids and finds
the closest registered person for a query image. Descriptor extraction is
delegated to an external inference server.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printBanner печатает баннер при старте
func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════╗
║                                                       ║
║   🎭  FACE REGISTRY                                   ║
║                                                       ║
║   Регистрация и распознавание лиц                     ║
║                                                       ║
╚═══════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
}
