// Package narratorcmder is the root narrator command
package narratorcmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/narrator/cmd/narrator/ask"
	configcmder "github.com/papercomputeco/narrator/cmd/narrator/config"
	servecmder "github.com/papercomputeco/narrator/cmd/narrator/serve"
	versioncmder "github.com/papercomputeco/narrator/cmd/version"
)

const narratorLongDesc string = `Narrator relays user text to an LLM and returns documentary-style narration.

Run the relay and talk to it using:
  narrator serve           Run the relay server
  narrator ask <text>      Ask a running relay for narration
  narrator config list     Show the effective configuration`

const narratorShortDesc string = "Narrator - documentary narration relay"

func NewNarratorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "narrator",
		Short:        narratorShortDesc,
		Long:         narratorLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .narrator/ config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
