package main

import (
	"github.com/spf13/cobra"

	"cmpbridge/internal/consent/regime"
)

var regimesFlags struct {
	output string
}

var regimesCmd = &cobra.Command{
	Use:   "regimes",
	Short: "List the consent regimes and the CMP APIs they query",
	RunE:  runRegimes,
}

func init() {
	regimesCmd.Flags().StringVarP(&regimesFlags.output, "output", "o", outputJSON, "Output format: json or yaml")
}

type regimeInfo struct {
	Name      string `json:"name" yaml:"name"`
	Function  string `json:"function" yaml:"function"`
	Command   string `json:"command" yaml:"command"`
	Locator   string `json:"locator" yaml:"locator"`
	Version   int    `json:"version" yaml:"version"`
	Listeners bool   `json:"eventListener" yaml:"eventListener"`
}

func runRegimes(cmd *cobra.Command, _ []string) error {
	var out []regimeInfo
	for _, name := range regime.Names() {
		def, _ := regime.Lookup(name)
		out = append(out, regimeInfo{
			Name:      def.Name,
			Function:  def.GlobalFunc,
			Command:   def.GetCommand,
			Locator:   def.LocatorName,
			Version:   def.Version,
			Listeners: def.EventListener != nil,
		})
	}
	return writeOutput(cmd.OutOrStdout(), regimesFlags.output, out)
}
