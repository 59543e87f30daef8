// Package cli is the still-capture command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCmd returns the still-capture command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "still-capture",
		Short: "Capture still images from a camera",
		Long: "Capture still images through a camera -> JPEG encoder pipeline, one file per frame,\n" +
			"with optional EXIF and GPS metadata and capture events published over MQTT.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: json, text")

	rootCmd.AddCommand(NewCaptureCmd(g))
	rootCmd.AddCommand(NewDoctorCmd(g))

	return rootCmd
}
