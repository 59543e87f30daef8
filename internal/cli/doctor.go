package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	gpsd "github.com/stratoberry/go-gpsd"

	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/gstreamer"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/storage"
)

// check is one doctor line.
type check struct {
	name string
	ok   bool
	msg  string
}

// NewDoctorCmd returns the doctor subcommand.
func NewDoctorCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration, backend and output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, cmd, nil)
			if err != nil {
				return err
			}
			checks := runChecks(cfg)
			return report(cmd.OutOrStdout(), checks)
		},
	}
}

func runChecks(cfg *config.Config) []check {
	checks := []check{{name: "config", ok: true, msg: "valid"}}

	switch cfg.Backend.Name {
	case "gstreamer":
		if err := gstreamer.CheckAvailable(cfg.Backend.Source); err != nil {
			checks = append(checks, check{name: "backend", msg: err.Error()})
		} else {
			checks = append(checks, check{name: "backend", ok: true, msg: "gstreamer with " + cfg.Backend.Source})
		}
	default:
		checks = append(checks, check{name: "backend", ok: true, msg: "sim"})
	}

	disk := storage.NewPreflight(cfg.Output.Dir, cfg.Output.MinFreeMB<<20).Run()
	checks = append(checks, check{name: "output", ok: disk.Passed, msg: disk.Message})

	if cfg.EXIF.GPS && !cfg.EXIF.Disabled {
		checks = append(checks, gpsdCheck(cfg.GPS.Addr))
	}
	if cfg.MQTT.Enabled {
		checks = append(checks, check{name: "mqtt", ok: cfg.MQTT.Broker != "", msg: cfg.MQTT.Broker})
	}
	return checks
}

// gpsdCheck connects to gpsd and reads its banner.
func gpsdCheck(addr string) check {
	sess, err := gpsd.Dial(addr)
	if err != nil {
		return check{name: "gpsd", msg: err.Error()}
	}
	_ = sess.Close()
	return check{name: "gpsd", ok: true, msg: addr + " reachable"}
}

func report(w io.Writer, checks []check) error {
	failed := 0
	for _, c := range checks {
		mark := "✓"
		if !c.ok {
			mark = "✗"
			failed++
		}
		fmt.Fprintf(w, "%s %-8s %s\n", mark, c.name, c.msg)
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}
