package main

import (
	"os"

	"github.com/urfave/cli"

	"crocker/internal/config"
	appLog "crocker/internal/log"
)

const version = "0.1.0"

var configFlag = cli.StringFlag{
	Name:   "config, c",
	Usage:  "path to the YAML config file",
	Value:  config.DefaultPath,
	EnvVar: "CROCKER_CONFIG",
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "crocker",
		HelpName:  "crocker",
		Usage:     "schedule countdown and alarm appliance",
		UsageText: "crocker <command> [arguments...]",
		Version:   version,
		Flags:     []cli.Flag{configFlag},
		Commands: []cli.Command{
			{
				Name:   "run",
				Usage:  "run the device loop, link and status API",
				Action: run,
				Flags:  runFlags,
			},
			{
				Name:   "check",
				Usage:  "parse the stored event list and print what the device would load",
				Action: check,
				Flags:  checkFlags,
			},
			{
				Name:   "import-ics",
				Usage:  "flatten one day of a calendar into the event list",
				Action: importICS,
				Flags:  importFlags,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		appLog.Error("crocker failed", err)
		os.Exit(1)
	}
}

// loadConfig reads the global --config file and applies its log level.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.GlobalString("config")
	conf, err := config.Load(path)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", path)
		return nil, err
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
