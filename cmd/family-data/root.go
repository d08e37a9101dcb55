package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iota-uz/familytree/pkg/configuration"
)

// cli carries the configuration shared by the commands of one process.
type cli struct {
	load func() (*configuration.Configuration, error)
	conf *configuration.Configuration
}

func (c *cli) config() (*configuration.Configuration, error) {
	if c.conf != nil {
		return c.conf, nil
	}
	conf, err := c.load()
	if err != nil {
		return nil, err
	}
	c.conf = conf
	return conf, nil
}

// close releases the log file the configuration opened.
func (c *cli) close() {
	if c.conf != nil {
		c.conf.Unload()
		c.conf = nil
	}
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "family-data",
		Short:         "Family tree spreadsheet importer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newImportCmd(c))
	cmd.AddCommand(newPingCmd(c))
	return cmd
}

func Execute() {
	c := &cli{load: loadConfig}
	err := newRootCmd(c).Execute()
	c.close()
	if err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
