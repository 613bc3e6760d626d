package app

import (
	"errors"
	"flag"
	"os"
)

type Config struct {
	Path    string
	Group   string
	Verbose bool
}

func NewConfigFromCLI() (*Config, error) {
	fs := flag.CommandLine
	c, err := parseConfig(fs, os.Args[1:])
	if err != nil {
		fs.Usage()
		return nil, err
	}
	return c, nil
}

func parseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	var c Config
	fs.StringVar(&c.Path, "i", "", "Path to the recording file")
	fs.StringVar(&c.Group, "group", "", "Column group of a columnar store (default recording_data)")
	fs.BoolVar(&c.Verbose, "verbose", false, "Log every chunk of a columnar store")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if c.Path == "" {
		return nil, errors.New("recording path is required")
	}
	return &c, nil
}
