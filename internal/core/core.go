// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"

	"github.com/bluenviron/mkvmux/internal/conf"
	"github.com/bluenviron/mkvmux/internal/logger"
)

var version = "v0.0.0"

var defaultConfPaths = []string{
	"mkvmux.yml",
	"/usr/local/etc/mkvmux.yml",
	"/usr/etc/mkvmux.yml",
	"/etc/mkvmux/mkvmux.yml",
}

var cli struct {
	Version kong.VersionFlag `help:"print version"`
	Conf    string           `help:"path to a config file"`
	Output  string           `short:"o" required:"" help:"path of the output file"`
	Input   string           `arg:"" help:"path of the input MPEG-TS file"`
}

// Core is an instance of mkvmux.
type Core struct {
	ctx        context.Context
	ctxCancel  func()
	confPath   string
	conf       *conf.Conf
	logger     *logger.Logger
	inputPath  string
	outputPath string
	err        error

	// out
	done chan struct{}
}

// New allocates a Core and starts the remux job.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Description("mkvmux "+version),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "conf":
				return "path to a config file. The default is mkvmux.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		inputPath:  cli.Input,
		outputPath: cli.Output,
		done:       make(chan struct{}),
	}

	p.conf, p.confPath, err = conf.Load(cli.Conf, defaultConfPaths)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}

	err = p.createResources()
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		p.closeResources()
		return nil, false
	}

	p.Log(logger.Info, "mkvmux %s", version)

	if p.confPath != "" {
		p.Log(logger.Info, "configuration loaded from %s", p.confPath)
	} else {
		p.Log(logger.Debug, "configuration file not found, using an empty configuration")
	}

	go p.run()

	return p, true
}

// Close interrupts the remux job and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the remux job to end.
func (p *Core) Wait() {
	<-p.done
}

// Err returns the error that stopped the remux job, if any.
// It must be called after Wait or Close.
func (p *Core) Err() error {
	return p.err
}

// Log is the main logging function.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) run() {
	defer close(p.done)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	remuxDone := make(chan error)
	go func() {
		remuxDone <- p.remux()
	}()

	select {
	case p.err = <-remuxDone:

	case <-interrupt:
		p.Log(logger.Info, "shutting down gracefully")
		p.ctxCancel()
		p.err = <-remuxDone
	}

	if p.err != nil {
		p.Log(logger.Error, "%s", p.err)
	}

	p.ctxCancel()

	p.closeResources()
}

func (p *Core) createResources() error {
	p.logger = &logger.Logger{
		Level:        logger.Level(p.conf.LogLevel),
		Destinations: p.conf.LogDestinations,
		Structured:   p.conf.LogStructured,
		File:         p.conf.LogFile,
		SysLogPrefix: p.conf.SysLogPrefix,
	}
	err := p.logger.Initialize()
	if err != nil {
		p.logger = nil
		return err
	}

	return nil
}

func (p *Core) closeResources() {
	if p.logger != nil {
		p.logger.Close()
		p.logger = nil
	}
}
