package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
)

var errUsage = errors.New("usage error")

type command struct {
	Name        string
	Description string
	Usage       string
	Examples    []string
	Run         func(ctx context.Context, env *cliEnv, fs *flag.FlagSet, args []string) error
}

func (c *command) flagSet(env *cliEnv) *flag.FlagSet {
	fs := flag.NewFlagSet(c.Name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	fs.Usage = func() {
		c.printUsage(env.stderr)
		fmt.Fprintln(env.stderr, "\nFLAGS:")
		fs.PrintDefaults()
	}
	return fs
}

func (c *command) printUsage(w io.Writer) {
	fmt.Fprintf(w, "%s\n\n", c.Description)
	fmt.Fprintf(w, "USAGE:\n    %s\n", c.Usage)
	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nEXAMPLES:\n")
		for _, example := range c.Examples {
			fmt.Fprintf(w, "    %s\n", example)
		}
	}
}

type registry struct {
	commands map[string]*command
}

func newRegistry() *registry {
	r := &registry{commands: make(map[string]*command)}
	r.register(&command{
		Name:        "upload",
		Description: "Transcode a video file to HLS and upload it",
		Usage:       "vidctl upload -title TITLE [-description TEXT] [flags] FILE",
		Examples: []string{
			"vidctl upload -title Holiday -description 'Beach, day 2' holiday.mp4",
			"vidctl upload -title Talk -video-bitrate 1500k -segment-duration 4 talk.mov",
		},
		Run: uploadCommand,
	})
	r.register(&command{
		Name:        "list",
		Description: "List stored videos",
		Usage:       "vidctl list [-json]",
		Run:         listCommand,
	})
	r.register(&command{
		Name:        "delete",
		Description: "Delete stored videos and their chunks",
		Usage:       "vidctl delete ID [ID...]",
		Run:         deleteCommand,
	})
	r.register(&command{
		Name:        "progress",
		Description: "Show the last upload progress recorded for a video",
		Usage:       "vidctl progress ID",
		Run:         progressCommand,
	})
	return r
}

func (r *registry) register(c *command) {
	r.commands[c.Name] = c
}

func (r *registry) Execute(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) < 1 {
		r.printHelp(env.stderr)
		return fmt.Errorf("%w: no command specified", errUsage)
	}
	switch args[0] {
	case "help", "-h", "--help":
		r.printHelp(env.stdout)
		return nil
	}
	c, ok := r.commands[args[0]]
	if !ok {
		r.printHelp(env.stderr)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	err := c.Run(ctx, env, c.flagSet(env), args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func (r *registry) printHelp(w io.Writer) {
	fmt.Fprintln(w, "vidctl - upload and manage videos on a canister backend")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "    vidctl <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "COMMANDS:")
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "    %-10s %s\n", name, r.commands[name].Description)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'vidctl <command> -h' for more information on a command.")
}
