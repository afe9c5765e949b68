// Package console is an interactive shell for poking at a running
// generator service without HTTP.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"idgen_server/core/port/in"
	"idgen_server/pkg/logger"
)

const prompt = "idgen> "

var errExit = errors.New("exit")

// Options configures a Console.
type Options struct {
	In        io.Reader
	Out       io.Writer
	JWTSecret string
}

type Console struct {
	service   in.IDService
	in        io.Reader
	out       io.Writer
	jwtSecret string

	okColor   *color.Color
	warnColor *color.Color
	errColor  *color.Color
	infoColor *color.Color
}

func New(service in.IDService, opts Options) *Console {
	return &Console{
		service:   service,
		in:        opts.In,
		out:       opts.Out,
		jwtSecret: opts.JWTSecret,
		okColor:   color.New(color.FgGreen),
		warnColor: color.New(color.FgHiYellow),
		errColor:  color.New(color.FgRed),
		infoColor: color.New(color.FgHiCyan),
	}
}

// Run reads commands line by line until exit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	c.infoColor.Fprintf(c.out, "idgen console, default node %d. Type 'help' for commands.\n", c.service.DefaultNodeID())

	scanner := bufio.NewScanner(c.in)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(c.out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			c.errColor.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

// Execute runs a single command line.
func (c *Console) Execute(ctx context.Context, line string) error {
	logger.WithContext(ctx).Debug("console command: %s", line)

	root := c.rootCommand()
	root.SetArgs(strings.Fields(line))
	return root.ExecuteContext(ctx)
}

// rootCommand builds a fresh tree per line so flags never leak between
// commands.
func (c *Console) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "idgen",
		Short:         "Snowflake id generator console",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.out)

	root.AddCommand(
		c.clearCommand(),
		c.exitCommand(),
		c.nextCommand(),
		c.batchCommand(),
		c.decodeCommand(),
		c.generatorsCommand(),
		c.removeCommand(),
		c.opaqueCommand(),
		c.hashCommand(),
		c.encryptCommand(),
		c.decryptCommand(),
		c.tokenCommand(),
	)
	return root
}

func (c *Console) clearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the screen",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprint(c.out, "\033[H\033[2J")
		},
	}
}

func (c *Console) exitCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "exit",
		Aliases: []string{"quit"},
		Short:   "Leave the console",
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return errExit
		},
	}
}
