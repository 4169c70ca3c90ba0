// Package askcmder provides the ask command that sends text to a running
// narrator relay and prints the reply.
package askcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/narrator/pkg/client"
	"github.com/papercomputeco/narrator/pkg/cliui"
	"github.com/papercomputeco/narrator/pkg/config"
	"github.com/papercomputeco/narrator/pkg/llm"
	"github.com/papercomputeco/narrator/pkg/logger"
)

type askCommander struct {
	target string
	stream bool
	debug  bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	logger *slog.Logger
}

var askFlags = config.FlagSet{
	config.FlagTarget: {Name: "target", Shorthand: "t", ViperKey: "client.target", Description: "Narrator relay URL"},
}

const askLongDesc string = `Send text to a running narrator relay and print the reply.

The text is taken from the arguments, or from standard input when no
arguments are given. With --stream the reply is printed fragment by fragment
as the relay delivers it; otherwise the whole reply is printed followed by
its token usage.

Examples:
  narrator ask 海边的黄昏
  narrator ask --stream "a lighthouse at night"
  echo "潮汐" | narrator ask --target http://localhost:9000`

const askShortDesc string = "Ask a running relay for narration"

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}

	cmd := &cobra.Command{
		Use:   "ask [text...]",
		Short: askShortDesc,
		Long:  askLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("target") {
				cmder.target = cfg.Client.Target
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			text, err := cmder.text(args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return cmder.run(ctx, text)
		},
	}

	config.AddStringFlag(cmd, askFlags, config.FlagTarget, &cmder.target)
	cmd.Flags().BoolVarP(&cmder.stream, "stream", "s", false, "Print the reply as it is generated")

	return cmd
}

// text joins args, falling back to piped standard input.
func (c *askCommander) text(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if cliui.IsTerminal(c.in) {
		return "", errors.New("no text given: pass it as arguments or pipe it on stdin")
	}

	data, err := io.ReadAll(c.in)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("no text given: pass it as arguments or pipe it on stdin")
	}
	return text, nil
}

func (c *askCommander) run(ctx context.Context, text string) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithFormat(logger.FormatPretty), logger.WithWriter(c.errOut))

	cl, err := client.New(c.target, client.WithLogger(c.logger))
	if err != nil {
		return err
	}

	if c.stream {
		return c.runStream(ctx, cl, text)
	}
	return c.runGenerate(ctx, cl, text)
}

func (c *askCommander) runGenerate(ctx context.Context, cl *client.Client, text string) error {
	var reply *llm.Reply
	err := cliui.Step(c.errOut, "Narrating", func() error {
		var err error
		reply, err = cl.Generate(ctx, text)
		return err
	})
	if err != nil {
		return describe(err)
	}

	fmt.Fprintln(c.out, c.render(reply.Text))

	if reply.Usage != nil {
		fmt.Fprintf(c.errOut, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf(
			"%d prompt + %d completion = %d tokens",
			reply.Usage.PromptTokens,
			reply.Usage.CompletionTokens,
			reply.Usage.TotalTokens,
		)))
	}

	return nil
}

func (c *askCommander) runStream(ctx context.Context, cl *client.Client, text string) error {
	stream, err := cl.Stream(ctx, text)
	if err != nil {
		return describe(err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Next()
		if err != nil {
			fmt.Fprintln(c.out)
			return describe(err)
		}
		if chunk == nil {
			break
		}

		if chunk.Content != "" {
			fmt.Fprint(c.out, c.render(chunk.Content))
		}
	}

	fmt.Fprintln(c.out)

	if skipped := len(stream.Skipped()); skipped > 0 {
		c.logger.Debug("skipped malformed frames", "count", skipped)
	}

	return nil
}

// render styles reply text for terminals and leaves piped output plain.
func (c *askCommander) render(s string) string {
	if !cliui.IsTerminal(c.out) {
		return s
	}
	return cliui.ReplyStyle.Render(s)
}

func describe(err error) error {
	var clientErr *client.Error
	if errors.As(err, &clientErr) && clientErr.Message != "" {
		return fmt.Errorf("%s (status %d)", clientErr.Message, clientErr.StatusCode)
	}
	return err
}
