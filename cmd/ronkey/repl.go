package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/codefionn/ronkey/internal/client"
	"github.com/codefionn/ronkey/internal/protocol"
	"github.com/fatih/color"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const prompt = ">> "

var replURL string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive session against a running server",
	Long: `Connect to a ronkey server and evaluate each entered line in one
session. Bindings persist until the REPL exits.`,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
	replCmd.Flags().StringVar(&replURL, "url", "ws://127.0.0.1:8000/eval", "WebSocket endpoint of the server")
}

// lineReader yields one line of input per call and io.EOF at the end
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

type linerReader struct {
	state *liner.State
}

func newLinerReader() *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	return &linerReader{state: state}
}

func (r *linerReader) ReadLine() (string, error) {
	line, err := r.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
	return line, nil
}

func (r *linerReader) Close() error {
	return r.state.Close()
}

type scannerReader struct {
	scanner *bufio.Scanner
}

func (r *scannerReader) ReadLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scannerReader) Close() error { return nil }

func runREPL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := client.Dial(ctx, replURL)
	if err != nil {
		return err
	}
	defer c.Close()

	var in lineReader
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s\n", replURL)
		in = newLinerReader()
	} else {
		in = &scannerReader{scanner: bufio.NewScanner(cmd.InOrStdin())}
	}
	defer in.Close()

	return repl(ctx, c, in, cmd.OutOrStdout())
}

func repl(ctx context.Context, c *client.Client, in lineReader, out io.Writer) error {
	okColor := color.New(color.FgGreen)
	errColor := color.New(color.FgRed)

	for {
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		resp, err := c.Eval(ctx, line)
		if err != nil {
			return err
		}
		printResponse(out, resp, okColor, errColor)
	}
}

func printResponse(out io.Writer, resp protocol.Response, okColor, errColor *color.Color) {
	if resp.IsOK() {
		okColor.Fprintln(out, resp.Value)
		return
	}
	for _, msg := range resp.Errors {
		errColor.Fprintf(out, "\t%s\n", msg)
	}
}
