package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/metad/internal/config"
	"github.com/roach88/metad/internal/protocol"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	Addr    string
	Timeout time.Duration
}

// Exchange is one request line and the daemon's response.
type Exchange struct {
	Request  string `json:"request"`
	Response string `json:"response"`
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send [command...]",
		Short: "Send protocol commands to a running daemon",
		Long: `Send protocol commands to a running daemon and print the responses.

With arguments, they are joined into a single command line. Without
arguments, one command is read per line from standard input.

Example:
  metad send TAG /data/report.pdf project Alpha
  metad send 'QUERY TAG project=Alpha'
  printf 'PING\nSTATS\n' | metad send --addr tcp:127.0.0.1:7070`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "daemon socket (defaults to the configured listen address)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "per-command response timeout")

	return cmd
}

func runSend(opts *SendOptions, args []string, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)

	network, address := "", opts.Addr
	if address != "" {
		network, address = config.ParseListen(address)
	} else {
		cfg, err := loadConfig(opts.RootOptions, nil)
		if err != nil {
			return err
		}
		network, address = cfg.Listen.Network, cfg.Listen.Address
	}

	var lines []string
	if len(args) > 0 {
		lines = []string{strings.Join(args, " ")}
	} else {
		var err error
		lines, err = readLines(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read commands", err)
		}
	}
	if len(lines) == 0 {
		return NewExitError(ExitCommandError, "no commands to send")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out.VerboseLog("connecting to %s %s", network, address)
	exchanges, err := exchange(ctx, network, address, lines, opts.Timeout)
	if err != nil {
		return out.Fail(ExitFailure, "send failed", err)
	}

	failed := false
	var text strings.Builder
	for i, ex := range exchanges {
		if i > 0 {
			text.WriteByte('\n')
		}
		text.WriteString(ex.Response)
		if strings.HasPrefix(ex.Response, "ERR:") {
			failed = true
		}
	}
	if err := out.Success(exchanges, text.String()); err != nil {
		return err
	}
	if failed {
		return NewExitError(ExitFailure, "daemon returned an error")
	}
	return nil
}

// exchange sends each line on one connection and reads one response line
// per request.
func exchange(ctx context.Context, network, address string, lines []string, timeout time.Duration) ([]Exchange, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, 64*1024)
	out := make([]Exchange, 0, len(lines))
	for _, line := range lines {
		if timeout > 0 {
			if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
				return out, err
			}
		}
		if _, err := io.WriteString(conn, line+"\n"); err != nil {
			return out, fmt.Errorf("write: %w", err)
		}
		resp, err := reader.ReadString('\n')
		if err != nil {
			return out, fmt.Errorf("read response: %w", err)
		}
		out = append(out, Exchange{Request: line, Response: strings.TrimRight(resp, "\r\n")})
	}
	return out, nil
}

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), protocol.MaxLineBytes)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
