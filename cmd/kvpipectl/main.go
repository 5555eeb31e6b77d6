// Command kvpipectl is a thin cobra/viper CLI wrapping the kvpipe
// session runtime against a single node, grounded on
// _examples/sa6mwa-lockd/cmd/lockd's cobra+viper command/flag-binding
// shape and _examples/jsp-lqk-metapipe-memcached/cmd/cli.go's
// smoke-test-style invocation of a hand-built client.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kvpipe/kvpipe"
	"github.com/kvpipe/kvpipe/commands"
	"github.com/kvpipe/kvpipe/internal/conn"
	"github.com/kvpipe/kvpipe/resp"
)

func main() {
	os.Exit(submain())
}

func submain() int {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "kvpipectl",
		Short:         "Issue one pipelined command against a kvpipe node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("addr", "127.0.0.1:6379", "host:port of the node")
	root.PersistentFlags().Int("dial-timeout-ms", 2000, "connection dial timeout in milliseconds")
	_ = viper.BindPFlag("addr", root.PersistentFlags().Lookup("addr"))
	_ = viper.BindPFlag("dial-timeout-ms", root.PersistentFlags().Lookup("dial-timeout-ms"))
	viper.SetEnvPrefix("KVPIPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	root.AddCommand(newCommandCommand())
	return root
}

func newCommandCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cmd [NAME] [ARGS...]",
		Short: "Run a single command (GET, SET, DEL, TTL, ...) against --addr",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagChanged(cmd.Flags(), "addr") {
				slog.Default().Debug("kvpipectl: using --addr override", "addr", viper.GetString("addr"))
			}
			return runOne(args)
		},
	}
}

// flagChanged reports whether --name was explicitly passed on the
// command line, so callers can prefer it over a config/env default
// viper would otherwise report as "set", the distinction
// sa6mwa-lockd's CLI layer makes when merging flag/env/config sources.
func flagChanged(fs *pflag.FlagSet, name string) bool {
	flag := fs.Lookup(name)
	return flag != nil && flag.Changed
}

func runOne(args []string) error {
	addr := viper.GetString("addr")
	host, port, err := splitHostPort(addr)
	if err != nil {
		return err
	}
	pool := conn.NewTCPPool(time.Duration(viper.GetInt("dial-timeout-ms"))*time.Millisecond, 4)
	spec := conn.NodeSpec{Address: host, Port: port}

	name := strings.ToUpper(args[0])
	rest := toAnySlice(args[1:])

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	result, err := kvpipe.WithConnection(pool, spec, nil, logger, func(s *kvpipe.Session) error {
		return commands.Command(s, name, rest...)
	})
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 {
		return addr, 0, fmt.Errorf("kvpipectl: %q is not host:port", addr)
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("kvpipectl: invalid port in %q: %w", addr, err)
	}
	return addr[:idx], port, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func printResult(v any) {
	switch r := v.(type) {
	case *resp.Reply:
		fmt.Println(formatReply(r))
	case []*resp.Reply:
		for _, reply := range r {
			fmt.Println(formatReply(reply))
		}
	default:
		fmt.Println(v)
	}
}

func formatReply(r *resp.Reply) string {
	if r == nil {
		return "(nil)"
	}
	switch r.Kind {
	case resp.KindSimpleString:
		return r.Simple
	case resp.KindInteger:
		return strconv.FormatInt(r.Integer, 10)
	case resp.KindError:
		return "(error) " + r.Err.Error()
	case resp.KindBulk:
		if r.BulkNull {
			return "(nil)"
		}
		return fmt.Sprintf("%v", r.Bulk)
	case resp.KindArray:
		if r.ArrayNull {
			return "(nil)"
		}
		parts := make([]string, len(r.Array))
		for i, e := range r.Array {
			parts[i] = formatReply(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "(unknown)"
	}
}
