// Command facilityclient runs the interactive booking client against a
// facilityserver instance, driving the reliability engine through the
// menu in internal/cli.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/Iyzyman/facilitybook/internal/cli"
	"github.com/Iyzyman/facilitybook/internal/rpcclient"
	"github.com/Iyzyman/facilitybook/internal/server"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "facilityclient host port semantics",
	Short:         "Interactively drive the facility booking server",
	Args:          cobra.ExactArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runClient,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "facilityclient:", err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	host, portArg, semanticsArg := args[0], args[1], args[2]

	port, err := strconv.Atoi(portArg)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portArg, err)
	}
	// Semantics is a server-side policy, but the client validates it too
	// since the positional contract names it explicitly (§6).
	if _, err := server.ParseSemantics(semanticsArg); err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	serverAddr := net.JoinHostPort(host, strconv.Itoa(port))
	client, err := rpcclient.Dial(serverAddr, rpcclient.DefaultOptions(), log)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", serverAddr, err)
	}
	defer client.Close()

	menu := cli.New(client)
	return menu.Run()
}
