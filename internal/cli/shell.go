package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rkoval/playlink/internal/model"
	"github.com/rkoval/playlink/internal/protocol"
)

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive session with the server",
		Long: `Connect to the server and accept commands from stdin.

Commands:
  login <deviceId>                     Log in with a device id
  update <resource> <delta>            Adjust a balance (coins or rolls)
  gift <playerId> <resource> <value>   Send a gift to another player
  quit                                 Disconnect and exit

Inbound server messages are printed as they arrive. Press Ctrl+C or
type quit to disconnect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell()
		},
	}
}

func runShell() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	client, err := Dial(ctx, cfg.ServerURL)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if !cfg.JSON {
		fmt.Printf("Connected to %s\n", cfg.ServerURL)
	}

	// Reader goroutine prints everything the server pushes, including
	// gift notifications that arrive without a matching request.
	readDone := make(chan error, 1)
	go func() {
		readDone <- client.ReadLoop(printEnvelope)
	}()

	inputCh := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			inputCh <- scanner.Text()
		}
		close(inputCh)
	}()

	for {
		select {
		case <-ctx.Done():
			if !cfg.JSON {
				fmt.Println("\nDisconnected")
			}
			return nil
		case err := <-readDone:
			if err != nil {
				return fmt.Errorf("connection lost: %w", err)
			}
			if !cfg.JSON {
				fmt.Println("Disconnected")
			}
			return nil
		case line, ok := <-inputCh:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "quit" || line == "exit" {
				return nil
			}
			if err := runShellCommand(client, line); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	}
}

func runShellCommand(client *Client, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "login":
		if len(fields) != 2 {
			return fmt.Errorf("usage: login <deviceId>")
		}
		return client.Send(protocol.TypeLogin, protocol.LoginRequest{DeviceID: fields[1]})
	case "update":
		if len(fields) != 3 {
			return fmt.Errorf("usage: update <resource> <delta>")
		}
		delta, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("delta must be an integer: %q", fields[2])
		}
		return client.Send(protocol.TypeUpdateResources, protocol.UpdateResourcesRequest{
			ResourceType:  model.ResourceType(fields[1]),
			ResourceValue: delta,
		})
	case "gift":
		if len(fields) != 4 {
			return fmt.Errorf("usage: gift <playerId> <resource> <value>")
		}
		value, err := strconv.Atoi(fields[3])
		if err != nil {
			return fmt.Errorf("value must be an integer: %q", fields[3])
		}
		return client.Send(protocol.TypeSendGift, protocol.SendGiftRequest{
			FriendPlayerID: model.PlayerID(fields[1]),
			ResourceType:   model.ResourceType(fields[2]),
			ResourceValue:  value,
		})
	default:
		return fmt.Errorf("unknown command %q (login, update, gift, quit)", fields[0])
	}
}

func printEnvelope(env protocol.Envelope) {
	if cfg.JSON {
		data, _ := json.Marshal(env)
		fmt.Println(string(data))
		return
	}

	timestamp := time.Now().Format("15:04:05")
	payload := strings.ReplaceAll(string(env.Payload), "\n", " ")
	fmt.Printf("[%s] %s: %s\n", timestamp, env.Type, payload)
}
