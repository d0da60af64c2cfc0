package cmd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-settings/internal/bridges/remote"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-settings/internal/protocol"
	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

// ErrRemoteStatus is returned when the node answers with a non-zero status.
var ErrRemoteStatus = errors.New("remote command failed")

var (
	remoteNode    string
	remoteTimeout time.Duration
	remoteFull    bool
	remoteDefault bool
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Talk to a running glsettingsd over MQTT",
	Long: `Send settings protocol commands to a node and print its answer.

Every record the node sends back is printed on its own line, followed by
the command status. The command exits non-zero unless the status is 0.`,
}

var remoteSendCmd = &cobra.Command{
	Use:   "send <hex frame>",
	Short: "Send a raw command frame",
	Example: `  glsettings remote send 03        # LIST
  glsettings remote send "01 02 00" # GET id 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		frame, err := parseFrame(strings.Join(args, ""))
		if err != nil {
			return err
		}
		return sendFrame(cmd, frame)
	},
}

var remoteGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Read one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		typ := protocol.CmdGet
		if remoteFull {
			typ = protocol.CmdGetFull
		}
		return sendCommand(cmd, protocol.Command{Type: typ, ID: id})
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list [id...]",
	Short: "Read all settings, or only the given ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			typ := protocol.CmdList
			if remoteFull {
				typ = protocol.CmdListFull
			}
			return sendCommand(cmd, protocol.Command{Type: typ})
		}
		ids := make([]uint16, 0, len(args))
		for _, a := range args {
			id, err := parseID(a)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		c, err := protocol.NewListSomeCommand(remoteFull, ids...)
		if err != nil {
			return err
		}
		return sendCommand(cmd, c)
	},
}

var remoteSetCmd = &cobra.Command{
	Use:   "set <id> <hex value>",
	Short: "Write a setting value (or default) as raw bytes",
	Args:  cobra.ExactArgs(2), //nolint:mnd // id and value
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		data, err := parseFrame(args[1])
		if err != nil {
			return err
		}
		typ := protocol.CmdSet
		if remoteDefault {
			typ = protocol.CmdSetDefault
		}
		c, err := protocol.NewSetCommand(typ, id, data)
		if err != nil {
			return err
		}
		return sendCommand(cmd, c)
	},
}

var remoteRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore every setting to its default",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return sendCommand(cmd, protocol.Command{Type: protocol.CmdRestore})
	},
}

var remoteWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print value changes as the node publishes them",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	remoteCmd.PersistentFlags().StringVar(&remoteNode, "node", "", "node id (default: node.id from config)")
	remoteCmd.PersistentFlags().DurationVar(&remoteTimeout, "timeout", 5*time.Second, "how long to wait for the status")
	remoteGetCmd.Flags().BoolVar(&remoteFull, "full", false, "include default and max size")
	remoteListCmd.Flags().BoolVar(&remoteFull, "full", false, "include default and max size")
	remoteSetCmd.Flags().BoolVar(&remoteDefault, "default", false, "provision the default instead of the value")

	remoteCmd.AddCommand(remoteSendCmd, remoteGetCmd, remoteListCmd, remoteSetCmd, remoteRestoreCmd, remoteWatchCmd)
	rootCmd.AddCommand(remoteCmd)
}

// Client is the part of *mqtt.Client the remote commands use.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

func sendCommand(cmd *cobra.Command, c protocol.Command) error {
	frame, err := protocol.EncodeCommand(c)
	if err != nil {
		return err
	}
	return sendFrame(cmd, frame)
}

func sendFrame(cmd *cobra.Command, frame []byte) error {
	cfg, client, closeFn, err := connect()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
	defer cancel()

	status, err := exchange(ctx, client, nodeID(cfg), qos(cfg), frame, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if status != protocol.StatusOK {
		return fmt.Errorf("%w: status 0x%02x", ErrRemoteStatus, status)
	}
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, client, closeFn, err := connect()
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	topic := mqtt.Topics{}.Changed(nodeID(cfg))
	err = client.Subscribe(topic, qos(cfg), func(_ string, payload []byte) error {
		rec, _, err := protocol.ParseRecord(payload, false)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.TimeOnly), formatRecord(rec, false))
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe to changes: %w", err)
	}
	defer client.Unsubscribe(topic) //nolint:errcheck // closing anyway

	<-cmd.Context().Done()
	return nil
}

// connect opens an MQTT connection with a client id unique to this run.
func connect() (*config.Config, Client, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log := newLogger(cfg)

	mc := cfg.MQTT
	mc.Broker.ClientID = fmt.Sprintf("%s-cli-%s", mc.Broker.ClientID, uuid.NewString()[:8])
	client, err := mqtt.Connect(mc)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	log.Debug("MQTT connected", "client_id", mc.Broker.ClientID)

	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Warn("error closing MQTT", "error", err)
		}
	}
	return cfg, client, closeFn, nil
}

// exchange publishes frame to the node, prints every response record and
// returns the status the node reports.
func exchange(ctx context.Context, c Client, node string, qos byte, frame []byte, out io.Writer) (byte, error) {
	topics := mqtt.Topics{}
	full := len(frame) > 0 && protocol.CommandType(frame[0]).Full()

	records := make(chan []byte, 64) //nolint:mnd // generous backlog for LIST
	statuses := make(chan remote.StatusMessage, 1)

	respTopic, statusTopic := topics.Response(node), topics.Status(node)
	err := c.Subscribe(respTopic, qos, func(_ string, payload []byte) error {
		select {
		case records <- payload:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("subscribe to responses: %w", err)
	}
	defer c.Unsubscribe(respTopic) //nolint:errcheck // best effort

	err = c.Subscribe(statusTopic, qos, func(_ string, payload []byte) error {
		var st remote.StatusMessage
		if err := json.Unmarshal(payload, &st); err != nil {
			return err
		}
		select {
		case statuses <- st:
		default:
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("subscribe to status: %w", err)
	}
	defer c.Unsubscribe(statusTopic) //nolint:errcheck // best effort

	if err := c.Publish(topics.Command(node), frame, qos, false); err != nil {
		return 0, fmt.Errorf("publishing command: %w", err)
	}

	printRecord := func(payload []byte) {
		rec, _, err := protocol.ParseRecord(payload, full)
		if err != nil {
			fmt.Fprintf(out, "undecodable record %x: %v\n", payload, err)
			return
		}
		fmt.Fprintln(out, formatRecord(rec, full))
	}

	for {
		select {
		case payload := <-records:
			printRecord(payload)
		case st := <-statuses:
			for drained := false; !drained; {
				select {
				case payload := <-records:
					printRecord(payload)
				default:
					drained = true
				}
			}
			if st.Error != "" {
				fmt.Fprintf(out, "status: 0x%02x (%s)\n", st.Status, st.Error)
			} else {
				fmt.Fprintf(out, "status: 0x%02x\n", st.Status)
			}
			return st.Status, nil
		case <-ctx.Done():
			return 0, fmt.Errorf("waiting for status: %w", ctx.Err())
		}
	}
}

// formatRecord prints a record the way the settings shell prints a setting.
func formatRecord(rec protocol.Record, full bool) string {
	line := fmt.Sprintf("id: %d, key: %q, type: %s, value: %s",
		rec.ID, rec.Key, rec.Type, formatBytes(rec.Type, rec.Value))
	if full {
		line += fmt.Sprintf(", default: %s, max size: %d", formatBytes(rec.Type, rec.Default), rec.MaxSize)
	}
	return line
}

func formatBytes(typ settings.Type, data []byte) string {
	if len(data) == 0 {
		return "/"
	}
	text := settings.FormatValue(typ, data)
	if typ == settings.TypeStr {
		return strconv.Quote(text)
	}
	return text
}

// parseFrame decodes a hex string. Spaces and a 0x prefix are allowed.
func parseFrame(s string) ([]byte, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty frame")
	}
	return data, nil
}

func parseID(s string) (uint16, error) {
	id, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid setting id %q: %w", s, err)
	}
	return uint16(id), nil
}

func nodeID(cfg *config.Config) string {
	if remoteNode != "" {
		return remoteNode
	}
	return cfg.Node.ID
}

func qos(cfg *config.Config) byte {
	return byte(cfg.MQTT.QoS) //nolint:gosec // validated to 0..2
}
