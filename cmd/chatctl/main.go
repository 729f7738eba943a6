package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chat-gateway/internal/chatclient"
	"chat-gateway/internal/models"
)

type options struct {
	server  string
	userID  string
	name    string
	token   string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Command line client for the chat gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("CHAT_SERVER", "http://localhost:8083"), "gateway base URL")
	root.PersistentFlags().StringVar(&opts.userID, "user", os.Getenv("CHAT_USER_ID"), "user id used for the WebSocket handshake")
	root.PersistentFlags().StringVar(&opts.name, "name", "", "display name for optimistic messages")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("CHAT_TOKEN"), "bearer token for HTTP calls")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newListenCmd(opts), newSendCmd(opts), newHistoryCmd(opts))
	return root
}

func (o *options) client() *chatclient.Client {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return chatclient.New(chatclient.Config{
		BaseURL: o.server,
		User:    models.UserRef{ID: o.userID, Name: o.name},
		Token:   o.token,
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	})
}

func newListenCmd(opts *options) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Join a conversation and print incoming events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := opts.client()
			defer c.Close()
			if err := c.Connect(ctx); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			if conversationID != "" {
				if err := c.Join(conversationID); err != nil {
					return fmt.Errorf("join: %w", err)
				}
			}

			out := json.NewEncoder(cmd.OutOrStdout())
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-c.Events():
					if err := out.Encode(map[string]any{"event": ev.Name, "data": ev.Data}); err != nil {
						return err
					}
				case <-ticker.C:
					if err := c.ConnectionError(); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id to join")
	return cmd
}

func newSendCmd(opts *options) *cobra.Command {
	var (
		conversationID string
		msgType        string
		httpOnly       bool
	)
	cmd := &cobra.Command{
		Use:   "send [text]",
		Short: "Send a message, over the WebSocket when available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			c := opts.client()
			defer c.Close()
			if !httpOnly && opts.userID != "" {
				if err := c.Connect(ctx); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "websocket unavailable, using HTTP: %v\n", err)
				}
			}

			entry, err := c.Send(ctx, conversationID, args[0], msgType)
			if err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entry.MessageView)
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id")
	cmd.Flags().StringVar(&msgType, "type", models.MessageText, "message type")
	cmd.Flags().BoolVar(&httpOnly, "http", false, "skip the WebSocket and send over HTTP")
	_ = cmd.MarkFlagRequired("conversation")
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	var (
		conversationID string
		limit, skip    int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a page of messages, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			c := opts.client()
			defer c.Close()
			messages, err := c.LoadHistory(ctx, conversationID, limit, skip)
			if err != nil {
				return err
			}
			for _, m := range messages {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s %s\n", m.CreatedAt.Format(time.RFC3339), m.Sender.Name, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size (1..100)")
	cmd.Flags().IntVar(&skip, "skip", 0, "messages to skip from the newest")
	_ = cmd.MarkFlagRequired("conversation")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
