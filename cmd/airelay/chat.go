package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HingolSingh/airelay/internal/config"
	"github.com/HingolSingh/airelay/internal/dispatch"
	"github.com/HingolSingh/airelay/internal/llm"
)

func newChatCmd() *cobra.Command {
	var (
		userID     string
		capability string
		provider   string
	)

	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Send a one-shot message through the relay",
		Long:  "One-shot invocation: load config, route the message to a provider, print the response, exit.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := newLogger(cfg)
			r, err := buildRelay(cfg, logger, false)
			if err != nil {
				return err
			}

			reqCap, ok := llm.ParseCapability(capability)
			if !ok {
				return fmt.Errorf("unknown capability %q", capability)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			resp, err := r.engine.HandleMessage(ctx, dispatch.MessageRequest{
				UserID:           userID,
				Parts:            []llm.Part{llm.TextPart(strings.Join(args, " "))},
				Capability:       reqCap,
				ProviderOverride: provider,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "[%s]\n", resp.Provider)
			fmt.Println(resp.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli", "User ID for the conversation")
	cmd.Flags().StringVar(&capability, "capability", "", "Requested capability (text, vision, transcribe, image_gen)")
	cmd.Flags().StringVar(&provider, "provider", "", "Explicit provider override")

	return cmd
}
