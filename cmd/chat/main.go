package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tripdesk/tripdesk-server/internal/chatclient"
	"github.com/tripdesk/tripdesk-server/internal/proto"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:           "tripdesk-chat",
		Short:         "Terminal client for the tripdesk support chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "server base URL")
	cmd.AddCommand(newUserCmd(&serverURL))
	cmd.AddCommand(newStaffCmd(&serverURL))
	return cmd
}

func newUserCmd(serverURL *string) *cobra.Command {
	var name, email, password string
	var register bool

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Chat with the agency as a traveler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var session *chatclient.UserSession
			var err error
			if register {
				session, err = chatclient.RegisterUserSession(ctx, *serverURL, name, email, password)
			} else {
				session, err = chatclient.NewUserSession(ctx, *serverURL, email, password)
			}
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.Start(ctx); err != nil {
				return err
			}

			session.Realtime().OnNewMessage(func(data proto.EventNewMessageData) {
				if len(data.Conversation.Messages) == 0 {
					return
				}
				printMessage(data.Conversation.Messages[len(data.Conversation.Messages)-1])
			})
			session.Realtime().OnStateChange(func(s chatclient.State) {
				fmt.Printf("-- connection %s\n", s)
			})
			session.OnSendRejected(printRejected)

			fmt.Printf("Connected as %s. Type a message and press Enter. Ctrl+C to exit.\n", session.Account().Name)
			for _, msg := range session.Messages() {
				printMessage(msg)
			}

			return inputLoop(ctx, func(line string) error {
				return session.Send(ctx, line)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (with --register)")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&register, "register", false, "create a new account first")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newStaffCmd(serverURL *string) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Answer traveler conversations as agency staff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := chatclient.NewStaffSession(ctx, *serverURL, email, password)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.Start(ctx); err != nil {
				return err
			}

			session.Realtime().OnNewMessage(func(data proto.EventNewMessageData) {
				if len(data.Conversation.Messages) == 0 {
					return
				}
				fmt.Printf("-- %s (%s):\n", data.Conversation.UserName, data.Conversation.ID)
				printMessage(data.Conversation.Messages[len(data.Conversation.Messages)-1])
			})
			session.OnSendRejected(printRejected)

			printThreads(session)
			fmt.Println("Commands: /list, /open <conversationId>, or type a message. Ctrl+C to exit.")

			return inputLoop(ctx, func(line string) error {
				switch {
				case line == "/list":
					if err := session.Refresh(ctx); err != nil {
						return err
					}
					printThreads(session)
					return nil
				case strings.HasPrefix(line, "/open "):
					id := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
					session.Select(id)
					for _, msg := range session.Messages() {
						printMessage(msg)
					}
					return nil
				default:
					return session.Send(ctx, line)
				}
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "staff email")
	cmd.Flags().StringVar(&password, "password", "", "staff password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func inputLoop(ctx context.Context, handle func(string) error) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := handle(line); err != nil {
			fmt.Printf("-- send failed: %v\n", err)
		}
	}
	return scanner.Err()
}

func printThreads(session *chatclient.StaffSession) {
	fmt.Println("Conversations (newest activity first):")
	for _, t := range session.Threads() {
		fmt.Printf("  %s  %s <%s>  unread:%d\n",
			t.Conversation.ID, t.Conversation.UserName, t.Conversation.UserEmail, t.Unread)
	}
}

func printRejected(text string, serverErr proto.Error) {
	fmt.Printf("-- message rejected (%s: %s), your text was not sent:\n%s\n",
		serverErr.Code, serverErr.Msg, text)
}

func printMessage(msg proto.MessagePayload) {
	who := msg.SenderName
	if who == "" {
		if msg.SenderType == "ADMIN" {
			who = "agency"
		} else {
			who = "traveler"
		}
	}
	body := msg.Text
	if body == "" && msg.ImageURL != "" {
		body = "[image] " + msg.ImageURL
	}
	fmt.Printf("[%s] %s\n", who, body)
}
