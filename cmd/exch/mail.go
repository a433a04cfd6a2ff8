package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exchtools/exch/internal/output"
	"github.com/exchtools/exch/libexch"
)

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Read and send mail",
}

func printMessageList(msgs []libexch.Message) {
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range msgs {
		marker := " "
		if !m.IsRead {
			marker = "*"
		}
		fmt.Printf("%s %s  %-30s  %s\n",
			marker,
			m.Received.Format("2006-01-02 15:04"),
			truncateString(m.From, 30),
			m.Subject)
	}
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

var mailListCmd = &cobra.Command{
	Use:   "list",
	Short: "List messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		limit, _ := cmd.Flags().GetInt("limit")
		unread, _ := cmd.Flags().GetBool("unread")
		ctx := cmd.Context()

		var msgs []libexch.Message
		var err error
		if r := reachableRemote(ctx); r != nil {
			msgs, err = r.Messages(ctx, folder, limit, unread)
		} else {
			var client *libexch.Client
			client, err = ewsClient()
			if err == nil {
				msgs, err = client.FindMessages(ctx, folder, limit, unread)
			}
		}
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}

		f := chosenFormat(cmd)
		if f != output.Text {
			return output.Write(os.Stdout, f, msgs)
		}
		printMessageList(msgs)
		return nil
	},
}

var mailGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one message with its body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ewsClient()
		if err != nil {
			return err
		}
		msg, err := client.GetMessage(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if markdown, _ := cmd.Flags().GetBool("markdown"); markdown {
			body := output.ConvertBodyToMarkdown(&output.BodyContent{ContentType: msg.BodyType, Content: msg.Body})
			msg.BodyType, msg.Body = body.ContentType, body.Content
		}

		f := chosenFormat(cmd)
		if f != output.Text {
			return output.Write(os.Stdout, f, msg)
		}

		fmt.Printf("From:     %s\n", msg.From)
		if len(msg.To) > 0 {
			fmt.Printf("To:       %s\n", strings.Join(msg.To, ", "))
		}
		fmt.Printf("Date:     %s\n", msg.Received.Format("2006-01-02 15:04"))
		fmt.Printf("Subject:  %s\n\n", msg.Subject)
		fmt.Println(msg.Body)
		return nil
	},
}

var mailSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message",
	RunE: func(cmd *cobra.Command, args []string) error {
		toFlag, _ := cmd.Flags().GetString("to")
		ccFlag, _ := cmd.Flags().GetString("cc")
		subject, _ := cmd.Flags().GetString("subject")
		body, _ := cmd.Flags().GetString("body")
		html, _ := cmd.Flags().GetBool("html")

		if toFlag == "" {
			return fmt.Errorf("--to is required")
		}
		to, err := resolvePeople(splitList(toFlag))
		if err != nil {
			return err
		}
		var cc []string
		if ccFlag != "" {
			if cc, err = resolvePeople(splitList(ccFlag)); err != nil {
				return err
			}
		}

		ctx := cmd.Context()
		if r := reachableRemote(ctx); r != nil {
			err = r.Send(ctx, to, cc, subject, body, html)
		} else {
			var client *libexch.Client
			client, err = ewsClient()
			if err == nil {
				err = client.SendMessage(ctx, to, cc, subject, body, html)
			}
		}
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		fmt.Printf("Sent to %s\n", strings.Join(to, ", "))
		return nil
	},
}

var mailSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search message headers",
	Long:  `Search the cached headers of a folder by subject or sender`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		term := strings.ToLower(strings.Join(args, " "))
		folder, _ := cmd.Flags().GetString("folder")
		ctx := cmd.Context()

		var msgs []libexch.Message
		var err error
		if r := reachableRemote(ctx); r != nil {
			msgs, err = r.Messages(ctx, folder, 0, false)
		} else {
			var client *libexch.Client
			client, err = ewsClient()
			if err == nil {
				msgs, err = client.FindMessages(ctx, folder, 100, false)
			}
		}
		if err != nil {
			return fmt.Errorf("search messages: %w", err)
		}

		var hits []libexch.Message
		for _, m := range msgs {
			if strings.Contains(strings.ToLower(m.Subject), term) ||
				strings.Contains(strings.ToLower(m.From), term) {
				hits = append(hits, m)
			}
		}

		f := chosenFormat(cmd)
		if f != output.Text {
			return output.Write(os.Stdout, f, hits)
		}
		printMessageList(hits)
		return nil
	},
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func init() {
	mailListCmd.Flags().String("folder", "inbox", "Folder: inbox, sent, drafts, deleted, junk")
	mailListCmd.Flags().Int("limit", 25, "Maximum number of messages")
	mailListCmd.Flags().Bool("unread", false, "Only unread messages")

	mailGetCmd.Flags().Bool("markdown", false, "Convert an HTML body to Markdown")

	mailSendCmd.Flags().String("to", "", "Comma-separated recipients (aliases or addresses)")
	mailSendCmd.Flags().String("cc", "", "Comma-separated CC recipients")
	mailSendCmd.Flags().String("subject", "", "Subject")
	mailSendCmd.Flags().String("body", "", "Message body")
	mailSendCmd.Flags().Bool("html", false, "Send the body as HTML")

	mailSearchCmd.Flags().String("folder", "inbox", "Folder to search")

	mailCmd.AddCommand(mailListCmd)
	mailCmd.AddCommand(mailGetCmd)
	mailCmd.AddCommand(mailSendCmd)
	mailCmd.AddCommand(mailSearchCmd)
}
