package cli

import (
	"github.com/spf13/cobra"

	"github.com/blazelab/blaze/internal/stream"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Inspect stored chats",
}

var chatListCmd = &cobra.Command{
	Use:   "list <app-id>",
	Short: "List an app's chats, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		chats, err := st.ListChats(args[0])
		if err != nil {
			return err
		}
		for _, c := range chats {
			title := c.Title
			if title == "" {
				title = "(untitled)"
			}
			cmd.Printf("%s  %s  %s\n", c.ID, c.UpdatedAt, title)
		}
		return nil
	},
}

var chatShowCmd = &cobra.Command{
	Use:   "show <chat-id>",
	Short: "Print a chat's messages, sanitized for display",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		raw, _ := cmd.Flags().GetBool("raw")
		msgs, err := st.GetMessages(args[0])
		if err != nil {
			return err
		}
		for _, m := range msgs {
			content := m.Content
			if !raw {
				content = stream.Sanitize(content)
			}
			cmd.Printf("--- %s (%s)\n%s\n", m.Role, m.CreatedAt, content)
		}
		return nil
	},
}

func init() {
	chatShowCmd.Flags().Bool("raw", false, "print stored text with control tags intact")
	chatCmd.AddCommand(chatListCmd)
	chatCmd.AddCommand(chatShowCmd)
}
