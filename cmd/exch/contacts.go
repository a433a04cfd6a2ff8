package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exchtools/exch/internal/output"
	"github.com/exchtools/exch/libexch"
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Manage the address book",
}

func printContact(c libexch.Contact) {
	fmt.Println(c.DisplayName)
	for _, e := range c.Emails {
		fmt.Printf("  email: %s\n", e)
	}
	for _, p := range c.Phones {
		fmt.Printf("  phone: %s\n", p)
	}
	if c.Company != "" {
		fmt.Printf("  company: %s\n", c.Company)
	}
}

var contactsListCmd = &cobra.Command{
	Use:   "list [search]",
	Short: "List contacts, optionally filtered",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ewsClient()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		contacts, err := client.FindContacts(cmd.Context(), strings.Join(args, " "), limit)
		if err != nil {
			return fmt.Errorf("list contacts: %w", err)
		}

		f := chosenFormat(cmd)
		if f != output.Text {
			return output.Write(os.Stdout, f, contacts)
		}
		if len(contacts) == 0 {
			fmt.Println("No contacts.")
			return nil
		}
		for _, c := range contacts {
			email := ""
			if len(c.Emails) > 0 {
				email = c.Emails[0]
			}
			fmt.Printf("%-30s %s\n", c.DisplayName, email)
		}
		return nil
	},
}

var contactsGetCmd = &cobra.Command{
	Use:   "get <search>",
	Short: "Show matching contacts in full",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ewsClient()
		if err != nil {
			return err
		}
		contacts, err := client.FindContacts(cmd.Context(), strings.Join(args, " "), 0)
		if err != nil {
			return fmt.Errorf("find contacts: %w", err)
		}
		if len(contacts) == 0 {
			return fmt.Errorf("no contact matches %q", strings.Join(args, " "))
		}

		f := chosenFormat(cmd)
		if f != output.Text {
			return output.Write(os.Stdout, f, contacts)
		}
		for i, c := range contacts {
			if i > 0 {
				fmt.Println()
			}
			printContact(c)
		}
		return nil
	},
}

var contactsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a contact",
	Long: `Create a contact; the name splits into given name and surname
on the first space, e.g.

  exch contacts create "Jane Doe" --email jane@example.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ewsClient()
		if err != nil {
			return err
		}
		email, _ := cmd.Flags().GetString("email")
		phone, _ := cmd.Flags().GetString("phone")
		company, _ := cmd.Flags().GetString("company")

		id, err := client.CreateContact(cmd.Context(), strings.Join(args, " "), email, phone, company)
		if err != nil {
			return fmt.Errorf("create contact: %w", err)
		}

		f := chosenFormat(cmd)
		if f != output.Text {
			return output.Write(os.Stdout, f, output.ActionResponse{Success: true, Message: "created", ID: id})
		}
		fmt.Println("Contact created.")
		return nil
	},
}

var contactsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a contact",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			return fmt.Errorf("--id is required (see 'exch contacts get --json' for ids)")
		}
		client, err := ewsClient()
		if err != nil {
			return err
		}
		if err := client.DeleteContact(cmd.Context(), id); err != nil {
			return fmt.Errorf("delete contact: %w", err)
		}
		fmt.Println("Deleted.")
		return nil
	},
}

func init() {
	contactsListCmd.Flags().Int("limit", 0, "Maximum number of contacts")
	contactsCreateCmd.Flags().String("email", "", "Email address")
	contactsCreateCmd.Flags().String("phone", "", "Business phone")
	contactsCreateCmd.Flags().String("company", "", "Company name")
	contactsDeleteCmd.Flags().String("id", "", "Contact id to delete")

	contactsCmd.AddCommand(contactsListCmd)
	contactsCmd.AddCommand(contactsGetCmd)
	contactsCmd.AddCommand(contactsCreateCmd)
	contactsCmd.AddCommand(contactsDeleteCmd)
}
