package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage persistent user profile facts",
	Long: `Manage the user profile. Identity and facts persist for the lifetime
of the store and are never evicted by tier limits.

Examples:
  mnemo profile set-identity --name "Dana" --role "SRE" --org "Acme"
  mnemo profile add-fact "prefers short answers"
  mnemo profile show
  mnemo profile preamble`,
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored profile",
	RunE:  runProfileShow,
}

var profileSetIdentityCmd = &cobra.Command{
	Use:   "set-identity",
	Short: "Set the user's name, role, and organization",
	RunE:  runProfileSetIdentity,
}

var profileAddFactCmd = &cobra.Command{
	Use:   "add-fact [fact]",
	Short: "Append a persistent fact about the user",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProfileAddFact,
}

var profilePreambleCmd = &cobra.Command{
	Use:   "preamble",
	Short: "Render the profile block injected into the system prompt",
	RunE:  runProfilePreamble,
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetIdentityCmd)
	profileCmd.AddCommand(profileAddFactCmd)
	profileCmd.AddCommand(profilePreambleCmd)

	profileSetIdentityCmd.Flags().String("name", "", "User name")
	profileSetIdentityCmd.Flags().String("role", "", "User role")
	profileSetIdentityCmd.Flags().String("org", "", "User organization")
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	prof, err := a.facade.Profile(context.Background())
	if err != nil {
		return err
	}

	printJSON(prof)
	return nil
}

func runProfileSetIdentity(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	role, _ := cmd.Flags().GetString("role")
	org, _ := cmd.Flags().GetString("org")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.facade.SetUserIdentity(context.Background(), name, role, org); err != nil {
		return err
	}

	fmt.Println("identity updated")
	return nil
}

func runProfileAddFact(cmd *cobra.Command, args []string) error {
	fact := strings.Join(args, " ")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.facade.AddUserFact(context.Background(), fact); err != nil {
		return err
	}

	fmt.Println("fact added")
	return nil
}

func runProfilePreamble(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	preamble, err := a.facade.ProfilePreamble(context.Background())
	if err != nil {
		return err
	}

	fmt.Print(preamble)
	return nil
}
