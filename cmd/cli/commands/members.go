package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/core/services"
)

// AddMemberCmd creates the addMember command
func AddMemberCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addMember <display_name>",
		Short: "Add a member to the group (the first member of a new group adds themselves as leader)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := requireGroup(app)
			if err != nil {
				return err
			}
			email, _ := cmd.Flags().GetString("email")
			role, _ := cmd.Flags().GetString("role")
			memberID, _ := cmd.Flags().GetString("id")

			member, err := services.AddMember(app.Ctx, app.Database, app.Logger, services.AddMemberRequest{
				CallerID:    app.CallerID,
				GroupID:     groupID,
				MemberID:    memberID,
				DisplayName: args[0],
				Email:       email,
				Role:        model.Role(role),
			})
			if err != nil {
				return err
			}

			fmt.Printf("✓ %s added to %s as %s (ID: %s)\n", member.DisplayName, groupID, member.Role, member.ID)
			return nil
		},
	}

	cmd.Flags().String("email", "", "Email address for notifications")
	cmd.Flags().String("role", string(model.RoleMember), "Role in the group (leader or member)")
	cmd.Flags().String("id", "", "Member ID (generated if omitted)")

	return cmd
}

// RemoveMemberCmd creates the removeMember command
func RemoveMemberCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "removeMember <member_id>",
		Short: "Remove a member from the group along with their assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := requireGroup(app)
			if err != nil {
				return err
			}
			if err := services.RemoveMember(app.Ctx, app.Database, app.Gateway, app.Logger, app.CallerID, groupID, args[0], app.now()); err != nil {
				return err
			}
			fmt.Printf("✓ %s removed from %s\n", args[0], groupID)
			return nil
		},
	}
}

// ListMembersCmd creates the listMembers command
func ListMembersCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listMembers",
		Short: "List the group's members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := requireGroup(app)
			if err != nil {
				return err
			}
			members, err := services.ListMembers(app.Ctx, app.Database, app.CallerID, groupID)
			if err != nil {
				return err
			}

			fmt.Printf("\nFound %d members:\n\n", len(members))
			for _, m := range members {
				fmt.Printf("- %s (%s) - %s - %s\n", m.DisplayName, m.ID, m.Role, m.Email)
			}
			fmt.Println()
			return nil
		},
	}
}
