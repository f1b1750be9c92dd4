package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/iotc"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
)

// userCmd is the parent command for user operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var userCmd = &cobra.Command{
	Use:     "user",
	Aliases: []string{"users"},
	Short:   "Inspect account users",
	Long:    `List the users of the account and look them up by GUID or email.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	userListCmd = &cobra.Command{
		Use:     "list",
		Short:   "List users",
		Long:    `List every user of the account.`,
		Example: `  iotc user list`,
		Args:    cobra.NoArgs,
		RunE:    runUserList,
	}

	userGetCmd = &cobra.Command{
		Use:     "get <guid|email>",
		Short:   "Show one user",
		Long:    `Show the user with the given GUID or email address.`,
		Example: `  iotc user get me@example.com`,
		Args:    cobra.ExactArgs(1),
		RunE:    runUserGet,
	}
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	userCmd.GroupID = groupResources
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userListCmd, userGetCmd)
}

func userName(u iotc.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func runUserList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	list, err := cc.Client().Users.List(ctx)
	if err != nil {
		return err
	}
	t := output.NewTable("EMAIL", "NAME", "ROLE", "GUID")
	for _, u := range list {
		t.AddRow(u.UserID, userName(u), u.RoleName, u.GUID)
	}
	return cc.Fmt.PrintList(list, t)
}

func runUserGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	var (
		u   *iotc.User
		err error
	)
	users := cc.Client().Users
	if iotc.ValidGUID(args[0]) {
		u, err = users.GetByGUID(ctx, args[0])
	} else {
		u, err = users.GetByEmail(ctx, args[0])
	}
	if err != nil {
		return err
	}
	if u == nil {
		return notFoundErr("user", "ref", args[0])
	}
	return cc.Fmt.PrintFields(u, [][2]string{
		{"Email", u.UserID},
		{"Name", userName(*u)},
		{"Role", u.RoleName},
		{"GUID", u.GUID},
		{"Company", u.CompanyGUID},
	})
}
