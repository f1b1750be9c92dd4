package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/iotc"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/session"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity behind the current session",
	Long: `Decode the claims of the saved access token and print the user, company,
role and solution it belongs to. The token is read locally; --remote also
fetches the user record from the user service.`,
	Example: `  iotc whoami
  iotc whoami --remote -o json`,
	Args: cobra.NoArgs,
	RunE: runWhoami,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var whoamiRemote bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	whoamiCmd.GroupID = groupAccount
	rootCmd.AddCommand(whoamiCmd)
	whoamiCmd.Flags().BoolVar(&whoamiRemote, "remote", false, "also fetch the user record from the server")
}

// whoami is the JSON form of whoami.
type whoami struct {
	Issuer  string             `json:"issuer,omitempty"`
	Subject string             `json:"subject,omitempty"`
	User    session.UserClaims `json:"user"`
	Record  *iotc.User         `json:"record,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	claims, err := cc.Session().Claims()
	if err != nil {
		return err
	}
	res := whoami{Issuer: claims.Issuer, Subject: claims.Subject, User: claims.User}

	if whoamiRemote && claims.User.ID != "" {
		ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
		defer cancel()
		if res.Record, err = cc.Client().Users.GetByGUID(ctx, claims.User.ID); err != nil {
			return err
		}
	}

	fields := [][2]string{
		{"User ID", claims.User.ID},
		{"Company", claims.User.CompanyID},
		{"Role", claims.User.RoleName},
		{"CPID", claims.User.CPID},
		{"Solution key", claims.User.SolutionKey},
		{"Entity", claims.User.EntityGUID},
	}
	if res.Record != nil {
		name := strings.TrimSpace(res.Record.FirstName + " " + res.Record.LastName)
		fields = append(fields,
			[2]string{"Email", res.Record.UserID},
			[2]string{"Name", name},
		)
	}
	return cc.Fmt.PrintFields(res, fields)
}
