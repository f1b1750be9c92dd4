package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/iotc"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
)

// upgradeCmd is the parent command for firmware upgrade operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var upgradeCmd = &cobra.Command{
	Use:     "upgrade",
	Aliases: []string{"upgrades"},
	Short:   "Manage firmware upgrades",
	Long: `A firmware upgrade is one software version of a firmware entry. Create it,
upload the update image, then publish it to make it available to devices.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	upgradeListCmd = &cobra.Command{
		Use:     "list",
		Short:   "List firmware upgrades",
		Long:    `List every firmware upgrade of the account.`,
		Example: `  iotc upgrade list`,
		Args:    cobra.NoArgs,
		RunE:    runUpgradeList,
	}

	upgradeGetCmd = &cobra.Command{
		Use:     "get <guid>",
		Short:   "Show one firmware upgrade",
		Long:    `Show the firmware upgrade with the given GUID.`,
		Example: `  iotc upgrade get 6E8A3F1C-0D2B-4B7E-9A51-7C0E2D4F8B13`,
		Args:    cobra.ExactArgs(1),
		RunE:    runUpgradeGet,
	}

	upgradeCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Add a software version to a firmware entry",
		Long: `Create a draft upgrade for a firmware entry. The software version is 1 to 20
letters, digits or periods.`,
		Example: `  iotc upgrade create --firmware SENSORFW --software 1.2.0`,
		Args:    cobra.NoArgs,
		RunE:    runUpgradeCreate,
	}

	upgradeUploadCmd = &cobra.Command{
		Use:     "upload <guid> <file>",
		Short:   "Upload the update image of an upgrade",
		Long:    `Upload a local file as the update image of the upgrade with the given GUID.`,
		Example: `  iotc upgrade upload 6E8A3F1C-0D2B-4B7E-9A51-7C0E2D4F8B13 ./sensor-1.2.0.bin`,
		Args:    cobra.ExactArgs(2),
		RunE:    runUpgradeUpload,
	}

	upgradePublishCmd = &cobra.Command{
		Use:     "publish <guid>",
		Short:   "Publish a firmware upgrade",
		Long:    `Make an uploaded upgrade available to devices.`,
		Example: `  iotc upgrade publish 6E8A3F1C-0D2B-4B7E-9A51-7C0E2D4F8B13`,
		Args:    cobra.ExactArgs(1),
		RunE:    runUpgradePublish,
	}

	upgradeDeleteCmd = &cobra.Command{
		Use:     "delete <guid>",
		Short:   "Delete a firmware upgrade",
		Long:    `Delete the firmware upgrade with the given GUID.`,
		Example: `  iotc upgrade delete 6E8A3F1C-0D2B-4B7E-9A51-7C0E2D4F8B13 --yes`,
		Args:    cobra.ExactArgs(1),
		RunE:    runUpgradeDelete,
	}
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	upgradeFirmware    string
	upgradeSoftware    string
	upgradeDescription string
	upgradeYes         bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	upgradeCmd.GroupID = groupResources
	rootCmd.AddCommand(upgradeCmd)
	upgradeCmd.AddCommand(upgradeListCmd, upgradeGetCmd, upgradeCreateCmd,
		upgradeUploadCmd, upgradePublishCmd, upgradeDeleteCmd)

	f := upgradeCreateCmd.Flags()
	f.StringVar(&upgradeFirmware, "firmware", "", "firmware name or GUID (required)")
	f.StringVar(&upgradeSoftware, "software", "", "software version (required)")
	f.StringVar(&upgradeDescription, "description", "", "free-form description")
	_ = upgradeCreateCmd.MarkFlagRequired("firmware")
	_ = upgradeCreateCmd.MarkFlagRequired("software")

	upgradeDeleteCmd.Flags().BoolVarP(&upgradeYes, "yes", "y", false, "do not ask for confirmation")
}

// lookupUpgrade resolves an upgrade by GUID.
func lookupUpgrade(ctx context.Context, cl *iotc.Client, guid string) (*iotc.Upgrade, error) {
	u, err := cl.Upgrades.GetByGUID(ctx, guid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, notFoundErr("upgrade", "guid", guid)
	}
	return u, nil
}

func runUpgradeList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	list, err := cc.Client().Upgrades.List(ctx)
	if err != nil {
		return err
	}
	t := output.NewTable("GUID", "SOFTWARE", "FIRMWARE", "DRAFT")
	for _, u := range list {
		t.AddRow(u.GUID, u.Software, u.FirmwareGUID, strconv.FormatBool(u.IsDraft))
	}
	return cc.Fmt.PrintList(list, t)
}

func runUpgradeGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	u, err := lookupUpgrade(ctx, cc.Client(), args[0])
	if err != nil {
		return err
	}
	return cc.Fmt.PrintFields(u, [][2]string{
		{"GUID", u.GUID},
		{"Software", u.Software},
		{"Firmware", u.FirmwareGUID},
		{"Description", u.Description},
		{"Draft", strconv.FormatBool(u.IsDraft)},
	})
}

func runUpgradeCreate(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	if err := iotc.ValidateVersion("software version", upgradeSoftware); err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, 2*cc.commandTimeout())
	defer cancel()

	cl := cc.Client()
	fw, err := lookupFirmware(ctx, cl, upgradeFirmware)
	if err != nil {
		return err
	}
	res, err := cl.Upgrades.Create(ctx, fw.GUID, upgradeSoftware, upgradeDescription)
	if err != nil {
		return err
	}
	return cc.done(res, "Upgrade %s of %s created (%s)", upgradeSoftware, fw.Name, res.NewID)
}

func runUpgradeUpload(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	name, data, err := readUpload(args[1])
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	res, err := cc.Client().Upgrades.Upload(ctx, args[0], name, data)
	if err != nil {
		return err
	}
	return cc.done(res, "Uploaded %s to upgrade %s", name, args[0])
}

func runUpgradePublish(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	if err := cc.Client().Upgrades.Publish(ctx, args[0]); err != nil {
		return err
	}
	return cc.done(map[string]string{"published": args[0]}, "Upgrade %s published", args[0])
}

func runUpgradeDelete(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if err := confirmDestructive(upgradeYes, "delete upgrade "+args[0]); err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	if err := cc.Client().Upgrades.Delete(ctx, args[0]); err != nil {
		return err
	}
	return cc.done(map[string]string{"deleted": args[0]}, "Upgrade %s deleted", args[0])
}
