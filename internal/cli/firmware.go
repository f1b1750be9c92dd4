package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/iotc"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
)

// firmwareCmd is the parent command for firmware operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var firmwareCmd = &cobra.Command{
	Use:   "firmware",
	Short: "Manage firmware entries",
	Long: `List, inspect, create and deprecate firmware entries. A firmware entry is
addressed by its name or its GUID. Software versions are managed with
"iotc upgrade".`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	firmwareListCmd = &cobra.Command{
		Use:     "list",
		Short:   "List firmware entries",
		Long:    `List every firmware entry of the account.`,
		Example: `  iotc firmware list`,
		Args:    cobra.NoArgs,
		RunE:    runFirmwareList,
	}

	firmwareGetCmd = &cobra.Command{
		Use:     "get <name|guid>",
		Short:   "Show one firmware entry",
		Long:    `Show the firmware entry with the given name or GUID.`,
		Example: `  iotc firmware get SENSORFW`,
		Args:    cobra.ExactArgs(1),
		RunE:    runFirmwareGet,
	}

	firmwareCreateCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create a firmware entry for a template",
		Long: `Create a firmware entry. The name is 1 to 10 upper case letters or digits;
the hardware version is 1 to 20 letters, digits or periods.`,
		Example: `  iotc firmware create SENSORFW --template sensor01 --hardware 1.0`,
		Args:    cobra.ExactArgs(1),
		RunE:    runFirmwareCreate,
	}

	firmwareDeprecateCmd = &cobra.Command{
		Use:     "deprecate <name|guid>",
		Short:   "Deprecate a firmware entry",
		Long:    `Mark a firmware entry deprecated. Firmware cannot be deleted.`,
		Example: `  iotc firmware deprecate SENSORFW --yes`,
		Args:    cobra.ExactArgs(1),
		RunE:    runFirmwareDeprecate,
	}
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	firmwareTemplate    string
	firmwareHardware    string
	firmwareDescription string
	firmwareYes         bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	firmwareCmd.GroupID = groupResources
	rootCmd.AddCommand(firmwareCmd)
	firmwareCmd.AddCommand(firmwareListCmd, firmwareGetCmd, firmwareCreateCmd, firmwareDeprecateCmd)

	f := firmwareCreateCmd.Flags()
	f.StringVarP(&firmwareTemplate, "template", "t", "", "template code or GUID (required)")
	f.StringVar(&firmwareHardware, "hardware", "", "hardware version (required)")
	f.StringVar(&firmwareDescription, "description", "", "free-form description")
	_ = firmwareCreateCmd.MarkFlagRequired("template")
	_ = firmwareCreateCmd.MarkFlagRequired("hardware")

	firmwareDeprecateCmd.Flags().BoolVarP(&firmwareYes, "yes", "y", false, "do not ask for confirmation")
}

// lookupFirmware resolves a firmware entry by GUID or name.
func lookupFirmware(ctx context.Context, cl *iotc.Client, ref string) (*iotc.Firmware, error) {
	var (
		fw  *iotc.Firmware
		err error
	)
	if iotc.ValidGUID(ref) {
		fw, err = cl.Firmware.GetByGUID(ctx, ref)
	} else {
		fw, err = cl.Firmware.GetByName(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if fw == nil {
		return nil, notFoundErr("firmware", "ref", ref)
	}
	return fw, nil
}

func runFirmwareList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	list, err := cc.Client().Firmware.List(ctx)
	if err != nil {
		return err
	}
	t := output.NewTable("NAME", "HARDWARE", "GUID", "DEPRECATED")
	for _, fw := range list {
		t.AddRow(fw.Name, fw.Hardware, fw.GUID, strconv.FormatBool(fw.IsDeprecated))
	}
	return cc.Fmt.PrintList(list, t)
}

func runFirmwareGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	fw, err := lookupFirmware(ctx, cc.Client(), args[0])
	if err != nil {
		return err
	}
	return cc.Fmt.PrintFields(fw, [][2]string{
		{"Name", fw.Name},
		{"Hardware", fw.Hardware},
		{"GUID", fw.GUID},
		{"Deprecated", strconv.FormatBool(fw.IsDeprecated)},
	})
}

func runFirmwareCreate(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if err := iotc.ValidateFirmwareName(args[0]); err != nil {
		return err
	}
	if err := iotc.ValidateVersion("hardware version", firmwareHardware); err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, 2*cc.commandTimeout())
	defer cancel()

	cl := cc.Client()
	tpl, err := lookupTemplate(ctx, cl, firmwareTemplate)
	if err != nil {
		return err
	}
	res, err := cl.Firmware.Create(ctx, iotc.FirmwareCreate{
		TemplateGUID: tpl.GUID,
		Name:         args[0],
		Hardware:     firmwareHardware,
		Description:  firmwareDescription,
	})
	if err != nil {
		return err
	}
	return cc.done(res, "Firmware %s created (%s)", args[0], res.NewID)
}

func runFirmwareDeprecate(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if err := confirmDestructive(firmwareYes, "deprecate firmware "+args[0]); err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	cl := cc.Client()
	fw, err := lookupFirmware(ctx, cl, args[0])
	if err != nil {
		return err
	}
	if err := cl.Firmware.Deprecate(ctx, fw.GUID); err != nil {
		return err
	}
	return cc.done(map[string]string{"deprecated": fw.GUID}, "Firmware %s deprecated", fw.Name)
}
