package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/iotc"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
)

// templateCmd is the parent command for device template operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"templates"},
	Short:   "Manage device templates",
	Long:    `List, inspect, create and delete device templates. A template is addressed by its code or its GUID.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	templateListCmd = &cobra.Command{
		Use:     "list",
		Short:   "List device templates",
		Long:    `List every device template of the account.`,
		Example: `  iotc template list`,
		Args:    cobra.NoArgs,
		RunE:    runTemplateList,
	}

	templateGetCmd = &cobra.Command{
		Use:     "get <code|guid>",
		Short:   "Show one device template",
		Long:    `Show the device template with the given code or GUID.`,
		Example: `  iotc template get sensor01`,
		Args:    cobra.ExactArgs(1),
		RunE:    runTemplateGet,
	}

	templateCreateCmd = &cobra.Command{
		Use:   "create <template.json>",
		Short: "Create a device template from a JSON definition",
		Long: `Upload a device template definition exported from IoTConnect. --code and
--name replace the values inside the file; the code is 1 to 8 characters.`,
		Example: `  iotc template create ./sensor.json --code sensor01`,
		Args:    cobra.ExactArgs(1),
		RunE:    runTemplateCreate,
	}

	templateDeleteCmd = &cobra.Command{
		Use:     "delete <code|guid>",
		Short:   "Delete a device template",
		Long:    `Delete the device template with the given code or GUID.`,
		Example: `  iotc template delete sensor01 --yes`,
		Args:    cobra.ExactArgs(1),
		RunE:    runTemplateDelete,
	}
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	templateCode string
	templateName string
	templateYes  bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	templateCmd.GroupID = groupResources
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateListCmd, templateGetCmd, templateCreateCmd, templateDeleteCmd)

	templateCreateCmd.Flags().StringVar(&templateCode, "code", "", "template code, replaces the one in the file")
	templateCreateCmd.Flags().StringVar(&templateName, "name", "", "template name, replaces the one in the file")
	templateDeleteCmd.Flags().BoolVarP(&templateYes, "yes", "y", false, "do not ask for confirmation")
}

func templateTable(list []iotc.Template) *output.Table {
	t := output.NewTable("NAME", "CODE", "GUID", "DEVICES")
	for _, tpl := range list {
		t.AddRow(tpl.Name, tpl.Code, tpl.GUID, strconv.Itoa(tpl.DeviceCount))
	}
	return t
}

// lookupTemplate resolves a template by GUID or code.
func lookupTemplate(ctx context.Context, cl *iotc.Client, ref string) (*iotc.Template, error) {
	var (
		tpl *iotc.Template
		err error
	)
	if iotc.ValidGUID(ref) {
		tpl, err = cl.Templates.GetByGUID(ctx, ref)
	} else {
		tpl, err = cl.Templates.GetByCode(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, notFoundErr("template", "ref", ref)
	}
	return tpl, nil
}

func runTemplateList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	list, err := cc.Client().Templates.List(ctx)
	if err != nil {
		return err
	}
	return cc.Fmt.PrintList(list, templateTable(list))
}

func runTemplateGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	tpl, err := lookupTemplate(ctx, cc.Client(), args[0])
	if err != nil {
		return err
	}
	return cc.Fmt.PrintFields(tpl, [][2]string{
		{"Name", tpl.Name},
		{"Code", tpl.Code},
		{"GUID", tpl.GUID},
		{"Auth type", strconv.Itoa(tpl.AuthType)},
		{"Firmware", tpl.FirmwareGUID},
		{"Devices", strconv.Itoa(tpl.DeviceCount)},
	})
}

func runTemplateCreate(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	_, data, err := readUpload(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	res, err := cc.Client().Templates.Create(ctx, iotc.TemplateCreate{
		Definition: data,
		Code:       templateCode,
		Name:       templateName,
	})
	if err != nil {
		return err
	}
	return cc.done(res, "Template created from %s", args[0])
}

func runTemplateDelete(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if err := confirmDestructive(templateYes, "delete template "+args[0]); err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	cl := cc.Client()
	tpl, err := lookupTemplate(ctx, cl, args[0])
	if err != nil {
		return err
	}
	if err := cl.Templates.Delete(ctx, tpl.GUID); err != nil {
		return err
	}
	return cc.done(map[string]string{"deleted": tpl.GUID}, "Template %s deleted", tpl.Name)
}
