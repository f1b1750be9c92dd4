package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/iotc"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
)

// deviceCmd is the parent command for device operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var deviceCmd = &cobra.Command{
	Use:     "device",
	Aliases: []string{"devices"},
	Short:   "Manage devices",
	Long:    `List, inspect, create and delete devices. A device is addressed by its unique ID (DUID) or its GUID.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	deviceListCmd = &cobra.Command{
		Use:     "list",
		Short:   "List devices",
		Long:    `List every device of the account.`,
		Example: `  iotc device list -o json`,
		Args:    cobra.NoArgs,
		RunE:    runDeviceList,
	}

	deviceGetCmd = &cobra.Command{
		Use:     "get <duid>",
		Short:   "Show one device",
		Long:    `Show the device with the given unique ID.`,
		Example: `  iotc device get sensor-0001`,
		Args:    cobra.ExactArgs(1),
		RunE:    runDeviceGet,
	}

	deviceCreateCmd = &cobra.Command{
		Use:   "create <duid>",
		Short: "Create a device",
		Long: `Create a device from a template. Devices of certificate-authenticated
templates need --cert with the PEM device certificate; CA signed templates
take --ca instead. The device joins the root entity unless --entity names
another one.`,
		Example: `  iotc device create sensor-0001 --template sensor01 --cert ./sensor-0001.pem
  iotc device create sensor-0002 --template sensor01 --ca --entity Lab`,
		Args: cobra.ExactArgs(1),
		RunE: runDeviceCreate,
	}

	deviceDeleteCmd = &cobra.Command{
		Use:     "delete <duid|guid>",
		Short:   "Delete a device",
		Long:    `Delete the device with the given unique ID or GUID.`,
		Example: `  iotc device delete sensor-0001 --yes`,
		Args:    cobra.ExactArgs(1),
		RunE:    runDeviceDelete,
	}
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	deviceTemplate string
	deviceCertFile string
	deviceCA       bool
	deviceName     string
	deviceEntity   string
	deviceYes      bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	deviceCmd.GroupID = groupResources
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceListCmd, deviceGetCmd, deviceCreateCmd, deviceDeleteCmd)

	f := deviceCreateCmd.Flags()
	f.StringVarP(&deviceTemplate, "template", "t", "", "template code or GUID (required)")
	f.StringVar(&deviceCertFile, "cert", "", "PEM device certificate file")
	f.BoolVar(&deviceCA, "ca", false, "the template uses CA signed authentication")
	f.StringVar(&deviceName, "name", "", "display name (default: the DUID)")
	f.StringVar(&deviceEntity, "entity", "", "entity name (default: the root entity)")
	_ = deviceCreateCmd.MarkFlagRequired("template")
	deviceCreateCmd.MarkFlagsMutuallyExclusive("cert", "ca")

	deviceDeleteCmd.Flags().BoolVarP(&deviceYes, "yes", "y", false, "do not ask for confirmation")
}

func deviceTable(list []iotc.Device) *output.Table {
	t := output.NewTable("DUID", "NAME", "GUID", "ACTIVE", "ACQUIRED")
	t.SetMaxWidth(1, 32)
	for _, d := range list {
		t.AddRow(d.UniqueID, d.DisplayName, d.GUID, strconv.FormatBool(d.IsActive), strconv.Itoa(d.IsAcquired))
	}
	return t
}

// lookupDevice resolves a device by DUID.
func lookupDevice(ctx context.Context, cl *iotc.Client, duid string) (*iotc.Device, error) {
	d, err := cl.Devices.GetByDUID(ctx, duid)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, notFoundErr("device", "duid", duid)
	}
	return d, nil
}

func runDeviceList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	list, err := cc.Client().Devices.List(ctx)
	if err != nil {
		return err
	}
	return cc.Fmt.PrintList(list, deviceTable(list))
}

func runDeviceGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	d, err := lookupDevice(ctx, cc.Client(), args[0])
	if err != nil {
		return err
	}
	return cc.Fmt.PrintFields(d, [][2]string{
		{"DUID", d.UniqueID},
		{"Name", d.DisplayName},
		{"GUID", d.GUID},
		{"Template", d.TemplateGUID},
		{"Active", strconv.FormatBool(d.IsActive)},
		{"Acquired", strconv.Itoa(d.IsAcquired)},
		{"Edge", strconv.FormatBool(d.IsEdgeSupport)},
		{"Message version", d.MessageVersion},
	})
}

func runDeviceCreate(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	var cert string
	if deviceCertFile != "" {
		_, data, err := readUpload(deviceCertFile)
		if err != nil {
			return err
		}
		cert = string(data)
	}

	ctx, cancel := contextWithTimeout(cmd, 2*cc.commandTimeout())
	defer cancel()

	cl := cc.Client()
	tpl, err := lookupTemplate(ctx, cl, deviceTemplate)
	if err != nil {
		return err
	}

	var entityGUID string
	if deviceEntity != "" {
		e, err := cl.Entities.GetByName(ctx, deviceEntity)
		if err != nil {
			return err
		}
		if e == nil {
			return notFoundErr("entity", "name", deviceEntity)
		}
		entityGUID = e.GUID
	}

	guid, err := cl.Devices.Create(ctx, iotc.DeviceCreate{
		TemplateGUID: tpl.GUID,
		DUID:         args[0],
		Certificate:  cert,
		CAAuth:       deviceCA,
		Name:         deviceName,
		EntityGUID:   entityGUID,
	})
	if err != nil {
		return err
	}
	return cc.done(map[string]string{"guid": guid, "duid": args[0]}, "Device %s created (%s)", args[0], guid)
}

func runDeviceDelete(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if err := confirmDestructive(deviceYes, "delete device "+args[0]); err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	cl := cc.Client()
	ref := args[0]
	var err error
	if iotc.ValidGUID(ref) {
		err = cl.Devices.Delete(ctx, ref)
	} else {
		err = cl.Devices.DeleteByDUID(ctx, ref)
	}
	if err != nil {
		return err
	}
	return cc.done(map[string]string{"deleted": ref}, "Device %s deleted", ref)
}
