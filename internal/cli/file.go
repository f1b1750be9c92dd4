package cli

import (
	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/iotc"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
)

// fileCmd is the parent command for stored file operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var fileCmd = &cobra.Command{
	Use:     "file",
	Aliases: []string{"files"},
	Short:   "Manage stored files",
	Long: `List, upload and delete files kept by the file service. Every file belongs
to a module type and is grouped under a reference GUID.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	fileListCmd = &cobra.Command{
		Use:     "list",
		Short:   "List the files of a reference",
		Long:    `List the files stored for a reference GUID under a module type.`,
		Example: `  iotc file list --module firmware --ref 6E8A3F1C-0D2B-4B7E-9A51-7C0E2D4F8B13`,
		Args:    cobra.NoArgs,
		RunE:    runFileList,
	}

	fileUploadCmd = &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file",
		Long: `Upload a local file under a module type. Without --ref a new reference GUID
is generated and printed; keep it to find the file again.`,
		Example: `  iotc file upload ./logo.png --module solutionimage`,
		Args:    cobra.ExactArgs(1),
		RunE:    runFileUpload,
	}

	fileDeleteCmd = &cobra.Command{
		Use:     "delete <file-guid>",
		Short:   "Delete a stored file",
		Long:    `Delete a stored file by its file GUID (not its reference GUID).`,
		Example: `  iotc file delete 0B7D7C2E-55A4-4D0F-8C11-3E9F7A6B2D40 --module firmware --yes`,
		Args:    cobra.ExactArgs(1),
		RunE:    runFileDelete,
	}
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	fileModule string
	fileRef    string
	fileYes    bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	fileCmd.GroupID = groupResources
	rootCmd.AddCommand(fileCmd)
	fileCmd.AddCommand(fileListCmd, fileUploadCmd, fileDeleteCmd)

	for _, c := range []*cobra.Command{fileListCmd, fileUploadCmd, fileDeleteCmd} {
		c.Flags().StringVarP(&fileModule, "module", "m", "", "module type (required)")
		_ = c.MarkFlagRequired("module")
		_ = c.RegisterFlagCompletionFunc("module", completeModuleTypes)
	}
	fileListCmd.Flags().StringVar(&fileRef, "ref", "", "reference GUID (required)")
	_ = fileListCmd.MarkFlagRequired("ref")
	fileUploadCmd.Flags().StringVar(&fileRef, "ref", "", "reference GUID (default: a new one)")
	fileDeleteCmd.Flags().BoolVarP(&fileYes, "yes", "y", false, "do not ask for confirmation")
}

func completeModuleTypes(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	names := make([]string, len(iotc.ModuleTypes))
	for i, m := range iotc.ModuleTypes {
		names[i] = string(m)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

func runFileList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	module, err := iotc.ParseModuleType(fileModule)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	list, err := cc.Client().Files.List(ctx, module, fileRef)
	if err != nil {
		return err
	}
	t := output.NewTable("NAME", "GUID", "CREATED", "URL")
	t.SetMaxWidth(3, 60)
	for _, f := range list {
		t.AddRow(f.Name, f.GUID, f.CreatedDate, f.URL)
	}
	return cc.Fmt.PrintList(list, t)
}

func runFileUpload(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	module, err := iotc.ParseModuleType(fileModule)
	if err != nil {
		return err
	}
	name, data, err := readUpload(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	res, err := cc.Client().Files.Upload(ctx, iotc.FileUpload{
		Module:   module,
		RefGUID:  fileRef,
		FileName: name,
		Data:     data,
	})
	if err != nil {
		return err
	}
	return cc.done(res, "Uploaded %s as %s (reference %s)", name, res.FileGUID, res.RefGUID)
}

func runFileDelete(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	module, err := iotc.ParseModuleType(fileModule)
	if err != nil {
		return err
	}
	if err := confirmDestructive(fileYes, "delete file "+args[0]); err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	if err := cc.Client().Files.Delete(ctx, module, args[0]); err != nil {
		return err
	}
	return cc.done(map[string]string{"deleted": args[0]}, "File %s deleted", args[0])
}
