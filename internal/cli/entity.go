package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/iotc"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
)

// entityCmd is the parent command for entity operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var entityCmd = &cobra.Command{
	Use:     "entity",
	Aliases: []string{"entities"},
	Short:   "Inspect the entity tree",
	Long:    `List the entities of the account and look them up by name.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	entityListCmd = &cobra.Command{
		Use:     "list",
		Short:   "List entities",
		Long:    `List every entity of the account.`,
		Example: `  iotc entity list`,
		Args:    cobra.NoArgs,
		RunE:    runEntityList,
	}

	entityGetCmd = &cobra.Command{
		Use:     "get <name>",
		Short:   "Show one entity",
		Long:    `Show the entity with the given name.`,
		Example: `  iotc entity get Lab`,
		Args:    cobra.ExactArgs(1),
		RunE:    runEntityGet,
	}

	entityRootCmd = &cobra.Command{
		Use:     "root",
		Short:   "Show the root entity",
		Long:    `Show the entity without a parent. New devices join it by default.`,
		Example: `  iotc entity root`,
		Args:    cobra.NoArgs,
		RunE:    runEntityRoot,
	}
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	entityCmd.GroupID = groupResources
	rootCmd.AddCommand(entityCmd)
	entityCmd.AddCommand(entityListCmd, entityGetCmd, entityRootCmd)
}

func printEntity(cc *CommandContext, e *iotc.Entity) error {
	return cc.Fmt.PrintFields(e, [][2]string{
		{"Name", e.Name},
		{"GUID", e.GUID},
		{"Parent", e.ParentGUID},
		{"Description", e.Description},
		{"Children", strconv.Itoa(e.ChildCount)},
		{"Devices", strconv.Itoa(e.DeviceCount)},
	})
}

func runEntityList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	list, err := cc.Client().Entities.List(ctx)
	if err != nil {
		return err
	}
	t := output.NewTable("NAME", "GUID", "PARENT", "DEVICES")
	for _, e := range list {
		parent := e.ParentGUID
		if e.IsRoot() {
			parent = "(root)"
		}
		t.AddRow(e.Name, e.GUID, parent, strconv.Itoa(e.DeviceCount))
	}
	return cc.Fmt.PrintList(list, t)
}

func runEntityGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	e, err := cc.Client().Entities.GetByName(ctx, args[0])
	if err != nil {
		return err
	}
	if e == nil {
		return notFoundErr("entity", "name", args[0])
	}
	return printEntity(cc, e)
}

func runEntityRoot(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	e, err := cc.Client().Entities.Root(ctx)
	if err != nil {
		return err
	}
	if e == nil {
		return notFoundErr("root entity", "parent", "none")
	}
	return printEntity(cc, e)
}
