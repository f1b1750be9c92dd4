package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
)

// walkCommands calls fn for cmd and then for every command below it.
func walkCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	fn(cmd)
	for _, sub := range cmd.Commands() {
		walkCommands(sub, fn)
	}
}

// enrichParentLong appends the visible subcommands of a resource group to
// its Long text, aligned in two columns, so the list stays in step with the
// registered commands.
func enrichParentLong(cmd *cobra.Command) {
	t := output.NewTable()
	t.SetSeparator("  ")
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			t.AddRow("  "+sub.Name(), sub.Short)
		}
	}
	if t.Len() == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(cmd.Long, "\n"))
	sb.WriteString("\n\nSubcommands:\n")
	_ = t.Render(&sb)
	cmd.Long = sb.String()
}
