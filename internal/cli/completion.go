package cli

import (
	"github.com/spf13/cobra"
)

// completionCmd generates shell completion scripts.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion scripts for iotc.

To load completions:

Bash:
  $ source <(iotc completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ iotc completion bash > /etc/bash_completion.d/iotc
  # macOS:
  $ iotc completion bash > $(brew --prefix)/etc/bash_completion.d/iotc

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ iotc completion zsh > "${fpath[1]}/_iotc"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ iotc completion fish | source

  # To load completions for each session, execute once:
  $ iotc completion fish > ~/.config/fish/completions/iotc.fish

PowerShell:
  PS> iotc completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> iotc completion powershell > iotc.ps1
  # and source this file from your PowerShell profile.
`,
	Example: `  iotc completion bash
  iotc completion zsh > "${fpath[1]}/_iotc"`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(w)
		case "zsh":
			return cmd.Root().GenZshCompletion(w)
		case "fish":
			return cmd.Root().GenFishCompletion(w, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(w)
		}
		return nil
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	completionCmd.GroupID = groupConfig
	rootCmd.AddCommand(completionCmd)
}
