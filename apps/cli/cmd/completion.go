package cmd

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for stepwise.

To load completions:

Bash:
  $ source <(stepwise completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ stepwise completion bash > /etc/bash_completion.d/stepwise
  # macOS:
  $ stepwise completion bash > $(brew --prefix)/etc/bash_completion.d/stepwise

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ stepwise completion zsh > "${fpath[1]}/_stepwise"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ stepwise completion fish | source

  # To load completions for each session, execute once:
  $ stepwise completion fish > ~/.config/fish/completions/stepwise.fish

PowerShell:
  PS> stepwise completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> stepwise completion powershell > stepwise.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
