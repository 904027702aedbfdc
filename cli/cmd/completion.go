package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// sourceExtensions are offered when completing a module file argument
var sourceExtensions = []string{"js", "mjs", "jsx", "ts", "tsx"}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate a completion script for bundlesize.

File arguments of "bundle" and "watch" complete to JavaScript and
TypeScript sources, and --output completes to table, json and yaml.

  $ source <(bundlesize completion bash)
  $ bundlesize completion zsh > "${fpath[1]}/_bundlesize"
  $ bundlesize completion fish > ~/.config/fish/completions/bundlesize.fish
  PS> bundlesize completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return fmt.Errorf("unsupported shell %q", args[0])
	},
}

// completeSourceFile limits file completion to module sources
func completeSourceFile(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return sourceExtensions, cobra.ShellCompDirectiveFilterFileExt
}

func completeOutputFormat(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"table", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
}
