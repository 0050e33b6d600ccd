package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const configTemplate = `{
	// one entry per account
	tasks: [
		{
			username: "your student id",
			password: "your portal password",
			schedule: {
				// fires daily at hour:minute, portal local time
				hour: 7,
				minute: 30,
				// extra random delay in [0, rand_delay] seconds
				rand_delay: 1200,
			},
			// also run once right after startup
			run_immediate: false,
			msg_senders: [
				// {
				// 	type: "wechat",
				// 	init_args: { token: "your pushplus token" },
				// },
				// {
				// 	type: "email",
				// 	init_args: {
				// 		server: "smtp.example.com",
				// 		port: 465,
				// 		email_address: "you@example.com",
				// 		password: "smtp password",
				// 	},
				// },
			],
		},
	],
}
`

var force bool

var genConfigCmd = &cobra.Command{
	Use:   "gen_config [path]",
	Short: "Generate a config file template.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "./myconfig.json5"
		if len(args) > 0 {
			path = args[0]
		}
		path, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		_, err = os.Stat(path)
		if err == nil && !force {
			return fmt.Errorf("config file %s already exists, use --force to overwrite it", path)
		}

		err = os.MkdirAll(filepath.Dir(path), 0o755)
		if err != nil {
			return err
		}
		err = os.WriteFile(path, []byte(configTemplate), 0o600)
		if err != nil {
			return err
		}

		fmt.Printf("config file generated: %s\nnow open your favourite text editor and fill it in\n", path)
		return nil
	},
}

func init() {
	genConfigCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	rootCmd.AddCommand(genConfigCmd)
}
