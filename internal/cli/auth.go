package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewAuthCmd создаёт группу команд для OAuth авторизации.
func NewAuthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "YouTube account authorization",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether a YouTube account is connected",
			RunE: func(cmd *cobra.Command, args []string) error {
				client := clientFn()
				out := outputFn()

				status, err := client.AuthStatus()
				if err != nil {
					return err
				}

				out.Print(
					[]string{"CONFIGURED", "AUTHENTICATED"},
					[][]string{{strconv.FormatBool(status.Configured), strconv.FormatBool(status.Authenticated)}},
					status,
				)
				return nil
			},
		},
		&cobra.Command{
			Use:   "login",
			Short: "Print the URL that starts the OAuth consent flow",
			RunE: func(cmd *cobra.Command, args []string) error {
				client := clientFn()
				out := outputFn()

				out.Success("Open this URL in a browser to connect a YouTube account:")
				fmt.Fprintln(out.w, client.AuthURL())
				return nil
			},
		},
	)

	return cmd
}
