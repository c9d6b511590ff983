package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epalmerini/snoop/internal/rabbitmq"
)

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show connection profiles from config.toml",
	}
	cmd.AddCommand(newProfileListCmd(a))
	return cmd
}

type profileView struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	ManagementURL string `json:"management_url,omitempty"`
	VHost         string `json:"vhost,omitempty"`
	Proto         string `json:"proto,omitempty"`
}

func newProfileListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles (passwords redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			views := make([]profileView, 0, len(a.fileCfg.Profiles))
			for _, name := range a.fileCfg.ProfileNames() {
				p := a.fileCfg.Profiles[name]
				views = append(views, profileView{
					Name:          name,
					URL:           rabbitmq.RedactURL(p.URL),
					ManagementURL: p.ManagementURL,
					VHost:         p.VHost,
					Proto:         p.Proto,
				})
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return writeJSON(out, views)
			}
			if len(views) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No profiles in "+a.configDir))
				return nil
			}
			t := newTable("PROFILE", "URL", "MANAGEMENT", "VHOST")
			for _, v := range views {
				t.Row(v.Name, v.URL, v.ManagementURL, v.VHost)
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}
}
