package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"sharedledger.org/internal/access"
	"sharedledger.org/internal/api"
	"sharedledger.org/internal/ledger"
)

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Navigate to a client route, following access redirects",
	Long: `open evaluates a route the way the web client's router does. Public routes
always open. Group routes open for public groups, for members, or with a share
link (/groups/3?token=...). Everything else needs a session. Denied routes land
on the login page with a returnUrl.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := application.Navigator.Navigate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if out.Redirected {
			pterm.Warning.Printf("Redirected to %s\n", out.Location)
			return nil
		}
		pterm.Success.Printf("Opened %s\n", out.Location)

		if out.Route.Class != access.ClassResource {
			return nil
		}
		var opts []api.ReadOption
		if tok := application.Navigator.Location().Query().Get("token"); tok != "" {
			opts = append(opts, api.WithShareToken(tok))
		}
		return printGroup(cmd, out.Route.ResourceID, opts)
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List the groups you belong to",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := application.Navigator.Navigate(cmd.Context(), "/groups")
		if err != nil {
			return err
		}
		if out.Redirected {
			return fmt.Errorf("not logged in")
		}
		groups, err := application.Client.Groups(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPUBLIC\tMEMBERS")
		for _, g := range groups {
			fmt.Fprintf(w, "%d\t%s\t%t\t%d\n", g.ID, g.Name, g.IsPublic, len(g.Members))
		}
		return w.Flush()
	},
}

func printGroup(cmd *cobra.Command, id int64, opts []api.ReadOption) error {
	g, err := application.Client.Group(cmd.Context(), id, opts...)
	if err != nil {
		return err
	}
	expenses, err := application.Client.GroupExpenses(cmd.Context(), id, opts...)
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println(g.Name)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDESCRIPTION\tPAID BY\tAMOUNT")
	for _, e := range expenses {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", e.ID, e.Description, e.PaidBy, formatMoney(e.Amount))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	balances, err := application.Client.Balances(cmd.Context(), id, opts...)
	if err != nil {
		pterm.Warning.Printf("Balances unavailable: %v\n", err)
		return nil
	}
	rows := pterm.TableData{{"USER", "NET"}}
	for _, b := range balances {
		rows = append(rows, []string{strconv.FormatInt(b.UserID, 10), formatMoney(b.Net)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func formatMoney(m ledger.Money) string {
	sign := ""
	amt := m.Amount
	if amt < 0 {
		sign, amt = "-", -amt
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amt/100, amt%100, m.Currency)
}
