package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tallyboard.io/internal/plans"
	"tallyboard.io/internal/rbac"
)

func newMatrixCmd() *cobra.Command {
	var roleFlag string
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print the role permission matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			roleList := rbac.Roles()
			if roleFlag != "" {
				role, ok := rbac.ParseRole(roleFlag)
				if !ok {
					return fmt.Errorf("unknown role %q", roleFlag)
				}
				roleList = []rbac.Role{role}
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROLE\tMODULE\tACTIONS")
			for _, role := range roleList {
				for _, module := range rbac.Modules() {
					actions := rbac.DefaultMatrix.AllowedActions(role, module)
					if len(actions) == 0 {
						continue
					}
					names := make([]string, len(actions))
					for i, a := range actions {
						names[i] = string(a)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", role, module, strings.Join(names, ","))
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&roleFlag, "role", "", "only print this role")
	return cmd
}

func newPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Print the plan catalog and limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FEATURE\tNAME\tMINIMUM PLAN")
			for _, f := range plans.Features() {
				required, err := plans.MinimumPlanFor(f)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", f, plans.FeatureDisplayName(f), plans.DisplayName(required))
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "PLAN\tUSERS\tORGANIZATIONS\tINVOICES/MONTH\tSTORAGE")
			for _, p := range plans.Plans() {
				l := plans.LimitsFor(p)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", plans.DisplayName(p),
					limit(int64(l.MaxUsers)), limit(int64(l.MaxOrganizations)),
					limit(int64(l.MaxInvoicesPerMonth)), storage(l.MaxStorageBytes))
			}
			return w.Flush()
		},
	}
}

func limit(n int64) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}

func storage(b int64) string {
	if b == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d GiB", b>>30)
}
