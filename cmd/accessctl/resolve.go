package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tallyboard.io/internal/roles"
	"tallyboard.io/internal/roles/remote"
)

func newResolveCmd() *cobra.Command {
	var (
		baseURL     string
		grpcTarget  string
		token       string
		orgID       string
		impersonate bool
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Ask a role authority for the caller's resolved role",
		Example: `  accessctl resolve --url http://localhost:8080 --org 01HZDEMO00000000000000ORG1
  TALLYBOARD_TOKEN=... accessctl resolve --grpc localhost:9090 --org ORG --impersonate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("TALLYBOARD_TOKEN")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var resolver roles.Resolver
			switch {
			case grpcTarget != "":
				client, err := remote.Dial(ctx, grpcTarget, nil, remote.WithTokenSource(roles.StaticToken(token)))
				if err != nil {
					return err
				}
				defer client.Close()
				resolver = client
			case baseURL != "":
				resolver = roles.NewClient(baseURL,
					roles.WithTokenSource(roles.StaticToken(token)),
					roles.WithHTTPClient(&http.Client{Timeout: timeout}),
				)
			default:
				return fmt.Errorf("one of --url or --grpc is required")
			}

			resolved, err := resolver.ResolveRole(ctx, roles.Request{OrganizationID: orgID, IsImpersonating: impersonate})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resolved)
		},
	}
	f := cmd.Flags()
	f.StringVar(&baseURL, "url", "", "HTTP base URL of the API")
	f.StringVar(&grpcTarget, "grpc", "", "gRPC target of the role service")
	f.StringVar(&token, "token", "", "session token (default $TALLYBOARD_TOKEN)")
	f.StringVar(&orgID, "org", "", "organization id (empty resolves the default membership)")
	f.BoolVar(&impersonate, "impersonate", false, "resolve as an impersonating super-admin")
	f.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}
