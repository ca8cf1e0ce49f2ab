package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tallyboard.io/internal/access"
	"tallyboard.io/internal/plans"
	"tallyboard.io/internal/rbac"
	"tallyboard.io/internal/subscription"
)

type checkOptions struct {
	role          string
	plan          string
	status        string
	trialEnd      string
	superAdmin    bool
	impersonating bool
	feature       string
	module        string
	action        string
	at            string
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate an access verdict offline",
		Example: `  accessctl check --role employee --plan pro --module reports --action view
  accessctl check --role owner --plan basic --status trial --trial-end 2026-01-31T00:00:00Z --feature analytics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, req, err := opts.build()
			if err != nil {
				return err
			}
			out := struct {
				Verdict  access.Verdict `json:"verdict"`
				ReadOnly bool           `json:"readOnly"`
			}{
				Verdict:  access.New().Check(subject, req),
				ReadOnly: access.New().ReadOnly(subject),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.role, "role", "", "organization role (owner, manager, accounts, sales_staff, designer, employee)")
	f.StringVar(&opts.plan, "plan", string(plans.Free), "subscription plan")
	f.StringVar(&opts.status, "status", string(subscription.StatusActive), "subscription status")
	f.StringVar(&opts.trialEnd, "trial-end", "", "trial end (RFC3339)")
	f.BoolVar(&opts.superAdmin, "super-admin", false, "subject is a super-admin")
	f.BoolVar(&opts.impersonating, "impersonating", false, "subject is impersonating")
	f.StringVar(&opts.feature, "feature", "", "plan feature to check")
	f.StringVar(&opts.module, "module", "", "permission module to check")
	f.StringVar(&opts.action, "action", string(rbac.ActionView), "permission action")
	f.StringVar(&opts.at, "at", "", "evaluation time (RFC3339, default now)")
	return cmd
}

func (o checkOptions) build() (access.Subject, access.Request, error) {
	var s access.Subject
	var req access.Request

	if o.role != "" {
		role, ok := rbac.ParseRole(o.role)
		if !ok {
			return s, req, fmt.Errorf("unknown role %q", o.role)
		}
		s.Role = role
	}
	plan, ok := plans.ParsePlan(o.plan)
	if !ok {
		return s, req, fmt.Errorf("unknown plan %q", o.plan)
	}
	status, ok := subscription.ParseStatus(o.status)
	if !ok {
		return s, req, fmt.Errorf("unknown status %q", o.status)
	}
	s.Subscription = subscription.Subscription{Plan: plan, Status: status}
	if o.trialEnd != "" {
		end, err := time.Parse(time.RFC3339, o.trialEnd)
		if err != nil {
			return s, req, fmt.Errorf("trial-end: %w", err)
		}
		s.Subscription.TrialEnd = &end
	}
	s.Now = time.Now().UTC()
	if o.at != "" {
		at, err := time.Parse(time.RFC3339, o.at)
		if err != nil {
			return s, req, fmt.Errorf("at: %w", err)
		}
		s.Now = at
	}
	s.IsSuperAdmin = o.superAdmin
	s.IsImpersonating = o.impersonating

	if o.feature != "" {
		feature, ok := plans.ParseFeature(o.feature)
		if !ok {
			return s, req, fmt.Errorf("unknown feature %q", o.feature)
		}
		req.Feature = feature
	}
	if o.module != "" {
		module, ok := rbac.ParseModule(o.module)
		if !ok {
			return s, req, fmt.Errorf("unknown module %q", o.module)
		}
		action, ok := rbac.ParseAction(o.action)
		if !ok {
			return s, req, fmt.Errorf("unknown action %q", o.action)
		}
		req.Module, req.Action = module, action
	}
	if req.Feature == "" && req.Module == "" {
		return s, req, fmt.Errorf("one of --feature or --module is required")
	}
	return s, req, nil
}
