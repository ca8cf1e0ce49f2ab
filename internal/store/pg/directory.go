package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tallyboard.io/internal/auth"
	"tallyboard.io/internal/jobs"
	"tallyboard.io/internal/plans"
	"tallyboard.io/internal/rbac"
	"tallyboard.io/internal/roles"
	"tallyboard.io/internal/subscription"
)

var (
	_ roles.Directory            = (*Store)(nil)
	_ auth.CredentialStore       = (*Store)(nil)
	_ jobs.SubscriptionActivator = (*Store)(nil)
)

func (s *Store) User(ctx context.Context, userID string) (roles.User, error) {
	var (
		u          roles.User
		systemRole string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, email, system_role, disabled
		from users
		where id = $1
	`, strings.TrimSpace(userID)).Scan(&u.ID, &u.Email, &systemRole, &u.Disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return roles.User{}, roles.ErrNotFound
	}
	if err != nil {
		return roles.User{}, fmt.Errorf("pg: load user: %w", err)
	}
	u.SystemRole = roles.SystemRole(systemRole)
	return u, nil
}

func (s *Store) Organization(ctx context.Context, orgID string) (roles.Organization, error) {
	var org roles.Organization
	err := s.db.QueryRowContext(ctx, `
		select id, name, owner_id
		from organizations
		where id = $1
	`, strings.TrimSpace(orgID)).Scan(&org.ID, &org.Name, &org.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return roles.Organization{}, roles.ErrNotFound
	}
	if err != nil {
		return roles.Organization{}, fmt.Errorf("pg: load organization: %w", err)
	}
	return org, nil
}

func (s *Store) Membership(ctx context.Context, userID, orgID string) (roles.Membership, error) {
	return s.scanMembership(s.db.QueryRowContext(ctx, `
		select organization_id, user_id, role, status
		from memberships
		where user_id = $1 and organization_id = $2
	`, strings.TrimSpace(userID), strings.TrimSpace(orgID)))
}

// DefaultMembership prefers the flagged default and falls back to the
// oldest active membership.
func (s *Store) DefaultMembership(ctx context.Context, userID string) (roles.Membership, error) {
	return s.scanMembership(s.db.QueryRowContext(ctx, `
		select organization_id, user_id, role, status
		from memberships
		where user_id = $1 and status = 'active'
		order by is_default desc, created_at asc
		limit 1
	`, strings.TrimSpace(userID)))
}

func (s *Store) scanMembership(row *sql.Row) (roles.Membership, error) {
	var (
		m    roles.Membership
		role string
	)
	err := row.Scan(&m.OrganizationID, &m.UserID, &role, &m.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return roles.Membership{}, roles.ErrNotFound
	}
	if err != nil {
		return roles.Membership{}, fmt.Errorf("pg: load membership: %w", err)
	}
	m.Role = rbac.Role(role)
	return m, nil
}

// FindCredentials looks a user up by lower-cased email.
func (s *Store) FindCredentials(ctx context.Context, email string) (auth.Credentials, error) {
	var c auth.Credentials
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, disabled
		from users
		where lower(email) = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&c.UserID, &c.Email, &c.PasswordHash, &c.Disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Credentials{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("pg: find credentials: %w", err)
	}
	return c, nil
}

// Subscription reads the organization's subscription snapshot.
func (s *Store) Subscription(ctx context.Context, orgID string) (subscription.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		select organization_id, plan, status, trial_end
		from subscriptions
		where organization_id = $1
	`, strings.TrimSpace(orgID))
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	if err != nil {
		return subscription.Subscription{}, fmt.Errorf("pg: load subscription: %w", err)
	}
	return sub, nil
}

// ActivatePayment records the payment's order id and moves the
// organization onto the paid plan with status active, clearing any trial
// end. A reused order id returns jobs.ErrPaymentReplayed.
func (s *Store) ActivatePayment(ctx context.Context, p jobs.Payment, at time.Time) (subscription.Subscription, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return subscription.Subscription{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into payments (order_id, payment_id, organization_id, plan, activated_at)
		values ($1, $2, $3, $4, $5)
	`, p.OrderID, p.PaymentID, p.OrganizationID, string(p.Plan), at); err != nil {
		err = mapWriteError(err, jobs.ErrSubscriptionNotFound)
		if errors.Is(err, ErrConflict) {
			return subscription.Subscription{}, jobs.ErrPaymentReplayed
		}
		if errors.Is(err, jobs.ErrSubscriptionNotFound) {
			return subscription.Subscription{}, err
		}
		return subscription.Subscription{}, fmt.Errorf("pg: record payment: %w", err)
	}

	sub, err := scanSubscription(tx.QueryRowContext(ctx, `
		update subscriptions
		set plan = $2, status = 'active', trial_end = null,
		    current_period_start = $3, updated_at = $3
		where organization_id = $1
		returning organization_id, plan, status, trial_end
	`, p.OrganizationID, string(p.Plan), at))
	if errors.Is(err, sql.ErrNoRows) {
		return subscription.Subscription{}, jobs.ErrSubscriptionNotFound
	}
	if err != nil {
		return subscription.Subscription{}, fmt.Errorf("pg: activate subscription: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return subscription.Subscription{}, err
	}
	return sub, nil
}

func scanSubscription(row *sql.Row) (subscription.Subscription, error) {
	var (
		sub          subscription.Subscription
		plan, status string
		trialEnd     sql.NullTime
	)
	if err := row.Scan(&sub.OrganizationID, &plan, &status, &trialEnd); err != nil {
		return subscription.Subscription{}, err
	}
	sub.Plan = plans.Plan(plan)
	sub.Status, _ = subscription.ParseStatus(status)
	if trialEnd.Valid {
		t := trialEnd.Time.UTC()
		sub.TrialEnd = &t
	}
	return sub, nil
}

// TransferOwnership makes newOwnerID the owner of orgID. The new owner must
// hold an active membership; the previous owner stays on as manager.
func (s *Store) TransferOwnership(ctx context.Context, orgID, newOwnerID string) (roles.Organization, error) {
	orgID = strings.TrimSpace(orgID)
	newOwnerID = strings.TrimSpace(newOwnerID)
	if orgID == "" || newOwnerID == "" {
		return roles.Organization{}, fmt.Errorf("%w: organization and new owner are required", roles.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return roles.Organization{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var org roles.Organization
	err = tx.QueryRowContext(ctx, `
		select id, name, owner_id
		from organizations
		where id = $1
		for update
	`, orgID).Scan(&org.ID, &org.Name, &org.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return roles.Organization{}, roles.ErrNotFound
	}
	if err != nil {
		return roles.Organization{}, fmt.Errorf("pg: lock organization: %w", err)
	}
	if org.OwnerID == newOwnerID {
		return roles.Organization{}, fmt.Errorf("%w: user already owns the organization", roles.ErrInvalidInput)
	}

	var status string
	err = tx.QueryRowContext(ctx, `
		select status from memberships
		where organization_id = $1 and user_id = $2
	`, orgID, newOwnerID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && status != roles.MembershipActive) {
		return roles.Organization{}, roles.ErrNotMember
	}
	if err != nil {
		return roles.Organization{}, fmt.Errorf("pg: load membership: %w", err)
	}

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `update organizations set owner_id = $2 where id = $1`, orgID, newOwnerID); err != nil {
		return roles.Organization{}, mapWriteError(err, roles.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `
		update memberships set role = $3, updated_at = $4
		where organization_id = $1 and user_id = $2
	`, orgID, newOwnerID, string(rbac.RoleOwner), now); err != nil {
		return roles.Organization{}, err
	}
	// The previous owner may never have had a membership row.
	if _, err := tx.ExecContext(ctx, `
		insert into memberships (organization_id, user_id, role, status, is_default, created_at, updated_at)
		values ($1, $2, $3, 'active', false, $4, $4)
		on conflict (organization_id, user_id)
		do update set role = excluded.role, status = 'active', updated_at = excluded.updated_at
	`, orgID, org.OwnerID, string(rbac.RoleManager), now); err != nil {
		return roles.Organization{}, mapWriteError(err, roles.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return roles.Organization{}, err
	}
	org.OwnerID = newOwnerID
	return org, nil
}
