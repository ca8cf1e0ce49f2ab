package plans

// Limits are the caps attached to a plan. A zero numeric limit means unlimited.
type Limits struct {
	MaxUsers            int   `json:"max_users"`
	MaxOrganizations    int   `json:"max_organizations"`
	MaxInvoicesPerMonth int   `json:"max_invoices_per_month"`
	MaxStorageBytes     int64 `json:"max_storage_bytes"`
	CustomBranding      bool  `json:"custom_branding"`
	APIAccess           bool  `json:"api_access"`
}

const gib = int64(1) << 30

var planLimits = map[Plan]Limits{
	Free: {
		MaxUsers:            1,
		MaxOrganizations:    1,
		MaxInvoicesPerMonth: 20,
		MaxStorageBytes:     1 * gib,
	},
	Basic: {
		MaxUsers:            3,
		MaxOrganizations:    1,
		MaxInvoicesPerMonth: 200,
		MaxStorageBytes:     5 * gib,
	},
	Pro: {
		MaxUsers:         15,
		MaxOrganizations: 3,
		MaxStorageBytes:  50 * gib,
		APIAccess:        true,
	},
	Enterprise: {
		MaxStorageBytes: 500 * gib,
		CustomBranding:  true,
		APIAccess:       true,
	},
}

// LimitsFor returns the limits for plan. Unknown plans get the free limits.
func LimitsFor(plan Plan) Limits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[Free]
}

// LimitCheck is the outcome of comparing usage with a limit.
type LimitCheck string

const (
	LimitAllowed   LimitCheck = "allowed"
	LimitSoftBlock LimitCheck = "soft_block" // 90% or more of the limit used
	LimitHardBlock LimitCheck = "hard_block"
)

// CheckLimit compares observed usage with limit. Zero or negative limits never block.
func CheckLimit(limit, observed int64) LimitCheck {
	if limit <= 0 {
		return LimitAllowed
	}
	if observed >= limit {
		return LimitHardBlock
	}
	if observed*10 >= limit*9 {
		return LimitSoftBlock
	}
	return LimitAllowed
}
