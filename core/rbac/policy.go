package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermWrite          Permission = "incidents.write"
	PermReview         Permission = "incidents.review"
	PermApprove        Permission = "incidents.approve"
	PermDeleteArchive  Permission = "incidents.archive.delete"
	PermManageAccounts Permission = "accounts.manage"
	PermViewAudit      Permission = "audit.view"
	PermSaveWorkbook   Permission = "workbook.save"
)

const (
	RoleAdmin    = "admin"
	RoleReviewer = "reviewer"
	RoleMember   = "member"
)

const modelText = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

// rolePresets are the default capability sets per role. Any user record may
// override any single capability independently (see AllowedFor); presets
// only supply the baseline.
var rolePresets = map[string][]Permission{
	RoleAdmin: {
		PermWrite, PermReview, PermApprove, PermDeleteArchive,
		PermManageAccounts, PermViewAudit, PermSaveWorkbook,
	},
	RoleReviewer: {
		PermWrite, PermReview, PermApprove, PermViewAudit, PermSaveWorkbook,
	},
	RoleMember: {
		PermWrite, PermSaveWorkbook,
	},
}

// Policy answers "may this role perform this action". It is the single
// authorization choke point: lifecycle transitions consult it (through
// AllowedFor) exactly once before mutating anything.
type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	for role, perms := range rolePresets {
		for _, perm := range perms {
			if _, err := e.AddPolicy(role, string(perm)); err != nil {
				return nil, fmt.Errorf("seed policy %s/%s: %w", role, perm, err)
			}
		}
	}
	return &Policy{enforcer: e}, nil
}

func MustNewPolicy() *Policy {
	p, err := NewPolicy()
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) Allowed(role string, perm Permission) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	ok, err := p.enforcer.Enforce(role, string(perm))
	return err == nil && ok
}

// Capabilities carries a user's per-capability overrides; nil means
// "inherit the role preset".
type Capabilities struct {
	Write         *bool
	Review        *bool
	Approve       *bool
	DeleteArchive *bool
}

func (c Capabilities) override(perm Permission) *bool {
	switch perm {
	case PermWrite:
		return c.Write
	case PermReview:
		return c.Review
	case PermApprove:
		return c.Approve
	case PermDeleteArchive:
		return c.DeleteArchive
	default:
		return nil
	}
}

// AllowedFor resolves an actor's effective capability: an explicit user
// override wins in either direction, otherwise the role preset decides.
func (p *Policy) AllowedFor(role string, caps Capabilities, perm Permission) bool {
	if o := caps.override(perm); o != nil {
		return *o
	}
	return p.Allowed(role, perm)
}
